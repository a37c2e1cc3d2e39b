package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

type uiMode uint8

const (
	uiAuto uiMode = iota
	uiOn
	uiOff
)

var uiModes = map[string]uiMode{"": uiAuto, "auto": uiAuto, "on": uiOn, "off": uiOff}

func readUIMode(value string) (uiMode, error) {
	mode, ok := uiModes[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return uiAuto, fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
	}
	return mode, nil
}

// progressView decides whether fix shows the progress view on out. In auto
// mode it needs an interactive terminal outside CI.
func progressView(mode uiMode, quiet bool, out io.Writer) bool {
	if quiet || mode == uiOff {
		return false
	}
	if mode == uiOn {
		return true
	}
	if os.Getenv("CI") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	f, ok := out.(*os.File)
	return ok && isTerminal(f)
}
