package project

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// SettingsFileName is the conventional settings file analyzers read.
	SettingsFileName = "autofix.ini"
	// IntermediateOutputPathKey designates a scratch directory analyzers
	// may use for coordination flag files.
	IntermediateOutputPathKey = "IntermediateOutputPath"
	// BuildTimeKey is injected by the analysis driver.
	BuildTimeKey = "IsBuildTime"
)

// ParseSettings reads key=value lines. Blank lines and lines that do not
// split into exactly one key and one value are ignored; both sides are
// trimmed. Later keys win.
func ParseSettings(r io.Reader) (map[string]string, error) {
	out := make(map[string]string)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, "=")
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(parts[1])
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseSettingsString is ParseSettings over an in-memory document.
func ParseSettingsString(s string) map[string]string {
	out, err := ParseSettings(strings.NewReader(s))
	if err != nil {
		// strings.Reader never fails; only overlong lines land here
		return map[string]string{}
	}
	return out
}

// LoadSettings reads a settings file from disk.
func LoadSettings(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	defer f.Close()
	out, err := ParseSettings(f)
	if err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	return out, nil
}
