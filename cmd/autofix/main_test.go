package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"autofix/internal/config"
	"autofix/internal/diag"
	"autofix/internal/fault"
)

func TestReadUIMode(t *testing.T) {
	tests := []struct {
		in      string
		want    uiMode
		wantErr bool
	}{
		{"", uiAuto, false},
		{"AUTO", uiAuto, false},
		{" on ", uiOn, false},
		{"off", uiOff, false},
		{"sometimes", uiAuto, true},
	}
	for _, tt := range tests {
		got, err := readUIMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("readUIMode(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("readUIMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestProgressView(t *testing.T) {
	var buf bytes.Buffer
	if progressView(uiOn, true, &buf) {
		t.Fatalf("quiet must disable the view")
	}
	if !progressView(uiOn, false, &buf) {
		t.Fatalf("--ui=on must force the view")
	}
	if progressView(uiAuto, false, &buf) {
		t.Fatalf("auto must not use a non-terminal writer")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.New("plain"), 1},
		{fault.New(fault.KindConfiguration, diag.InvalidConfig, "bad"), 2},
		{fault.New(fault.KindUnresolvedRule, diag.NoFixProvider, "R1"), 2},
		{fault.New(fault.KindWorkerProcess, diag.WorkerFailed, "gone"), 3},
		{fault.Canceled(context.Canceled), 130},
		{fault.New(fault.KindRemediation, diag.FixProviderFailed, "boom"), 1},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestApplyFlagsOverridesOnlyChanged(t *testing.T) {
	cmd := &cobra.Command{Use: "fix"}
	addFixFlags(cmd)
	if err := cmd.ParseFlags([]string{
		"--rules", "AF1001;AF1003",
		"--rules", "AF1002",
		"--jobs", "4",
		"--reader-timeout", "30s",
		"-p", "Configuration=Release",
		"--symbols", "DEBUG",
	}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	cfg := &config.Config{
		Language:         "text",
		Rules:            []string{"R0"},
		MaxPasses:        7,
		GlobalProperties: map[string]string{"Platform": "x64"},
	}
	if err := applyFlags(cmd, cfg); err != nil {
		t.Fatalf("applyFlags: %v", err)
	}

	if cfg.Language != "text" || cfg.MaxPasses != 7 {
		t.Fatalf("unchanged flags overwrote config: %+v", cfg)
	}
	if got := config.SplitList(cfg.Rules...); len(got) != 4 || got[0] != "R0" || got[3] != "AF1002" {
		t.Fatalf("rules = %v", got)
	}
	if cfg.Jobs != 4 || cfg.ReaderTimeout != 30*time.Second {
		t.Fatalf("jobs=%d timeout=%v", cfg.Jobs, cfg.ReaderTimeout)
	}
	if cfg.GlobalProperties["Configuration"] != "Release" || cfg.GlobalProperties["Platform"] != "x64" {
		t.Fatalf("properties = %v", cfg.GlobalProperties)
	}
	if len(cfg.Symbols) != 1 || cfg.Symbols[0] != "DEBUG" {
		t.Fatalf("symbols = %v", cfg.Symbols)
	}
}

func TestApplyFlagsRejectsBadProperty(t *testing.T) {
	cmd := &cobra.Command{Use: "fix"}
	addFixFlags(cmd)
	if err := cmd.ParseFlags([]string{"-p", "novalue"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	err := applyFlags(cmd, &config.Config{})
	if fault.CodeOf(err) != diag.InvalidConfig {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadConfigPositionalProject(t *testing.T) {
	root := &cobra.Command{Use: "autofix"}
	root.PersistentFlags().String("config", "", "")
	cmd := &cobra.Command{Use: "fix"}
	addFixFlags(cmd)
	root.AddCommand(cmd)
	t.Setenv("AUTOFIX_LANGUAGE", "text")

	cfg, err := loadConfig(cmd, []string{"app.fixproj"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !filepath.IsAbs(cfg.ProjectPath) || filepath.Base(cfg.ProjectPath) != "app.fixproj" {
		t.Fatalf("project = %q", cfg.ProjectPath)
	}
	if cfg.Language != "text" {
		t.Fatalf("language = %q", cfg.Language)
	}
}
