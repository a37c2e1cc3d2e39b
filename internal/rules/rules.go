// Package rules is the built-in module: a few text hygiene rules with
// their fix providers. It is registered explicitly by the CLI.
package rules

import (
	"context"
	"strconv"
	"strings"

	"autofix/internal/diag"
	"autofix/internal/plugin"
	"autofix/internal/source"
)

const (
	TrailingWhitespace  = "AF1001"
	MissingFinalNewline = "AF1002"
	TabIndentation      = "AF1003"

	// TabWidthKey is read from the settings file.
	TabWidthKey     = "TabWidth"
	defaultTabWidth = 4
)

// Module returns the built-in module.
func Module() plugin.Module {
	return plugin.Module{
		Name:        "builtin",
		Source:      "builtin",
		HostVersion: plugin.HostVersion,
		Analyzers:   []plugin.Analyzer{whitespaceAnalyzer{}, newlineAnalyzer{}},
		Providers:   []plugin.FixProvider{trailingFix{}, finalNewlineFix{}, tabFix{}},
	}
}

// TabWidth reads TabWidthKey from settings.
func TabWidth(settings map[string]string) int {
	if n, err := strconv.Atoi(strings.TrimSpace(settings[TabWidthKey])); err == nil && n > 0 && n <= 16 {
		return n
	}
	return defaultTabWidth
}

type whitespaceAnalyzer struct{}

func (whitespaceAnalyzer) ID() string { return "whitespace" }

func (whitespaceAnalyzer) Rules() []plugin.RuleDescriptor {
	return []plugin.RuleDescriptor{
		{ID: TrailingWhitespace, Title: "Trailing whitespace", DefaultSeverity: diag.SevWarning},
		{ID: TabIndentation, Title: "Tab indentation", DefaultSeverity: diag.SevInfo},
	}
}

func (whitespaceAnalyzer) Analyze(ctx context.Context, pass *plugin.Pass) error {
	for _, doc := range pass.Documents {
		if err := ctx.Err(); err != nil {
			return err
		}
		for n := 1; n <= doc.Text.LineCount(); n++ {
			sp, _ := doc.Text.LineSpan(n)
			sp.File = doc.ID
			line := doc.Text.Bytes()[sp.Start:sp.End]
			if trail, ok := trailingSpan(sp, line); ok {
				pass.Report.Report(TrailingWhitespace, trail, "trailing whitespace")
			}
			if indent, ok := tabIndentSpan(sp, line); ok {
				pass.Report.Report(TabIndentation, indent, "indentation uses tabs")
			}
		}
	}
	return nil
}

// trailingSpan finds blanks before the end of line, a CR excluded.
func trailingSpan(line source.Span, content []byte) (source.Span, bool) {
	end := len(content)
	if end > 0 && content[end-1] == '\r' {
		end--
	}
	start := end
	for start > 0 && (content[start-1] == ' ' || content[start-1] == '\t') {
		start--
	}
	if start == end {
		return source.Span{}, false
	}
	return source.Span{File: line.File, Start: line.Start + uint32(start), End: line.Start + uint32(end)}, true //nolint:gosec // bounded by line length
}

func tabIndentSpan(line source.Span, content []byte) (source.Span, bool) {
	n := 0
	hasTab := false
	for n < len(content) && (content[n] == ' ' || content[n] == '\t') {
		hasTab = hasTab || content[n] == '\t'
		n++
	}
	// строка из одних пробелов — это AF1001, не отступ
	if !hasTab || n == len(content) || content[n] == '\r' {
		return source.Span{}, false
	}
	return source.Span{File: line.File, Start: line.Start, End: line.Start + uint32(n)}, true //nolint:gosec // bounded by line length
}

type newlineAnalyzer struct{}

func (newlineAnalyzer) ID() string { return "final-newline" }

func (newlineAnalyzer) Rules() []plugin.RuleDescriptor {
	return []plugin.RuleDescriptor{
		{ID: MissingFinalNewline, Title: "Missing final newline", DefaultSeverity: diag.SevWarning},
	}
}

func (newlineAnalyzer) Analyze(ctx context.Context, pass *plugin.Pass) error {
	for _, doc := range pass.Documents {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := doc.Text.Len()
		if n == 0 || doc.Text.Bytes()[n-1] == '\n' {
			continue
		}
		pass.Report.Report(MissingFinalNewline, source.Span{File: doc.ID, Start: n, End: n}, "file does not end with a newline")
	}
	return nil
}
