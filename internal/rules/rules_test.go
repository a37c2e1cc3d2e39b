package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"autofix/internal/diag"
	"autofix/internal/plugin"
	"autofix/internal/source"
)

type reported struct {
	rule string
	span source.Span
}

func analyze(t *testing.T, a plugin.Analyzer, text string) []reported {
	t.Helper()
	var got []reported
	pass := &plugin.Pass{
		Documents: []plugin.Document{{ID: 1, Path: "/d.txt", Text: source.NewTextString(text)}},
		Report: diag.ReporterFunc(func(rule string, sp source.Span, _ string) {
			got = append(got, reported{rule, sp})
		}),
	}
	require.NoError(t, a.Analyze(context.Background(), pass))
	return got
}

func TestWhitespaceAnalyzer(t *testing.T) {
	got := analyze(t, whitespaceAnalyzer{}, "ok\nx  \r\n\tindented\n   \n  \tmixed\t\n")
	require.Equal(t, []reported{
		{TrailingWhitespace, source.Span{File: 1, Start: 4, End: 6}},
		{TabIndentation, source.Span{File: 1, Start: 8, End: 9}},
		{TrailingWhitespace, source.Span{File: 1, Start: 18, End: 21}},
		{TrailingWhitespace, source.Span{File: 1, Start: 30, End: 31}},
		{TabIndentation, source.Span{File: 1, Start: 22, End: 25}},
	}, got)
}

func TestNewlineAnalyzer(t *testing.T) {
	require.Empty(t, analyze(t, newlineAnalyzer{}, "a\n"))
	require.Empty(t, analyze(t, newlineAnalyzer{}, ""))
	require.Equal(t, []reported{{MissingFinalNewline, source.Span{File: 1, Start: 3, End: 3}}}, analyze(t, newlineAnalyzer{}, "a\nb"))
}

func TestTrailingFixBatch(t *testing.T) {
	doc := plugin.Document{ID: 1, Text: source.NewTextString("a \nb\t\n")}
	bc := &plugin.BatchContext{
		Rule: TrailingWhitespace,
		Diagnostics: []diag.Diagnostic{
			{RuleID: TrailingWhitespace, Document: 1, Primary: source.Span{File: 1, Start: 1, End: 2}},
			{RuleID: TrailingWhitespace, Document: 1, Primary: source.Span{File: 1, Start: 4, End: 5}},
		},
		Documents: map[source.FileID]plugin.Document{1: doc},
	}
	rem, err := trailingFix{}.RemediateAll(context.Background(), bc)
	require.NoError(t, err)
	require.Equal(t, []diag.TextEdit{
		{Span: source.Span{File: 1, Start: 1, End: 2}, OldText: " "},
		{Span: source.Span{File: 1, Start: 4, End: 5}, OldText: "\t"},
	}, rem.Edits)
}

func TestFinalNewlineFix(t *testing.T) {
	fc := &plugin.FixContext{Document: plugin.Document{ID: 2, Text: source.NewTextString("a\r\nb")}}
	rem, err := finalNewlineFix{}.Remediate(context.Background(), fc)
	require.NoError(t, err)
	require.Equal(t, []diag.TextEdit{{Span: source.Span{File: 2, Start: 4, End: 4}, NewText: "\r\n"}}, rem.Edits)

	fc.Document.Text = source.NewTextString("done\n")
	rem, err = finalNewlineFix{}.Remediate(context.Background(), fc)
	require.NoError(t, err)
	require.Nil(t, rem, "nothing to do declines")

	_, batch := any(finalNewlineFix{}).(plugin.BatchFixProvider)
	require.False(t, batch)
}

func TestTabFixUsesSettings(t *testing.T) {
	fc := &plugin.FixContext{
		Diagnostic: diag.Diagnostic{Primary: source.Span{File: 1, Start: 0, End: 3}},
		Document:   plugin.Document{ID: 1, Text: source.NewTextString(" \t\tx\n")},
		Settings:   map[string]string{TabWidthKey: "2"},
	}
	rem, err := tabFix{}.Remediate(context.Background(), fc)
	require.NoError(t, err)
	require.Equal(t, "    ", rem.Edits[0].NewText)
	require.Equal(t, " \t\t", rem.Edits[0].OldText)
}

func TestExpandTabs(t *testing.T) {
	cases := []struct {
		in    string
		width int
		want  string
	}{
		{"\t", 4, "    "},
		{"  \t", 4, "    "},
		{"\t\t", 2, "    "},
		{" \t ", 8, "         "},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ExpandTabs(tc.in, tc.width), "%q", tc.in)
	}
	require.Equal(t, 4, TabWidth(nil))
	require.Equal(t, 4, TabWidth(map[string]string{TabWidthKey: "zero"}))
	require.Equal(t, 8, TabWidth(map[string]string{TabWidthKey: " 8 "}))
}

func TestModuleRegistration(t *testing.T) {
	m := Module()
	require.Equal(t, plugin.HostVersion, m.HostVersion)
	require.Len(t, m.Analyzers, 2)
	require.Len(t, m.Providers, 3)
}
