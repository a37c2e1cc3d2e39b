package rules

import (
	"bytes"
	"context"
	"strings"

	"autofix/internal/diag"
	"autofix/internal/plugin"
	"autofix/internal/source"
)

var anyLanguage = []string{plugin.AnyLanguage}

type trailingFix struct{}

func (trailingFix) Name() string           { return "trim-trailing-whitespace" }
func (trailingFix) FixableRules() []string { return []string{TrailingWhitespace} }
func (trailingFix) Languages() []string    { return anyLanguage }

func (f trailingFix) Remediate(_ context.Context, fc *plugin.FixContext) (*plugin.Remediation, error) {
	edit, ok := deleteEdit(fc.Document, fc.Diagnostic.Primary)
	if !ok {
		return nil, nil
	}
	return &plugin.Remediation{Title: "Remove trailing whitespace", Edits: []diag.TextEdit{edit}}, nil
}

func (f trailingFix) RemediateAll(_ context.Context, bc *plugin.BatchContext) (*plugin.Remediation, error) {
	rem := &plugin.Remediation{Title: "Remove all trailing whitespace"}
	for _, d := range bc.Diagnostics {
		if edit, ok := deleteEdit(bc.Documents[d.Document], d.Primary); ok {
			rem.Edits = append(rem.Edits, edit)
		}
	}
	if rem.Empty() {
		return nil, nil
	}
	return rem, nil
}

func deleteEdit(doc plugin.Document, sp source.Span) (diag.TextEdit, bool) {
	if doc.Text == nil {
		return diag.TextEdit{}, false
	}
	old, err := doc.Text.Slice(sp)
	if err != nil || len(old) == 0 {
		return diag.TextEdit{}, false
	}
	return diag.TextEdit{Span: sp, OldText: string(old)}, true
}

// finalNewlineFix has no batch form: every document needs its own edit.
type finalNewlineFix struct{}

func (finalNewlineFix) Name() string           { return "insert-final-newline" }
func (finalNewlineFix) FixableRules() []string { return []string{MissingFinalNewline} }
func (finalNewlineFix) Languages() []string    { return anyLanguage }

func (finalNewlineFix) Remediate(_ context.Context, fc *plugin.FixContext) (*plugin.Remediation, error) {
	text := fc.Document.Text
	if text == nil || text.Len() == 0 || bytes.HasSuffix(text.Bytes(), []byte("\n")) {
		return nil, nil
	}
	nl := "\n"
	if bytes.Contains(text.Bytes(), []byte("\r\n")) {
		nl = "\r\n"
	}
	end := text.Len()
	return &plugin.Remediation{
		Title: "Insert final newline",
		Edits: []diag.TextEdit{{Span: source.Span{File: fc.Document.ID, Start: end, End: end}, NewText: nl}},
	}, nil
}

type tabFix struct{}

func (tabFix) Name() string           { return "expand-tab-indentation" }
func (tabFix) FixableRules() []string { return []string{TabIndentation} }
func (tabFix) Languages() []string    { return anyLanguage }

func (tabFix) Remediate(_ context.Context, fc *plugin.FixContext) (*plugin.Remediation, error) {
	edit, ok := expandEdit(fc.Document, fc.Diagnostic.Primary, TabWidth(fc.Settings))
	if !ok {
		return nil, nil
	}
	return &plugin.Remediation{Title: "Indent with spaces", Edits: []diag.TextEdit{edit}}, nil
}

func (tabFix) RemediateAll(_ context.Context, bc *plugin.BatchContext) (*plugin.Remediation, error) {
	width := TabWidth(bc.Settings)
	rem := &plugin.Remediation{Title: "Indent all lines with spaces"}
	for _, d := range bc.Diagnostics {
		if edit, ok := expandEdit(bc.Documents[d.Document], d.Primary, width); ok {
			rem.Edits = append(rem.Edits, edit)
		}
	}
	if rem.Empty() {
		return nil, nil
	}
	return rem, nil
}

func expandEdit(doc plugin.Document, sp source.Span, width int) (diag.TextEdit, bool) {
	if doc.Text == nil {
		return diag.TextEdit{}, false
	}
	old, err := doc.Text.Slice(sp)
	if err != nil || !bytes.Contains(old, []byte("\t")) {
		return diag.TextEdit{}, false
	}
	return diag.TextEdit{Span: sp, NewText: ExpandTabs(string(old), width), OldText: string(old)}, true
}

// ExpandTabs replaces tabs with spaces up to the next tab stop.
func ExpandTabs(indent string, width int) string {
	var b strings.Builder
	col := 0
	for _, r := range indent {
		if r == '\t' {
			pad := width - col%width
			b.WriteString(strings.Repeat(" ", pad))
			col += pad
			continue
		}
		b.WriteRune(r)
		col++
	}
	return b.String()
}
