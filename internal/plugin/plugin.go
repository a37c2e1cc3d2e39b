// Package plugin defines the contracts between the fix engine and the
// pluggable analyzers and fix providers. Implementations are registered
// explicitly through a Module; nothing is discovered by introspection.
package plugin

import (
	"context"
	"slices"
	"strings"

	"autofix/internal/diag"
	"autofix/internal/source"
)

// HostVersion is the contract version modules are built against. A module
// declaring a newer version is rejected as incompatible.
const HostVersion = 1

// AnyLanguage marks providers that work for every language.
const AnyLanguage = "*"

// RuleDescriptor describes one rule an analyzer can report.
type RuleDescriptor struct {
	ID              string
	Title           string
	DefaultSeverity diag.Severity
}

// Document is the analyzer's read-only view of a document.
type Document struct {
	ID   source.FileID
	Path string
	Text *source.Text
}

// Pass carries one analysis run over a project.
type Pass struct {
	ProjectName     string
	ProjectPath     string
	Language        string
	Documents       []Document
	AdditionalFiles []Document
	Settings        map[string]string
	Symbols         []string
	Report          diag.Reporter
}

type Analyzer interface {
	ID() string
	Rules() []RuleDescriptor
	Analyze(ctx context.Context, pass *Pass) error
}

// FixContext is offered to a provider for one diagnostic.
type FixContext struct {
	Diagnostic diag.Diagnostic
	Document   Document
	Settings   map[string]string
}

// BatchContext covers every diagnostic of one rule in the project.
type BatchContext struct {
	Rule        string
	Diagnostics []diag.Diagnostic
	Documents   map[source.FileID]Document
	Settings    map[string]string
}

// Remediation is a set of edits, possibly across documents; each edit's
// Span.File names its document.
type Remediation struct {
	Title string
	Edits []diag.TextEdit
}

// Empty reports whether the remediation changes nothing.
func (r *Remediation) Empty() bool {
	return r == nil || len(r.Edits) == 0
}

// FixProvider computes remediations. Returning (nil, nil) declines.
type FixProvider interface {
	Name() string
	FixableRules() []string
	Languages() []string
	Remediate(ctx context.Context, fc *FixContext) (*Remediation, error)
}

// BatchFixProvider can fix every occurrence of a rule at once.
type BatchFixProvider interface {
	FixProvider
	RemediateAll(ctx context.Context, bc *BatchContext) (*Remediation, error)
}

// Module is the registration manifest of a set of analyzers and providers.
type Module struct {
	Name        string
	Source      string // file the module came from, "builtin" for Go modules
	HostVersion int
	Analyzers   []Analyzer
	Providers   []FixProvider
}

// AnalyzerDescriptor is the immutable registry view of an analyzer.
type AnalyzerDescriptor struct {
	ID     string
	Module string
	Rules  []string
}

// FixProviderDescriptor is the immutable registry view of a provider.
type FixProviderDescriptor struct {
	Name      string
	Module    string
	Rules     []string
	Languages []string
	Batch     bool
}

func DescribeAnalyzer(module string, a Analyzer) AnalyzerDescriptor {
	rules := a.Rules()
	ids := make([]string, 0, len(rules))
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	return AnalyzerDescriptor{ID: a.ID(), Module: module, Rules: ids}
}

func DescribeProvider(module string, p FixProvider) FixProviderDescriptor {
	_, batch := p.(BatchFixProvider)
	return FixProviderDescriptor{
		Name:      p.Name(),
		Module:    module,
		Rules:     slices.Clone(p.FixableRules()),
		Languages: slices.Clone(p.Languages()),
		Batch:     batch,
	}
}

// Declares reports whether the descriptor lists rule.
func (d AnalyzerDescriptor) Declares(rule string) bool {
	return slices.Contains(d.Rules, rule)
}

// Fixes reports whether the provider handles rule.
func (d FixProviderDescriptor) Fixes(rule string) bool {
	return slices.Contains(d.Rules, rule)
}

// Supports reports whether the provider handles language.
func (d FixProviderDescriptor) Supports(language string) bool {
	for _, l := range d.Languages {
		if l == AnyLanguage || strings.EqualFold(l, language) {
			return true
		}
	}
	return false
}
