package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/parser"

	"autofix/internal/diag"
	"autofix/internal/fault"
	"autofix/internal/plugin"
	"autofix/internal/source"
)

// Load reads the manifest at path (file or module directory), checks every
// script and returns the module. Invalid declarations are skipped and
// returned as warnings; failures that void the whole module are returned
// as a ModuleLoad fault.
func Load(ctx context.Context, path string) (*plugin.Module, []error, error) {
	manifestPath := ManifestPath(path)
	m, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, nil, fault.Wrap(err, fault.KindModuleLoad, diag.ModuleLoadFailed, "load module")
	}
	if m.HostVersion > plugin.HostVersion {
		return nil, nil, fault.Newf(fault.KindModuleLoad, diag.ModuleIncompatible,
			"module %s requires host version %d, have %d", m.Name, m.HostVersion, plugin.HostVersion)
	}

	dir := filepath.Dir(manifestPath)
	mod := &plugin.Module{Name: m.Name, Source: manifestPath, HostVersion: m.HostVersion}
	var warnings []error
	skip := func(kind, name, reason string) {
		warnings = append(warnings, fault.Newf(fault.KindModuleLoad, diag.ModuleDeclaration,
			"module %s: %s %q skipped: %s", m.Name, kind, name, reason))
	}

	for _, decl := range m.Analyzers {
		rules, reason := analyzerRules(decl)
		if reason != "" {
			skip("analyzer", decl.ID, reason)
			continue
		}
		src, err := compile(ctx, dir, decl.Script)
		if err != nil {
			return nil, warnings, err
		}
		mod.Analyzers = append(mod.Analyzers, &analyzer{id: decl.ID, rules: rules, src: src, label: decl.Script})
	}
	for _, decl := range m.Fixes {
		if reason := fixReason(decl); reason != "" {
			skip("fix provider", decl.Name, reason)
			continue
		}
		src, err := compile(ctx, dir, decl.Script)
		if err != nil {
			return nil, warnings, err
		}
		p := &provider{
			name:      decl.Name,
			rules:     slices.Clone(decl.Rules),
			languages: languagesOrAny(decl.Languages),
			src:       src,
			label:     decl.Script,
		}
		if decl.Batch {
			mod.Providers = append(mod.Providers, &batchProvider{provider: p})
		} else {
			mod.Providers = append(mod.Providers, p)
		}
	}
	return mod, warnings, nil
}

func analyzerRules(decl AnalyzerDecl) ([]plugin.RuleDescriptor, string) {
	if strings.TrimSpace(decl.ID) == "" {
		return nil, "missing id"
	}
	if decl.Script == "" {
		return nil, "missing script"
	}
	if len(decl.Rules) == 0 {
		return nil, "declares no rules"
	}
	out := make([]plugin.RuleDescriptor, 0, len(decl.Rules))
	for _, r := range decl.Rules {
		if strings.TrimSpace(r.ID) == "" {
			return nil, "rule without id"
		}
		sev := diag.SevWarning
		if r.Severity != "" {
			var err error
			if sev, err = diag.ParseSeverity(r.Severity); err != nil {
				return nil, err.Error()
			}
		}
		out = append(out, plugin.RuleDescriptor{ID: r.ID, Title: r.Title, DefaultSeverity: sev})
	}
	return out, ""
}

func fixReason(decl FixDecl) string {
	switch {
	case strings.TrimSpace(decl.Name) == "":
		return "missing name"
	case decl.Script == "":
		return "missing script"
	case len(decl.Rules) == 0:
		return "fixes no rules"
	}
	return ""
}

func languagesOrAny(in []string) []string {
	if len(in) == 0 {
		return []string{plugin.AnyLanguage}
	}
	return slices.Clone(in)
}

// compile reads a script and checks that it parses.
func compile(ctx context.Context, dir, rel string) (string, error) {
	path := rel
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, filepath.FromSlash(rel))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fault.Wrap(err, fault.KindModuleLoad, diag.ModuleLoadFailed, "read script")
	}
	data, _, _ = source.Normalize(data)
	src := string(data)
	if _, err := parser.Parse(ctx, src); err != nil {
		return "", fault.Wrap(err, fault.KindModuleLoad, diag.ModuleCompile, "compile "+rel)
	}
	return src, nil
}

func eval(ctx context.Context, src, label string, globals map[string]any) error {
	opts := make([]risor.Option, 0, len(globals))
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if _, err := risor.Eval(ctx, src, opts...); err != nil {
		return fmt.Errorf("script %s: %w", label, err)
	}
	return nil
}

// analyzer runs its script once per document.
type analyzer struct {
	id    string
	rules []plugin.RuleDescriptor
	src   string
	label string
}

func (a *analyzer) ID() string                     { return a.id }
func (a *analyzer) Rules() []plugin.RuleDescriptor { return a.rules }

func (a *analyzer) Analyze(ctx context.Context, pass *plugin.Pass) error {
	settings := stringMap(pass.Settings)
	symbols := stringList(pass.Symbols)
	for _, doc := range pass.Documents {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := eval(ctx, a.src, a.label, map[string]any{
			"path":     doc.Path,
			"text":     doc.Text.String(),
			"language": pass.Language,
			"settings": settings,
			"symbols":  symbols,
			"report":   makeReportFn(doc.ID, doc.Text.Len(), pass.Report),
		})
		if err != nil {
			return fmt.Errorf("analyzer %s on %s: %w", a.id, doc.Path, err)
		}
	}
	return nil
}

type provider struct {
	name      string
	rules     []string
	languages []string
	src       string
	label     string
}

func (p *provider) Name() string           { return p.name }
func (p *provider) FixableRules() []string { return p.rules }
func (p *provider) Languages() []string    { return p.languages }

func (p *provider) Remediate(ctx context.Context, fc *plugin.FixContext) (*plugin.Remediation, error) {
	var edits []diag.TextEdit
	d := fc.Diagnostic
	err := eval(ctx, p.src, p.label, map[string]any{
		"path":     fc.Document.Path,
		"text":     fc.Document.Text.String(),
		"rule":     d.RuleID,
		"start":    int64(d.Primary.Start),
		"end":      int64(d.Primary.End),
		"message":  d.Message,
		"settings": stringMap(fc.Settings),
		"edit":     makeEditFn(fc.Document.ID, fc.Document.Text.Len(), &edits),
	})
	if err != nil {
		return nil, err
	}
	if len(edits) == 0 {
		return nil, nil
	}
	return &plugin.Remediation{Title: p.name, Edits: edits}, nil
}

// batchProvider runs the script once per document with every diagnostic
// of the rule in that document.
type batchProvider struct {
	*provider
}

func (p *batchProvider) RemediateAll(ctx context.Context, bc *plugin.BatchContext) (*plugin.Remediation, error) {
	byDoc := make(map[source.FileID][]diag.Diagnostic)
	for _, d := range bc.Diagnostics {
		byDoc[d.Document] = append(byDoc[d.Document], d)
	}
	var edits []diag.TextEdit
	for _, id := range sortedKeys(byDoc) {
		doc, ok := bc.Documents[id]
		if !ok {
			return nil, fmt.Errorf("batch fix %s: unknown document %d", p.name, id)
		}
		err := eval(ctx, p.src, p.label, map[string]any{
			"path":        doc.Path,
			"text":        doc.Text.String(),
			"rule":        bc.Rule,
			"diagnostics": diagnosticList(byDoc[id]),
			"settings":    stringMap(bc.Settings),
			"edit":        makeEditFn(doc.ID, doc.Text.Len(), &edits),
		})
		if err != nil {
			return nil, err
		}
	}
	if len(edits) == 0 {
		return nil, nil
	}
	return &plugin.Remediation{Title: p.name, Edits: edits}, nil
}
