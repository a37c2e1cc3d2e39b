package analysis

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"autofix/internal/diag"
	"autofix/internal/fault"
	"autofix/internal/graph"
	"autofix/internal/plugin"
	"autofix/internal/project"
	"autofix/internal/registry"
	"autofix/internal/rules"
	"autofix/internal/source"
)

type staticLoader struct{ meta *project.Metadata }

func (l staticLoader) OpenProject(context.Context, string) (*project.Metadata, error) {
	return l.meta, nil
}

// loadProject writes docs into a temp project and loads it into a fresh
// workspace.
func loadProject(t *testing.T, diagnostics map[string]string, docs map[string]string, additional ...string) (*graph.Snapshot, *graph.ProjectNode) {
	t.Helper()
	return loadProjectWith(t, nil, diagnostics, docs, additional...)
}

func loadProjectWith(t *testing.T, edit func(*project.Metadata), diagnostics map[string]string, docs map[string]string, additional ...string) (*graph.Snapshot, *graph.ProjectNode) {
	t.Helper()
	dir := t.TempDir()
	projPath := filepath.Join(dir, "p.fixproj")
	require.NoError(t, os.WriteFile(projPath, []byte("[project]\n"), 0o644))
	meta := &project.Metadata{
		Schema:   project.SchemaVersion,
		ID:       project.StableID(projPath),
		Name:     "p",
		Language: "text",
		FilePath: projPath,
		Options: project.CompilationOptions{
			OutputKind:  project.OutputLibrary,
			Platform:    project.PlatformAnyCPU,
			Diagnostics: diagnostics,
		},
	}
	for name, content := range docs {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		info := project.DocumentInfo{FilePath: path}
		if len(additional) > 0 && additional[0] == name {
			meta.AdditionalDocuments = append(meta.AdditionalDocuments, info)
		} else {
			meta.Documents = append(meta.Documents, info)
		}
	}
	if edit != nil {
		edit(meta)
	}
	snap, p, err := graph.NewWorkspace().GetOrLoad(context.Background(), staticLoader{meta}, projPath)
	require.NoError(t, err)
	return snap, p
}

func selectBuiltin(t *testing.T, ruleIDs ...string) *registry.Selection {
	t.Helper()
	c := registry.New()
	require.NoError(t, c.Register(rules.Module()))
	sel, err := c.Select(ruleIDs, "text")
	require.NoError(t, err)
	return sel
}

func TestRunResolvesSeveritiesAndLocations(t *testing.T) {
	snap, p := loadProject(t,
		map[string]string{rules.TrailingWhitespace: "error", rules.TabIndentation: "none"},
		map[string]string{"b.txt": "x \n\ty\n", "a.txt": "ok\nno newline"},
	)
	sel := selectBuiltin(t, rules.TrailingWhitespace, rules.MissingFinalNewline, rules.TabIndentation)
	d, err := New(sel, Options{Jobs: 2})
	require.NoError(t, err)

	bag, err := d.Run(context.Background(), snap, p.ID)
	require.NoError(t, err)
	items := bag.Items()
	require.Len(t, items, 2)

	require.Equal(t, rules.MissingFinalNewline, items[0].RuleID)
	require.Equal(t, "a.txt", filepath.Base(items[0].Location.Path))
	require.Equal(t, source.LineCol{Line: 2, Col: 11}, items[0].Location.Start)
	require.Equal(t, diag.SevWarning, items[0].Severity)

	require.Equal(t, rules.TrailingWhitespace, items[1].RuleID)
	require.Equal(t, diag.SevError, items[1].Severity)
	require.Equal(t, source.LineCol{Line: 1, Col: 2}, items[1].Location.Start)
}

type rogueAnalyzer struct{ panics bool }

func (rogueAnalyzer) ID() string { return "rogue" }
func (rogueAnalyzer) Rules() []plugin.RuleDescriptor {
	return []plugin.RuleDescriptor{{ID: "R1", DefaultSeverity: diag.SevInfo}}
}
func (a rogueAnalyzer) Analyze(_ context.Context, pass *plugin.Pass) error {
	if a.panics {
		panic("boom")
	}
	doc := pass.Documents[0]
	pass.Report.Report("R1", source.Span{File: doc.ID, Start: 0, End: 1}, "declared")
	pass.Report.Report("R2", source.Span{File: doc.ID, Start: 0, End: 1}, "not declared")
	pass.Report.Report("R1", source.Span{File: doc.ID, Start: 0, End: 999}, "out of range")
	return nil
}

type nopProvider struct{}

func (nopProvider) Name() string           { return "nop" }
func (nopProvider) FixableRules() []string { return []string{"R1", "R2"} }
func (nopProvider) Languages() []string    { return []string{plugin.AnyLanguage} }
func (nopProvider) Remediate(context.Context, *plugin.FixContext) (*plugin.Remediation, error) {
	return nil, nil
}

func rogueSelection(t *testing.T, panics bool) *registry.Selection {
	t.Helper()
	c := registry.New()
	require.NoError(t, c.Register(plugin.Module{
		Name:        "rogue",
		HostVersion: plugin.HostVersion,
		Analyzers:   []plugin.Analyzer{rogueAnalyzer{panics: panics}},
		Providers:   []plugin.FixProvider{nopProvider{}},
	}))
	sel, err := c.Select([]string{"R1"}, "text")
	require.NoError(t, err)
	return sel
}

func TestRunDropsUndeclaredAndInvalid(t *testing.T) {
	snap, p := loadProject(t, nil, map[string]string{"a.txt": "abc\n"})
	d, err := New(rogueSelection(t, false), Options{})
	require.NoError(t, err)
	bag, err := d.Run(context.Background(), snap, p.ID)
	require.NoError(t, err)
	require.Len(t, bag.Items(), 1)
	require.Equal(t, "declared", bag.Items()[0].Message)
	require.Equal(t, diag.SevInfo, bag.Items()[0].Severity)
}

func TestRunAnalyzerPanic(t *testing.T) {
	snap, p := loadProject(t, nil, map[string]string{"a.txt": "abc\n"})
	d, err := New(rogueSelection(t, true), Options{})
	require.NoError(t, err)
	_, err = d.Run(context.Background(), snap, p.ID)
	require.Error(t, err)
	require.Equal(t, fault.KindInternal, fault.KindOf(err))
	require.Equal(t, diag.AnalysisFailed, fault.CodeOf(err))
}

func TestRunCanceled(t *testing.T) {
	snap, p := loadProject(t, nil, map[string]string{"a.txt": "abc \n"})
	d, err := New(selectBuiltin(t, rules.TrailingWhitespace), Options{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Run(ctx, snap, p.ID)
	require.Equal(t, fault.KindCanceled, fault.KindOf(err))
}

func TestSettingsFromAdditionalDocument(t *testing.T) {
	snap, p := loadProject(t, nil,
		map[string]string{"a.txt": "x\n", project.SettingsFileName: "TabWidth = 2\n"},
		project.SettingsFileName,
	)
	d, err := New(selectBuiltin(t, rules.TabIndentation), Options{})
	require.NoError(t, err)

	settings := d.Settings(snap, p.ID)
	require.Equal(t, "2", settings[rules.TabWidthKey])
	require.Equal(t, "True", settings[project.BuildTimeKey])
	require.Equal(t, 1, d.settings.Len())

	extra := snap.AdditionalDocuments(p.ID)
	d.Invalidate(extra[0].ID)
	require.Zero(t, d.settings.Len())
}

func TestSettingsCarryIntermediateOutputPath(t *testing.T) {
	obj := filepath.Join(t.TempDir(), "obj")
	withObj := func(m *project.Metadata) { m.IntermediateOutputPath = obj }
	d, err := New(selectBuiltin(t, rules.TabIndentation), Options{})
	require.NoError(t, err)

	snap, p := loadProjectWith(t, withObj, nil, map[string]string{"a.txt": "x\n"})
	require.Equal(t, obj, d.Settings(snap, p.ID)[project.IntermediateOutputPathKey])

	// the settings file wins over the project value
	snap, p = loadProjectWith(t, withObj, nil,
		map[string]string{"a.txt": "x\n", project.SettingsFileName: "IntermediateOutputPath = /scratch\n"},
		project.SettingsFileName,
	)
	require.Equal(t, "/scratch", d.Settings(snap, p.ID)[project.IntermediateOutputPathKey])
}
