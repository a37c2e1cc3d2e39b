package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"autofix/internal/diag"
	"autofix/internal/fault"
	"autofix/internal/logging"
	"autofix/internal/plugin"
	"autofix/internal/script"
)

type fakeAnalyzer struct {
	id    string
	rules []string
}

func (a fakeAnalyzer) ID() string { return a.id }
func (a fakeAnalyzer) Rules() []plugin.RuleDescriptor {
	out := make([]plugin.RuleDescriptor, 0, len(a.rules))
	for _, r := range a.rules {
		out = append(out, plugin.RuleDescriptor{ID: r, DefaultSeverity: diag.SevWarning})
	}
	return out
}
func (fakeAnalyzer) Analyze(context.Context, *plugin.Pass) error { return nil }

type fakeProvider struct {
	name      string
	rules     []string
	languages []string
}

func (p fakeProvider) Name() string           { return p.name }
func (p fakeProvider) FixableRules() []string { return p.rules }
func (p fakeProvider) Languages() []string    { return p.languages }
func (fakeProvider) Remediate(context.Context, *plugin.FixContext) (*plugin.Remediation, error) {
	return nil, nil
}

type fakeBatch struct{ fakeProvider }

func (fakeBatch) RemediateAll(context.Context, *plugin.BatchContext) (*plugin.Remediation, error) {
	return nil, nil
}

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := New()
	require.NoError(t, c.Register(plugin.Module{
		Name:        "m",
		HostVersion: plugin.HostVersion,
		Analyzers: []plugin.Analyzer{
			fakeAnalyzer{id: "a1", rules: []string{"R1", "R2"}},
			fakeAnalyzer{id: "a2", rules: []string{"R3"}},
			fakeAnalyzer{id: "", rules: []string{"R4"}},
		},
		Providers: []plugin.FixProvider{
			fakeProvider{name: "p1", rules: []string{"R1"}, languages: []string{"text"}},
			fakeBatch{fakeProvider{name: "p2", rules: []string{"R1", "R2"}, languages: []string{plugin.AnyLanguage}}},
			fakeProvider{name: "p3", rules: []string{"R3"}, languages: []string{"go"}},
			fakeProvider{name: "p4", rules: []string{"R4"}, languages: []string{"text"}},
		},
	}))
	return c
}

func TestSelectFiltersAndOrders(t *testing.T) {
	c := testCatalog(t)
	require.Len(t, c.Analyzers(), 2, "analyzer without id is skipped")

	sel, err := c.Select([]string{"R2", "R1", "R1"}, "text")
	require.NoError(t, err)
	require.Equal(t, []string{"R1", "R2"}, sel.Rules)
	require.Len(t, sel.Analyzers, 1)
	require.Equal(t, "a1", sel.Analyzers[0].ID())

	r1 := sel.Providers("R1")
	require.Len(t, r1, 2)
	require.Equal(t, "p1", r1[0].Name())
	require.Equal(t, "p2", r1[1].Name())

	bp, ok := sel.BatchProvider("R1")
	require.True(t, ok)
	require.Equal(t, "p2", bp.Name())
	require.True(t, sel.Declared("R2"))
	require.False(t, sel.Requested("R3"))
}

func TestSelectPreflight(t *testing.T) {
	c := testCatalog(t)

	_, err := c.Select([]string{"R3"}, "text")
	require.Equal(t, fault.KindUnresolvedRule, fault.KindOf(err))
	require.Equal(t, diag.NoFixProvider, fault.CodeOf(err))

	// provider exists but no analyzer declares R4
	_, err = c.Select([]string{"R4"}, "text")
	require.Equal(t, diag.NoAnalyzer, fault.CodeOf(err))

	// both missing: provider check comes first
	_, err = c.Select([]string{"R9"}, "text")
	require.Equal(t, diag.NoFixProvider, fault.CodeOf(err))

	sel, err := c.Select([]string{"R3"}, "Go")
	require.NoError(t, err)
	require.Len(t, sel.Providers("R3"), 1)
}

func TestRegisterRejectsNewerHost(t *testing.T) {
	err := New().Register(plugin.Module{Name: "future", HostVersion: plugin.HostVersion + 1})
	require.Equal(t, diag.ModuleIncompatible, fault.CodeOf(err))
	require.False(t, fault.IsFatal(err))
}

func TestLoadModulesRecordsFailures(t *testing.T) {
	root := t.TempDir()
	good := filepath.Join(root, "good")
	bad := filepath.Join(root, "bad")
	skipped := filepath.Join(root, "skipped")
	for _, dir := range []string{good, bad, skipped} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	okManifest := "name = \"%s\"\n[[analyzer]]\nid = \"%s\"\nscript = \"a.risor\"\nrules = [{ id = \"R1\" }]\n"
	require.NoError(t, os.WriteFile(filepath.Join(good, script.ManifestName), []byte(fmt.Sprintf(okManifest, "good", "ga")), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(good, "a.risor"), []byte("x := 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(skipped, script.ManifestName), []byte(fmt.Sprintf(okManifest, "skipped", "sa")), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(skipped, "a.risor"), []byte("x := 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(bad, script.ManifestName), []byte("name = \"bad\"\nhost_version = 7\n"), 0o644))

	log, logs := logging.NewObserved()
	c := New(WithLogger(log))
	failed := c.LoadModules(context.Background(), []string{good, bad, skipped}, []string{skipped})
	require.Len(t, failed, 2)
	require.Equal(t, bad, failed[0].Path)
	require.Equal(t, diag.ModuleIncompatible, fault.CodeOf(failed[0].Err))
	require.Equal(t, skipped, failed[1].Path)
	require.Equal(t, []string{"good"}, c.Modules())
	require.Len(t, c.FailedModules(), 2)
	require.Equal(t, 2, logs.FilterMessage("module not loaded").Len())
}
