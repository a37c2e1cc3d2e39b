package graph

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"autofix/internal/fault"
	"autofix/internal/project"
	"autofix/internal/source"
)

// fakeLoader serves metadata built by the test and counts calls per path.
type fakeLoader struct {
	projects map[string]*project.Metadata
	calls    map[string]int
	err      error
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{projects: map[string]*project.Metadata{}, calls: map[string]int{}}
}

func (f *fakeLoader) OpenProject(_ context.Context, path string) (*project.Metadata, error) {
	canon, err := source.CanonicalPath(path)
	if err != nil {
		return nil, err
	}
	f.calls[canon]++
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.projects[canon]
	if !ok {
		return nil, errors.New("unknown project " + canon)
	}
	return m, nil
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	canon, err := source.CanonicalPath(path)
	require.NoError(t, err)
	return canon
}

// meta creates the project file plus one document and returns metadata.
func meta(t *testing.T, dir, name string, refs ...project.Metadata) project.Metadata {
	t.Helper()
	projPath := writeFile(t, filepath.Join(dir, name, name+project.ProjectFileExt), "[project]\n")
	docPath := writeFile(t, filepath.Join(dir, name, "doc.txt"), name+" body\n")
	return project.Metadata{
		Schema:     project.SchemaVersion,
		ID:         project.StableID(projPath),
		Name:       name,
		Language:   "text",
		FilePath:   projPath,
		Options:    project.CompilationOptions{OutputKind: project.OutputLibrary, Platform: project.PlatformAnyCPU},
		Documents:  []project.DocumentInfo{{FilePath: docPath}},
		References: refs,
	}
}

func stub(m project.Metadata) project.Metadata {
	return project.Metadata{Schema: project.SchemaVersion, ID: m.ID, FilePath: m.FilePath, Stub: true}
}

func TestGetOrLoadBuildsEachProjectOnce(t *testing.T) {
	dir := t.TempDir()
	d := meta(t, dir, "d")
	b := meta(t, dir, "b", d)
	c := meta(t, dir, "c", stub(d))
	a := meta(t, dir, "a", b, c)

	loader := newFakeLoader()
	loader.projects[a.FilePath] = &a

	ws := NewWorkspace()
	snap, root, err := ws.GetOrLoad(context.Background(), loader, a.FilePath)
	require.NoError(t, err)
	require.Equal(t, "a", root.Name)
	require.Len(t, snap.Projects(), 4)
	require.Equal(t, uint64(1), snap.Version())

	pb, ok := snap.FindProject(b.FilePath)
	require.True(t, ok)
	pc, ok := snap.FindProject(c.FilePath)
	require.True(t, ok)
	require.Equal(t, pb.References, pc.References)
	require.Len(t, snap.Documents(root.ID), 1)
	require.Equal(t, "a body\n", snap.Documents(root.ID)[0].Text.String())

	// stub of an already staged project does not go back to the worker
	require.Equal(t, 1, loader.calls[a.FilePath])
	require.Zero(t, loader.calls[d.FilePath])

	// second call is served from the cache
	_, again, err := ws.GetOrLoad(context.Background(), loader, a.FilePath)
	require.NoError(t, err)
	require.Same(t, root, again)
	require.Equal(t, 1, loader.calls[a.FilePath])
}

func TestGetOrLoadResolvesUnknownStub(t *testing.T) {
	dir := t.TempDir()
	lib := meta(t, dir, "lib")
	app := meta(t, dir, "app", stub(lib))

	loader := newFakeLoader()
	loader.projects[app.FilePath] = &app
	loader.projects[lib.FilePath] = &lib

	ws := NewWorkspace()
	snap, root, err := ws.GetOrLoad(context.Background(), loader, app.FilePath)
	require.NoError(t, err)
	require.Len(t, root.References, 1)
	require.Equal(t, 1, loader.calls[lib.FilePath])
	ref, ok := snap.Project(root.References[0])
	require.True(t, ok)
	require.Equal(t, "lib", ref.Name)
}

func TestGetOrLoadRejectsCycle(t *testing.T) {
	dir := t.TempDir()
	a := meta(t, dir, "a")
	b := meta(t, dir, "b", stub(a))
	a.References = []project.Metadata{b}

	loader := newFakeLoader()
	loader.projects[a.FilePath] = &a

	ws := NewWorkspace()
	_, _, err := ws.GetOrLoad(context.Background(), loader, a.FilePath)
	require.Error(t, err)
	require.Equal(t, fault.KindConfiguration, fault.KindOf(err))
	require.Contains(t, err.Error(), "cycle")
	require.True(t, ws.Snapshot().Empty(), "failed load must not be committed")
}

func TestGetOrLoadMissingFile(t *testing.T) {
	ws := NewWorkspace()
	_, _, err := ws.GetOrLoad(context.Background(), newFakeLoader(), filepath.Join(t.TempDir(), "nope.fixproj"))
	require.Error(t, err)
	require.Equal(t, fault.KindConfiguration, fault.KindOf(err))
}

func TestGetOrLoadWorkerFailure(t *testing.T) {
	dir := t.TempDir()
	a := meta(t, dir, "a")
	loader := newFakeLoader()
	loader.err = errors.New("pipe closed")

	_, _, err := NewWorkspace().GetOrLoad(context.Background(), loader, a.FilePath)
	require.Error(t, err)
	require.Equal(t, fault.KindWorkerProcess, fault.KindOf(err))
}

func TestGetOrLoadRejectsInvalidMetadata(t *testing.T) {
	dir := t.TempDir()
	a := meta(t, dir, "a")
	a.Schema = 99
	loader := newFakeLoader()
	loader.projects[a.FilePath] = &a

	_, _, err := NewWorkspace().GetOrLoad(context.Background(), loader, a.FilePath)
	require.ErrorIs(t, err, project.ErrSchemaMismatch)
	require.Equal(t, fault.KindWorkerProcess, fault.KindOf(err))
}

func TestEvictDropsDependents(t *testing.T) {
	dir := t.TempDir()
	lib := meta(t, dir, "lib")
	app := meta(t, dir, "app", lib)
	other := meta(t, dir, "other")

	loader := newFakeLoader()
	loader.projects[app.FilePath] = &app
	loader.projects[other.FilePath] = &other

	ws := NewWorkspace()
	_, _, err := ws.GetOrLoad(context.Background(), loader, app.FilePath)
	require.NoError(t, err)
	_, _, err = ws.GetOrLoad(context.Background(), loader, other.FilePath)
	require.NoError(t, err)

	require.True(t, ws.Evict(lib.FilePath))
	snap := ws.Snapshot()
	_, ok := snap.FindProject(app.FilePath)
	require.False(t, ok)
	_, ok = snap.FindProject(other.FilePath)
	require.True(t, ok)
	require.False(t, ws.Evict(lib.FilePath))

	ws.Cleanup()
	require.True(t, ws.Snapshot().Empty())
}
