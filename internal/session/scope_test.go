package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"autofix/internal/fault"
	"autofix/internal/graph"
	"autofix/internal/project"
	"autofix/internal/source"
)

type fakeReader struct {
	mu      sync.Mutex
	meta    *project.Metadata
	opens   int
	closes  int
	exits   int
	closed  bool
	running bool
}

func (f *fakeReader) OpenProject(context.Context, string) (*project.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	f.running = true
	return f.meta, nil
}

func (f *fakeReader) CloseWorkspace(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeReader) Exit(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exits++
	f.running = false
	return nil
}

func (f *fakeReader) Close(ctx context.Context) error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return f.Exit(ctx)
}

func (f *fakeReader) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeReader) counts() (opens, closes, exits int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.closes, f.exits
}

func newProject(t *testing.T) (string, string, *fakeReader) {
	t.Helper()
	dir := t.TempDir()
	projPath := filepath.Join(dir, "p.fixproj")
	docPath := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(projPath, []byte("[project]\n"), 0o644))
	require.NoError(t, os.WriteFile(docPath, []byte("one\n"), 0o644))
	meta := &project.Metadata{
		Schema:    project.SchemaVersion,
		ID:        project.StableID(projPath),
		Name:      "p",
		Language:  "text",
		FilePath:  projPath,
		Options:   project.CompilationOptions{OutputKind: project.OutputLibrary, Platform: project.PlatformAnyCPU},
		Documents: []project.DocumentInfo{{FilePath: docPath}},
	}
	return projPath, docPath, &fakeReader{meta: meta}
}

func TestParseLifetime(t *testing.T) {
	l, err := ParseLifetime("Long-Lived")
	require.NoError(t, err)
	require.Equal(t, LifetimeLongLived, l)
	l, err = ParseLifetime("")
	require.NoError(t, err)
	require.Equal(t, LifetimePerBuild, l)
	_, err = ParseLifetime("forever")
	require.Error(t, err)
}

func TestPerBuildEndStopsWorker(t *testing.T) {
	projPath, _, r := newProject(t)
	s := New(LifetimePerBuild, WithReader(r))
	ctx := context.Background()

	inv, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = s.Begin(ctx)
	require.ErrorIs(t, err, ErrBusy)

	_, p, err := inv.Load(ctx, projPath)
	require.NoError(t, err)
	require.Equal(t, "p", p.Name)

	require.NoError(t, inv.End(ctx))
	require.NoError(t, inv.End(ctx))
	require.True(t, s.Workspace().Snapshot().Empty())
	opens, closes, exits := r.counts()
	require.Equal(t, 1, opens)
	require.Equal(t, 1, closes)
	require.Equal(t, 1, exits)

	// the scope can run again after End
	inv, err = s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, inv.End(ctx))
}

func TestLongLivedKeepsWorker(t *testing.T) {
	projPath, _, r := newProject(t)
	s := New(LifetimeLongLived, WithReader(r))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		inv, err := s.Begin(ctx)
		require.NoError(t, err)
		_, _, err = inv.Load(ctx, projPath)
		require.NoError(t, err)
		require.NoError(t, inv.End(ctx))
		require.True(t, s.Workspace().Snapshot().Empty())
	}
	opens, closes, exits := r.counts()
	require.Equal(t, 2, opens)
	require.Equal(t, 2, closes)
	require.Zero(t, exits)

	require.NoError(t, s.Close(ctx))
	require.True(t, r.closed)
	_, err := s.Begin(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestMissingWorkerFailsAtBegin(t *testing.T) {
	s := New(LifetimePerBuild)
	s.readerCfg.Path = filepath.Join(t.TempDir(), "missing-reader")
	_, err := s.Begin(context.Background())
	require.Error(t, err)
}

func TestBeginCanceled(t *testing.T) {
	_, _, r := newProject(t)
	s := New(LifetimePerBuild, WithReader(r))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Begin(ctx)
	require.Equal(t, fault.KindCanceled, fault.KindOf(err))
	require.ErrorIs(t, err, context.Canceled)

	inv, err := s.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, inv.End(context.Background()))
}

func TestRefreshReloadsExternalEdits(t *testing.T) {
	projPath, docPath, r := newProject(t)
	s := New(LifetimeLongLived, WithReader(r), WithWatch(true))
	defer func() { require.NoError(t, s.Close(context.Background())) }()
	ctx := context.Background()

	inv, err := s.Begin(ctx)
	require.NoError(t, err)
	defer func() { require.NoError(t, inv.End(ctx)) }()
	snap, p, err := inv.Load(ctx, projPath)
	require.NoError(t, err)
	require.NotNil(t, s.watcher)

	// собственная запись графа не считается внешней правкой
	doc := snap.Documents(p.ID)[0]
	_, err = s.Workspace().Apply(ctx, graph.Mutation{Changes: []graph.Change{
		{Kind: graph.ChangeDocument, Document: doc.ID, Text: []byte("two\n")},
	}})
	require.NoError(t, err)
	waitDirty(t, s.watcher)
	reloaded, err := inv.Refresh(ctx, projPath)
	require.NoError(t, err)
	require.False(t, reloaded)

	require.NoError(t, os.WriteFile(docPath, []byte("three\n"), 0o644))
	waitDirty(t, s.watcher)
	reloaded, err = inv.Refresh(ctx, projPath)
	require.NoError(t, err)
	require.True(t, reloaded)

	opens, _, _ := r.counts()
	require.Equal(t, 2, opens)
	canon, err := source.CanonicalPath(docPath)
	require.NoError(t, err)
	fresh, ok := s.Workspace().Snapshot().FindDocument(p.ID, canon)
	require.True(t, ok)
	require.Equal(t, "three\n", fresh.Text.String())
}

func waitDirty(t *testing.T, w *watcher) {
	t.Helper()
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.dirty) > 0
	}, 5*time.Second, 10*time.Millisecond)
}
