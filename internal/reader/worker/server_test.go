package worker

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"autofix/internal/project"
	"autofix/internal/rpc"
)

type harness struct {
	t      *testing.T
	conn   *rpc.Conn
	nextID uint64
	done   chan error
	srv    *Server
}

func start(t *testing.T, opts ...Option) *harness {
	t.Helper()
	srv, err := NewServer(opts...)
	require.NoError(t, err)
	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()
	h := &harness{t: t, conn: rpc.NewConn(s2cR, c2sW), done: make(chan error, 1), srv: srv}
	go func() {
		h.done <- srv.Serve(context.Background(), c2sR, s2cW)
		_ = s2cW.Close()
	}()
	t.Cleanup(func() { _ = c2sW.Close() })
	return h
}

func (h *harness) call(method rpc.Method, params, out any) error {
	h.t.Helper()
	h.nextID++
	req, err := rpc.NewRequest(h.nextID, method, params)
	require.NoError(h.t, err)
	require.NoError(h.t, h.conn.Write(req))
	resp, err := h.conn.Read()
	require.NoError(h.t, err)
	require.Equal(h.t, req.ID, resp.ID)
	return resp.DecodeResult(out)
}

func (h *harness) create(props map[string]string) {
	h.t.Helper()
	require.NoError(h.t, h.call(rpc.MethodCreateWorkspace, rpc.CreateWorkspaceParams{Properties: props}, nil))
}

func (h *harness) open(path string) (project.Metadata, error) {
	var res rpc.OpenProjectResult
	err := h.call(rpc.MethodOpenProject, rpc.OpenProjectParams{Path: path}, &res)
	return res.Project, err
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPingAndExit(t *testing.T) {
	h := start(t)
	var ping rpc.PingResult
	require.NoError(t, h.call(rpc.MethodPing, nil, &ping))
	require.True(t, ping.Alive)

	require.NoError(t, h.call(rpc.MethodExit, nil, nil))
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after Exit")
	}
}

func TestOpenProjectRequiresWorkspace(t *testing.T) {
	h := start(t)
	_, err := h.open("/nowhere/x.fixproj")
	require.Error(t, err)
	require.Contains(t, err.Error(), "CreateWorkspace")
}

func TestOpenProjectResolvesReferences(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "d", "d.fixproj"), "[project]\nlanguage = \"text\"\ndocuments = [\"*.txt\"]\n")
	writeFile(t, filepath.Join(dir, "d", "d.txt"), "d\n")
	writeFile(t, filepath.Join(dir, "b", "b.fixproj"), "[project]\nlanguage = \"text\"\nreferences = [\"../d/d.fixproj\"]\n")
	writeFile(t, filepath.Join(dir, "c", "c.fixproj"), "[project]\nlanguage = \"text\"\nreferences = [\"../d/d.fixproj\"]\n")
	app := writeFile(t, filepath.Join(dir, "app", "app.fixproj"), `[project]
name = "$(ProjectName)-$(Configuration)"
language = "Text"
documents = ["src/*.txt", "src/**/*.txt"]
additional_documents = ["autofix.ini"]
references = ["../b/b.fixproj", "../c/c.fixproj"]

[diagnostics]
AF1001 = "error"
`)
	writeFile(t, filepath.Join(dir, "app", "src", "one.txt"), "1\n")
	writeFile(t, filepath.Join(dir, "app", "src", "nested", "two.txt"), "2\n")
	writeFile(t, filepath.Join(dir, "app", "obj", "skipped.txt"), "x\n")
	writeFile(t, filepath.Join(dir, "app", "autofix.ini"), "a=b\n")

	h := start(t)
	h.create(map[string]string{"Configuration": "Debug"})
	meta, err := h.open(app)
	require.NoError(t, err)
	require.NoError(t, meta.Validate())

	require.Equal(t, "app-Debug", meta.Name)
	require.Equal(t, "text", meta.Language)
	require.Equal(t, "error", meta.Options.Diagnostics["AF1001"])
	require.Len(t, meta.Documents, 2)
	require.Equal(t, []string{"src", "nested"}, meta.Documents[0].Folders)
	require.Len(t, meta.AdditionalDocuments, 1)
	require.Equal(t, filepath.Join(dir, "app", "obj"), meta.IntermediateOutputPath)

	require.Len(t, meta.References, 2)
	b, c := meta.References[0], meta.References[1]
	require.False(t, b.Stub)
	require.Len(t, b.References, 1)
	require.False(t, b.References[0].Stub)
	require.Len(t, b.References[0].Documents, 1)
	require.Len(t, c.References, 1)
	require.True(t, c.References[0].Stub, "second occurrence of d is a stub")
	require.Equal(t, b.References[0].ID, c.References[0].ID)

	require.Equal(t, uint64(4), h.srv.Evaluations())
}

func TestOpenProjectCycle(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a", "a.fixproj"), "[project]\nlanguage = \"text\"\nreferences = [\"../b/b.fixproj\"]\n")
	writeFile(t, filepath.Join(dir, "b", "b.fixproj"), "[project]\nlanguage = \"text\"\nreferences = [\"../a/a.fixproj\"]\n")

	h := start(t)
	h.create(nil)
	_, err := h.open(a)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cycle")
}

func TestEvaluationCache(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, filepath.Join(dir, "p.fixproj"), "[project]\nlanguage = \"text\"\n")

	h := start(t)
	h.create(nil)
	_, err := h.open(p)
	require.NoError(t, err)
	_, err = h.open(p)
	require.NoError(t, err)
	require.Equal(t, uint64(1), h.srv.Evaluations())

	writeFile(t, p, "[project]\nname = \"renamed\"\nlanguage = \"text\"\n")
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(p, later, later))
	meta, err := h.open(p)
	require.NoError(t, err)
	require.Equal(t, "renamed", meta.Name)
	require.Equal(t, uint64(2), h.srv.Evaluations())

	var dbg rpc.DebugResult
	require.NoError(t, h.call(rpc.MethodDebug, nil, &dbg))
	require.Len(t, dbg.CachedProjects, 1)

	require.NoError(t, h.call(rpc.MethodCloseWorkspace, nil, nil))
	require.NoError(t, h.call(rpc.MethodDebug, nil, &dbg))
	require.Empty(t, dbg.CachedProjects)
	_, err = h.open(p)
	require.Error(t, err)
}

func TestCodegenHonorsNoCodeGen(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, filepath.Join(dir, "p.fixproj"), `[project]
language = "text"

[[codegen]]
command = ["gen", "--out", "$(ProjectDir)"]
`)
	var runs [][]string
	runner := func(_ context.Context, _ string, argv []string) error {
		runs = append(runs, argv)
		return nil
	}

	h := start(t, WithCodegenRunner(runner))
	h.create(map[string]string{project.PropNoCodeGen: "true"})
	_, err := h.open(p)
	require.NoError(t, err)
	require.Empty(t, runs)

	h.create(map[string]string{project.PropNoCodeGen: "false"})
	_, err = h.open(p)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "gen", runs[0][0])
	require.Equal(t, filepath.ToSlash(dir), runs[0][2])
}

func TestRejectsOtherProtocolVersion(t *testing.T) {
	h := start(t)
	req, err := rpc.NewRequest(7, rpc.MethodPing, nil)
	require.NoError(t, err)
	req.Version = rpc.ProtocolVersion + 1
	require.NoError(t, h.conn.Write(req))
	resp, err := h.conn.Read()
	require.NoError(t, err)
	require.Equal(t, uint64(7), resp.ID)
	require.NotNil(t, resp.Error)

	// the server keeps serving
	var ping rpc.PingResult
	require.NoError(t, h.call(rpc.MethodPing, nil, &ping))
}
