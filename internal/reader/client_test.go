package reader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"autofix/internal/diag"
	"autofix/internal/fault"
	"autofix/internal/logging"
	"autofix/internal/project"
	"autofix/internal/reader/worker"
	"autofix/internal/rpc"
)

const fakeWorkerEnv = "AUTOFIX_TEST_WORKER"

// The test binary doubles as the worker: re-executed with fakeWorkerEnv
// set it serves the protocol on stdio instead of running tests.
func TestMain(m *testing.M) {
	if mode := os.Getenv(fakeWorkerEnv); mode != "" {
		os.Exit(runFakeWorker(mode))
	}
	os.Exit(m.Run())
}

func runFakeWorker(mode string) int {
	if mode == "serve" {
		fmt.Fprintln(os.Stderr, "fake worker ready")
		srv, err := worker.NewServer()
		if err != nil {
			return 2
		}
		if err := srv.Serve(context.Background(), os.Stdin, os.Stdout); err != nil {
			return 1
		}
		return 0
	}
	conn := rpc.NewConn(os.Stdin, os.Stdout)
	for {
		msg, err := conn.Read()
		if err != nil {
			return 0
		}
		reply := func(result any) {
			resp, _ := rpc.NewResponse(msg, result)
			_ = conn.Write(resp)
		}
		switch {
		case msg.Method == rpc.MethodCreateWorkspace:
			reply(nil)
		case msg.Method == rpc.MethodExit && mode != "hang":
			reply(nil)
			return 0
		case mode == "hang":
			// never answers
		case mode == "crash":
			return 3
		case mode == "slow":
			time.Sleep(300 * time.Millisecond)
			reply(rpc.PingResult{Alive: true})
		}
	}
}

func newTestClient(t *testing.T, mode string, cfg Config) *Client {
	t.Helper()
	self, err := os.Executable()
	require.NoError(t, err)
	cfg.Path = self
	cfg.Env = append(cfg.Env, fakeWorkerEnv+"="+mode)
	if cfg.ExitGrace == 0 {
		cfg.ExitGrace = time.Second
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestOpenProjectThroughWorker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.fixproj")
	require.NoError(t, os.WriteFile(path, []byte("[project]\nname = \"$(Flavor)\"\nlanguage = \"text\"\n"), 0o644))

	log, logs := logging.NewObserved()
	c := newTestClient(t, "serve", Config{GlobalProperties: map[string]string{"Flavor": "blue"}, Logger: log})
	ctx := context.Background()
	require.Zero(t, c.Spawns(), "spawn is lazy")

	meta, err := c.OpenProject(ctx, path)
	require.NoError(t, err)
	require.Equal(t, "blue", meta.Name)

	_, err = c.OpenProject(ctx, path)
	require.NoError(t, err)
	require.Equal(t, 1, c.Spawns())

	dbg, err := c.Debug(ctx)
	require.NoError(t, err)
	require.Equal(t, "true", dbg.Properties[project.PropNoCodeGen])
	require.Equal(t, "blue", dbg.Properties["Flavor"])

	require.NoError(t, c.CloseWorkspace(ctx))
	_, err = c.OpenProject(ctx, path)
	require.NoError(t, err, "workspace is re-created after CloseWorkspace")
	require.Equal(t, 1, c.Spawns())

	require.NoError(t, c.Exit(ctx))
	require.False(t, c.Running())
	require.NotZero(t, logs.FilterMessage("fake worker ready").Len())

	require.NoError(t, c.Ping(ctx))
	require.Equal(t, 2, c.Spawns())
}

func TestTimeoutPoisonsClient(t *testing.T) {
	c := newTestClient(t, "hang", Config{Timeout: 200 * time.Millisecond, ExitGrace: 200 * time.Millisecond})
	err := c.Ping(context.Background())
	require.Error(t, err)
	require.Equal(t, fault.KindWorkerProcess, fault.KindOf(err))
	require.Equal(t, diag.WorkerFailed, fault.CodeOf(err))

	again := c.Ping(context.Background())
	require.Equal(t, err, again)
}

func TestCrashPoisonsClient(t *testing.T) {
	c := newTestClient(t, "crash", Config{})
	err := c.Ping(context.Background())
	require.Error(t, err)
	require.Equal(t, fault.KindWorkerProcess, fault.KindOf(err))
	_, err = c.OpenProject(context.Background(), "x.fixproj")
	require.Equal(t, fault.KindWorkerProcess, fault.KindOf(err))
}

func TestCancellationDiscardsLateResponse(t *testing.T) {
	c := newTestClient(t, "slow", Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Ping(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, c.Ping(context.Background()))
	require.Equal(t, 1, c.Spawns())
}

func TestCloseRefusesCalls(t *testing.T) {
	c := newTestClient(t, "serve", Config{})
	require.NoError(t, c.Close(context.Background()))
	require.ErrorIs(t, c.Ping(context.Background()), ErrClosed)
}

func TestMissingExecutable(t *testing.T) {
	_, err := NewClient(Config{Path: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
	require.Equal(t, fault.KindWorkerProcess, fault.KindOf(err))
	require.Equal(t, diag.WorkerFailed, fault.CodeOf(err))
}

func queuedProcess(t *testing.T, n, capacity int) *process {
	t.Helper()
	var buf bytes.Buffer
	w := rpc.NewConn(nil, &buf)
	for i := 1; i <= n; i++ {
		msg, err := rpc.NewRequest(uint64(i), rpc.MethodPing, nil)
		require.NoError(t, err)
		require.NoError(t, w.Write(msg))
	}
	return &process{
		conn:      rpc.NewConn(&buf, io.Discard),
		responses: make(chan *rpc.Message, capacity),
		quit:      make(chan struct{}),
	}
}

func TestPumpKeepsEveryMessageWhenQueueIsFull(t *testing.T) {
	p := queuedProcess(t, 40, 2)
	go p.pump()

	var ids []uint64
	for msg := range p.responses {
		ids = append(ids, msg.ID)
	}
	require.Len(t, ids, 40)
	for i, id := range ids {
		require.Equal(t, uint64(i+1), id)
	}
	require.ErrorIs(t, p.readError(), io.ErrUnexpectedEOF)
}

func TestPumpStopsOnRelease(t *testing.T) {
	p := queuedProcess(t, 5, 1)
	done := make(chan struct{})
	go func() {
		p.pump()
		close(done)
	}()
	require.Eventually(t, func() bool { return len(p.responses) == 1 }, time.Second, 5*time.Millisecond)
	p.release()
	p.release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump still blocked after release")
	}
}
