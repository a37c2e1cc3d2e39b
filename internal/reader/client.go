// Package reader is the client side of the metadata worker. The client
// owns one worker process at a time, spawns it on first use and talks to
// it over the framed RPC protocol, one request at a time.
package reader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"autofix/internal/diag"
	"autofix/internal/fault"
	"autofix/internal/observ"
	"autofix/internal/project"
	"autofix/internal/rpc"
	"autofix/internal/trace"
)

const (
	ExecutableName   = "autofix-reader"
	DefaultTimeout   = 2 * time.Minute
	DefaultExitGrace = 5 * time.Second
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("reader: client closed")

type Config struct {
	// Path to the worker executable; empty means next to the running
	// binary, then $PATH.
	Path             string
	Args             []string
	Env              []string // appended to the current environment
	GlobalProperties map[string]string
	Timeout          time.Duration
	ExitGrace        time.Duration
	Logger           *zap.Logger
	Metrics          *observ.Metrics
}

type Client struct {
	cfg Config
	exe string
	log *zap.Logger

	mu       sync.Mutex
	proc     *process
	nextID   uint64
	poisoned error
	closed   bool
	spawns   int
}

// NewClient resolves the worker executable. No process is started until
// the first call.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ExitGrace <= 0 {
		cfg.ExitGrace = DefaultExitGrace
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	exe, err := ResolveExecutable(cfg.Path)
	if err != nil {
		return nil, fault.Wrap(err, fault.KindWorkerProcess, diag.WorkerFailed, "metadata worker not found")
	}
	return &Client{cfg: cfg, exe: exe, log: log.Named("reader")}, nil
}

// ResolveExecutable finds the worker binary.
func ResolveExecutable(explicit string) (string, error) {
	name := ExecutableName
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	if explicit != "" {
		if !project.IsFile(explicit) {
			return "", fmt.Errorf("%s: not a file", explicit)
		}
		return filepath.Abs(explicit)
	}
	if self, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(self), name)
		if project.IsFile(candidate) {
			return candidate, nil
		}
	}
	return exec.LookPath(name)
}

// Executable returns the resolved worker path.
func (c *Client) Executable() string { return c.exe }

// Spawns reports how many worker processes were started.
func (c *Client) Spawns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spawns
}

// Running reports whether a worker process is alive.
func (c *Client) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proc != nil && !c.proc.dead()
}

func (c *Client) OpenProject(ctx context.Context, path string) (*project.Metadata, error) {
	var res rpc.OpenProjectResult
	if err := c.call(ctx, rpc.MethodOpenProject, rpc.OpenProjectParams{Path: path}, &res); err != nil {
		return nil, err
	}
	if err := res.Project.Validate(); err != nil {
		return nil, fault.Wrap(err, fault.KindWorkerProcess, diag.WorkerFailed, "invalid metadata from worker")
	}
	return &res.Project, nil
}

func (c *Client) Ping(ctx context.Context) error {
	var res rpc.PingResult
	if err := c.call(ctx, rpc.MethodPing, nil, &res); err != nil {
		return err
	}
	if !res.Alive {
		return fault.New(fault.KindWorkerProcess, diag.WorkerFailed, "worker reported not alive")
	}
	return nil
}

func (c *Client) Debug(ctx context.Context) (*rpc.DebugResult, error) {
	var res rpc.DebugResult
	if err := c.call(ctx, rpc.MethodDebug, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CloseWorkspace drops the worker-side workspace. It is a no-op when no
// worker is running; the next call re-creates the workspace.
func (c *Client) CloseWorkspace(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proc == nil || c.proc.dead() || c.poisoned != nil {
		return nil
	}
	if !c.proc.initialized {
		return nil
	}
	err := c.roundTrip(ctx, c.proc, rpc.MethodCloseWorkspace, nil, nil)
	c.proc.initialized = false
	return err
}

// Exit stops the worker: Exit request, then a grace period, then the
// process group is killed. A later call spawns a new worker.
func (c *Client) Exit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitLocked(ctx)
}

// Close exits the worker and refuses further calls.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.exitLocked(ctx)
}

func (c *Client) exitLocked(ctx context.Context) error {
	p := c.proc
	if p == nil {
		return nil
	}
	c.proc = nil
	if !p.dead() {
		poisoned := c.poisoned
		exitCtx, cancel := context.WithTimeout(ctx, c.cfg.ExitGrace)
		err := c.roundTrip(exitCtx, p, rpc.MethodExit, nil, nil)
		cancel()
		if err != nil {
			c.log.Debug("exit request failed", zap.Error(err))
		}
		c.poisoned = poisoned
	}
	_ = p.stdin.Close()
	p.release()
	grace := time.NewTimer(c.cfg.ExitGrace)
	defer grace.Stop()
	select {
	case <-p.exited:
	case <-grace.C:
		c.log.Warn("worker did not exit in time, killing", zap.Int("pid", p.pid()))
		p.kill()
		<-p.exited
	case <-ctx.Done():
		p.kill()
		<-p.exited
	}
	c.log.Debug("worker exited", zap.Int("pid", p.pid()), zap.Error(p.waitErr))
	return nil
}

func (c *Client) call(ctx context.Context, method rpc.Method, params, out any) (err error) {
	ctx, span := trace.Start(ctx, trace.ScopePass, "worker:"+string(method))
	defer func() {
		if err != nil {
			span.End(err.Error())
			return
		}
		span.End("")
	}()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.poisoned != nil {
		return c.poisoned
	}
	p, err := c.ensure(ctx)
	if err != nil {
		return err
	}
	return c.roundTrip(ctx, p, method, params, out)
}

// ensure spawns the worker if needed and creates its workspace.
func (c *Client) ensure(ctx context.Context) (*process, error) {
	if c.proc != nil && c.proc.dead() {
		return nil, c.poison(fault.Newf(fault.KindWorkerProcess, diag.WorkerFailed, "metadata worker exited: %v", c.proc.waitErr))
	}
	if c.proc == nil {
		p, err := spawn(c.exe, c.cfg.Args, c.cfg.Env, c.log)
		if err != nil {
			return nil, c.poison(fault.Wrap(err, fault.KindWorkerProcess, diag.WorkerFailed, "start metadata worker"))
		}
		c.proc = p
		c.spawns++
		c.cfg.Metrics.WorkerSpawned()
		c.log.Debug("worker started", zap.String("exe", c.exe), zap.Int("pid", p.pid()))
	}
	if !c.proc.initialized {
		props := maps.Clone(c.cfg.GlobalProperties)
		if props == nil {
			props = make(map[string]string, 1)
		}
		props[project.PropNoCodeGen] = "true"
		if err := c.roundTrip(ctx, c.proc, rpc.MethodCreateWorkspace, rpc.CreateWorkspaceParams{Properties: props}, nil); err != nil {
			return nil, err
		}
		c.proc.initialized = true
	}
	return c.proc, nil
}

func (c *Client) poison(err *fault.Error) error {
	c.poisoned = err
	if c.proc != nil {
		c.proc.kill()
	}
	return err
}

// roundTrip sends one request and waits for the response carrying its id.
// Responses to abandoned requests are dropped on the way.
func (c *Client) roundTrip(ctx context.Context, p *process, method rpc.Method, params, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.nextID++
	id := c.nextID
	req, err := rpc.NewRequest(id, method, params)
	if err != nil {
		return fault.Wrap(err, fault.KindInternal, diag.AnalysisFailed, "encode request")
	}
	if err := p.conn.Write(req); err != nil {
		c.cfg.Metrics.WorkerRequest(string(method), "failed")
		return c.poison(fault.Wrap(err, fault.KindWorkerProcess, diag.WorkerFailed, fmt.Sprintf("send %s", method)))
	}

	timer := time.NewTimer(c.cfg.Timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			c.cfg.Metrics.WorkerRequest(string(method), "canceled")
			return ctx.Err()
		case <-timer.C:
			c.cfg.Metrics.WorkerRequest(string(method), "timeout")
			return c.poison(fault.Newf(fault.KindWorkerProcess, diag.WorkerFailed, "metadata worker did not answer %s within %s", method, c.cfg.Timeout))
		case msg, ok := <-p.responses:
			if !ok {
				c.cfg.Metrics.WorkerRequest(string(method), "failed")
				if method == rpc.MethodExit {
					return nil
				}
				return c.poison(fault.Wrap(p.readError(), fault.KindWorkerProcess, diag.WorkerFailed, fmt.Sprintf("metadata worker died during %s", method)))
			}
			if msg.ID != id {
				c.log.Debug("discarding stale response", zap.Uint64("id", msg.ID), zap.Uint64("want", id))
				continue
			}
			if err := msg.DecodeResult(out); err != nil {
				c.cfg.Metrics.WorkerRequest(string(method), "error")
				return fault.Wrap(err, fault.KindWorkerProcess, diag.WorkerFailed, fmt.Sprintf("%s failed", method))
			}
			c.cfg.Metrics.WorkerRequest(string(method), "ok")
			return nil
		}
	}
}

// process is one running worker.
type process struct {
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	conn        *rpc.Conn
	responses   chan *rpc.Message
	quit        chan struct{} // закрыт: ответы больше никто не ждёт
	quitOnce    sync.Once
	exited      chan struct{}
	initialized bool

	errMu   sync.Mutex
	readErr error
	waitErr error
}

func spawn(exe string, args, env []string, log *zap.Logger) (*process, error) {
	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), env...)
	setProcessGroup(cmd)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &process{
		cmd:       cmd,
		stdin:     stdin,
		conn:      rpc.NewConn(stdout, stdin),
		responses: make(chan *rpc.Message, 16),
		quit:      make(chan struct{}),
		exited:    make(chan struct{}),
	}

	var pipes sync.WaitGroup
	pipes.Add(2)
	go func() {
		defer pipes.Done()
		p.pump()
	}()
	go func() {
		defer pipes.Done()
		workerLog := log.Named("worker").With(zap.Int("pid", cmd.Process.Pid))
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			workerLog.Info(sc.Text())
		}
	}()
	go func() {
		// Wait закрывает пайпы, поэтому только после того, как их дочитали
		pipes.Wait()
		err := cmd.Wait()
		p.errMu.Lock()
		p.waitErr = err
		p.errMu.Unlock()
		close(p.exited)
	}()
	return p, nil
}

// pump forwards worker messages to responses until the stream ends. A full
// queue blocks the worker rather than losing a reply; release unblocks it.
func (p *process) pump() {
	defer close(p.responses)
	for {
		msg, err := p.conn.Read()
		if err != nil {
			p.setReadErr(err)
			return
		}
		select {
		case p.responses <- msg:
		case <-p.quit:
			return
		}
	}
}

func (p *process) release() {
	p.quitOnce.Do(func() { close(p.quit) })
}

func (p *process) pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *process) dead() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

func (p *process) setReadErr(err error) {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	p.readErr = err
}

func (p *process) readError() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	if p.readErr == nil || errors.Is(p.readErr, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return p.readErr
}

func (p *process) kill() {
	p.release()
	if p.dead() {
		return
	}
	killProcessGroup(p.cmd)
}
