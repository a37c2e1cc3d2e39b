// Package session holds the state shared by the invocations of one host:
// the project graph and the metadata worker. Its lifetime is chosen by the
// caller; nothing here looks at the environment to guess it.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"autofix/internal/fault"
	"autofix/internal/graph"
	"autofix/internal/observ"
	"autofix/internal/reader"
)

type Lifetime uint8

const (
	// LifetimePerBuild tears the worker down at the end of every
	// invocation.
	LifetimePerBuild Lifetime = iota
	// LifetimeLongLived keeps the worker between invocations.
	LifetimeLongLived
)

func (l Lifetime) String() string {
	switch l {
	case LifetimePerBuild:
		return "per-build"
	case LifetimeLongLived:
		return "long-lived"
	}
	return fmt.Sprintf("Lifetime(%d)", uint8(l))
}

// ParseLifetime accepts "per-build" and "long-lived".
func ParseLifetime(s string) (Lifetime, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "per-build", "perbuild", "build":
		return LifetimePerBuild, nil
	case "long-lived", "longlived", "host":
		return LifetimeLongLived, nil
	}
	return 0, fmt.Errorf("unknown lifetime %q", s)
}

// ErrBusy is returned by Begin while another invocation is running.
var ErrBusy = errors.New("session: another invocation is in progress")

// ErrClosed is returned by Begin after Close.
var ErrClosed = errors.New("session: scope closed")

// Reader is the part of the metadata client a scope drives.
type Reader interface {
	graph.Loader
	CloseWorkspace(ctx context.Context) error
	Exit(ctx context.Context) error
	Close(ctx context.Context) error
	Running() bool
}

type Option func(*Scope)

func WithLogger(log *zap.Logger) Option {
	return func(s *Scope) {
		if log != nil {
			s.log = log
		}
	}
}

func WithMetrics(m *observ.Metrics) Option {
	return func(s *Scope) { s.metrics = m }
}

// WithReaderConfig configures the metadata client created at the first
// Begin.
func WithReaderConfig(cfg reader.Config) Option {
	return func(s *Scope) { s.readerCfg = cfg }
}

// WithReader makes the scope use r instead of creating a client.
func WithReader(r Reader) Option {
	return func(s *Scope) { s.reader = r }
}

// WithWatch enables file watching in long-lived scopes.
func WithWatch(on bool) Option {
	return func(s *Scope) { s.watch = on }
}

type Scope struct {
	lifetime  Lifetime
	ws        *graph.Workspace
	log       *zap.Logger
	metrics   *observ.Metrics
	readerCfg reader.Config
	watch     bool

	mu      sync.Mutex
	reader  Reader
	watcher *watcher
	active  bool
	closed  bool
	runs    int
}

func New(lifetime Lifetime, opts ...Option) *Scope {
	s := &Scope{lifetime: lifetime, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("session")
	s.ws = graph.NewWorkspace(graph.WithLogger(s.log))
	return s
}

func (s *Scope) Lifetime() Lifetime          { return s.lifetime }
func (s *Scope) Workspace() *graph.Workspace { return s.ws }

// Invocation is one run inside a scope. End must be called exactly once.
type Invocation struct {
	scope   *Scope
	reader  Reader
	started time.Time
	once    sync.Once
	endErr  error
}

// Begin starts an invocation. The metadata client is created on the first
// Begin; a missing worker executable fails here, before any work.
func (s *Scope) Begin(ctx context.Context) (*Invocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.active {
		return nil, ErrBusy
	}
	if err := ctx.Err(); err != nil {
		return nil, fault.Canceled(err)
	}
	if s.reader == nil {
		cfg := s.readerCfg
		if cfg.Logger == nil {
			cfg.Logger = s.log
		}
		if cfg.Metrics == nil {
			cfg.Metrics = s.metrics
		}
		client, err := reader.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		s.reader = client
	}
	if s.watch && s.lifetime == LifetimeLongLived && s.watcher == nil {
		w, err := newWatcher(s.log)
		if err != nil {
			// без наблюдения сессия работает, просто не видит внешних правок
			s.log.Warn("file watching disabled", zap.Error(err))
			s.watch = false
		} else {
			s.watcher = w
		}
	}
	s.active = true
	s.runs++
	s.log.Debug("invocation started", zap.Int("run", s.runs), zap.Stringer("lifetime", s.lifetime))
	return &Invocation{scope: s, reader: s.reader, started: time.Now()}, nil
}

// Reader returns the metadata client of the invocation.
func (inv *Invocation) Reader() Reader { return inv.reader }

// Workspace returns the scope's project graph.
func (inv *Invocation) Workspace() *graph.Workspace { return inv.scope.ws }

// Load resolves the project at path through the scope's worker and starts
// watching its files when the scope watches.
func (inv *Invocation) Load(ctx context.Context, path string) (*graph.Snapshot, *graph.ProjectNode, error) {
	snap, p, err := inv.scope.ws.GetOrLoad(ctx, inv.reader, path)
	if err != nil {
		return nil, nil, err
	}
	if w := inv.scope.watcher; w != nil {
		w.track(snap)
	}
	return snap, p, nil
}

// Refresh reloads the project at path when one of its files changed on
// disk behind the graph's back. Changes the graph wrote itself are
// ignored.
func (inv *Invocation) Refresh(ctx context.Context, path string) (bool, error) {
	w := inv.scope.watcher
	if w == nil {
		return false, nil
	}
	changed := w.takeChanged(inv.scope.ws.Snapshot())
	if len(changed) == 0 {
		return false, nil
	}
	for _, p := range changed {
		inv.scope.ws.Evict(p)
	}
	inv.scope.log.Info("reloading projects changed on disk", zap.Strings("projects", changed))
	snap, _, err := inv.scope.ws.GetOrLoad(ctx, inv.reader, path)
	if err != nil {
		return false, err
	}
	w.track(snap)
	return true, nil
}

// Elapsed since Begin.
func (inv *Invocation) Elapsed() time.Duration { return time.Since(inv.started) }

// End always empties the workspace and closes the worker-side workspace.
// Per-build scopes also stop the worker.
func (inv *Invocation) End(ctx context.Context) error {
	inv.once.Do(func() { inv.endErr = inv.scope.end(ctx) })
	return inv.endErr
}

func (s *Scope) end(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ws.Cleanup()
	if s.watcher != nil {
		s.watcher.reset()
	}
	defer func() { s.active = false }()

	var errs []error
	if s.reader != nil && s.reader.Running() {
		if err := s.reader.CloseWorkspace(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close worker workspace: %w", err))
		}
	}
	if s.lifetime == LifetimePerBuild && s.reader != nil {
		if err := s.reader.Exit(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop worker: %w", err))
		}
	}
	s.log.Debug("invocation ended", zap.Int("run", s.runs))
	return errors.Join(errs...)
}

// Close ends the scope: the worker is stopped for good and watching
// stops. An invocation still running is not waited for.
func (s *Scope) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	if s.watcher != nil {
		errs = append(errs, s.watcher.close())
		s.watcher = nil
	}
	if s.reader != nil {
		errs = append(errs, s.reader.Close(ctx))
	}
	s.ws.Cleanup()
	return errors.Join(errs...)
}
