// Package worker is the metadata worker: it evaluates project files on
// behalf of the reader client and answers over the framed RPC protocol.
// The worker holds the evaluation state so that the client process never
// loads build logic itself.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os/exec"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"autofix/internal/project"
	"autofix/internal/rpc"
)

const defaultCacheSize = 256

var errNoWorkspace = errors.New("no workspace: CreateWorkspace was not called")

// CodegenRunner runs one [[codegen]] command in dir.
type CodegenRunner func(ctx context.Context, dir string, argv []string) error

type Server struct {
	log       *zap.Logger
	cacheSize int
	cache     *lru.Cache[string, *evaluated]
	codegen   CodegenRunner

	props    map[string]string
	created  bool
	requests uint64
	evals    uint64
}

type Option func(*Server)

func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithCacheSize bounds the number of evaluated project files kept.
func WithCacheSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.cacheSize = n
		}
	}
}

func WithCodegenRunner(run CodegenRunner) Option {
	return func(s *Server) {
		if run != nil {
			s.codegen = run
		}
	}
}

func NewServer(opts ...Option) (*Server, error) {
	s := &Server{
		log:       zap.NewNop(),
		cacheSize: defaultCacheSize,
		codegen:   runCommand,
	}
	for _, opt := range opts {
		opt(s)
	}
	cache, err := lru.New[string, *evaluated](s.cacheSize)
	if err != nil {
		return nil, err
	}
	s.cache = cache
	return s, nil
}

// Evaluations reports how many times a project file was parsed.
func (s *Server) Evaluations() uint64 { return s.evals }

// Serve handles requests from r sequentially until Exit, EOF or ctx is
// done.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	conn := rpc.NewConn(r, w)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := conn.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, rpc.ErrVersionMismatch) && msg != nil {
				s.log.Warn("rejecting request", zap.Uint16("version", msg.Version), zap.Error(err))
				if werr := conn.Write(rpc.NewErrorResponse(msg, err)); werr != nil {
					return werr
				}
				continue
			}
			return err
		}
		if !msg.IsRequest() {
			s.log.Warn("unexpected response from client", zap.Uint64("id", msg.ID))
			continue
		}
		s.requests++
		resp, stop := s.handle(ctx, msg)
		if err := conn.Write(resp); err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

func (s *Server) handle(ctx context.Context, req *rpc.Message) (resp *rpc.Message, stop bool) {
	log := s.log.With(zap.String("method", string(req.Method)), zap.Uint64("id", req.ID))
	result, err := s.dispatch(ctx, req)
	if err != nil {
		log.Debug("request failed", zap.Error(err))
		return rpc.NewErrorResponse(req, err), false
	}
	resp, err = rpc.NewResponse(req, result)
	if err != nil {
		return rpc.NewErrorResponse(req, err), false
	}
	return resp, req.Method == rpc.MethodExit
}

func (s *Server) dispatch(ctx context.Context, req *rpc.Message) (any, error) {
	switch req.Method {
	case rpc.MethodPing:
		return rpc.PingResult{Alive: true}, nil

	case rpc.MethodExit:
		return nil, nil

	case rpc.MethodDebug:
		keys := s.cache.Keys()
		slices.Sort(keys)
		s.log.Info("worker state",
			zap.Bool("workspace", s.created),
			zap.Any("properties", s.props),
			zap.Strings("cached_projects", keys),
			zap.Uint64("requests", s.requests))
		return rpc.DebugResult{Properties: maps.Clone(s.props), CachedProjects: keys, Requests: s.requests}, nil

	case rpc.MethodCreateWorkspace:
		var params rpc.CreateWorkspaceParams
		if err := req.DecodeParams(&params); err != nil {
			return nil, err
		}
		// свойства влияют на вычисление, старый кэш недействителен
		s.cache.Purge()
		s.props = maps.Clone(params.Properties)
		if s.props == nil {
			s.props = map[string]string{}
		}
		s.created = true
		return nil, nil

	case rpc.MethodCloseWorkspace:
		s.cache.Purge()
		s.props = nil
		s.created = false
		return nil, nil

	case rpc.MethodOpenProject:
		if !s.created {
			return nil, errNoWorkspace
		}
		var params rpc.OpenProjectParams
		if err := req.DecodeParams(&params); err != nil {
			return nil, err
		}
		if strings.TrimSpace(params.Path) == "" {
			return nil, errors.New("empty project path")
		}
		meta, err := s.openProject(ctx, params.Path)
		if err != nil {
			return nil, err
		}
		return rpc.OpenProjectResult{Project: *meta}, nil
	}
	return nil, fmt.Errorf("unknown method %q", req.Method)
}

func (s *Server) noCodeGen() bool {
	return strings.EqualFold(strings.TrimSpace(s.props[project.PropNoCodeGen]), "true")
}

func runCommand(ctx context.Context, dir string, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", strings.Join(argv, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}
