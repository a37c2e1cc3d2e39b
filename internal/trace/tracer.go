package trace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Tracer receives events. Implementations must be safe for concurrent use.
type Tracer interface {
	Emit(ev *Event)
	Flush() error
	Close() error
	Level() Level
}

// Enabled reports whether t records anything at all.
func Enabled(t Tracer) bool {
	return t != nil && t.Level() > LevelOff
}

type nopTracer struct{}

func (nopTracer) Emit(*Event)  {}
func (nopTracer) Flush() error { return nil }
func (nopTracer) Close() error { return nil }
func (nopTracer) Level() Level { return LevelOff }

// Nop records nothing.
var Nop Tracer = nopTracer{}

// Mode selects where events go.
type Mode uint8

const (
	ModeStream Mode = iota + 1 // written as they happen
	ModeRing                   // last N kept in memory
	ModeBoth                   // stream and ring
	ModeLog                    // zap debug entries
)

func (m Mode) String() string {
	switch m {
	case ModeStream:
		return "stream"
	case ModeRing:
		return "ring"
	case ModeBoth:
		return "both"
	case ModeLog:
		return "log"
	}
	return "unknown"
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stream":
		return ModeStream, nil
	case "ring":
		return ModeRing, nil
	case "both":
		return ModeBoth, nil
	case "log", "zap":
		return ModeLog, nil
	}
	return ModeStream, fmt.Errorf("invalid trace mode: %q (expected: stream|ring|both|log)", s)
}

type Config struct {
	Level      Level
	Mode       Mode
	Format     Format
	Output     io.Writer // stream output; OutputPath is used when nil
	OutputPath string    // "-" or empty is stderr
	RingSize   int
	Logger     *zap.Logger // ModeLog
}

// New builds the tracer cfg describes. LevelOff always yields Nop.
func New(cfg Config) (Tracer, error) {
	if cfg.Level == LevelOff {
		return Nop, nil
	}
	switch cfg.Mode {
	case ModeRing:
		return NewRecorder(cfg.RingSize, cfg.Level), nil
	case ModeLog:
		if cfg.Logger == nil {
			return nil, errors.New("trace: log mode needs a logger")
		}
		return NewLogTracer(cfg.Logger, cfg.Level), nil
	case ModeStream, ModeBoth:
		w, err := openOutput(cfg)
		if err != nil {
			return nil, err
		}
		stream := NewWriter(w, cfg.Level, resolveFormat(cfg))
		if cfg.Mode == ModeStream {
			return stream, nil
		}
		return Tee(stream, NewRecorder(cfg.RingSize, cfg.Level)), nil
	}
	return nil, fmt.Errorf("trace: unknown mode %v", cfg.Mode)
}

// resolveFormat picks NDJSON for .json/.ndjson files when Format is auto.
func resolveFormat(cfg Config) Format {
	if cfg.Format != FormatAuto {
		return cfg.Format
	}
	if strings.HasSuffix(cfg.OutputPath, ".ndjson") || strings.HasSuffix(cfg.OutputPath, ".json") {
		return FormatNDJSON
	}
	return FormatText
}

func openOutput(cfg Config) (io.Writer, error) {
	if cfg.Output != nil {
		return cfg.Output, nil
	}
	if cfg.OutputPath == "" || cfg.OutputPath == "-" {
		return os.Stderr, nil
	}
	f, err := os.Create(cfg.OutputPath) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("open trace output: %w", err)
	}
	return f, nil
}

// Recording returns the recorder inside t, if any, so a failed command can
// dump the last events.
func Recording(t Tracer) (*Recorder, bool) {
	switch v := t.(type) {
	case *Recorder:
		return v, true
	case tee:
		for _, inner := range v {
			if r, ok := Recording(inner); ok {
				return r, true
			}
		}
	}
	return nil, false
}
