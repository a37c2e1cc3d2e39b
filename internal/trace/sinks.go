package trace

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Recorder keeps the most recent events in a fixed-size ring.
type Recorder struct {
	level Level

	mu     sync.Mutex
	events []Event
	next   int
	filled bool
}

// NewRecorder keeps up to size events; size <= 0 means 4096.
func NewRecorder(size int, level Level) *Recorder {
	if size <= 0 {
		size = 4096
	}
	return &Recorder{level: level, events: make([]Event, size)}
}

func (r *Recorder) Emit(ev *Event) {
	if !r.level.ShouldEmit(ev.Scope) {
		return
	}
	r.mu.Lock()
	r.events[r.next] = *ev
	r.next++
	if r.next == len(r.events) {
		r.next = 0
		r.filled = true
	}
	r.mu.Unlock()
}

// Events returns the kept events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.filled {
		return append([]Event(nil), r.events[:r.next]...)
	}
	out := make([]Event, 0, len(r.events))
	out = append(out, r.events[r.next:]...)
	return append(out, r.events[:r.next]...)
}

// Dump writes the kept events to w.
func (r *Recorder) Dump(w io.Writer, format Format) error {
	events := r.Events()
	var origin time.Time
	if len(events) > 0 {
		origin = events[0].Time
	}
	for i := range events {
		var data []byte
		if format == FormatNDJSON {
			data = formatNDJSON(&events[i])
		} else {
			data = formatText(&events[i], events[i].Time.Sub(origin))
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) Flush() error { return nil }
func (r *Recorder) Close() error { return nil }
func (r *Recorder) Level() Level { return r.level }

// Writer formats every event to an io.Writer as it arrives. Write errors
// are dropped: tracing never fails a session.
type Writer struct {
	level  Level
	format Format
	start  time.Time

	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer, level Level, format Format) *Writer {
	if format == FormatAuto {
		format = FormatText
	}
	return &Writer{w: w, level: level, format: format, start: time.Now()}
}

func (t *Writer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) {
		return
	}
	var data []byte
	if t.format == FormatNDJSON {
		data = formatNDJSON(ev)
	} else {
		data = formatText(ev, ev.Time.Sub(t.start))
	}
	t.mu.Lock()
	_, _ = t.w.Write(data)
	t.mu.Unlock()
}

func (t *Writer) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f, ok := t.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close flushes and closes the output unless it is stdout or stderr.
func (t *Writer) Close() error {
	if err := t.Flush(); err != nil {
		return err
	}
	if t.w == os.Stderr || t.w == os.Stdout {
		return nil
	}
	if c, ok := t.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (t *Writer) Level() Level { return t.level }

// LogTracer turns span ends and points into zap debug entries, so traces
// land next to the session log.
type LogTracer struct {
	level Level
	log   *zap.Logger
}

func NewLogTracer(log *zap.Logger, level Level) *LogTracer {
	return &LogTracer{level: level, log: log.Named("trace")}
}

func (t *LogTracer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) || ev.Kind == KindSpanBegin {
		return
	}
	fields := make([]zap.Field, 0, 5+len(ev.Extra))
	fields = append(fields,
		zap.Stringer("scope", ev.Scope),
		zap.Uint64("span", ev.SpanID),
		zap.Uint64("parent", ev.ParentID))
	if ev.Kind == KindSpanEnd {
		fields = append(fields, zap.Duration("elapsed", ev.Elapsed))
	}
	if ev.Detail != "" {
		fields = append(fields, zap.String("detail", ev.Detail))
	}
	for k, v := range ev.Extra {
		fields = append(fields, zap.String(k, v))
	}
	t.log.Debug(ev.Name, fields...)
}

// Flush ignores Sync errors: syncing a terminal stderr fails on some systems.
func (t *LogTracer) Flush() error {
	_ = t.log.Sync()
	return nil
}
func (t *LogTracer) Close() error { return nil }
func (t *LogTracer) Level() Level { return t.level }

type tee []Tracer

// Tee sends every event to each of ts. Its level is the most verbose of
// theirs; each tracer still filters by its own.
func Tee(ts ...Tracer) Tracer {
	return tee(ts)
}

func (t tee) Emit(ev *Event) {
	for _, tr := range t {
		cp := *ev
		tr.Emit(&cp)
	}
}

func (t tee) Flush() error {
	var errs []error
	for _, tr := range t {
		errs = append(errs, tr.Flush())
	}
	return errors.Join(errs...)
}

func (t tee) Close() error {
	var errs []error
	for _, tr := range t {
		errs = append(errs, tr.Close())
	}
	return errors.Join(errs...)
}

func (t tee) Level() Level {
	var l Level
	for _, tr := range t {
		l = max(l, tr.Level())
	}
	return l
}
