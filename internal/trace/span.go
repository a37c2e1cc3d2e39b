package trace

import (
	"context"
	"sync/atomic"
	"time"
)

var (
	seq   atomic.Uint64
	spans atomic.Uint64
)

// Span is one open operation. A nil or disabled span ignores every call,
// so callers never check whether tracing is on.
type Span struct {
	tracer  Tracer
	id      uint64
	parent  uint64
	scope   Scope
	name    string
	started time.Time
	extra   map[string]string
}

// Start opens a span under the innermost span of ctx. The returned context
// carries the new span; when the tracer does not record scope it is ctx
// itself and the span is inert.
func Start(ctx context.Context, scope Scope, name string) (context.Context, *Span) {
	st := load(ctx)
	if !st.tracer.Level().ShouldEmit(scope) {
		return ctx, nil
	}
	sp := &Span{
		tracer:  st.tracer,
		id:      spans.Add(1),
		parent:  st.span,
		scope:   scope,
		name:    name,
		started: time.Now(),
	}
	st.tracer.Emit(&Event{
		Time:     sp.started,
		Seq:      seq.Add(1),
		Kind:     KindSpanBegin,
		Scope:    scope,
		SpanID:   sp.id,
		ParentID: sp.parent,
		Name:     name,
	})
	return withSpan(ctx, sp.id), sp
}

// Point records an instant event under the innermost span of ctx.
func Point(ctx context.Context, scope Scope, name, detail string) {
	st := load(ctx)
	if !st.tracer.Level().ShouldEmit(scope) {
		return
	}
	st.tracer.Emit(&Event{
		Time:     time.Now(),
		Seq:      seq.Add(1),
		Kind:     KindPoint,
		Scope:    scope,
		ParentID: st.span,
		Name:     name,
		Detail:   detail,
	})
}

// Set attaches key=value to the end event.
func (s *Span) Set(key, value string) *Span {
	if s == nil {
		return nil
	}
	if s.extra == nil {
		s.extra = make(map[string]string, 2)
	}
	s.extra[key] = value
	return s
}

// End closes the span and returns its duration.
func (s *Span) End(detail string) time.Duration {
	if s == nil {
		return 0
	}
	elapsed := time.Since(s.started)
	s.tracer.Emit(&Event{
		Time:     time.Now(),
		Seq:      seq.Add(1),
		Kind:     KindSpanEnd,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parent,
		Name:     s.name,
		Detail:   detail,
		Elapsed:  elapsed,
		Extra:    s.extra,
	})
	return elapsed
}

func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}
