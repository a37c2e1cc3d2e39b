package trace

import "context"

// state is what a context carries: the tracer and the innermost open span.
type state struct {
	tracer Tracer
	span   uint64
}

type ctxKey struct{}

func load(ctx context.Context) state {
	if ctx != nil {
		if st, ok := ctx.Value(ctxKey{}).(state); ok {
			return st
		}
	}
	return state{tracer: Nop}
}

// FromContext returns the tracer stored in ctx, or Nop.
func FromContext(ctx context.Context) Tracer {
	return load(ctx).tracer
}

// WithTracer attaches t to ctx. Spans opened earlier in ctx are no longer
// parents of new spans.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	if t == nil {
		t = Nop
	}
	return context.WithValue(ctx, ctxKey{}, state{tracer: t})
}

// CurrentSpan returns the id of the innermost span of ctx, 0 if none.
func CurrentSpan(ctx context.Context) uint64 {
	return load(ctx).span
}

func withSpan(ctx context.Context, id uint64) context.Context {
	st := load(ctx)
	st.span = id
	return context.WithValue(ctx, ctxKey{}, st)
}
