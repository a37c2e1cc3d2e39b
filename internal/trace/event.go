package trace

import "time"

type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
)

func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	}
	return "unknown"
}

// Scope is the granularity of an event; lower values are coarser.
type Scope uint8

const (
	ScopeSession  Scope = iota + 1 // whole fix or check invocation
	ScopePhase                     // preflight, load, converge
	ScopePass                      // one analysis pass or one fix application
	ScopeDocument                  // per-document work
)

func (s Scope) String() string {
	switch s {
	case ScopeSession:
		return "session"
	case ScopePhase:
		return "phase"
	case ScopePass:
		return "pass"
	case ScopeDocument:
		return "document"
	}
	return "unknown"
}

type Event struct {
	Time     time.Time
	Seq      uint64
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64 // 0 for root spans
	Name     string // "converge", "apply:AF1001"
	Detail   string
	Elapsed  time.Duration // span ends only
	Extra    map[string]string
}
