package fix

import "time"

// State is a step of the convergence loop.
type State uint8

const (
	Analyzing State = iota
	Selecting
	ApplyingBatch
	ApplyingSingle
	Reloading
	Converged
	Failed
)

func (s State) String() string {
	switch s {
	case Analyzing:
		return "analyzing"
	case Selecting:
		return "selecting"
	case ApplyingBatch:
		return "applying-batch"
	case ApplyingSingle:
		return "applying-single"
	case Reloading:
		return "reloading"
	case Converged:
		return "converged"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the loop stops in s.
func (s State) Terminal() bool {
	return s == Converged || s == Failed
}

// Event reports one state transition. Rule and Count are set for the
// applying states, Path for the document a single fix targets. Remaining
// is the number of fixable diagnostics a Selecting pass saw.
type Event struct {
	State     State
	Pass      int
	Rule      string
	Count     int
	Remaining int
	Path      string
	Err       error
	Elapsed   time.Duration
}

// ProgressSink consumes engine events.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(Event)

func (f SinkFunc) OnEvent(evt Event) { f(evt) }
