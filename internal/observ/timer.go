package observ

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Timer collects the phases of one invocation (preflight, load, converge)
// in the order they finished. A nil *Timer records nothing.
type Timer struct {
	metrics *Metrics

	mu     sync.Mutex
	phases []PhaseReport
}

type PhaseReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Failed     bool    `json:"failed,omitempty"`
}

type Report struct {
	TotalMS float64       `json:"total_ms"`
	Phases  []PhaseReport `json:"phases"`
}

// NewTimer returns a timer that also feeds m's phase histogram; m may be nil.
func NewTimer(m *Metrics) *Timer {
	return &Timer{metrics: m}
}

// Track runs fn as the phase name.
func (t *Timer) Track(name string, fn func() error) error {
	if t == nil {
		return fn()
	}
	started := time.Now()
	err := fn()
	elapsed := time.Since(started)
	t.metrics.Phase(name, elapsed.Seconds())

	t.mu.Lock()
	t.phases = append(t.phases, PhaseReport{Name: name, DurationMS: millis(elapsed), Failed: err != nil})
	t.mu.Unlock()
	return err
}

func (t *Timer) Report() Report {
	if t == nil {
		return Report{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	rep := Report{Phases: append([]PhaseReport(nil), t.phases...)}
	for _, p := range rep.Phases {
		rep.TotalMS += p.DurationMS
	}
	return rep
}

// Summary renders the report for --timings:
//
//	timings:
//	  preflight        1.20 ms   3%
//	  load            12.80 ms  35%  failed
func (t *Timer) Summary() string {
	rep := t.Report()
	var sb strings.Builder
	sb.WriteString("timings:\n")
	for _, p := range rep.Phases {
		share := 0.0
		if rep.TotalMS > 0 {
			share = p.DurationMS / rep.TotalMS * 100
		}
		fmt.Fprintf(&sb, "  %-12s %9.2f ms %4.0f%%", p.Name, p.DurationMS, share)
		if p.Failed {
			sb.WriteString("  failed")
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "  %-12s %9.2f ms\n", "total", rep.TotalMS)
	return sb.String()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
