package observ

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTimerReport(t *testing.T) {
	m := NewMetrics()
	tm := NewTimer(m)
	require.NoError(t, tm.Track("load", func() error { return nil }))
	err := tm.Track("converge", func() error { return errors.New("boom") })
	require.EqualError(t, err, "boom")

	rep := tm.Report()
	require.Len(t, rep.Phases, 2)
	require.Equal(t, "load", rep.Phases[0].Name)
	require.False(t, rep.Phases[0].Failed)
	require.True(t, rep.Phases[1].Failed)
	require.Contains(t, tm.Summary(), "total")
	require.Contains(t, tm.Summary(), "failed")
	require.Equal(t, 2, testutil.CollectAndCount(m.phaseSeconds))

	var nilTimer *Timer
	calls := 0
	require.NoError(t, nilTimer.Track("x", func() error { calls++; return nil }))
	require.Equal(t, 1, calls)
	require.Empty(t, nilTimer.Report().Phases)
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	m.FixApplied("AF1001", "batch", 3)
	m.FixApplied("AF1001", "batch", 0)
	m.AnalysisPass(0.01)
	m.WorkerSpawned()
	m.WorkerRequest("OpenProject", "ok")

	require.Equal(t, 3.0, testutil.ToFloat64(m.fixesApplied.WithLabelValues("AF1001", "batch")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.analysisPasses))
	require.Equal(t, 1.0, testutil.ToFloat64(m.workerSpawns))

	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, m.WriteFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), "autofix_fixes_applied_total"))

	var none *Metrics
	none.FixApplied("x", "single", 1)
	require.NoError(t, none.WriteFile(path))
}
