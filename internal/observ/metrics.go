package observ

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a per-session registry. A nil *Metrics is valid and records
// nothing, so components take it as an optional dependency.
type Metrics struct {
	Registry *prometheus.Registry

	fixesApplied    *prometheus.CounterVec
	analysisPasses  prometheus.Counter
	analysisSeconds prometheus.Histogram
	phaseSeconds    *prometheus.HistogramVec
	workerSpawns    prometheus.Counter
	workerRequests  *prometheus.CounterVec
	modulesFailed   prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		fixesApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autofix_fixes_applied_total",
			Help: "Diagnostics resolved by applied remediations.",
		}, []string{"rule", "mode"}),
		analysisPasses: f.NewCounter(prometheus.CounterOpts{
			Name: "autofix_analysis_passes_total",
			Help: "Analysis passes run by the fix engine.",
		}),
		analysisSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "autofix_analysis_seconds",
			Help:    "Time spent in one analysis pass.",
			Buckets: prometheus.DefBuckets,
		}),
		phaseSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autofix_phase_seconds",
			Help:    "Duration of invocation phases.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"phase"}),
		workerSpawns: f.NewCounter(prometheus.CounterOpts{
			Name: "autofix_worker_spawns_total",
			Help: "Metadata worker processes started.",
		}),
		workerRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autofix_worker_requests_total",
			Help: "Requests sent to the metadata worker.",
		}, []string{"method", "outcome"}),
		modulesFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "autofix_modules_failed_total",
			Help: "Analyzer modules excluded after a load failure.",
		}),
	}
}

func (m *Metrics) FixApplied(rule, mode string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.fixesApplied.WithLabelValues(rule, mode).Add(float64(n))
}

func (m *Metrics) AnalysisPass(seconds float64) {
	if m == nil {
		return
	}
	m.analysisPasses.Inc()
	m.analysisSeconds.Observe(seconds)
}

func (m *Metrics) Phase(name string, seconds float64) {
	if m == nil {
		return
	}
	m.phaseSeconds.WithLabelValues(name).Observe(seconds)
}

func (m *Metrics) WorkerSpawned() {
	if m == nil {
		return
	}
	m.workerSpawns.Inc()
}

func (m *Metrics) WorkerRequest(method, outcome string) {
	if m == nil {
		return
	}
	m.workerRequests.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) ModuleFailed() {
	if m == nil {
		return
	}
	m.modulesFailed.Inc()
}

// WriteFile dumps the registry in the text exposition format.
func (m *Metrics) WriteFile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
