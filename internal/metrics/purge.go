package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// DefaultPhaseBuckets cover single-row deletes up to multi-minute table sweeps.
var DefaultPhaseBuckets = []float64{
	0.001, // 1ms
	0.005, // 5ms
	0.01,  // 10ms
	0.05,  // 50ms
	0.1,   // 100ms
	0.5,   // 500ms
	1.0,   // 1s
	5.0,   // 5s
	15.0,  // 15s
	60.0,  // 1m
	300.0, // 5m
}

// PurgeMetrics holds metrics recorded for each profiled purge phase.
type PurgeMetrics struct {
	// PhaseDuration tracks the wall time of each phase, labelled by phase name
	// such as "deleteAnalyses (snapshots)".
	PhaseDuration *prometheus.HistogramVec

	// PhasesTotal counts completed phases by name.
	PhasesTotal *prometheus.CounterVec

	// ProfilerFailures counts sink failures swallowed by the profiler.
	ProfilerFailures prometheus.Counter
}

// NewPurgeMetrics creates purge metrics registered with the default registry.
func NewPurgeMetrics() *PurgeMetrics {
	return newPurgeMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewPurgeMetricsWithRegistry creates purge metrics registered with reg.
func NewPurgeMetricsWithRegistry(reg prometheus.Registerer) *PurgeMetrics {
	return newPurgeMetrics(promauto.With(reg))
}

func newPurgeMetrics(f promauto.Factory) *PurgeMetrics {
	return &PurgeMetrics{
		PhaseDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "purger",
				Subsystem: "purge",
				Name:      "phase_duration_seconds",
				Help:      "Duration of a purge phase in seconds, by phase name.",
				Buckets:   DefaultPhaseBuckets,
			},
			[]string{"phase"},
		),
		PhasesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "purger",
				Subsystem: "purge",
				Name:      "phases_total",
				Help:      "Total number of completed purge phases, by phase name.",
			},
			[]string{"phase"},
		),
		ProfilerFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "purger",
				Subsystem: "purge",
				Name:      "profiler_failures_total",
				Help:      "Total number of profiler sink failures that were isolated from the purge.",
			},
		),
	}
}

// RecordPhase records one finished phase.
func (m *PurgeMetrics) RecordPhase(phase string, durationSeconds float64) {
	m.PhaseDuration.WithLabelValues(phase).Observe(durationSeconds)
	m.PhasesTotal.WithLabelValues(phase).Inc()
}

// RecordProfilerFailure increments the profiler failure counter.
func (m *PurgeMetrics) RecordProfilerFailure() {
	m.ProfilerFailures.Inc()
}
