package profiler

import (
	"time"

	"github.com/dray-io/purger/internal/logging"
)

// PhaseRecorder records phase durations. *metrics.PurgeMetrics satisfies it.
type PhaseRecorder interface {
	RecordPhase(phase string, durationSeconds float64)
}

// NewMetricsSink reports phases to a PhaseRecorder.
func NewMetricsSink(r PhaseRecorder) Sink {
	return SinkFunc(func(label string, d time.Duration) {
		r.RecordPhase(label, d.Seconds())
	})
}

// NewLogSink reports every phase at debug level.
func NewLogSink(l *logging.Logger) Sink {
	return SinkFunc(func(label string, d time.Duration) {
		l.Debugf("purge phase finished", logging.Fields{
			"phase":       label,
			"duration_ms": d.Milliseconds(),
		})
	})
}
