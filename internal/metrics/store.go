package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultStatementBuckets are tuned for single SQL statements.
var DefaultStatementBuckets = []float64{
	0.0005, // 0.5ms
	0.001,  // 1ms
	0.005,  // 5ms
	0.01,   // 10ms
	0.05,   // 50ms
	0.1,    // 100ms
	0.5,    // 500ms
	1.0,    // 1s
	5.0,    // 5s
	30.0,   // 30s
}

// StoreMetrics holds metrics for statements issued by the SQL gateway.
type StoreMetrics struct {
	// StatementDuration tracks latency per named statement and status.
	StatementDuration *prometheus.HistogramVec

	// RowsAffected counts rows deleted or updated per named statement.
	RowsAffected *prometheus.CounterVec

	// CommitsTotal counts commits by status.
	CommitsTotal *prometheus.CounterVec
}

// NewStoreMetrics creates store metrics registered with the default registry.
func NewStoreMetrics() *StoreMetrics {
	return newStoreMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewStoreMetricsWithRegistry creates store metrics registered with reg.
func NewStoreMetricsWithRegistry(reg prometheus.Registerer) *StoreMetrics {
	return newStoreMetrics(promauto.With(reg))
}

func newStoreMetrics(f promauto.Factory) *StoreMetrics {
	return &StoreMetrics{
		StatementDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "purger",
				Subsystem: "store",
				Name:      "statement_duration_seconds",
				Help:      "SQL statement latency in seconds, by statement name and status.",
				Buckets:   DefaultStatementBuckets,
			},
			[]string{"statement", "status"},
		),
		RowsAffected: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "purger",
				Subsystem: "store",
				Name:      "rows_affected_total",
				Help:      "Total rows deleted or updated, by statement name.",
			},
			[]string{"statement"},
		),
		CommitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "purger",
				Subsystem: "store",
				Name:      "commits_total",
				Help:      "Total commits issued by the store, by status.",
			},
			[]string{"status"},
		),
	}
}

// RecordStatement records one executed statement. rows is ignored for
// selections and failed statements.
func (m *StoreMetrics) RecordStatement(statement string, durationSeconds float64, rows int64, success bool) {
	status := StatusFailure
	if success {
		status = StatusSuccess
	}
	m.StatementDuration.WithLabelValues(statement, status).Observe(durationSeconds)
	if success && rows > 0 {
		m.RowsAffected.WithLabelValues(statement).Add(float64(rows))
	}
}

// RecordCommit records one commit.
func (m *StoreMetrics) RecordCommit(success bool) {
	status := StatusFailure
	if success {
		status = StatusSuccess
	}
	m.CommitsTotal.WithLabelValues(status).Inc()
}
