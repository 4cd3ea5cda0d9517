package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NotifyMetrics holds metrics for reconciliation notifications.
type NotifyMetrics struct {
	// ComponentsTotal counts missed components handed to a listener, by
	// delivery status.
	ComponentsTotal *prometheus.CounterVec

	// NotificationsTotal counts listener invocations, by delivery status.
	NotificationsTotal *prometheus.CounterVec
}

// NewNotifyMetrics creates notification metrics registered with the default registry.
func NewNotifyMetrics() *NotifyMetrics {
	return newNotifyMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewNotifyMetricsWithRegistry creates notification metrics registered with reg.
func NewNotifyMetricsWithRegistry(reg prometheus.Registerer) *NotifyMetrics {
	return newNotifyMetrics(promauto.With(reg))
}

func newNotifyMetrics(f promauto.Factory) *NotifyMetrics {
	return &NotifyMetrics{
		ComponentsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "purger",
				Subsystem: "notify",
				Name:      "components_total",
				Help:      "Total disabled components reported to listeners, by delivery status.",
			},
			[]string{"status"},
		),
		NotificationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "purger",
				Subsystem: "notify",
				Name:      "notifications_total",
				Help:      "Total listener notifications, by delivery status.",
			},
			[]string{"status"},
		),
	}
}

// RecordNotification records one delivery attempt covering n components.
func (m *NotifyMetrics) RecordNotification(n int, success bool) {
	status := StatusFailure
	if success {
		status = StatusSuccess
	}
	m.NotificationsTotal.WithLabelValues(status).Inc()
	m.ComponentsTotal.WithLabelValues(status).Add(float64(n))
}
