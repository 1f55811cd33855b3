// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SignalsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routing_signals_total",
			Help: "Total number of routed signals by terminal status",
		},
		[]string{"status"},
	)

	RoutingFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routing_failures_total",
			Help: "Total number of routing failures by error code",
		},
		[]string{"error_code"},
	)

	DeliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routing_delivery_attempts_total",
			Help: "Total number of partner delivery attempts",
		},
		[]string{"partner_id"},
	)

	RoutingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "routing_duration_seconds",
			Help: "Duration of one routing invocation in seconds",
		},
		[]string{"status"},
	)

	BlackoutsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "routing_blackouts_opened_total",
			Help: "Total number of notification blackout windows opened",
		},
	)

	NotificationsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "routing_notifications_suppressed_total",
			Help: "Total number of family notifications suppressed by an active blackout",
		},
	)
)
