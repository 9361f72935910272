package presenter

import "github.com/prometheus/client_golang/prometheus"

var (
	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorbridge_presenter_notifications_total",
			Help: "Lifecycle notifications by outcome (queued, coalesced, dropped)",
		},
		[]string{"outcome"},
	)
	sinkFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorbridge_presenter_sink_failures_total",
			Help: "Notifications a sink failed to deliver",
		},
		[]string{"sink"},
	)
)

// MetricsCollectors returns collectors for the presenter fanout.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		notifications,
		sinkFailures,
	}
}
