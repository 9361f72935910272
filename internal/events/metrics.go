package events

import "github.com/prometheus/client_golang/prometheus"

var eventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sensorbridge_events_total",
		Help: "Webhook events by type and outcome",
	},
	[]string{"event_type", "result"},
)

// MetricsCollectors returns collectors for the event router.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{eventsTotal}
}
