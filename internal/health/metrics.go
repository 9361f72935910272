package health

import "github.com/prometheus/client_golang/prometheus"

var (
	faultedEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sensorbridge_entries_faulted",
			Help: "Entries whose last event is older than the stale threshold",
		},
	)
	sweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sensorbridge_health_sweeps_total",
			Help: "Completed health sweeps",
		},
	)
)

// MetricsCollectors returns collectors for the health monitor.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{faultedEntries, sweepsTotal}
}
