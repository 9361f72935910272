package inventory

import "github.com/prometheus/client_golang/prometheus"

var (
	fetchResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorbridge_inventory_fetches_total",
			Help: "Inventory fetches by result",
		},
		[]string{"result"},
	)
	fetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sensorbridge_inventory_fetch_seconds",
			Help:    "Inventory fetch duration",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// MetricsCollectors returns collectors for the inventory client and poller.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		fetchResults,
		fetchDuration,
	}
}
