package credential

import "github.com/prometheus/client_golang/prometheus"

var (
	tokenExchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorbridge_token_exchanges_total",
			Help: "Token exchanges with the identity endpoint by result",
		},
		[]string{"result"},
	)
	tokenValid = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sensorbridge_token_valid",
			Help: "Cached access token validity (1=valid, 0=invalid)",
		},
	)
)

// MetricsCollectors returns collectors for the credential cache.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		tokenExchanges,
		tokenValid,
	}
}
