package api

import "github.com/prometheus/client_golang/prometheus"

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorbridge_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sensorbridge_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	webhookRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorbridge_webhook_rejections_total",
			Help: "Webhook deliveries rejected by reason (signature, event)",
		},
		[]string{"reason"},
	)
	wsClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sensorbridge_websocket_clients",
			Help: "Connected WebSocket clients",
		},
	)
)

// MetricsCollectors returns collectors for the HTTP API.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequests,
		httpDuration,
		webhookRejections,
		wsClients,
	}
}
