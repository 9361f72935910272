package device

import "github.com/prometheus/client_golang/prometheus"

var (
	reconcileChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorbridge_reconcile_changes_total",
			Help: "Entries added, removed, updated or skipped by reconciliation",
		},
		[]string{"change"},
	)
	reconcileRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorbridge_reconcile_runs_total",
			Help: "Reconciliation passes by trust state",
		},
		[]string{"trusted"},
	)
	entriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sensorbridge_entries",
			Help: "Entries currently held by the registry",
		},
	)
)

// MetricsCollectors returns collectors for the device registry.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		reconcileChanges,
		reconcileRuns,
		entriesTotal,
	}
}

func recordReconcile(report ReconcileReport, entries int) {
	reconcileChanges.WithLabelValues("added").Add(float64(report.Added))
	reconcileChanges.WithLabelValues("removed").Add(float64(report.Removed))
	reconcileChanges.WithLabelValues("updated").Add(float64(report.Updated))
	reconcileChanges.WithLabelValues("skipped").Add(float64(report.Skipped))
	if report.Trusted {
		reconcileRuns.WithLabelValues("true").Inc()
	} else {
		reconcileRuns.WithLabelValues("false").Inc()
	}
	entriesTotal.Set(float64(entries))
}
