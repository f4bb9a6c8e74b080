package leave

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	transitions *prometheus.CounterVec
	hours       *prometheus.HistogramVec
	adjustments *prometheus.CounterVec
	auditDrift  *prometheus.GaugeVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leave",
			Name:      "transitions_total",
			Help:      "Total number of leave application events by outcome.",
		}, []string{"event", "result"}),
		hours: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leave",
			Name:      "requested_hours",
			Help:      "Hours computed for created and revised applications.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 24, 40, 80, 160},
		}, []string{"category"}),
		adjustments: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leave",
			Name:      "adjustments_total",
			Help:      "Total number of adjustment log entries written.",
		}, []string{"kind"}),
		auditDrift: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "leave",
			Name:      "audit_drift_balances",
			Help:      "Balances whose used hours differ from the replayed adjustment log, per employee.",
		}, []string{"employee_id"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsNotFound(err):
		return "not_found"
	case IsClientError(err):
		return "rejected"
	default:
		return "error"
	}
}

func adjustmentKind(returning bool) string {
	if returning {
		return "returning"
	}
	return "forward"
}
