// Package metrics holds the prometheus collectors of the auth service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	gateDecisions *prometheus.CounterVec
	rotations     *prometheus.CounterVec

	CleanupDeleted  prometheus.Counter
	CleanupErrors   prometheus.Counter
	CleanupDuration prometheus.Histogram
}

// New registers every collector with reg. Tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gateDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_gate_decisions_total", Help: "Authentication gate decisions by outcome.",
		}, []string{"outcome"}),
		rotations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_rotations_total", Help: "Refresh token rotations by result.",
		}, []string{"result"}),
		CleanupDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "cleanup_deleted_total", Help: "Expired refresh token records deleted.",
		}),
		CleanupErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "cleanup_errors_total", Help: "Errors in cleanup runs.",
		}),
		CleanupDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name: "cleanup_run_duration_seconds", Help: "Cleanup run duration.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) GateDecision(outcome string) {
	m.gateDecisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Rotation(result string) {
	m.rotations.WithLabelValues(result).Inc()
}
