package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the broker's Prometheus collectors. Construct one per
// process with a dedicated registry; tests pass their own registry to avoid
// duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	JobsCreated          prometheus.Counter
	PaymentVerifications *prometheus.CounterVec
	JobsDispatched       *prometheus.CounterVec
	JobDuration          prometheus.Histogram
}

// New registers the broker collectors on the given registry.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		JobsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "broker_jobs_created_total",
			Help: "Jobs created via the API.",
		}),
		PaymentVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_payment_verifications_total",
			Help: "Payment verification attempts by result.",
		}, []string{"result"}),
		JobsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_jobs_dispatched_total",
			Help: "Dispatch attempts by outcome.",
		}, []string{"outcome"}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "broker_job_duration_seconds",
			Help:    "Wall-clock duration of processor execution.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
}

// Registry returns the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
