package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for registrations.
type Metrics struct {
	RegistrationsCreated *prometheus.CounterVec
	CodeCollisions       prometheus.Counter
	CredentialFailures   prometheus.Counter
	RegisterLatency      prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		RegistrationsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "entrypass_registrations_created_total",
			Help: "Registrations created, by payment method and channel",
		}, []string{"payment_method", "channel"}),
		CodeCollisions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "entrypass_registration_code_collisions_total",
			Help: "Inserts rejected because the drawn code was taken concurrently",
		}),
		CredentialFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "entrypass_credential_issue_failures_total",
			Help: "Best-effort credential issuances that failed",
		}),
		RegisterLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "entrypass_registration_duration_seconds",
			Help:    "Time to validate, persist and settle a registration",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

func (m *Metrics) IncCreated(method, channel string) {
	m.RegistrationsCreated.WithLabelValues(method, channel).Inc()
}

func (m *Metrics) IncCodeCollision() {
	m.CodeCollisions.Inc()
}

func (m *Metrics) IncCredentialFailure() {
	m.CredentialFailures.Inc()
}

func (m *Metrics) ObserveRegister(seconds float64) {
	m.RegisterLatency.Observe(seconds)
}
