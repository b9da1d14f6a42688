package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions   *prometheus.CounterVec
	StoreErrors prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "entrypass_ratelimit_decisions_total",
			Help: "Rate limit decisions, by route class and result",
		}, []string{"class", "result"}),
		StoreErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "entrypass_ratelimit_store_errors_total",
			Help: "Rate limit checks that failed open because the store was unreachable",
		}),
	}
}

func (m *Metrics) IncDecision(class string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "limited"
	}
	m.Decisions.WithLabelValues(class, result).Inc()
}

func (m *Metrics) IncStoreError() {
	m.StoreErrors.Inc()
}
