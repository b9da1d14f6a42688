package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the outbox relay.
type Metrics struct {
	EventsPublished prometheus.Counter
	PublishFailures prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		EventsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "entrypass_outbox_events_published_total",
			Help: "Total outbox events delivered to the sink",
		}),
		PublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "entrypass_outbox_publish_failures_total",
			Help: "Total failed relay batches",
		}),
	}
}

func (m *Metrics) AddPublished(n int) {
	m.EventsPublished.Add(float64(n))
}

func (m *Metrics) IncPublishFailures() {
	m.PublishFailures.Inc()
}
