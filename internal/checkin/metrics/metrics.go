package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for gate admissions.
type Metrics struct {
	CheckIns       *prometheus.CounterVec
	WalkIns        *prometheus.CounterVec
	CheckInLatency prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		CheckIns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "entrypass_checkins_total",
			Help: "Check-in attempts, by result",
		}, []string{"result"}),
		WalkIns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "entrypass_walkins_total",
			Help: "Walk-in groups registered at the gate, by payment status",
		}, []string{"payment_status"}),
		CheckInLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "entrypass_checkin_duration_seconds",
			Help:    "Time to admit a group at the gate",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncCheckIn(result string) {
	m.CheckIns.WithLabelValues(result).Inc()
}

func (m *Metrics) IncWalkIn(status string) {
	m.WalkIns.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveCheckIn(seconds float64) {
	m.CheckInLatency.Observe(seconds)
}
