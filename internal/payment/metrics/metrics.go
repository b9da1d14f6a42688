package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for checkout and reconciliation.
type Metrics struct {
	CheckoutsOpened    *prometheus.CounterVec
	Reconciliations    *prometheus.CounterVec
	GatewayFailures    *prometheus.CounterVec
	WebhooksReceived   *prometheus.CounterVec
	CashPaymentsMarked prometheus.Counter
	ReconcileLatency   prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		CheckoutsOpened: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "entrypass_payment_checkouts_total",
			Help: "Checkout links opened, by result",
		}, []string{"result"}),
		Reconciliations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "entrypass_payment_reconciliations_total",
			Help: "Payment facts applied, by source and outcome",
		}, []string{"source", "outcome"}),
		GatewayFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "entrypass_payment_gateway_failures_total",
			Help: "Failed payment gateway calls, by operation",
		}, []string{"operation"}),
		WebhooksReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "entrypass_payment_webhooks_total",
			Help: "Webhook deliveries, by result",
		}, []string{"result"}),
		CashPaymentsMarked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "entrypass_payment_cash_marked_total",
			Help: "Cash registrations marked as paid at the counter",
		}),
		ReconcileLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "entrypass_payment_reconcile_duration_seconds",
			Help:    "Time to apply one payment fact",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncCheckout(result string) {
	m.CheckoutsOpened.WithLabelValues(result).Inc()
}

func (m *Metrics) IncReconciliation(source, outcome string) {
	m.Reconciliations.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) IncGatewayFailure(operation string) {
	m.GatewayFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncWebhook(result string) {
	m.WebhooksReceived.WithLabelValues(result).Inc()
}

func (m *Metrics) IncCashMarked() {
	m.CashPaymentsMarked.Inc()
}

func (m *Metrics) ObserveReconcile(seconds float64) {
	m.ReconcileLatency.Observe(seconds)
}
