package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics covers the payment convergence paths: webhook, redirect,
// sweep and admin corrections, plus outbound gateway calls.
type PaymentMetrics struct {
	notifications *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	redirects     *prometheus.CounterVec
	gatewayCalls  *prometheus.HistogramVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_webhook_notifications_total",
		Help: "Gateway notifications by processing outcome.",
	}, []string{"outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_payment_transitions_total",
		Help: "Persisted payment status transitions by source.",
	}, []string{"source", "from", "to"})
	redirects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_redirect_reconciliations_total",
		Help: "Redirect reconciliations by landing page and resolved page.",
	}, []string{"landed", "resolved"})
	gatewayCalls := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_gateway_call_duration_seconds",
		Help:    "Duration of payment gateway calls including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})
	reg.MustRegister(notifications, transitions, redirects, gatewayCalls)
	return &PaymentMetrics{
		notifications: notifications,
		transitions:   transitions,
		redirects:     redirects,
		gatewayCalls:  gatewayCalls,
	}
}

// IncNotification counts a processed webhook notification.
func (m *PaymentMetrics) IncNotification(outcome string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncTransition counts a persisted payment status change.
func (m *PaymentMetrics) IncTransition(source, from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(source), normalizeLabel(from), normalizeLabel(to)).Inc()
}

// IncRedirect counts a redirect reconciliation.
func (m *PaymentMetrics) IncRedirect(landed, resolved string) {
	if m == nil || m.redirects == nil {
		return
	}
	m.redirects.WithLabelValues(normalizeLabel(landed), normalizeLabel(resolved)).Inc()
}

// ObserveGatewayCall records the latency of a gateway operation.
func (m *PaymentMetrics) ObserveGatewayCall(operation, outcome string, duration time.Duration) {
	if m == nil || m.gatewayCalls == nil {
		return
	}
	m.gatewayCalls.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Observe(duration.Seconds())
}
