package metrics

import "github.com/prometheus/client_golang/prometheus"

// CheckoutMetrics counts checkout attempts by payment method and outcome kind.
type CheckoutMetrics struct {
	attempts *prometheus.CounterVec
	sessions *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout counters on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_checkout_total",
		Help: "Checkout attempts by payment method and outcome.",
	}, []string{"method", "outcome"})
	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_payment_sessions_total",
		Help: "Payment session creation results.",
	}, []string{"result"})
	reg.MustRegister(attempts, sessions)
	return &CheckoutMetrics{attempts: attempts, sessions: sessions}
}

// ObserveCheckout records one checkout; outcome is "created" or the error kind.
func (c *CheckoutMetrics) ObserveCheckout(method, outcome string) {
	if c == nil || c.attempts == nil {
		return
	}
	c.attempts.WithLabelValues(normalizeLabel(method), normalizeLabel(outcome)).Inc()
}

// ObserveSession records a payment session creation result.
func (c *CheckoutMetrics) ObserveSession(ok bool) {
	if c == nil || c.sessions == nil {
		return
	}
	result := "failed"
	if ok {
		result = "created"
	}
	c.sessions.WithLabelValues(result).Inc()
}
