package metrics

import "github.com/prometheus/client_golang/prometheus"

// Webhook outcomes.
const (
	WebhookApplied   = "applied"
	WebhookIgnored   = "ignored"
	WebhookDuplicate = "duplicate"
	WebhookInvalid   = "invalid_signature"
	WebhookFailed    = "failed"
)

// WebhookMetrics counts processor events by type and outcome.
type WebhookMetrics struct {
	events *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook counter on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_webhook_events_total",
		Help: "Payment processor webhook deliveries by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(events)
	return &WebhookMetrics{events: events}
}

// Observe records one delivery.
func (w *WebhookMetrics) Observe(eventType, outcome string) {
	if w == nil || w.events == nil {
		return
	}
	w.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
