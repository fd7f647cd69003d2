package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Relay results.
const (
	RelayPublished    = "published"
	RelayRetried      = "retried"
	RelayDeadLettered = "dead_lettered"
)

// RelayMetrics tracks the outbox relay: per-event results and batch latency.
type RelayMetrics struct {
	events *prometheus.CounterVec
	batch  prometheus.Histogram
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_outbox_events_total",
		Help: "Outbox rows handled by the relay by event type and result.",
	}, []string{"event_type", "result"})
	batch := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_outbox_batch_seconds",
		Help:    "Time spent relaying one claimed batch.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
	reg.MustRegister(events, batch)
	return &RelayMetrics{events: events, batch: batch}
}

func (m *RelayMetrics) Observe(eventType, result string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}

func (m *RelayMetrics) ObserveBatch(took time.Duration) {
	if m == nil || m.batch == nil {
		return
	}
	m.batch.Observe(took.Seconds())
}
