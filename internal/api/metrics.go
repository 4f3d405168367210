package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics tracks the reconciliation pipeline's behavior: deliveries,
// duplicates short-circuited, grants written, and failures by reason.
type WebhookMetrics struct {
	eventsReceived  *prometheus.CounterVec
	duplicateEvents prometheus.Counter
	grantsUpserted  prometheus.Counter
	failures        *prometheus.CounterVec
}

// NewWebhookMetrics creates the webhook metric collectors.
func NewWebhookMetrics() *WebhookMetrics {
	return &WebhookMetrics{
		eventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_events_received_total",
				Help: "Total number of verified webhook events received, by event type",
			},
			[]string{"event_type"},
		),
		duplicateEvents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "webhook_duplicate_events_total",
				Help: "Total number of redelivered events short-circuited by the idempotency check",
			},
		),
		grantsUpserted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "webhook_grants_upserted_total",
				Help: "Total number of access grants written by the webhook",
			},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_failures_total",
				Help: "Total number of webhook processing failures, by reason",
			},
			[]string{"reason"},
		),
	}
}

// Register registers the collectors with a Prometheus registry.
func (m *WebhookMetrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all webhook collectors.
func (m *WebhookMetrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.eventsReceived,
		m.duplicateEvents,
		m.grantsUpserted,
		m.failures,
	}
}

func (m *WebhookMetrics) IncEventsReceived(eventType string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(eventType).Inc()
}

func (m *WebhookMetrics) IncDuplicateEvents() {
	if m == nil {
		return
	}
	m.duplicateEvents.Inc()
}

func (m *WebhookMetrics) IncGrantsUpserted() {
	if m == nil {
		return
	}
	m.grantsUpserted.Inc()
}

func (m *WebhookMetrics) IncFailures(reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(reason).Inc()
}
