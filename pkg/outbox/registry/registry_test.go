package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	orderID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.OrderStatusChangedEvent{
		OrderID:       orderID,
		OrderCode:     "ABCD2345",
		PaymentStatus: enums.PaymentStatusPaid,
		MerchantIDs:   []string{"m1"},
	})

	event := models.OutboxEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID.String(),
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "orders-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.OrderStatusChangedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.OrderCode != "ABCD2345" || payload.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
}

func TestEventRegistryCoversEveryEventType(t *testing.T) {
	reg := newTestEventRegistry(t)
	for _, eventType := range []enums.OutboxEventType{
		enums.EventOrderCreated,
		enums.EventOrderPaid,
		enums.EventOrderFailed,
		enums.EventOrderRefunded,
		enums.EventOrderDisputed,
		enums.EventOrderExpired,
		enums.EventPayoutsDispatched,
		enums.EventMerchantAccountSynced,
	} {
		if _, ok := reg.entries[eventType]; !ok {
			t.Fatalf("event type %s not registered", eventType)
		}
	}
}

func TestEventRegistryResolveFailures(t *testing.T) {
	reg := newTestEventRegistry(t)
	valid := mustEnvelope(t, mustMarshal(t, payloads.OrderExpiredEvent{OrderCode: "ABCD2345"}))

	cases := []struct {
		name  string
		event models.OutboxEvent
	}{
		{
			name:  "unknown event",
			event: models.OutboxEvent{EventType: "bogus", AggregateType: enums.AggregateOrder, AggregateID: "x", Payload: valid},
		},
		{
			name:  "aggregate mismatch",
			event: models.OutboxEvent{EventType: enums.EventOrderExpired, AggregateType: enums.AggregateMerchantPaymentAccount, AggregateID: "x", Payload: valid},
		},
		{
			name:  "missing aggregate id",
			event: models.OutboxEvent{EventType: enums.EventOrderExpired, AggregateType: enums.AggregateOrder, Payload: valid},
		},
		{
			name:  "null payload",
			event: models.OutboxEvent{EventType: enums.EventOrderExpired, AggregateType: enums.AggregateOrder, AggregateID: "x", Payload: mustEnvelope(t, []byte("null"))},
		},
		{
			name:  "broken envelope",
			event: models.OutboxEvent{EventType: enums.EventOrderExpired, AggregateType: enums.AggregateOrder, AggregateID: "x", Payload: json.RawMessage("{")},
		},
	}
	for _, tc := range cases {
		_, err := reg.Resolve(tc.event)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !IsPermanent(err) {
			t.Fatalf("%s: expected non-retryable error, got %T", tc.name, err)
		}
	}
}

func TestEmptyPayloadIsReported(t *testing.T) {
	reg := newTestEventRegistry(t)
	_, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderExpired,
		AggregateType: enums.AggregateOrder,
		AggregateID:   "x",
		Payload:       mustEnvelope(t, []byte("null")),
	})
	if !errors.Is(err, outbox.ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
	if got := reg.Topics(); len(got) != 1 || got[0] != "orders-topic" {
		t.Fatalf("unexpected topics %v", got)
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil {
		t.Fatal("expected missing topic error")
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders-topic"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
