// Package registry knows every outbox event type: which aggregate emits it, the
// payload struct it decodes into and the topic it is published on.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newPayload    func() any
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

func statusChanged() any { return &payloads.OrderStatusChangedEvent{} }

// catalog lists every event the services emit. Topics are filled in from config.
var catalog = []EventDescriptor{
	{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, newPayload: func() any { return &payloads.OrderCreatedEvent{} }},
	{EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, newPayload: statusChanged},
	{EventType: enums.EventOrderFailed, AggregateType: enums.AggregateOrder, newPayload: statusChanged},
	{EventType: enums.EventOrderRefunded, AggregateType: enums.AggregateOrder, newPayload: statusChanged},
	{EventType: enums.EventOrderDisputed, AggregateType: enums.AggregateOrder, newPayload: statusChanged},
	{EventType: enums.EventOrderExpired, AggregateType: enums.AggregateOrder, newPayload: func() any { return &payloads.OrderExpiredEvent{} }},
	{EventType: enums.EventPayoutsDispatched, AggregateType: enums.AggregateOrder, newPayload: func() any { return &payloads.PayoutsDispatchedEvent{} }},
	{EventType: enums.EventMerchantAccountSynced, AggregateType: enums.AggregateMerchantPaymentAccount, newPayload: func() any { return &payloads.MerchantAccountSyncedEvent{} }},
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry routes every catalogued event to the orders topic. Merchant
// account events share it so consumers see one stream per storefront.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.OrdersTopic)
	if topic == "" {
		return nil, errors.New("orders topic is required")
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(catalog))}
	for _, desc := range catalog {
		desc.Topic = topic
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Topics lists the distinct topics events are published to.
func (r *EventRegistry) Topics() []string {
	seen := map[string]bool{}
	var topics []string
	for _, desc := range r.entries {
		if !seen[desc.Topic] {
			seen[desc.Topic] = true
			topics = append(topics, desc.Topic)
		}
	}
	sort.Strings(topics)
	return topics
}

// Resolve checks a row against its descriptor and decodes the typed payload. Every
// failure is non-retryable: the stored row will not change between attempts.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[row.EventType]
	switch {
	case !ok:
		return nil, Permanent(fmt.Errorf("unsupported event type %s", row.EventType))
	case desc.AggregateType != row.AggregateType:
		return nil, Permanent(fmt.Errorf("%s belongs to %s, row says %s", row.EventType, desc.AggregateType, row.AggregateType))
	case strings.TrimSpace(row.AggregateID) == "":
		return nil, Permanent(errors.New("missing aggregate_id"))
	}

	payload := desc.newPayload()
	env, err := outbox.Open(row.Payload, payload)
	if err != nil {
		return nil, Permanent(fmt.Errorf("%s: %w", row.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: payload}, nil
}
