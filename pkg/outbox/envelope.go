package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type ActorKind string

const (
	ActorCustomer  ActorKind = "customer"
	ActorMerchant  ActorKind = "merchant"
	ActorProcessor ActorKind = "processor"
	ActorSystem    ActorKind = "system"
)

// ActorRef names who caused an event, e.g. {merchant, <user id>} or {processor, evt_...}.
type ActorRef struct {
	Kind ActorKind `json:"kind"`
	ID   string    `json:"id,omitempty"`
}

// DomainEvent is what services hand to Emit. It becomes one outbox_events row.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and published as the
// message body. Data holds the event-specific payload.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

var ErrEmptyPayload = errors.New("event payload is empty")

func (e DomainEvent) validate() error {
	if !e.EventType.IsValid() {
		return fmt.Errorf("unknown event type %q", e.EventType)
	}
	if !e.AggregateType.IsValid() {
		return fmt.Errorf("unknown aggregate type %q", e.AggregateType)
	}
	if strings.TrimSpace(e.AggregateID) == "" {
		return errors.New("aggregate id required")
	}
	return nil
}

// seal fills defaults and encodes the event into its stored form.
func (e DomainEvent) seal() (PayloadEnvelope, json.RawMessage, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return PayloadEnvelope{}, nil, fmt.Errorf("encode %s data: %w", e.EventType, err)
	}
	env := PayloadEnvelope{
		Version:    max(e.Version, 1),
		EventID:    uuid.NewString(),
		OccurredAt: e.OccurredAt,
		Actor:      e.Actor,
		Data:       data,
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now().UTC()
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return PayloadEnvelope{}, nil, fmt.Errorf("encode envelope: %w", err)
	}
	return env, raw, nil
}

// Open decodes a stored envelope and unmarshals its data into dst.
func Open(raw json.RawMessage, dst any) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return env, ErrEmptyPayload
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return env, fmt.Errorf("decode data: %w", err)
	}
	return env, nil
}
