package stripewebhook

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// DefaultEventTTL covers the processor's redelivery window.
const DefaultEventTTL = 72 * time.Hour

var errNoEventID = errors.New("webhook event id is empty")

// EventGuard remembers processor event ids so a redelivery is acknowledged
// without being applied a second time.
type EventGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

// NewEventGuard keys claims under scope. A zero ttl means DefaultEventTTL.
func NewEventGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*EventGuard, error) {
	scope = strings.TrimSpace(scope)
	switch {
	case store == nil:
		return nil, errors.New("event guard: store is nil")
	case ttl < 0:
		return nil, fmt.Errorf("event guard: negative ttl %s", ttl)
	case scope == "":
		return nil, errors.New("event guard: scope is empty")
	}
	return &EventGuard{store: store, ttl: cmp.Or(ttl, DefaultEventTTL), scope: scope}, nil
}

func (g *EventGuard) key(eventID string) (string, error) {
	if eventID = strings.TrimSpace(eventID); eventID == "" {
		return "", errNoEventID
	}
	return g.store.IdempotencyKey(g.scope, eventID), nil
}

// Claim reports true only for the first delivery of eventID inside the ttl.
func (g *EventGuard) Claim(ctx context.Context, eventID string) (bool, error) {
	key, err := g.key(eventID)
	if err != nil {
		return false, err
	}
	first, err := g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	return first, nil
}

// Release drops the claim so the next redelivery is processed again.
func (g *EventGuard) Release(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}
