// Package stripe wraps the processor SDK: checkout sessions, transfers to merchant
// connected accounts, refunds and webhook signature checks.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"golang.org/x/sync/semaphore"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const defaultCallSlots = 8

// keyPrefixes lists the secret and restricted key prefixes each mode accepts, so a
// live key can never be loaded into a test deployment or the other way round.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

// Client is the shared processor client. Every outbound call holds one slot of gate.
type Client struct {
	api           *stripe.Client
	mode          string
	signingSecret string
	gate          *semaphore.Weighted
}

// NewClient validates cfg and builds the API client every call goes through. opts are
// passed to stripe.NewClient, which lets tests point the backend at a local server.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger, opts ...stripe.ClientOption) (*Client, error) {
	mode := cfg.Environment()
	prefixes, known := keyPrefixes[mode]
	if !known {
		return nil, fmt.Errorf("stripe environment %q is not test or live", mode)
	}

	key := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)
	switch {
	case key == "":
		return nil, errors.New("stripe api key is required")
	case secret == "":
		return nil, errors.New("stripe webhook secret is required")
	case !hasAnyPrefix(key, prefixes):
		return nil, fmt.Errorf("stripe %s mode needs a key starting with %s", mode, strings.Join(prefixes, " or "))
	}

	slots := cfg.MaxConcurrentCalls
	if slots <= 0 {
		slots = defaultCallSlots
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"stripe_mode":  mode,
			"stripe_slots": slots,
		}), "stripe.client_ready")
	}
	return &Client{
		api:           stripe.NewClient(key, opts...),
		mode:          mode,
		signingSecret: secret,
		gate:          semaphore.NewWeighted(slots),
	}, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func (c *Client) API() *stripe.Client {
	return c.api
}

// Environment is "test" or "live".
func (c *Client) Environment() string {
	return c.mode
}

func (c *Client) SigningSecret() string {
	return c.signingSecret
}

// acquire waits for a call slot; the returned release must be called exactly once.
func (c *Client) acquire(ctx context.Context) (func(), error) {
	if c.gate == nil {
		return func() {}, nil
	}
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("stripe call slot: %w", err)
	}
	return func() { c.gate.Release(1) }, nil
}
