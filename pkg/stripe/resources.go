package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v84"
)

// CreateCheckoutSession creates a hosted checkout session.
func (c *Client) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return c.api.V1CheckoutSessions.Create(ctx, params)
}

// ExpireCheckoutSession closes an open session so it can no longer be paid.
func (c *Client) ExpireCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return c.api.V1CheckoutSessions.Expire(ctx, id, &stripe.CheckoutSessionExpireParams{})
}

// CreateTransfer moves funds from the platform balance to a connected account.
func (c *Client) CreateTransfer(ctx context.Context, params *stripe.TransferCreateParams) (*stripe.Transfer, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return c.api.V1Transfers.Create(ctx, params)
}

// CreateAccount creates a connected account.
func (c *Client) CreateAccount(ctx context.Context, params *stripe.AccountCreateParams) (*stripe.Account, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return c.api.V1Accounts.Create(ctx, params)
}

// GetAccount retrieves a connected account's current capability flags.
func (c *Client) GetAccount(ctx context.Context, id string) (*stripe.Account, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return c.api.V1Accounts.GetByID(ctx, id, &stripe.AccountRetrieveParams{})
}

// CreateAccountLink creates a one-time onboarding link for a connected account.
func (c *Client) CreateAccountLink(ctx context.Context, params *stripe.AccountLinkCreateParams) (*stripe.AccountLink, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return c.api.V1AccountLinks.Create(ctx, params)
}
