package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// TransferAPI is the subset of the processor client used for payouts.
type TransferAPI interface {
	CreateTransfer(ctx context.Context, params *stripe.TransferCreateParams) (*stripe.Transfer, error)
}

type accountDirectory interface {
	FindPaymentAccounts(ctx context.Context, merchantIDs []string) (map[string]models.MerchantPaymentAccount, error)
}

type payoutRecorder interface {
	RecordPayouts(ctx context.Context, order *models.Order, transfers []payloads.PayoutTransfer, at time.Time) error
}

// PayoutDispatcher sends each merchant its share of a paid multi-merchant order.
type PayoutDispatcher struct {
	api      TransferAPI
	accounts accountDirectory
	orders   payoutRecorder
	logg     *logger.Logger
	now      func() time.Time
}

// NewPayoutDispatcher wires the transfer flow.
func NewPayoutDispatcher(api TransferAPI, accounts accountDirectory, orders payoutRecorder, logg *logger.Logger) (*PayoutDispatcher, error) {
	if api == nil {
		return nil, fmt.Errorf("transfer api required")
	}
	if accounts == nil {
		return nil, fmt.Errorf("account directory required")
	}
	if orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &PayoutDispatcher{
		api:      api,
		accounts: accounts,
		orders:   orders,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// NeedsPayouts reports whether the order is paid, split across merchants and not yet settled.
// Transfers are funded from the order's charge, so the charge id must be known.
func NeedsPayouts(order *models.Order) bool {
	return order != nil &&
		order.PaymentMethod == enums.PaymentMethodOnlineSplit &&
		order.PaymentStatus == enums.PaymentStatusPaid &&
		order.PayoutsDispatchedAt == nil &&
		order.ChargeID != nil && *order.ChargeID != "" &&
		order.IsMultiMerchant()
}

// TransferIdempotencyKey keys one merchant transfer so re-dispatch never pays twice.
func TransferIdempotencyKey(code, merchantID string) string {
	return fmt.Sprintf("transfer:%s:%s", code, merchantID)
}

// Dispatch creates one transfer per merchant and stamps the order once all succeed.
// Failed transfers are aggregated; the order stays unstamped so a later run retries.
func (d *PayoutDispatcher) Dispatch(ctx context.Context, order *models.Order) error {
	if !NeedsPayouts(order) {
		return nil
	}
	ctx = d.logg.WithOrderCode(ctx, order.OrderCode)

	merchantIDs := order.MerchantIDs()
	accounts, err := d.accounts.FindPaymentAccounts(ctx, merchantIDs)
	if err != nil {
		return fmt.Errorf("load payment accounts: %w", err)
	}

	var errs error
	transfers := make([]payloads.PayoutTransfer, 0, len(merchantIDs))
	for _, merchantID := range merchantIDs {
		sent, err := d.transfer(ctx, order, merchantID, accounts[merchantID])
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("merchant %s: %w", merchantID, err))
			continue
		}
		if sent != nil {
			transfers = append(transfers, *sent)
		}
	}
	if errs != nil {
		d.logg.Error(d.logg.WithField(ctx, "failed_transfers", len(multierr.Errors(errs))), "payments.payouts_incomplete", errs)
		return errs
	}

	if err := d.orders.RecordPayouts(ctx, order, transfers, d.now()); err != nil {
		return fmt.Errorf("record payouts: %w", err)
	}
	d.logg.Info(d.logg.WithField(ctx, "merchant_count", len(merchantIDs)), "payments.payouts_dispatched")
	return nil
}

func (d *PayoutDispatcher) transfer(ctx context.Context, order *models.Order, merchantID string, account models.MerchantPaymentAccount) (*payloads.PayoutTransfer, error) {
	if account.ProviderAccountID == nil || *account.ProviderAccountID == "" {
		return nil, fmt.Errorf("no connected account")
	}
	amount := order.MerchantTotals[merchantID][order.Currency]
	minor := money.ToMinorUnits(amount, order.Currency)
	if minor <= 0 {
		return nil, nil
	}

	params := &stripe.TransferCreateParams{
		Amount:            stripe.Int64(minor),
		Currency:          stripe.String(money.StripeCurrency(order.Currency)),
		Destination:       stripe.String(*account.ProviderAccountID),
		TransferGroup:     stripe.String(order.OrderCode),
		SourceTransaction: stripe.String(*order.ChargeID),
	}
	params.AddMetadata(MetadataOrderCode, order.OrderCode)
	params.AddMetadata("merchant_id", merchantID)
	params.SetIdempotencyKey(TransferIdempotencyKey(order.OrderCode, merchantID))

	tr, err := d.api.CreateTransfer(ctx, params)
	if err != nil {
		return nil, err
	}
	return &payloads.PayoutTransfer{
		MerchantID:  merchantID,
		AccountID:   *account.ProviderAccountID,
		TransferID:  tr.ID,
		AmountMinor: minor,
		Currency:    money.StripeCurrency(order.Currency),
	}, nil
}
