// Package stripewebhook applies verified payment processor events to orders and
// merchant payment accounts.
package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// Outcome summarizes what an event did.
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeNoop     Outcome = "noop"
	OutcomeRejected Outcome = "rejected"
	OutcomeIgnored  Outcome = "ignored"
)

type ordersService interface {
	ApplyStatus(ctx context.Context, code string, patch orders.StatusPatch, actor *outbox.ActorRef) (*orders.TransitionResult, error)
}

type orderLookup interface {
	FindByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error)
}

type accountRefresher interface {
	RefreshFromProvider(ctx context.Context, acct *stripe.Account) (*models.MerchantPaymentAccount, error)
}

type payoutDispatcher interface {
	Dispatch(ctx context.Context, order *models.Order) error
}

// ServiceParams wires the reconciler.
type ServiceParams struct {
	Orders   ordersService
	Lookup   orderLookup
	Accounts accountRefresher
	Payouts  payoutDispatcher
	Logger   *logger.Logger
}

// Service is the settlement reconciler.
type Service struct {
	orders   ordersService
	lookup   orderLookup
	accounts accountRefresher
	payouts  payoutDispatcher
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if params.Lookup == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order lookup required")
	}
	if params.Accounts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "account refresher required")
	}
	if params.Payouts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payout dispatcher required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		orders:   params.Orders,
		lookup:   params.Lookup,
		accounts: params.Accounts,
		payouts:  params.Payouts,
		logg:     params.Logger,
	}, nil
}

// settlement is the order transition an event asks for.
type settlement struct {
	code      string
	intentID  string
	chargeID  string
	sessionID string
	status    enums.PaymentStatus
}

// HandleEvent maps one verified event onto the order state machine. Unknown orders,
// backward transitions and unhandled event types are acknowledged without error;
// only datastore failures are returned so the processor redelivers.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (Outcome, error) {
	if event == nil || event.Data == nil {
		return OutcomeIgnored, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithEvent(ctx, event.ID, string(event.Type))

	var (
		target *settlement
		err    error
	)
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		target, err = s.fromCheckoutSession(event, enums.PaymentStatusPaid, true)
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		target, err = s.fromCheckoutSession(event, enums.PaymentStatusPaid, false)
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed, stripe.EventTypeCheckoutSessionExpired:
		target, err = s.fromCheckoutSession(event, enums.PaymentStatusFailed, false)
	case stripe.EventTypePaymentIntentSucceeded:
		target, err = s.fromPaymentIntent(ctx, event, enums.PaymentStatusPaid)
	case stripe.EventTypePaymentIntentPaymentFailed:
		target, err = s.fromPaymentIntent(ctx, event, enums.PaymentStatusFailed)
	case stripe.EventTypeChargeRefunded:
		target, err = s.fromRefundedCharge(ctx, event)
	case stripe.EventTypeChargeDisputeCreated:
		target, err = s.fromDispute(ctx, event)
	case stripe.EventTypeAccountUpdated:
		return s.refreshAccount(ctx, event)
	default:
		s.logg.Debug(ctx, "webhook.event_ignored")
		return OutcomeIgnored, nil
	}
	if err != nil {
		return OutcomeIgnored, err
	}
	if target == nil {
		s.logg.Info(ctx, "webhook.event_acknowledged")
		return OutcomeIgnored, nil
	}
	if target.code == "" {
		s.logg.Warn(ctx, "webhook.order_reference_missing")
		return OutcomeIgnored, nil
	}
	return s.settle(ctx, event, target)
}

func (s *Service) settle(ctx context.Context, event *stripe.Event, target *settlement) (Outcome, error) {
	patch := orders.StatusPatch{
		Status: target.status,
		At:     time.Unix(event.Created, 0).UTC(),
		Source: string(event.Type),
	}
	if target.intentID != "" {
		patch.PaymentIntentID = &target.intentID
	}
	if target.chargeID != "" {
		patch.ChargeID = &target.chargeID
	}
	if target.sessionID != "" {
		patch.SessionID = &target.sessionID
	}
	if event.Created == 0 {
		patch.At = time.Now().UTC()
	}

	ctx = s.logg.WithOrderCode(ctx, target.code)
	result, err := s.orders.ApplyStatus(ctx, target.code, patch, &outbox.ActorRef{Kind: outbox.ActorProcessor, ID: event.ID})
	if err != nil {
		if pkgerrors.IsKind(err, pkgerrors.KindOrderNotFound) {
			s.logg.Warn(ctx, "webhook.order_not_found")
			return OutcomeIgnored, nil
		}
		return OutcomeIgnored, err
	}

	switch result.Outcome {
	case orders.TransitionRejected:
		return OutcomeRejected, nil
	case orders.TransitionSuperseded:
		return OutcomeIgnored, nil
	}

	// Transfers wait for the charge id, which may arrive on a later event than the one
	// that marked the order PAID.
	if payments.NeedsPayouts(result.Order) {
		// Payout failures leave payouts_dispatched_at unset for the payout_dispatch job.
		if err := s.payouts.Dispatch(ctx, result.Order); err != nil {
			s.logg.Error(ctx, "webhook.payout_dispatch_failed", err)
		}
	}
	if result.Outcome == orders.TransitionAlreadyApplied {
		return OutcomeNoop, nil
	}
	return OutcomeApplied, nil
}

func (s *Service) fromCheckoutSession(event *stripe.Event, status enums.PaymentStatus, requirePaid bool) (*settlement, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	// Async methods complete the session before the funds settle.
	if requirePaid && session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil, nil
	}
	code := session.Metadata[payments.MetadataOrderCode]
	if code == "" {
		code = session.ClientReferenceID
	}
	target := &settlement{code: code, status: status}
	if session.PaymentIntent != nil {
		target.intentID = session.PaymentIntent.ID
	}
	// A session replaced by a retry must not fail the order.
	if status == enums.PaymentStatusFailed {
		target.sessionID = session.ID
	}
	return target, nil
}

func (s *Service) fromPaymentIntent(ctx context.Context, event *stripe.Event, status enums.PaymentStatus) (*settlement, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
	}
	code, err := s.resolveCode(ctx, intent.Metadata, intent.ID)
	if err != nil {
		return nil, err
	}
	target := &settlement{code: code, intentID: intent.ID, status: status}
	if status == enums.PaymentStatusPaid && intent.LatestCharge != nil {
		target.chargeID = intent.LatestCharge.ID
	}
	return target, nil
}

func (s *Service) fromRefundedCharge(ctx context.Context, event *stripe.Event) (*settlement, error) {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge")
	}
	if !charge.Refunded {
		return nil, nil
	}
	intentID := ""
	if charge.PaymentIntent != nil {
		intentID = charge.PaymentIntent.ID
	}
	code, err := s.resolveCode(ctx, charge.Metadata, intentID)
	if err != nil {
		return nil, err
	}
	return &settlement{code: code, intentID: intentID, chargeID: charge.ID, status: enums.PaymentStatusRefunded}, nil
}

func (s *Service) fromDispute(ctx context.Context, event *stripe.Event) (*settlement, error) {
	var dispute stripe.Dispute
	if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode dispute")
	}
	target := &settlement{status: enums.PaymentStatusDisputed}
	if dispute.PaymentIntent != nil {
		target.intentID = dispute.PaymentIntent.ID
	}
	if dispute.Charge != nil {
		target.chargeID = dispute.Charge.ID
	}
	code, err := s.resolveCode(ctx, dispute.Metadata, target.intentID)
	if err != nil {
		return nil, err
	}
	target.code = code
	return target, nil
}

// resolveCode prefers the order_code metadata and falls back to the stored payment intent id.
func (s *Service) resolveCode(ctx context.Context, metadata map[string]string, intentID string) (string, error) {
	if code := strings.TrimSpace(metadata[payments.MetadataOrderCode]); code != "" {
		return code, nil
	}
	if intentID == "" {
		return "", nil
	}
	order, err := s.lookup.FindByPaymentIntent(ctx, intentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find order by payment intent")
	}
	return order.OrderCode, nil
}

func (s *Service) refreshAccount(ctx context.Context, event *stripe.Event) (Outcome, error) {
	var acct stripe.Account
	if err := json.Unmarshal(event.Data.Raw, &acct); err != nil {
		return OutcomeIgnored, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode account")
	}
	account, err := s.accounts.RefreshFromProvider(ctx, &acct)
	if err != nil {
		return OutcomeIgnored, err
	}
	if account == nil {
		return OutcomeIgnored, nil
	}
	return OutcomeApplied, nil
}
