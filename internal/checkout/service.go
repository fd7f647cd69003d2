// Package checkout turns a submitted cart into a persisted order and, for online
// orders, a payment session. Online and offline checkout share validation and pricing.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	pkgcheckout "github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type accountDirectory interface {
	FindPaymentAccounts(ctx context.Context, merchantIDs []string) (map[string]models.MerchantPaymentAccount, error)
}

// Service executes checkout orchestration.
type Service interface {
	CheckoutOnline(ctx context.Context, req Request) (*OnlineResult, error)
	CheckoutOffline(ctx context.Context, req Request) (*OfflineResult, error)
	RetrySession(ctx context.Context, code string) (*OnlineResult, error)
}

// Options carries the configuration-driven checkout rules.
type Options struct {
	AllowedCountries []string
	// MaxQuantity caps a merged line; zero disables the cap.
	MaxQuantity int
}

// Deps groups the collaborators of the checkout service.
type Deps struct {
	Tx       txRunner
	Orders   orders.Repository
	Catalog  catalog.Resolver
	Accounts accountDirectory
	Sessions payments.SessionService
	Outbox   outboxPublisher
	Metrics  *metrics.CheckoutMetrics
	Logger   *logger.Logger
}

type service struct {
	tx       txRunner
	orders   orders.Repository
	catalog  catalog.Resolver
	accounts accountDirectory
	sessions payments.SessionService
	outbox   outboxPublisher
	metrics  *metrics.CheckoutMetrics
	logg     *logger.Logger
	opts     Options
}

// NewService builds the checkout service.
func NewService(deps Deps, opts Options) (Service, error) {
	switch {
	case deps.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case deps.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case deps.Catalog == nil:
		return nil, fmt.Errorf("catalog resolver required")
	case deps.Accounts == nil:
		return nil, fmt.Errorf("account directory required")
	case deps.Sessions == nil:
		return nil, fmt.Errorf("session service required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	if len(opts.AllowedCountries) == 0 {
		return nil, fmt.Errorf("allowed shipping countries required")
	}
	return &service{
		tx:       deps.Tx,
		orders:   deps.Orders,
		catalog:  deps.Catalog,
		accounts: deps.Accounts,
		sessions: deps.Sessions,
		outbox:   deps.Outbox,
		metrics:  deps.Metrics,
		logg:     deps.Logger,
		opts:     opts,
	}, nil
}

// CheckoutOnline persists a PENDING order and opens its payment session. If the
// processor call fails the order stays PENDING and the error carries its code so
// the client can use the retry route.
func (s *service) CheckoutOnline(ctx context.Context, req Request) (*OnlineResult, error) {
	method := enums.PaymentMethodOnlineSplit
	order, items, err := s.prepare(ctx, req, method)
	if err != nil {
		s.observe(method, err)
		return nil, err
	}

	destination, err := s.resolveDestination(ctx, order)
	if err != nil {
		s.observe(method, err)
		return nil, err
	}

	if err := s.persist(ctx, order, items); err != nil {
		s.observe(method, err)
		return nil, err
	}
	ctx = s.logg.WithOrderCode(ctx, order.OrderCode)

	result, err := s.openSession(ctx, order, items, destination)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Details() == nil {
			typed.WithDetails(map[string]any{"order_code": order.OrderCode})
		}
		s.observe(method, err)
		return nil, err
	}
	s.observe(method, nil)
	return result, nil
}

// CheckoutOffline persists an UNPAID order the merchants settle manually.
func (s *service) CheckoutOffline(ctx context.Context, req Request) (*OfflineResult, error) {
	method := enums.PaymentMethodOffline
	order, items, err := s.prepare(ctx, req, method)
	if err != nil {
		s.observe(method, err)
		return nil, err
	}
	if err := s.persist(ctx, order, items); err != nil {
		s.observe(method, err)
		return nil, err
	}
	s.observe(method, nil)
	return &OfflineResult{OrderCode: order.OrderCode}, nil
}

// RetrySession opens a new payment session for an online order that is still PENDING. The
// previous session is expired first so only one session can ever take payment.
func (s *service) RetrySession(ctx context.Context, code string) (*OnlineResult, error) {
	order, err := s.orders.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, pkgerrors.KindOrderNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order.PaymentMethod != enums.PaymentMethodOnlineSplit || order.PaymentStatus != enums.PaymentStatusPending {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, pkgerrors.KindInvalidTransition,
			"order %s is not awaiting online payment", order.OrderCode).
			WithDetails(map[string]any{"payment_status": order.PaymentStatus})
	}
	ctx = s.logg.WithOrderCode(ctx, order.OrderCode)

	destination, err := s.resolveDestination(ctx, order)
	if err != nil {
		return nil, err
	}
	if order.PaymentSessionID != nil && *order.PaymentSessionID != "" {
		if err := s.closeSession(ctx, order.OrderCode, *order.PaymentSessionID); err != nil {
			return nil, err
		}
	}
	return s.openSession(ctx, order, order.Items, destination)
}

// closeSession detaches the order from its current session before expiring it, so the
// session's expiry event no longer matches the order. The session is re-attached when it
// cannot be expired.
func (s *service) closeSession(ctx context.Context, code, sessionID string) error {
	detached, err := s.orders.ReplacePaymentSession(ctx, code, &sessionID, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "detach payment session")
	}
	if !detached {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, pkgerrors.KindInvalidTransition,
			"order %s changed while its payment session was being replaced", code)
	}
	expireErr := s.sessions.ExpireSession(ctx, sessionID)
	if expireErr == nil {
		return nil
	}
	if _, err := s.orders.ReplacePaymentSession(ctx, code, nil, &sessionID); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "payment_session_id", sessionID), "checkout.session_reattach_failed", err)
	}
	return expireErr
}

func (s *service) prepare(ctx context.Context, req Request, method enums.PaymentMethod) (*models.Order, []models.OrderItem, error) {
	customer, err := req.Customer.normalized()
	if err != nil {
		return nil, nil, err
	}
	address := req.ShippingAddress.Normalized()
	if err := validateAddress(address); err != nil {
		return nil, nil, err
	}
	if err := pkgcheckout.ValidateShippingCountry(address.Country, s.opts.AllowedCountries); err != nil {
		return nil, nil, err
	}

	lines := pricing.MergeLines(req.Items)
	if len(lines) == 0 {
		return nil, nil, pkgerrors.Newf(pkgerrors.CodeValidation, pkgerrors.KindEmptyCart, "cart has no items")
	}
	quantities := make([]pkgcheckout.QuantityInput, 0, len(lines))
	for _, line := range lines {
		quantities = append(quantities, pkgcheckout.QuantityInput{MerchantID: line.MerchantID, MediaID: line.MediaID, Quantity: line.Quantity})
	}
	if err := pkgcheckout.ValidateQuantities(quantities, s.opts.MaxQuantity); err != nil {
		return nil, nil, err
	}

	priced, err := s.catalog.Resolve(ctx, lines)
	if err != nil {
		return nil, nil, err
	}
	totals, err := pricing.ComputeTotals(priced)
	if err != nil {
		return nil, nil, err
	}

	order := &models.Order{
		CustomerName:    customer.Name,
		CustomerEmail:   customer.Email,
		CustomerPhone:   customer.Phone,
		ShippingAddress: address,
		Note:            trimmedNote(req.Note),
		PaymentMethod:   method,
		PaymentStatus:   method.InitialStatus(),
		Currency:        totals.Currency,
		CurrencyTotals:  totals.CurrencyTotals,
		MerchantTotals:  totals.MerchantTotals,
	}
	items := make([]models.OrderItem, 0, len(priced))
	for _, line := range priced {
		items = append(items, models.OrderItem{
			MerchantID: line.MerchantID,
			MediaID:    line.MediaID,
			Title:      line.Title,
			ImageURL:   line.ImageURL,
			Permalink:  line.Permalink,
			Caption:    line.Caption,
			UnitPrice:  *line.UnitPrice,
			Currency:   totals.Currency,
			Quantity:   line.Quantity,
		})
	}
	return order, items, nil
}

func (s *service) resolveDestination(ctx context.Context, order *models.Order) (*string, error) {
	merchantIDs := order.MerchantIDs()
	accounts, err := s.accounts.FindPaymentAccounts(ctx, merchantIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load merchant payment accounts")
	}
	return payments.ResolveDestination(merchantIDs, accounts)
}

// persist writes the order, its items and order_created in one transaction.
func (s *service) persist(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		if err := repo.CreateOrder(ctx, order); err != nil {
			return err
		}
		if err := repo.AttachItems(ctx, order.ID, items); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID.String(),
			Actor:         &outbox.ActorRef{Kind: outbox.ActorCustomer},
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				OrderCode:     order.OrderCode,
				PaymentMethod: order.PaymentMethod,
				PaymentStatus: order.PaymentStatus,
				Currency:      order.Currency,
				Total:         order.CurrencyTotals[order.Currency].String(),
				MerchantIDs:   order.MerchantIDs(),
				CustomerEmail: order.CustomerEmail,
			},
		})
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist order")
	}
	order.Items = items

	logCtx := s.logg.WithOrderCode(ctx, order.OrderCode)
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"payment_method": order.PaymentMethod,
		"currency":       order.Currency,
		"merchant_count": len(order.MerchantTotals),
		"item_count":     len(items),
	}), "checkout.order_created")
	return nil
}

func (s *service) openSession(ctx context.Context, order *models.Order, items []models.OrderItem, destination *string) (*OnlineResult, error) {
	session, err := s.sessions.CreateSession(ctx, payments.SessionRequest{
		Order:              order,
		Items:              items,
		DestinationAccount: destination,
	})
	s.metrics.ObserveSession(err == nil)
	if err != nil {
		return nil, err
	}

	// Events still reconcile through the order_code metadata if this write is lost.
	if err := s.orders.SetPaymentSession(ctx, order.OrderCode, session.ID); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "payment_session_id", session.ID), "checkout.session_persist_failed", err)
	}

	return &OnlineResult{
		OrderCode:        order.OrderCode,
		PaymentSessionID: session.ID,
		RedirectURL:      session.RedirectURL,
	}, nil
}

func (s *service) observe(method enums.PaymentMethod, err error) {
	outcome := "created"
	if err != nil {
		outcome = "error"
		if typed := pkgerrors.As(err); typed != nil {
			outcome = strings.ToLower(string(typed.Code()))
			if typed.Kind() != "" {
				outcome = string(typed.Kind())
			}
		}
	}
	s.metrics.ObserveCheckout(string(method), outcome)
}

func validateAddress(address types.ShippingAddress) error {
	missing := map[string]any{}
	if address.Country == "" {
		missing["shipping_address.country"] = "is required"
	}
	if address.City == "" {
		missing["shipping_address.city"] = "is required"
	}
	if address.Address == "" {
		missing["shipping_address.address"] = "is required"
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address is incomplete").WithDetails(missing)
	}
	return nil
}

func trimmedNote(note *string) *string {
	if note == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*note)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
