// Package payments turns persisted orders into processor checkout sessions and
// settles multi-merchant orders with per-merchant transfers.
package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

// MetadataOrderCode is the metadata key the reconciler reads back from processor events.
const MetadataOrderCode = "order_code"

// SessionAPI is the subset of the processor client used to open hosted checkout sessions.
type SessionAPI interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
	ExpireCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
}

// SessionRequest carries the persisted order snapshot a session is built from.
type SessionRequest struct {
	Order              *models.Order
	Items              []models.OrderItem
	DestinationAccount *string
}

// Session is the processor-side checkout a customer is redirected to.
type Session struct {
	ID          string
	RedirectURL string
}

// SessionService opens payment sessions for PENDING online orders.
type SessionService interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	// ExpireSession closes a session so it can no longer take payment.
	ExpireSession(ctx context.Context, id string) error
}

type sessionService struct {
	api     SessionAPI
	baseURL string
	logg    *logger.Logger
}

// NewSessionService wires the session adapter. baseURL is the absolute storefront origin.
func NewSessionService(api SessionAPI, baseURL string, logg *logger.Logger) (SessionService, error) {
	if api == nil {
		return nil, fmt.Errorf("session api required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("site base url required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &sessionService{api: api, baseURL: baseURL, logg: logg}, nil
}

func (s *sessionService) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	params, err := s.buildParams(req)
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithOrderCode(ctx, req.Order.OrderCode)
	sess, err := s.api.CreateCheckoutSession(ctx, params)
	if err != nil {
		s.logg.Error(ctx, "payments.session_creation_failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment session could not be created").
			WithKind(pkgerrors.KindSessionCreationFailed)
	}
	if sess == nil || sess.ID == "" || sess.URL == "" {
		return nil, pkgerrors.Newf(pkgerrors.CodeDependency, pkgerrors.KindSessionCreationFailed, "payment processor returned an incomplete session")
	}

	s.logg.Info(s.logg.WithField(ctx, "payment_session_id", sess.ID), "payments.session_created")
	return &Session{ID: sess.ID, RedirectURL: sess.URL}, nil
}

func (s *sessionService) buildParams(req SessionRequest) (*stripe.CheckoutSessionCreateParams, error) {
	order := req.Order
	if order == nil || strings.TrimSpace(order.OrderCode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session request missing order")
	}
	if len(req.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session request missing items")
	}

	code := order.OrderCode
	lineItems := make([]*stripe.CheckoutSessionCreateLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		product := &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
			Name: stripe.String(item.Title),
		}
		if item.ImageURL != nil && *item.ImageURL != "" {
			product.Images = []*string{stripe.String(*item.ImageURL)}
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionCreateLineItemParams{
			PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
				Currency:    stripe.String(money.StripeCurrency(item.Currency)),
				UnitAmount:  stripe.Int64(money.ToMinorUnits(item.UnitPrice, item.Currency)),
				ProductData: product,
			},
			Quantity: stripe.Int64(int64(item.Quantity)),
		})
	}

	intentData := &stripe.CheckoutSessionCreatePaymentIntentDataParams{
		Metadata: map[string]string{MetadataOrderCode: code},
	}
	if req.DestinationAccount != nil && *req.DestinationAccount != "" {
		intentData.TransferData = &stripe.CheckoutSessionCreatePaymentIntentDataTransferDataParams{
			Destination: stripe.String(*req.DestinationAccount),
		}
	} else if order.IsMultiMerchant() {
		intentData.TransferGroup = stripe.String(code)
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:         lineItems,
		SuccessURL:        stripe.String(s.successURL(code)),
		CancelURL:         stripe.String(s.cancelURL(code)),
		ClientReferenceID: stripe.String(code),
		CustomerEmail:     stripe.String(order.CustomerEmail),
		PaymentIntentData: intentData,
	}
	params.AddMetadata(MetadataOrderCode, code)
	return params, nil
}

func (s *sessionService) successURL(code string) string {
	// {CHECKOUT_SESSION_ID} is substituted by the processor and must stay unescaped.
	return fmt.Sprintf("%s/orders/%s?status=success&session_id={CHECKOUT_SESSION_ID}", s.baseURL, url.PathEscape(code))
}

func (s *sessionService) cancelURL(code string) string {
	return fmt.Sprintf("%s/orders/%s?status=cancelled", s.baseURL, url.PathEscape(code))
}

func (s *sessionService) ExpireSession(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	ctx = s.logg.WithField(ctx, "payment_session_id", id)
	if _, err := s.api.ExpireCheckoutSession(ctx, id); err != nil {
		var stripeErr *stripe.Error
		// Only open sessions can be expired; a finished one settles through its own events.
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusBadRequest {
			s.logg.Warn(ctx, "payments.session_not_open")
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, pkgerrors.KindInvalidTransition,
				"previous payment session is no longer open")
		}
		s.logg.Error(ctx, "payments.session_expire_failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "previous payment session could not be closed").
			WithKind(pkgerrors.KindSessionExpireFailed)
	}
	s.logg.Info(ctx, "payments.session_expired")
	return nil
}
