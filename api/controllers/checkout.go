package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const noteMaxLength = 1000

type checkoutCustomer struct {
	Name  string `json:"name" validate:"max=200"`
	Email string `json:"email" validate:"omitempty,email,max=254"`
	Phone string `json:"phone" validate:"max=40"`
}

type checkoutItem struct {
	MerchantID string  `json:"merchant_id" validate:"notblank"`
	MediaID    string  `json:"media_id" validate:"notblank"`
	Quantity   int     `json:"quantity" validate:"gte=1"`
	Title      string  `json:"title,omitempty" validate:"max=300"`
	ImageURL   *string `json:"image_url,omitempty" validate:"omitempty,url"`
	Permalink  *string `json:"permalink,omitempty" validate:"omitempty,url"`
	Caption    *string `json:"caption,omitempty"`

	// Client prices are accepted for compatibility and discarded.
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	Currency  string           `json:"currency,omitempty"`
}

type checkoutRequest struct {
	Customer        checkoutCustomer      `json:"customer"`
	ShippingAddress types.ShippingAddress `json:"shipping_address"`
	Note            *string               `json:"note,omitempty"`
	Items           []checkoutItem        `json:"items" validate:"dive"`
}

func (p checkoutRequest) toInput() checkoutsvc.Request {
	lines := make([]pricing.CartLine, 0, len(p.Items))
	for _, item := range p.Items {
		lines = append(lines, pricing.CartLine{
			MerchantID: strings.TrimSpace(item.MerchantID),
			MediaID:    strings.TrimSpace(item.MediaID),
			Title:      validators.Clip(item.Title, 300),
			ImageURL:   validators.ClipOptional(item.ImageURL, 2048),
			Permalink:  validators.ClipOptional(item.Permalink, 2048),
			Caption:    validators.ClipOptional(item.Caption, 2000),
			Quantity:   item.Quantity,
		})
	}
	return checkoutsvc.Request{
		Customer: checkoutsvc.Customer{
			Name:  p.Customer.Name,
			Email: p.Customer.Email,
			Phone: p.Customer.Phone,
		},
		ShippingAddress: p.ShippingAddress,
		Note:            validators.ClipOptional(p.Note, noteMaxLength),
		Items:           lines,
	}
}

// CheckoutOnline creates a PENDING split-payment order and returns the hosted payment redirect.
func CheckoutOnline(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CheckoutOnline(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, result)
	}
}

// CheckoutOffline creates an UNPAID order settled outside the processor.
func CheckoutOffline(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CheckoutOffline(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// RetryPaymentSession opens a fresh payment session for a PENDING online order.
func RetryPaymentSession(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		code := strings.TrimSpace(chi.URLParam(r, "orderCode"))
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order code is required"))
			return
		}

		result, err := svc.RetrySession(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, result)
	}
}
