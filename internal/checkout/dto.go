package checkout

import (
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Customer is the customer contact captured at checkout.
type Customer struct {
	Name  string
	Email string
	Phone string
}

func (c Customer) normalized() (Customer, error) {
	out := Customer{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.ToLower(strings.TrimSpace(c.Email)),
		Phone: strings.TrimSpace(c.Phone),
	}
	missing := map[string]any{}
	if out.Name == "" {
		missing["customer.name"] = "is required"
	}
	if out.Email == "" {
		missing["customer.email"] = "is required"
	}
	if out.Phone == "" {
		missing["customer.phone"] = "is required"
	}
	if len(missing) > 0 {
		return Customer{}, pkgerrors.New(pkgerrors.CodeValidation, "customer details are incomplete").WithDetails(missing)
	}
	return out, nil
}

// Request is the checkout input shared by the online and offline entry points.
// Item prices submitted by clients are ignored; the catalog supplies them.
type Request struct {
	Customer        Customer
	ShippingAddress types.ShippingAddress
	Note            *string
	Items           []pricing.CartLine
}

// OnlineResult is returned after an online checkout or a session retry.
type OnlineResult struct {
	OrderCode        string `json:"order_code"`
	PaymentSessionID string `json:"payment_session_id"`
	RedirectURL      string `json:"redirect_url"`
}

// OfflineResult is returned after an offline checkout.
type OfflineResult struct {
	OrderCode string `json:"order_code"`
}
