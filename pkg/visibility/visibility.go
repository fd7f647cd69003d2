package visibility

import (
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Reason explains why a catalog item cannot be sold.
type Reason string

const (
	ReasonMissing          Reason = "missing"
	ReasonHidden           Reason = "hidden"
	ReasonMerchantMismatch Reason = "merchant_mismatch"
	ReasonUnpriced         Reason = "unpriced"
)

// ItemVisibilityInput drives the shared sellability checks for customer-facing reads.
type ItemVisibilityInput struct {
	Item       *models.StorefrontItem
	MerchantID string
}

// CheckItemSellable returns the first rule the item violates, or "" when it can be sold.
func CheckItemSellable(input ItemVisibilityInput) Reason {
	if input.Item == nil {
		return ReasonMissing
	}
	if normalize(input.Item.MerchantID) != normalize(input.MerchantID) {
		return ReasonMerchantMismatch
	}
	if !input.Item.Visible {
		return ReasonHidden
	}
	if input.Item.Price.IsNegative() || strings.TrimSpace(input.Item.Currency) == "" {
		return ReasonUnpriced
	}
	return ""
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
