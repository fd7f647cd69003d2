package checkout

import (
	"fmt"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// ShippingCountryDetail exposes the data returned to callers when a destination is refused.
type ShippingCountryDetail struct {
	Country string   `json:"country"`
	Allowed []string `json:"allowed"`
}

// ValidateShippingCountry ensures the destination is in the configured allow-list.
// Comparison is case-insensitive on ISO 3166-1 alpha-2 codes.
func ValidateShippingCountry(country string, allowed []string) error {
	normalized := strings.ToUpper(strings.TrimSpace(country))
	if normalized == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping country is required").WithDetails(map[string]any{
			"shipping_address.country": "required",
		})
	}
	for _, candidate := range allowed {
		if strings.EqualFold(strings.TrimSpace(candidate), normalized) {
			return nil
		}
	}
	return pkgerrors.Newf(pkgerrors.CodeValidation, pkgerrors.KindShippingCountryNotAllowed,
		"shipping to %s is not available", normalized).WithDetails(ShippingCountryDetail{
		Country: normalized,
		Allowed: allowed,
	})
}

// QuantityViolation describes a cart line whose quantity is outside the accepted range.
type QuantityViolation struct {
	MerchantID   string `json:"merchant_id"`
	MediaID      string `json:"media_id"`
	RequestedQty int    `json:"requested_qty"`
	MaxQty       int    `json:"max_qty"`
}

// QuantityInput describes the data required to verify a line's quantity.
type QuantityInput struct {
	MerchantID string
	MediaID    string
	Quantity   int
}

// ValidateQuantities ensures every merged line stays within [1, maxQty]. A non-positive maxQty disables the upper bound.
func ValidateQuantities(items []QuantityInput, maxQty int) error {
	var violations []QuantityViolation
	for _, item := range items {
		if item.Quantity >= 1 && (maxQty <= 0 || item.Quantity <= maxQty) {
			continue
		}
		violations = append(violations, QuantityViolation{
			MerchantID:   item.MerchantID,
			MediaID:      item.MediaID,
			RequestedQty: item.Quantity,
			MaxQty:       maxQty,
		})
	}
	if len(violations) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity out of range for %d item(s)", len(violations))).WithDetails(map[string]any{
		"violations": violations,
	})
}
