// Package catalog resolves cart lines against the curated storefront items.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/visibility"
)

// UnavailableItem is reported back to the client for every line that cannot be sold.
type UnavailableItem struct {
	MerchantID string            `json:"merchant_id"`
	MediaID    string            `json:"media_id"`
	Reason     visibility.Reason `json:"reason"`
}

// Resolver attaches authoritative price and snapshot fields to cart lines.
type Resolver interface {
	Resolve(ctx context.Context, lines []pricing.CartLine) ([]pricing.CartLine, error)
}

type service struct {
	repo Repository
}

// NewService builds the catalog resolver.
func NewService(repo Repository) (Resolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo}, nil
}

// Resolve overwrites price, currency and display fields from the catalog. Client-supplied
// values are never trusted. Any missing or hidden line fails the whole cart.
func (s *service) Resolve(ctx context.Context, lines []pricing.CartLine) ([]pricing.CartLine, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, pkgerrors.KindEmptyCart, "cart is empty")
	}

	keys := make([]pricing.LineKey, 0, len(lines))
	for _, line := range lines {
		keys = append(keys, line.Key())
	}
	rows, err := s.repo.FindItems(ctx, keys)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog items")
	}
	byKey := make(map[pricing.LineKey]*models.StorefrontItem, len(rows))
	for i := range rows {
		row := &rows[i]
		byKey[pricing.LineKey{MerchantID: row.MerchantID, MediaID: row.MediaID}] = row
	}

	var unavailable []UnavailableItem
	resolved := make([]pricing.CartLine, 0, len(lines))
	for _, line := range lines {
		key := line.Key()
		item := byKey[key]
		if reason := visibility.CheckItemSellable(visibility.ItemVisibilityInput{Item: item, MerchantID: key.MerchantID}); reason != "" {
			unavailable = append(unavailable, UnavailableItem{MerchantID: key.MerchantID, MediaID: key.MediaID, Reason: reason})
			continue
		}
		price := item.Price
		line.MerchantID = key.MerchantID
		line.MediaID = key.MediaID
		line.UnitPrice = &price
		line.Currency = money.NormalizeCurrency(item.Currency)
		line.Title = pickTitle(item.Title, line.Title)
		line.ImageURL = item.ImageURL
		line.Permalink = item.Permalink
		line.Caption = item.Caption
		resolved = append(resolved, line)
	}

	if len(unavailable) > 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, pkgerrors.KindItemUnavailable,
			"%d item(s) are no longer available", len(unavailable)).WithDetails(map[string]any{
			"items": unavailable,
		})
	}
	return resolved, nil
}

func pickTitle(catalog, submitted string) string {
	if title := strings.TrimSpace(catalog); title != "" {
		return title
	}
	return strings.TrimSpace(submitted)
}
