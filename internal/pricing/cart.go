// Package pricing turns a submitted cart into per-currency and per-merchant totals.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CartLine is one prospective purchase as held by the client.
// UnitPrice and Currency are attached by catalog resolution before pricing.
type CartLine struct {
	MerchantID string
	MediaID    string
	Title      string
	ImageURL   *string
	Permalink  *string
	Caption    *string
	UnitPrice  *decimal.Decimal
	Currency   string
	Quantity   int
}

// LineKey identifies a cart line; lines sharing a key are the same product.
type LineKey struct {
	MerchantID string
	MediaID    string
}

// Key returns the identity key of the line.
func (l CartLine) Key() LineKey {
	return LineKey{
		MerchantID: strings.TrimSpace(l.MerchantID),
		MediaID:    strings.TrimSpace(l.MediaID),
	}
}

// MergeLines collapses lines with the same key by summing quantity.
// The first occurrence keeps its snapshot fields; output order follows first appearance.
func MergeLines(lines []CartLine) []CartLine {
	merged := make([]CartLine, 0, len(lines))
	index := make(map[LineKey]int, len(lines))
	for _, line := range lines {
		key := line.Key()
		if pos, ok := index[key]; ok {
			merged[pos].Quantity += line.Quantity
			continue
		}
		line.MerchantID = key.MerchantID
		line.MediaID = key.MediaID
		index[key] = len(merged)
		merged = append(merged, line)
	}
	return merged
}

// LineTotal returns unit price times quantity, zero when no price is attached.
func (l CartLine) LineTotal() decimal.Decimal {
	if l.UnitPrice == nil {
		return decimal.Zero
	}
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
