package pricing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

// Totals is the priced view of a cart.
type Totals struct {
	Currency       string
	CurrencyTotals models.CurrencyTotals
	MerchantTotals models.MerchantTotals
}

// Grand returns the single-currency order total.
func (t Totals) Grand() decimal.Decimal {
	return t.CurrencyTotals[t.Currency]
}

// ComputeTotals sums line totals per currency and per (merchant, currency) and
// enforces the one-settlement-currency rule. Lines must already carry prices.
func ComputeTotals(lines []CartLine) (Totals, error) {
	if len(lines) == 0 {
		return Totals{}, pkgerrors.Newf(pkgerrors.CodeValidation, pkgerrors.KindEmptyCart, "cart has no items")
	}

	currencyTotals := models.CurrencyTotals{}
	merchantTotals := models.MerchantTotals{}
	for i, line := range lines {
		if err := validateLine(i, line); err != nil {
			return Totals{}, err
		}
		currency := money.NormalizeCurrency(line.Currency)
		lineTotal := line.LineTotal()

		currencyTotals[currency] = currencyTotals[currency].Add(lineTotal)

		perMerchant, ok := merchantTotals[line.MerchantID]
		if !ok {
			perMerchant = models.CurrencyTotals{}
			merchantTotals[line.MerchantID] = perMerchant
		}
		perMerchant[currency] = perMerchant[currency].Add(lineTotal)
	}

	if len(currencyTotals) != 1 {
		return Totals{}, pkgerrors.Newf(
			pkgerrors.CodeValidation,
			pkgerrors.KindMultiCurrencyNotSupported,
			"cart mixes %d currencies; check out each currency separately",
			len(currencyTotals),
		).WithDetails(map[string]any{"currencies": sortedCurrencies(currencyTotals)})
	}

	var currency string
	for code := range currencyTotals {
		currency = code
	}
	if !currencyTotals[currency].IsPositive() {
		return Totals{}, pkgerrors.Newf(pkgerrors.CodeValidation, pkgerrors.KindZeroOrNegativeTotal, "order total must be greater than zero")
	}

	return Totals{
		Currency:       currency,
		CurrencyTotals: currencyTotals,
		MerchantTotals: merchantTotals,
	}, nil
}

// TotalsFromItems recomputes totals from a persisted item snapshot.
func TotalsFromItems(items []models.OrderItem) (Totals, error) {
	lines := make([]CartLine, 0, len(items))
	for _, item := range items {
		price := item.UnitPrice
		lines = append(lines, CartLine{
			MerchantID: item.MerchantID,
			MediaID:    item.MediaID,
			UnitPrice:  &price,
			Currency:   item.Currency,
			Quantity:   item.Quantity,
		})
	}
	return ComputeTotals(lines)
}

func validateLine(index int, line CartLine) error {
	field := func(name string) string { return fmt.Sprintf("items[%d].%s", index, name) }
	switch {
	case line.MerchantID == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "merchant_id is required").WithDetails(map[string]any{field("merchant_id"): "is required"})
	case line.MediaID == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "media_id is required").WithDetails(map[string]any{field("media_id"): "is required"})
	case line.Quantity < 1:
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").WithDetails(map[string]any{field("quantity"): "must be at least 1"})
	case line.UnitPrice == nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price is not resolved").WithDetails(map[string]any{field("unit_price"): "is required"})
	case line.UnitPrice.IsNegative():
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative").WithDetails(map[string]any{field("unit_price"): "must not be negative"})
	case money.NormalizeCurrency(line.Currency) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "currency is required").WithDetails(map[string]any{field("currency"): "is required"})
	case !money.FitsPrecision(*line.UnitPrice, line.Currency):
		return pkgerrors.Newf(pkgerrors.CodeValidation, pkgerrors.KindPricePrecision,
			"unit price %s has more decimal places than %s allows", line.UnitPrice.String(), money.NormalizeCurrency(line.Currency)).
			WithDetails(map[string]any{field("unit_price"): fmt.Sprintf("at most %d decimal places", money.Exponent(line.Currency))})
	}
	return nil
}

func sortedCurrencies(totals models.CurrencyTotals) []string {
	out := make([]string, 0, len(totals))
	for code := range totals {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
