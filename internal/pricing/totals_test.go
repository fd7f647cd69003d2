package pricing

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

func price(value string) *decimal.Decimal {
	d := decimal.RequireFromString(value)
	return &d
}

func TestComputeTotalsGroupsByMerchant(t *testing.T) {
	t.Parallel()
	lines := []CartLine{
		{MerchantID: "shop1", MediaID: "m1", UnitPrice: price("100"), Currency: "HKD", Quantity: 2},
		{MerchantID: "shop2", MediaID: "m2", UnitPrice: price("50"), Currency: "HKD", Quantity: 1},
	}

	totals, err := ComputeTotals(lines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if totals.Currency != "HKD" {
		t.Fatalf("expected HKD, got %s", totals.Currency)
	}
	if !totals.CurrencyTotals["HKD"].Equal(decimal.NewFromInt(250)) {
		t.Fatalf("expected HKD total 250, got %s", totals.CurrencyTotals["HKD"])
	}
	if len(totals.MerchantTotals) != 2 {
		t.Fatalf("expected 2 merchants, got %d", len(totals.MerchantTotals))
	}
	if !totals.MerchantTotals["shop1"]["HKD"].Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected shop1 200, got %s", totals.MerchantTotals["shop1"]["HKD"])
	}
	if !totals.MerchantTotals["shop2"]["HKD"].Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected shop2 50, got %s", totals.MerchantTotals["shop2"]["HKD"])
	}
	if !totals.Grand().Equal(decimal.NewFromInt(250)) {
		t.Fatalf("unexpected grand total %s", totals.Grand())
	}
}

func TestComputeTotalsRejectsMixedCurrencies(t *testing.T) {
	t.Parallel()
	lines := []CartLine{
		{MerchantID: "shop1", MediaID: "m1", UnitPrice: price("100"), Currency: "HKD", Quantity: 1},
		{MerchantID: "shop1", MediaID: "m2", UnitPrice: price("300"), Currency: "TWD", Quantity: 1},
	}
	_, err := ComputeTotals(lines)
	if !pkgerrors.IsKind(err, pkgerrors.KindMultiCurrencyNotSupported) {
		t.Fatalf("expected multi currency error, got %v", err)
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation code, got %v", err)
	}
}

func TestComputeTotalsRejectsAnyMultiCurrencyCart(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(7))
	currencies := []string{"HKD", "TWD", "JPY", "USD", "KWD"}
	for i := 0; i < 200; i++ {
		first := currencies[rng.Intn(len(currencies))]
		second := first
		for second == first {
			second = currencies[rng.Intn(len(currencies))]
		}
		lines := randomLines(rng, first, 1+rng.Intn(4))
		lines = append(lines, randomLines(rng, second, 1+rng.Intn(4))...)
		rng.Shuffle(len(lines), func(a, b int) { lines[a], lines[b] = lines[b], lines[a] })

		if _, err := ComputeTotals(lines); !pkgerrors.IsKind(err, pkgerrors.KindMultiCurrencyNotSupported) {
			t.Fatalf("iteration %d: expected multi currency rejection, got %v", i, err)
		}
	}
}

func TestMerchantSubtotalsSumToCurrencyTotal(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		lines := randomLines(rng, "HKD", 1+rng.Intn(12))
		totals, err := ComputeTotals(lines)
		if err != nil {
			t.Fatalf("iteration %d: unexpected error %v", i, err)
		}
		sum := decimal.Zero
		for _, perCurrency := range totals.MerchantTotals {
			sum = sum.Add(perCurrency["HKD"])
		}
		if !sum.Equal(totals.CurrencyTotals["HKD"]) {
			t.Fatalf("iteration %d: merchant sum %s != currency total %s", i, sum, totals.CurrencyTotals["HKD"])
		}
	}
}

func TestComputeTotalsRejectsEmptyAndNonPositiveCarts(t *testing.T) {
	t.Parallel()
	if _, err := ComputeTotals(nil); !pkgerrors.IsKind(err, pkgerrors.KindEmptyCart) {
		t.Fatalf("expected empty cart error, got %v", err)
	}

	free := []CartLine{{MerchantID: "shop1", MediaID: "m1", UnitPrice: price("0"), Currency: "HKD", Quantity: 3}}
	if _, err := ComputeTotals(free); !pkgerrors.IsKind(err, pkgerrors.KindZeroOrNegativeTotal) {
		t.Fatalf("expected zero total error, got %v", err)
	}
}

func TestComputeTotalsValidatesLines(t *testing.T) {
	t.Parallel()
	cases := map[string]CartLine{
		"zero quantity":    {MerchantID: "shop1", MediaID: "m1", UnitPrice: price("1"), Currency: "HKD", Quantity: 0},
		"negative price":   {MerchantID: "shop1", MediaID: "m1", UnitPrice: price("-1"), Currency: "HKD", Quantity: 1},
		"missing price":    {MerchantID: "shop1", MediaID: "m1", Currency: "HKD", Quantity: 1},
		"missing media":    {MerchantID: "shop1", UnitPrice: price("1"), Currency: "HKD", Quantity: 1},
		"missing currency": {MerchantID: "shop1", MediaID: "m1", UnitPrice: price("1"), Quantity: 1},
	}
	for name, line := range cases {
		_, err := ComputeTotals([]CartLine{line})
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestComputeTotalsKeepsDecimalPrecision(t *testing.T) {
	t.Parallel()
	lines := []CartLine{
		{MerchantID: "shop1", MediaID: "m1", UnitPrice: price("0.1"), Currency: "usd", Quantity: 3},
		{MerchantID: "shop1", MediaID: "m2", UnitPrice: price("0.2"), Currency: "USD", Quantity: 1},
	}
	totals, err := ComputeTotals(lines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if totals.Grand().String() != "0.5" {
		t.Fatalf("expected exact 0.5, got %s", totals.Grand())
	}
}

func TestMergeLinesSumsQuantities(t *testing.T) {
	t.Parallel()
	lines := []CartLine{
		{MerchantID: "shop1", MediaID: "m1", Title: "first", Quantity: 1},
		{MerchantID: "shop2", MediaID: "m1", Quantity: 2},
		{MerchantID: " shop1", MediaID: "m1 ", Title: "dup", Quantity: 4},
	}
	merged := MergeLines(lines)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged lines, got %d", len(merged))
	}
	if merged[0].Quantity != 5 || merged[0].Title != "first" {
		t.Fatalf("unexpected merged line %+v", merged[0])
	}
	if merged[1].MerchantID != "shop2" || merged[1].Quantity != 2 {
		t.Fatalf("unexpected second line %+v", merged[1])
	}
}

func randomLines(rng *rand.Rand, currency string, n int) []CartLine {
	merchants := []string{"shop1", "shop2", "shop3", "shop4"}
	lines := make([]CartLine, 0, n)
	for i := 0; i < n; i++ {
		minor := 1 + rng.Int63n(100000)
		p := decimal.New(minor, -money.Exponent(currency))
		lines = append(lines, CartLine{
			MerchantID: merchants[rng.Intn(len(merchants))],
			MediaID:    decimal.NewFromInt(int64(i)).String(),
			UnitPrice:  &p,
			Currency:   currency,
			Quantity:   1 + rng.Intn(5),
		})
	}
	return lines
}

func TestComputeTotalsRejectsSubMinorUnitPrices(t *testing.T) {
	t.Parallel()
	cases := []struct {
		price    string
		currency string
	}{
		{"10.004", "HKD"},
		{"500.5", "JPY"},
		{"1.0005", "KWD"},
	}
	for _, tc := range cases {
		lines := []CartLine{{MerchantID: "shop1", MediaID: "m1", UnitPrice: price(tc.price), Currency: tc.currency, Quantity: 2}}
		if _, err := ComputeTotals(lines); !pkgerrors.IsKind(err, pkgerrors.KindPricePrecision) {
			t.Fatalf("%s %s: expected precision rejection, got %v", tc.price, tc.currency, err)
		}
	}

	// Trailing zeros from numeric columns are fine.
	lines := []CartLine{{MerchantID: "shop1", MediaID: "m1", UnitPrice: price("500.000"), Currency: "JPY", Quantity: 1}}
	if _, err := ComputeTotals(lines); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestChargedAmountMatchesStoredTotals(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(11))
	for _, currency := range []string{"HKD", "JPY", "KWD"} {
		for i := 0; i < 100; i++ {
			lines := randomLines(rng, currency, 1+rng.Intn(8))
			totals, err := ComputeTotals(lines)
			if err != nil {
				t.Fatalf("%s iteration %d: unexpected error %v", currency, i, err)
			}

			var charged int64
			for _, line := range lines {
				charged += money.ToMinorUnits(*line.UnitPrice, currency) * int64(line.Quantity)
			}
			var transferred int64
			for _, perCurrency := range totals.MerchantTotals {
				transferred += money.ToMinorUnits(perCurrency[currency], currency)
			}
			stored := money.ToMinorUnits(totals.Grand(), currency)
			if stored != charged || transferred != charged {
				t.Fatalf("%s iteration %d: stored=%d charged=%d transferred=%d", currency, i, stored, charged, transferred)
			}
		}
	}
}
