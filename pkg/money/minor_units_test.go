package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		amount   string
		currency string
		want     int64
	}{
		{"19.99", "HKD", 1999},
		{"500", "JPY", 500},
		{"12.345", "KWD", 12345},
		{"0.005", "USD", 1},
		{"0.004", "USD", 0},
		{"1299.5", "TWD", 1300},
		{"1299.4", "twd", 1299},
		{"250", "hkd", 25000},
		{"3.1", "BHD", 3100},
		{"0.0005", "OMR", 1},
	}
	for _, tc := range cases {
		got := ToMinorUnits(decimal.RequireFromString(tc.amount), tc.currency)
		if got != tc.want {
			t.Fatalf("ToMinorUnits(%s, %s) = %d, want %d", tc.amount, tc.currency, got, tc.want)
		}
	}
}

func TestRoundTripKeepsCurrencyPrecision(t *testing.T) {
	cases := []struct {
		amount   string
		currency string
	}{
		{"19.99", "HKD"},
		{"500", "JPY"},
		{"12.345", "KWD"},
		{"0.01", "USD"},
		{"99999.999", "TND"},
		{"42", "KRW"},
		{"1234567.89", "EUR"},
	}
	for _, tc := range cases {
		amount := decimal.RequireFromString(tc.amount)
		back := FromMinorUnits(ToMinorUnits(amount, tc.currency), tc.currency)
		if !back.Equal(amount) {
			t.Fatalf("round trip of %s %s produced %s", tc.amount, tc.currency, back)
		}
	}
}

func TestRoundTripRoundsBeyondPrecision(t *testing.T) {
	amount := decimal.RequireFromString("10.555")
	back := FromMinorUnits(ToMinorUnits(amount, "HKD"), "HKD")
	if !back.Equal(Round(amount, "HKD")) {
		t.Fatalf("expected %s, got %s", Round(amount, "HKD"), back)
	}
	if back.String() != "10.56" {
		t.Fatalf("expected 10.56, got %s", back)
	}
}

func TestExponent(t *testing.T) {
	if Exponent("jpy") != 0 || Exponent(" KWD ") != 3 || Exponent("HKD") != 2 || Exponent("") != 2 {
		t.Fatal("unexpected exponent table result")
	}
}

func TestStripeCurrency(t *testing.T) {
	if got := StripeCurrency(" HKD"); got != "hkd" {
		t.Fatalf("expected hkd, got %q", got)
	}
}

func TestFitsPrecision(t *testing.T) {
	cases := []struct {
		amount   string
		currency string
		want     bool
	}{
		{"10.00", "HKD", true},
		{"10.004", "HKD", false},
		{"500", "JPY", true},
		{"500.000", "JPY", true},
		{"500.5", "JPY", false},
		{"12.345", "KWD", true},
		{"12.3456", "KWD", false},
	}
	for _, tc := range cases {
		if got := FitsPrecision(decimal.RequireFromString(tc.amount), tc.currency); got != tc.want {
			t.Fatalf("FitsPrecision(%s, %s) = %v, want %v", tc.amount, tc.currency, got, tc.want)
		}
	}
}
