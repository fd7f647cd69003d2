// Package money converts decimal major-unit amounts to and from the integer
// minor units payment processors expect.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

const defaultExponent int32 = 2

// exponents lists every currency whose minor unit is not 1/100 of the major unit.
// It is the only place the storefront decides currency precision.
var exponents = map[string]int32{
	"BIF": 0,
	"CLP": 0,
	"DJF": 0,
	"GNF": 0,
	"JPY": 0,
	"KMF": 0,
	"KRW": 0,
	"MGA": 0,
	"PYG": 0,
	"RWF": 0,
	"TWD": 0,
	"UGX": 0,
	"VND": 0,
	"VUV": 0,
	"XAF": 0,
	"XOF": 0,
	"XPF": 0,

	"BHD": 3,
	"JOD": 3,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
}

// NormalizeCurrency upper-cases and trims an ISO 4217 code.
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// Exponent returns the number of fractional digits for the currency.
func Exponent(currency string) int32 {
	if exp, ok := exponents[NormalizeCurrency(currency)]; ok {
		return exp
	}
	return defaultExponent
}

// Round rounds amount to the currency's precision, half away from zero.
func Round(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(Exponent(currency))
}

// FitsPrecision reports whether amount has no digits below the currency's minor unit.
// Only such amounts convert to minor units without rounding.
func FitsPrecision(amount decimal.Decimal, currency string) bool {
	return amount.Equal(Round(amount, currency))
}

// ToMinorUnits converts a major-unit amount into processor minor units.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(Exponent(currency)).Round(0).IntPart()
}

// FromMinorUnits converts processor minor units back into a major-unit amount.
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -Exponent(currency))
}

// StripeCurrency returns the lower-case code Stripe expects on the wire.
func StripeCurrency(currency string) string {
	return strings.ToLower(NormalizeCurrency(currency))
}
