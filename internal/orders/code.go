package orders

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	orderCodeAlphabet    = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	orderCodeLength      = 8
	maxOrderCodeAttempts = 5

	uniqueOrderCodeConstraint = "ux_orders_order_code"
)

type codeGenerator func() (string, error)

// GenerateOrderCode returns a random customer-facing code. The alphabet drops
// characters that are easy to misread (I, L, O, 0, 1).
func GenerateOrderCode() (string, error) {
	bound := big.NewInt(int64(len(orderCodeAlphabet)))
	var b strings.Builder
	b.Grow(orderCodeLength)
	for i := 0; i < orderCodeLength; i++ {
		n, err := rand.Int(rand.Reader, bound)
		if err != nil {
			return "", err
		}
		b.WriteByte(orderCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeOrderCode upper-cases and trims user input.
func NormalizeOrderCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidOrderCode reports whether code could have been produced by GenerateOrderCode.
func IsValidOrderCode(code string) bool {
	if len(code) != orderCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(orderCodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
