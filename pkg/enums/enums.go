// Package enums holds the closed string sets stored in the database and carried
// on the wire.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

// lookup matches raw case-insensitively against set.
func lookup[T ~string](kind, raw string, set []T) (T, error) {
	want := strings.TrimSpace(raw)
	for _, v := range set {
		if strings.EqualFold(string(v), want) {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("unknown %s %q", kind, raw)
}

func member[T comparable](v T, set []T) bool {
	return slices.Contains(set, v)
}
