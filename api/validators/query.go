package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// IntRange bounds an integer query parameter. Default applies when it is absent.
type IntRange struct {
	Default, Min, Max int
}

func QueryInt(r *http.Request, key string, bounds IntRange) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return bounds.Default, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < bounds.Min || value > bounds.Max {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "", "%s must be an integer between %d and %d", key, bounds.Min, bounds.Max).
			WithDetails(map[string]any{"field": key, "value": raw})
	}
	return value, nil
}
