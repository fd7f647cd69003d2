package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
)

const devOrigin = "http://localhost:3000"

// CORS admits the storefront and merchant dashboard origins. With no origins
// configured only the local dev frontend is allowed.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{devOrigin}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyHeader, requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, "Idempotent-Replayed", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           int((5 * time.Minute).Seconds()),
	})
}
