package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// RateLimitPolicy throttles a public surface per client IP and per customer email
// over a fixed window. A zero limit switches that counter off.
type RateLimitPolicy struct {
	Name       string
	Window     time.Duration
	IPLimit    int
	EmailLimit int
}

func NewRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) RateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "checkout"
	}
	return RateLimitPolicy{Name: name, Window: window, IPLimit: ipLimit, EmailLimit: emailLimit}
}

// counter is one throttled dimension; subject returns "" when the request has none.
type counter struct {
	dimension string
	limit     int
	subject   func(r *http.Request, body []byte) string
}

func (p RateLimitPolicy) counters() []counter {
	var out []counter
	if p.IPLimit > 0 {
		out = append(out, counter{dimension: "ip", limit: p.IPLimit, subject: remoteHost})
	}
	if p.EmailLimit > 0 {
		out = append(out, counter{dimension: "email", limit: p.EmailLimit, subject: hashedCustomerEmail})
	}
	return out
}

// RateLimit counts each request against the policy's counters in Redis. Emails are
// hashed before they become part of a key. The body is restored for the next handler.
func RateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	counters := policy.counters()
	return func(next http.Handler) http.Handler {
		if store == nil || policy.Window <= 0 || len(counters) == 0 {
			return next
		}
		needsBody := policy.EmailLimit > 0
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var body []byte
			if needsBody {
				raw, err := io.ReadAll(r.Body)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
					return
				}
				body = raw
				r.Body = io.NopCloser(bytes.NewReader(raw))
			}

			for _, c := range counters {
				subject := c.subject(r, body)
				if subject == "" {
					continue
				}
				key := store.RateLimitKey(policy.Name + ":" + c.dimension + ":" + subject)
				hits, err := store.IncrWithTTL(ctx, key, policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limit counter"))
					return
				}
				if hits > int64(c.limit) {
					policy.reject(ctx, logg, w, c, hits)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (p RateLimitPolicy) reject(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, c counter, hits int64) {
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"policy":    p.Name,
			"dimension": c.dimension,
			"hits":      hits,
			"limit":     c.limit,
		}), "rate_limit.rejected")
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(p.Window.Seconds())))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests, slow down"))
}

// remoteHost relies on chi's RealIP having already rewritten RemoteAddr.
func remoteHost(r *http.Request, _ []byte) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func hashedCustomerEmail(_ *http.Request, body []byte) string {
	var payload struct {
		Customer struct {
			Email string `json:"email"`
		} `json:"customer"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	email := strings.ToLower(strings.TrimSpace(payload.Customer.Email))
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:12])
}
