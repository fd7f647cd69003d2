package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

// IdempotencyHeader names the client-supplied replay key.
const IdempotencyHeader = "Idempotency-Key"

const (
	checkoutReplayTTL = 7 * 24 * time.Hour
	actionReplayTTL   = 24 * time.Hour
	inFlightTTL       = 2 * time.Minute
)

type replayPolicy struct {
	ttl      time.Duration
	required bool
}

// replayPolicies is keyed by "METHOD route-pattern". Anonymous checkout clients may
// omit the key; merchant actions must send one.
var replayPolicies = map[string]replayPolicy{
	"POST /checkout":                                      {ttl: checkoutReplayTTL},
	"POST /checkout/offline":                              {ttl: checkoutReplayTTL},
	"POST /orders/{orderCode}/payment-session":            {ttl: actionReplayTTL},
	"POST /merchants/{slug}/orders/{orderCode}/mark-paid": {ttl: actionReplayTTL, required: true},
}

func policyFor(r *http.Request) (replayPolicy, bool) {
	pattern := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		pattern = rctx.RoutePattern()
	}
	p, ok := replayPolicies[r.Method+" "+pattern]
	return p, ok
}

// storedResponse is what a finished request leaves behind for replays.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the first non-5xx response for a repeated Idempotency-Key.
// While the first request runs, a short-lived reservation turns concurrent duplicates
// away with 409 so the handler never executes twice for one key.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			policy, covered := policyFor(r)
			if !covered {
				next.ServeHTTP(w, r)
				return
			}
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" {
				if policy.required {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, IdempotencyHeader+" header required"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			digest := sha256.Sum256(body)
			hash := hex.EncodeToString(digest[:])

			scope := strings.Join([]string{UserIDFromContext(ctx), r.Method, r.URL.Path}, "|")
			recordKey := store.IdempotencyKey(scope, clientKey)

			prior, err := lookup(ctx, store, recordKey)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency lookup"))
				return
			}
			if prior != nil {
				if prior.RequestHash != hash {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request body"))
					return
				}
				prior.replay(w)
				return
			}

			reservation := store.IdempotencyKey(scope+"|inflight", clientKey)
			won, err := store.SetNX(ctx, reservation, hash, inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency reservation"))
				return
			}
			if !won {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "a request with this idempotency key is still in progress"))
				return
			}
			defer func() {
				if err := store.Del(context.WithoutCancel(ctx), reservation); err != nil && logg != nil {
					logg.Error(ctx, "idempotency.release_failed", err)
				}
			}()

			var captured bytes.Buffer
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&captured)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			// 5xx answers are not kept so the client can retry with the same key.
			if status >= http.StatusInternalServerError {
				return
			}
			record, _ := json.Marshal(storedResponse{
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        captured.Bytes(),
				RequestHash: hash,
			})
			if _, err := store.SetNX(context.WithoutCancel(ctx), recordKey, string(record), policy.ttl); err != nil && logg != nil {
				logg.Error(ctx, "idempotency.persist_failed", err)
			}
		})
	}
}

func lookup(ctx context.Context, store pkgredis.IdempotencyStore, key string) (*storedResponse, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec storedResponse
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *storedResponse) replay(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}
