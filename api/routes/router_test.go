package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	pkgauth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type memoryRedis struct {
	mu       sync.Mutex
	data     map[string]string
	counters map[string]int64
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}, counters: map[string]int64{}}
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string { return "test:idem:" + scope + ":" + id }
func (m *memoryRedis) RateLimitKey(scope string) string        { return "test:rl:" + scope }
func (m *memoryRedis) Ping(context.Context) error              { return nil }

func (m *memoryRedis) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return m.counters[key], nil
}

type countingCheckout struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCheckout) CheckoutOnline(context.Context, checkoutsvc.Request) (*checkoutsvc.OnlineResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return &checkoutsvc.OnlineResult{
		OrderCode:        fmt.Sprintf("ORD-%d", c.calls),
		PaymentSessionID: "cs_test",
		RedirectURL:      "https://pay.example.com/cs_test",
	}, nil
}

func (c *countingCheckout) CheckoutOffline(context.Context, checkoutsvc.Request) (*checkoutsvc.OfflineResult, error) {
	return &checkoutsvc.OfflineResult{OrderCode: "ORD-OFF"}, nil
}

func (c *countingCheckout) RetrySession(_ context.Context, code string) (*checkoutsvc.OnlineResult, error) {
	return &checkoutsvc.OnlineResult{OrderCode: code}, nil
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "storefront"},
		Checkout: config.CheckoutConfig{
			RateLimitWindow:  time.Minute,
			RateLimitIPLimit: 100,
		},
	}
}

func testSigner() *pkgauth.Signer {
	signer, err := pkgauth.NewSigner(testConfig().JWT)
	if err != nil {
		panic(err)
	}
	return signer
}

func newTestRouter(checkout checkoutsvc.Service) http.Handler {
	return NewRouter(Deps{
		Config:         testConfig(),
		Logger:         logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard}),
		Tokens:         testSigner(),
		DB:             okPinger{},
		Redis:          newMemoryRedis(),
		Checkout:       checkout,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "# metrics\n") }),
	})
}

const routerCheckoutBody = `{"customer":{"name":"Ada","email":"ada@example.com","phone":"1"},"shipping_address":{"country":"HK","city":"Hong Kong","address":"1 Queen's Road"},"items":[{"merchant_id":"m1","media_id":"p1","quantity":1}]}`

func TestHealthAndMetricsAreMounted(t *testing.T) {
	router := newTestRouter(&countingCheckout{})

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestCheckoutReplaysWithIdempotencyKey(t *testing.T) {
	checkout := &countingCheckout{}
	router := newTestRouter(checkout)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(routerCheckoutBody))
		req.Header.Set("Idempotency-Key", "cart-123")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := send()
	require.Equal(t, http.StatusCreated, second.Code)

	assert.Equal(t, 1, checkout.calls)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestMerchantRoutesRequireToken(t *testing.T) {
	router := newTestRouter(&countingCheckout{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/merchants/north/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMarkPaidRequiresIdempotencyKey(t *testing.T) {
	router := newTestRouter(&countingCheckout{})
	token, err := testSigner().Issue(uuid.New(), "owner@example.com", time.Now(), time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/merchants/north/orders/ORD-1/mark-paid", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"]["message"], "Idempotency-Key")
}

func TestUnknownRouteIs404(t *testing.T) {
	router := newTestRouter(&countingCheckout{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/reports", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
