package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	merchantcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/merchants"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/merchants"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	pkgauth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

const requestTimeout = 30 * time.Second

// RedisStore is the slice of the redis client the HTTP layer needs.
type RedisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
	Ping(ctx context.Context) error
}

type webhookHandler interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (stripewebhook.Outcome, error)
}

type webhookGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type signingClient interface {
	SigningSecret() string
}

// Deps carries everything the router mounts.
type Deps struct {
	Config         *config.Config
	Logger         *logger.Logger
	Tokens         *pkgauth.Signer
	DB             controllers.Pinger
	Redis          RedisStore
	Checkout       checkoutsvc.Service
	Orders         orders.Service
	Merchants      merchants.Service
	Webhooks       webhookHandler
	WebhookGuard   webhookGuard
	Stripe         signingClient
	WebhookMetrics *metrics.WebhookMetrics

	// MetricsHandler defaults to the global prometheus registry.
	MetricsHandler http.Handler
}

func NewRouter(deps Deps) http.Handler {
	cfg, logg := deps.Config, deps.Logger
	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		chimiddleware.RealIP,
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins),
	)

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.Checkout.RateLimitWindow,
		cfg.Checkout.RateLimitIPLimit,
		cfg.Checkout.RateLimitEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Post("/webhooks/payment", webhookcontrollers.PaymentWebhook(deps.Webhooks, deps.Stripe, deps.WebhookGuard, deps.WebhookMetrics, logg))

	// Routes are registered with full paths so the idempotency rules see complete patterns.
	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(requestTimeout))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.With(middleware.RateLimit(checkoutPolicy, deps.Redis, logg)).Post("/checkout", controllers.CheckoutOnline(deps.Checkout, logg))
		r.With(middleware.RateLimit(checkoutPolicy, deps.Redis, logg)).Post("/checkout/offline", controllers.CheckoutOffline(deps.Checkout, logg))
		r.Get("/orders/{orderCode}", ordercontrollers.Detail(deps.Orders, logg))
		r.Post("/orders/{orderCode}/payment-session", controllers.RetryPaymentSession(deps.Checkout, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(requestTimeout))
		r.Use(middleware.Auth(deps.Tokens, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Get("/merchants/{slug}/payment-onboarding/start", merchantcontrollers.OnboardingStart(deps.Merchants, logg))
		r.Get("/merchants/{slug}/payment-onboarding/return", merchantcontrollers.OnboardingReturn(deps.Merchants, logg))
		r.Get("/merchants/{slug}/orders", ordercontrollers.MerchantList(deps.Merchants, deps.Orders, logg))
		r.Post("/merchants/{slug}/orders/{orderCode}/mark-paid", ordercontrollers.MarkPaid(deps.Merchants, deps.Orders, logg))
	})

	return r
}
