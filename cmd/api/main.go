package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/api"
	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/merchants"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	pkgauth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

const webhookGuardScope = "payment_webhook"

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap stripe client", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ordersRepo := orders.NewRepository(dbClient.DB())
	ordersService, err := orders.NewService(ordersRepo, dbClient, outboxService, logg)
	if err != nil {
		logg.Error(ctx, "failed to create orders service", err)
		os.Exit(1)
	}

	merchantsRepo := merchants.NewRepository(dbClient.DB())
	merchantsService, err := merchants.NewService(merchantsRepo, dbClient, outboxService, stripeClient, merchants.URLs{
		APIBaseURL:   cfg.App.PublicBaseURL,
		DashboardURL: cfg.Checkout.DashboardURL(),
	}, logg)
	if err != nil {
		logg.Error(ctx, "failed to create merchants service", err)
		os.Exit(1)
	}

	catalogResolver, err := catalog.NewService(catalog.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(ctx, "failed to create catalog resolver", err)
		os.Exit(1)
	}

	sessions, err := payments.NewSessionService(stripeClient, cfg.Checkout.BaseURL(), logg)
	if err != nil {
		logg.Error(ctx, "failed to create payment session service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.Deps{
		Tx:       dbClient,
		Orders:   ordersRepo,
		Catalog:  catalogResolver,
		Accounts: merchantsRepo,
		Sessions: sessions,
		Outbox:   outboxService,
		Metrics:  metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer),
		Logger:   logg,
	}, checkout.Options{
		AllowedCountries: cfg.Checkout.ShippingCountries(),
		MaxQuantity:      cfg.Checkout.MaxLineQuantity,
	})
	if err != nil {
		logg.Error(ctx, "failed to create checkout service", err)
		os.Exit(1)
	}

	payouts, err := payments.NewPayoutDispatcher(stripeClient, merchantsRepo, ordersService, logg)
	if err != nil {
		logg.Error(ctx, "failed to create payout dispatcher", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Orders:   ordersService,
		Lookup:   ordersRepo,
		Accounts: merchantsService,
		Payouts:  payouts,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create webhook reconciler", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewEventGuard(redisClient, cfg.Webhooks.EventTTL, webhookGuardScope)
	if err != nil {
		logg.Error(ctx, "failed to create webhook guard", err)
		os.Exit(1)
	}

	tokens, err := pkgauth.NewSigner(cfg.JWT)
	if err != nil {
		logg.Error(ctx, "failed to configure token verification", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.Deps{
		Config:         cfg,
		Logger:         logg,
		Tokens:         tokens,
		DB:             dbClient,
		Redis:          redisClient,
		Checkout:       checkoutService,
		Orders:         ordersService,
		Merchants:      merchantsService,
		Webhooks:       webhookService,
		WebhookGuard:   webhookGuard,
		Stripe:         stripeClient,
		WebhookMetrics: metrics.NewWebhookMetrics(prometheus.DefaultRegisterer),
	})

	server := api.NewServer(cfg, router)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       server.Addr,
		"instance":   instance.ID(),
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(ctx, "api.starting")

	if err := api.Serve(ctx, server, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api.stopped")
}
