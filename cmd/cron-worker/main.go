package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront-backend/internal/cron"
	"github.com/angelmondragon/storefront-backend/internal/merchants"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
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

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe client", err)
		os.Exit(1)
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())
	ordersService, err := orders.NewService(ordersRepo, dbClient, outbox.NewService(outboxRepo, logg), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}
	payouts, err := payments.NewPayoutDispatcher(stripeClient, merchants.NewRepository(dbClient.DB()), ordersService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payout dispatcher", err)
		os.Exit(1)
	}

	entries, err := buildEntries(cfg, logg, outboxRepo, ordersRepo, ordersService, payouts)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}

	locks, err := cron.NewRedisLocker(redisClient, func(job string) string {
		return redisClient.LockKey("cron", job)
	}, cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron locker", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:       logg,
		Entries:      entries,
		Locks:        locks,
		Metrics:      metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		DefaultEvery: cfg.Cron.PendingSweepEvery,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(),
	})
	logg.Info(ctx, "starting cron worker")

	metricsServer := &http.Server{
		Addr:              cfg.Cron.MetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return service.Run(groupCtx)
	})
	group.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildEntries(
	cfg *config.Config,
	logg *logger.Logger,
	outboxRepo *outbox.Repository,
	ordersRepo orders.Repository,
	ordersService orders.Service,
	payouts *payments.PayoutDispatcher,
) ([]cron.Entry, error) {
	pendingTTL, err := cron.NewOrderPendingTTLJob(cron.OrderPendingTTLJobParams{
		Logger: logg,
		Reader: ordersRepo,
		Orders: ordersService,
		TTL:    cfg.Orders.PendingTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("order pending ttl job: %w", err)
	}

	payoutDispatch, err := cron.NewPayoutDispatchJob(cron.PayoutDispatchJobParams{
		Logger:     logg,
		Reader:     ordersRepo,
		Dispatcher: payouts,
	})
	if err != nil {
		return nil, fmt.Errorf("payout dispatch job: %w", err)
	}

	prune, err := cron.NewOutboxPruneJob(cron.OutboxPruneJobParams{
		Logger:       logg,
		Outbox:       outboxRepo,
		Keep:         cron.KeepDays(cfg.Outbox.RetentionDays),
		DeadAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox prune job: %w", err)
	}

	return []cron.Entry{
		{Job: pendingTTL, Every: cfg.Cron.PendingSweepEvery},
		{Job: payoutDispatch, Every: cfg.Cron.PayoutRetryEvery},
		{Job: prune, Every: cfg.Cron.OutboxPruneEvery},
	}, nil
}
