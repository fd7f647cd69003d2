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

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

// run owns every deferred Close so they execute before main exits.
func run() error {
	bootCtx := context.Background()
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(bootCtx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(bootCtx, "failed to load config", err)
		return err
	}
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		logg.Error(bootCtx, "failed to bootstrap database", err)
		return err
	}
	defer closeQuietly(logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		logg.Error(bootCtx, "failed to run dev migrations", err)
		return err
	}

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		logg.Error(bootCtx, "failed to build event registry", err)
		return err
	}

	pubsubClient, err := pubsub.NewClient(bootCtx, cfg.GCP.ProjectID, eventRegistry.Topics(), logg)
	if err != nil {
		logg.Error(bootCtx, "failed to bootstrap pubsub", err)
		return err
	}
	defer closeQuietly(logg, "pubsub", pubsubClient.Close)

	relay, err := NewRelay(RelayDeps{
		Config:      cfg.Outbox,
		Logger:      logg,
		DB:          dbClient,
		Events:      outbox.NewRepository(dbClient.DB()),
		DeadLetters: outbox.NewDLQRepository(dbClient.DB()),
		Registry:    eventRegistry,
		Sink:        pubsubSink{client: pubsubClient},
		Metrics:     metrics.NewRelayMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(bootCtx, "failed to create outbox relay", err)
		return err
	}

	ctx, stop := signal.NotifyContext(bootCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"instance":    instance.ID(),
		"topics":      eventRegistry.Topics(),
	})
	logg.Info(ctx, "starting outbox publisher")

	metricsServer := &http.Server{
		Addr:              cfg.Outbox.MetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return relay.Run(groupCtx) })
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
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		return err
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
	return nil
}

func closeQuietly(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(context.Background(), "dependency", name), "close failed", err)
	}
}
