package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const payoutBatchSize = 100

type awaitingPayoutsReader interface {
	FindAwaitingPayouts(ctx context.Context, limit int) ([]models.Order, error)
}

type payoutDispatcher interface {
	Dispatch(ctx context.Context, order *models.Order) error
}

// PayoutDispatchJobParams configure the payout retry job.
type PayoutDispatchJobParams struct {
	Logger     *logger.Logger
	Reader     awaitingPayoutsReader
	Dispatcher payoutDispatcher
	BatchSize  int
}

// NewPayoutDispatchJob builds the job that retries transfers for paid multi-merchant orders.
func NewPayoutDispatchJob(params PayoutDispatchJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("awaiting payouts reader required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("payout dispatcher required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = payoutBatchSize
	}
	return &payoutDispatchJob{
		logg:       params.Logger,
		reader:     params.Reader,
		dispatcher: params.Dispatcher,
		batch:      batch,
	}, nil
}

type payoutDispatchJob struct {
	logg       *logger.Logger
	reader     awaitingPayoutsReader
	dispatcher payoutDispatcher
	batch      int
}

func (j *payoutDispatchJob) Name() string { return "payout_dispatch" }

func (j *payoutDispatchJob) Run(ctx context.Context) error {
	awaiting, err := j.reader.FindAwaitingPayouts(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("query awaiting payouts: %w", err)
	}
	var errs error
	dispatched := 0
	for i := range awaiting {
		order := &awaiting[i]
		if err := j.dispatcher.Dispatch(ctx, order); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("dispatch payouts for %s: %w", order.OrderCode, err))
			continue
		}
		dispatched++
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(awaiting),
		"dispatched": dispatched,
	})
	j.logg.Info(logCtx, "cron.payouts_dispatched")
	return errs
}
