package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

const (
	defaultPendingTTL = 24 * time.Hour
	pendingBatchSize  = 200
)

type pendingOrderReader interface {
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type orderTransitioner interface {
	ApplyStatus(ctx context.Context, code string, patch orders.StatusPatch, actor *outbox.ActorRef) (*orders.TransitionResult, error)
}

// OrderPendingTTLJobParams configure the pending order expiry job.
type OrderPendingTTLJobParams struct {
	Logger    *logger.Logger
	Reader    pendingOrderReader
	Orders    orderTransitioner
	TTL       time.Duration
	BatchSize int
}

// NewOrderPendingTTLJob builds the job that fails online orders left PENDING past the TTL.
func NewOrderPendingTTLJob(params OrderPendingTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("pending order reader required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = pendingBatchSize
	}
	return &orderPendingTTLJob{
		logg:   params.Logger,
		reader: params.Reader,
		orders: params.Orders,
		ttl:    ttl,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type orderPendingTTLJob struct {
	logg   *logger.Logger
	reader pendingOrderReader
	orders orderTransitioner
	ttl    time.Duration
	batch  int
	now    func() time.Time
}

func (j *orderPendingTTLJob) Name() string { return "order_pending_ttl" }

func (j *orderPendingTTLJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.ttl)
	pending, err := j.reader.FindPendingBefore(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query pending orders: %w", err)
	}

	actor := &outbox.ActorRef{Kind: outbox.ActorSystem, ID: j.Name()}
	var errs error
	expired := 0
	for _, order := range pending {
		// Only processor-backed orders expire; offline ones wait on the merchant.
		if order.PaymentMethod != enums.PaymentMethodOnlineSplit {
			continue
		}
		result, err := j.orders.ApplyStatus(ctx, order.OrderCode, orders.StatusPatch{
			Status: enums.PaymentStatusFailed,
			At:     now,
			Source: j.Name(),
			Event:  enums.EventOrderExpired,
		}, actor)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.OrderCode, err))
			continue
		}
		if result.Outcome == orders.TransitionApplied {
			expired++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(pending),
		"expired":    expired,
	})
	j.logg.Info(logCtx, "cron.pending_orders_expired")
	return errs
}
