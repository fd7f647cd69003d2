package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultOutboxKeep      = 30 * 24 * time.Hour
	defaultPruneBatch      = 500
	defaultDeadAttempts    = 10
	outboxPruneJobName     = "outbox_prune"
	maxPruneBatchesPerTick = 200
)

type outboxPruner interface {
	PruneBatch(ctx context.Context, cutoff time.Time, deadAttempts, limit int) (int64, error)
}

type OutboxPruneJobParams struct {
	Logger *logger.Logger
	Outbox outboxPruner
	// Keep is how long delivered rows stay around for debugging.
	Keep time.Duration
	// DeadAttempts must match the publisher's max attempts so parked rows are pruned too.
	DeadAttempts int
	BatchSize    int
}

// NewOutboxPruneJob deletes old delivered and dead-lettered outbox rows in small
// batches so the delete never holds locks the publisher is waiting on.
func NewOutboxPruneJob(params OutboxPruneJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox repository required")
	}
	job := &outboxPruneJob{
		logg:         params.Logger,
		outbox:       params.Outbox,
		keep:         params.Keep,
		deadAttempts: params.DeadAttempts,
		batch:        params.BatchSize,
		now:          time.Now,
	}
	if job.keep <= 0 {
		job.keep = defaultOutboxKeep
	}
	if job.deadAttempts <= 0 {
		job.deadAttempts = defaultDeadAttempts
	}
	if job.batch <= 0 {
		job.batch = defaultPruneBatch
	}
	return job, nil
}

// KeepDays converts a retention setting in days to a duration.
func KeepDays(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

type outboxPruneJob struct {
	logg         *logger.Logger
	outbox       outboxPruner
	keep         time.Duration
	deadAttempts int
	batch        int
	now          func() time.Time
}

func (j *outboxPruneJob) Name() string { return outboxPruneJobName }

func (j *outboxPruneJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.keep)

	var total int64
	for round := 0; round < maxPruneBatchesPerTick; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := j.outbox.PruneBatch(ctx, cutoff, j.deadAttempts, j.batch)
		if err != nil {
			return fmt.Errorf("prune outbox before %s: %w", cutoff.Format(time.RFC3339), err)
		}
		total += n
		if n < int64(j.batch) {
			break
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": total,
	}), "cron.outbox_pruned")
	return nil
}
