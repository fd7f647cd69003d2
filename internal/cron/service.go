// Package cron runs the storefront's periodic jobs: expiring stale PENDING orders,
// retrying multi-merchant payouts and pruning delivered outbox rows.
package cron

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const defaultEvery = 15 * time.Minute

type ServiceParams struct {
	Logger  *logger.Logger
	Entries []Entry
	Locks   Locker
	Metrics *metrics.JobMetrics
	// DefaultEvery applies to entries without their own period.
	DefaultEvery time.Duration
}

type Service struct {
	logg     *logger.Logger
	schedule *schedule
	locks    Locker
	metrics  *metrics.JobMetrics
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Locks == nil {
		return nil, errors.New("locker required")
	}
	if len(params.Entries) == 0 {
		return nil, errors.New("at least one job required")
	}
	every := params.DefaultEvery
	if every <= 0 {
		every = defaultEvery
	}
	sched, err := newSchedule(params.Entries, every, time.Now())
	if err != nil {
		return nil, err
	}
	return &Service{
		logg:     params.Logger,
		schedule: sched,
		locks:    params.Locks,
		metrics:  params.Metrics,
		now:      time.Now,
	}, nil
}

// Run executes due jobs and sleeps until the next one is due, until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	for {
		s.tick(ctx)

		timer := time.NewTimer(s.schedule.until(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logg.Info(ctx, "cron.stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunOnce runs every job immediately, whatever its schedule says.
func (s *Service) RunOnce(ctx context.Context) {
	for _, sl := range s.schedule.slots {
		s.runLocked(ctx, sl.job)
	}
}

func (s *Service) tick(ctx context.Context) {
	now := s.now()
	for _, sl := range s.schedule.due(now) {
		if ctx.Err() != nil {
			return
		}
		s.runLocked(ctx, sl.job)
		sl.advance(now)
	}
}

// runLocked runs job only on the replica that wins its lock.
func (s *Service) runLocked(ctx context.Context, job Job) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	lock := s.locks.For(job.Name())

	won, err := lock.Acquire(jobCtx)
	if err != nil {
		s.logg.Error(jobCtx, "cron.lock_failed", err)
		return
	}
	if !won {
		s.logg.Debug(jobCtx, "cron.lock_held_elsewhere")
		return
	}
	defer func() {
		if err := lock.Release(jobCtx); err != nil {
			s.logg.Error(jobCtx, "cron.lock_release_failed", err)
		}
	}()

	started := time.Now()
	err = job.Run(jobCtx)
	took := time.Since(started)
	s.metrics.Observe(job.Name(), took, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "cron.job_failed", err)
		return
	}
	s.logg.Info(jobCtx, "cron.job_completed")
}
