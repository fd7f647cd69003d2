package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

const (
	fallbackBatchSize   = 50
	fallbackMaxAttempts = 10
	fallbackPoll        = 500 * time.Millisecond
	fallbackMaxBackoff  = 10 * time.Second
	sendTimeout         = 15 * time.Second
)

type txDB interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// sink delivers one message and blocks until the broker acknowledges it.
type sink interface {
	Ping(context.Context) error
	Send(ctx context.Context, topic string, msg *gcppubsub.Message) error
}

type RelayDeps struct {
	Config      config.OutboxConfig
	Logger      *logger.Logger
	DB          txDB
	Events      eventStore
	DeadLetters deadLetterStore
	Registry    eventResolver
	Sink        sink
	Metrics     *metrics.RelayMetrics
}

// Relay moves committed order events from outbox_events to Pub/Sub.
type Relay struct {
	logg        *logger.Logger
	db          txDB
	events      eventStore
	deadLetters deadLetterStore
	registry    eventResolver
	sink        sink
	metrics     *metrics.RelayMetrics

	batchSize   int
	maxAttempts int
	poll        time.Duration
	maxBackoff  time.Duration
}

func NewRelay(deps RelayDeps) (*Relay, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("logger is required")
	case deps.DB == nil:
		return nil, errors.New("database client is required")
	case deps.Events == nil:
		return nil, errors.New("outbox repository is required")
	case deps.DeadLetters == nil:
		return nil, errors.New("dlq repository is required")
	case deps.Registry == nil:
		return nil, errors.New("event registry is required")
	case deps.Sink == nil:
		return nil, errors.New("pubsub sink is required")
	}

	cfg := deps.Config
	return &Relay{
		logg:        deps.Logger,
		db:          deps.DB,
		events:      deps.Events,
		deadLetters: deps.DeadLetters,
		registry:    deps.Registry,
		sink:        deps.Sink,
		metrics:     deps.Metrics,
		batchSize:   positiveOr(cfg.BatchSize, fallbackBatchSize),
		maxAttempts: positiveOr(cfg.MaxAttempts, fallbackMaxAttempts),
		poll:        durationOr(cfg.PollInterval, fallbackPoll),
		maxBackoff:  durationOr(cfg.MaxBackoff, fallbackMaxBackoff),
	}, nil
}

// Run polls until ctx is cancelled. A full batch is followed immediately by the next
// one; an empty batch waits one poll interval and a failed batch backs off.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.checkDependencies(ctx); err != nil {
		return err
	}

	wait := newPacer(r.poll, r.maxBackoff)
	for {
		if ctx.Err() != nil {
			r.logg.Info(ctx, "outbox.publisher_stopped")
			return ctx.Err()
		}

		handled, err := r.drain(ctx)
		var delay time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox.batch_failed", err)
			delay = wait.failed()
		case handled > 0:
			wait.reset()
			continue
		default:
			delay = wait.reset()
		}

		if err := sleepCtx(ctx, delay); err != nil {
			r.logg.Info(ctx, "outbox.publisher_stopped")
			return err
		}
	}
}

func (r *Relay) checkDependencies(ctx context.Context) error {
	checks := []struct {
		name  string
		check func(context.Context) error
	}{
		{name: "database", check: r.db.Ping},
		{name: "pubsub", check: r.sink.Ping},
	}
	for _, dep := range checks {
		if err := dep.check(ctx); err != nil {
			r.logg.Error(r.logg.WithField(ctx, "dependency", dep.name), "outbox.dependency_unavailable", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	return nil
}

// drain claims one batch and relays every row in it within the claiming transaction.
func (r *Relay) drain(ctx context.Context) (int, error) {
	started := time.Now()
	handled := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.events.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox batch: %w", err)
		}
		for _, row := range rows {
			if err := r.relay(ctx, tx, row); err != nil {
				return err
			}
			handled++
		}
		return nil
	})
	if handled > 0 {
		r.metrics.ObserveBatch(time.Since(started))
	}
	return handled, err
}

// relay settles a single row: published, retried later, or dead-lettered. Only
// bookkeeping failures are returned.
func (r *Relay) relay(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) error {
	resolved, err := r.registry.Resolve(row)
	if err != nil {
		return r.deadLetter(ctx, tx, row, "", enums.OutboxDLQReasonNonRetryable, err)
	}
	topic := resolved.Descriptor.Topic
	logCtx := r.rowContext(ctx, row, topic)

	sendErr := r.send(ctx, row, resolved)
	if sendErr == nil {
		if err := r.events.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.metrics.Observe(string(row.EventType), metrics.RelayPublished)
		r.logg.Info(r.logg.WithField(logCtx, "event_id", resolved.Envelope.EventID), "outbox.event_published")
		return nil
	}

	if registry.IsPermanent(sendErr) {
		return r.deadLetter(ctx, tx, row, topic, enums.OutboxDLQReasonNonRetryable, sendErr)
	}

	attempt := row.AttemptCount + 1
	if attempt >= r.maxAttempts {
		return r.deadLetter(ctx, tx, row, topic, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("gave up after %d attempts: %w", attempt, sendErr))
	}

	r.logg.Warn(r.logg.WithFields(logCtx, map[string]any{
		"attempt": attempt,
		"error":   sendErr.Error(),
	}), "outbox.publish_failed")
	r.metrics.Observe(string(row.EventType), metrics.RelayRetried)
	if err := r.events.MarkFailedTx(tx, row.ID, sendErr); err != nil {
		return fmt.Errorf("mark failure %s: %w", row.ID, err)
	}
	return nil
}

func (r *Relay) send(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	msg := &gcppubsub.Message{
		Data:       row.Payload,
		Attributes: messageAttributes(row, resolved),
		// Subscribers with ordering enabled receive one order's events in commit order.
		OrderingKey: row.AggregateID,
	}
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return r.sink.Send(sendCtx, resolved.Descriptor.Topic, msg)
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, topic string, reason enums.OutboxDLQErrorReason, cause error) error {
	entry := outbox.DeadLetter(row, reason, cause, time.Now())
	if err := r.deadLetters.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := r.events.MarkTerminalTx(tx, row.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}

	r.metrics.Observe(string(row.EventType), metrics.RelayDeadLettered)
	r.logg.Warn(r.logg.WithFields(r.rowContext(ctx, row, topic), map[string]any{
		"error_reason": reason,
		"error":        cause.Error(),
	}), "outbox.event_dead_lettered")
	return nil
}

func (r *Relay) rowContext(ctx context.Context, row models.OutboxEvent, topic string) context.Context {
	fields := map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID,
		"attempt_count": row.AttemptCount,
	}
	if topic != "" {
		fields["topic"] = topic
	}
	return r.logg.WithFields(ctx, fields)
}

func messageAttributes(row models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID,
		"schema_version": strconv.Itoa(resolved.Envelope.Version),
	}
	if !resolved.Envelope.OccurredAt.IsZero() {
		attrs["occurred_at"] = resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano)
	}
	return attrs
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
