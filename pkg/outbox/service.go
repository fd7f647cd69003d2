// Package outbox records domain events in the same transaction as the state change
// that caused them. cmd/outbox-publisher relays the rows to Pub/Sub.
package outbox

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type Service struct {
	repo *Repository
	logg *logger.Logger
}

// NewService accepts a nil logger; queued events are then not logged.
func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit stores event through tx, so it commits or rolls back with the caller's writes.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("emit requires the caller's transaction")
	}
	if err := event.validate(); err != nil {
		return err
	}
	env, raw, err := event.seal()
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       raw,
	}); err != nil {
		return err
	}

	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":     env.EventID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID,
		}), "outbox.event_queued")
	}
	return nil
}
