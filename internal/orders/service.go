package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines order-level operations beyond repository reads.
type Service interface {
	Get(ctx context.Context, code string) (*models.Order, error)
	ApplyStatus(ctx context.Context, code string, patch StatusPatch, actor *outbox.ActorRef) (*TransitionResult, error)
	MarkPaidOffline(ctx context.Context, merchantID, code string, actor *outbox.ActorRef) (*models.Order, error)
	ListForMerchant(ctx context.Context, merchantID string, status enums.PaymentStatus, params pagination.Params) (*MerchantOrderList, error)
	RecordPayouts(ctx context.Context, order *models.Order, transfers []payloads.PayoutTransfer, at time.Time) error
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService wires the order service.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, outbox: outbox, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, code string) (*models.Order, error) {
	order, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return order, nil
}

// ApplyStatus runs one conditional transition and queues the matching domain event in
// the same transaction. Repeating a transition is a no-op; backward moves are logged and
// reported as TransitionRejected without error.
func (s *service) ApplyStatus(ctx context.Context, code string, patch StatusPatch, actor *outbox.ActorRef) (*TransitionResult, error) {
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := s.repo.WithTx(tx).UpdateStatus(ctx, code, patch)
		if err != nil {
			return err
		}
		result = res
		if res.Outcome != TransitionApplied {
			return nil
		}
		return s.emitStatusEvent(ctx, tx, res.Order, patch, actor)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mapLookupError(err)
		}
		return nil, err
	}

	logCtx := s.logg.WithOrderCode(ctx, result.Order.OrderCode)
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"target_status":  patch.Status,
		"current_status": result.Order.PaymentStatus,
		"outcome":        result.Outcome,
		"source":         patch.Source,
	})
	switch result.Outcome {
	case TransitionApplied:
		s.logg.Info(logCtx, "order.status_changed")
	case TransitionAlreadyApplied:
		s.logg.Info(logCtx, "order.status_unchanged")
	case TransitionRejected:
		s.logg.Warn(logCtx, "order.transition_rejected")
	case TransitionSuperseded:
		s.logg.Info(logCtx, "order.session_superseded")
	}
	return result, nil
}

func (s *service) emitStatusEvent(ctx context.Context, tx *gorm.DB, order *models.Order, patch StatusPatch, actor *outbox.ActorRef) error {
	eventType := patch.Event
	if eventType == "" {
		var ok bool
		eventType, ok = enums.EventForStatus(order.PaymentStatus)
		if !ok {
			return nil
		}
	}

	var data any
	switch eventType {
	case enums.EventOrderExpired:
		data = payloads.OrderExpiredEvent{
			OrderID:   order.ID,
			OrderCode: order.OrderCode,
			CreatedAt: order.CreatedAt,
			ExpiredAt: order.UpdatedAt,
		}
	default:
		data = payloads.OrderStatusChangedEvent{
			OrderID:         order.ID,
			OrderCode:       order.OrderCode,
			PaymentStatus:   order.PaymentStatus,
			PaymentIntentID: order.PaymentIntentID,
			ChargeID:        order.ChargeID,
			MerchantIDs:     order.MerchantIDs(),
			Source:          patch.Source,
			PaidAt:          order.PaidAt,
		}
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID.String(),
		Actor:         actor,
		Data:          data,
		OccurredAt:    patch.At,
	})
}

// MarkPaidOffline settles an offline order on behalf of a merchant that sold items in it.
// Marking an already paid order again returns it unchanged.
func (s *service) MarkPaidOffline(ctx context.Context, merchantID, code string, actor *outbox.ActorRef) (*models.Order, error) {
	order, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, mapLookupError(err)
	}
	owns, err := s.repo.HasMerchantItems(ctx, order.ID, merchantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check order ownership")
	}
	if !owns {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, pkgerrors.KindOrderNotFound, "order not found")
	}
	if order.PaymentMethod != enums.PaymentMethodOffline {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, pkgerrors.KindInvalidTransition,
			"order %s is settled online", order.OrderCode)
	}

	result, err := s.ApplyStatus(ctx, order.OrderCode, StatusPatch{
		Status: enums.PaymentStatusPaid,
		Source: "offline_mark_paid",
	}, actor)
	if err != nil {
		return nil, err
	}
	if result.Outcome == TransitionRejected {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, pkgerrors.KindInvalidTransition,
			"order %s cannot be marked paid from %s", result.Order.OrderCode, result.Order.PaymentStatus).
			WithDetails(map[string]any{"payment_status": result.Order.PaymentStatus})
	}
	return result.Order, nil
}

func (s *service) ListForMerchant(ctx context.Context, merchantID string, status enums.PaymentStatus, params pagination.Params) (*MerchantOrderList, error) {
	return s.repo.ListByMerchant(ctx, merchantID, status, params)
}

// RecordPayouts stamps payouts_dispatched_at and queues payouts_dispatched together.
// A second call for the same order changes nothing.
func (s *service) RecordPayouts(ctx context.Context, order *models.Order, transfers []payloads.PayoutTransfer, at time.Time) error {
	if order == nil {
		return fmt.Errorf("order required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		stamped, err := s.repo.WithTx(tx).MarkPayoutsDispatched(ctx, order.OrderCode, at)
		if err != nil {
			return err
		}
		if !stamped {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutsDispatched,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID.String(),
			Actor:         &outbox.ActorRef{Kind: outbox.ActorSystem},
			Data: payloads.PayoutsDispatchedEvent{
				OrderID:   order.ID,
				OrderCode: order.OrderCode,
				Transfers: transfers,
			},
			OccurredAt: at,
		})
	})
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, pkgerrors.KindOrderNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
}
