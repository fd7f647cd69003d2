package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Repository defines persistence operations for the orders and order_items tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	AttachItems(ctx context.Context, orderID uuid.UUID, items []models.OrderItem) error
	UpdateStatus(ctx context.Context, code string, patch StatusPatch) (*TransitionResult, error)
	SetPaymentSession(ctx context.Context, code, sessionID string) error
	ReplacePaymentSession(ctx context.Context, code string, from, to *string) (bool, error)
	FindByCode(ctx context.Context, code string) (*models.Order, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error)
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	FindAwaitingPayouts(ctx context.Context, limit int) ([]models.Order, error)
	MarkPayoutsDispatched(ctx context.Context, code string, at time.Time) (bool, error)
	HasMerchantItems(ctx context.Context, orderID uuid.UUID, merchantID string) (bool, error)
	ListByMerchant(ctx context.Context, merchantID string, status enums.PaymentStatus, params pagination.Params) (*MerchantOrderList, error)
}
