package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// StatusPatch is one requested payment status change plus the processor references it carries.
type StatusPatch struct {
	Status          enums.PaymentStatus
	PaymentIntentID *string
	ChargeID        *string
	At              time.Time
	// Source names what triggered the change, e.g. a webhook event type.
	Source string
	// Event overrides the outbox event emitted on success.
	Event enums.OutboxEventType
	// SessionID limits the transition to orders whose current payment session it is.
	SessionID *string
}

// TransitionOutcome classifies the result of UpdateStatus.
type TransitionOutcome string

const (
	TransitionApplied        TransitionOutcome = "applied"
	TransitionAlreadyApplied TransitionOutcome = "already_applied"
	TransitionRejected       TransitionOutcome = "rejected"
	// TransitionSuperseded means the patch came from a session the order no longer uses.
	TransitionSuperseded     TransitionOutcome = "superseded"
)

// TransitionResult carries the order as stored after the attempt.
type TransitionResult struct {
	Outcome TransitionOutcome
	Order   *models.Order
}

// OrderItemView is the public shape of a line-item snapshot.
type OrderItemView struct {
	MerchantID string          `json:"merchant_id"`
	MediaID    string          `json:"media_id"`
	Title      string          `json:"title"`
	ImageURL   *string         `json:"image_url,omitempty"`
	Permalink  *string         `json:"permalink,omitempty"`
	Caption    *string         `json:"caption,omitempty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Currency   string          `json:"currency"`
	Quantity   int             `json:"quantity"`
	LineTotal  decimal.Decimal `json:"line_total"`
}

// OrderView is returned by the confirmation endpoint.
type OrderView struct {
	OrderCode       string                `json:"order_code"`
	CustomerName    string                `json:"customer_name"`
	CustomerEmail   string                `json:"customer_email"`
	CustomerPhone   string                `json:"customer_phone"`
	ShippingAddress types.ShippingAddress `json:"shipping_address"`
	Note            *string               `json:"note,omitempty"`
	PaymentMethod   enums.PaymentMethod   `json:"payment_method"`
	PaymentStatus   enums.PaymentStatus   `json:"payment_status"`
	Currency        string                `json:"currency"`
	CurrencyTotals  models.CurrencyTotals `json:"currency_totals"`
	MerchantTotals  models.MerchantTotals `json:"merchant_totals"`
	Total           decimal.Decimal       `json:"total"`
	Items           []OrderItemView       `json:"items"`
	CreatedAt       time.Time             `json:"created_at"`
	PaidAt          *time.Time            `json:"paid_at,omitempty"`
}

// NewOrderView maps a stored order with preloaded items to its public view.
func NewOrderView(order *models.Order) OrderView {
	items := make([]OrderItemView, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemView{
			MerchantID: item.MerchantID,
			MediaID:    item.MediaID,
			Title:      item.Title,
			ImageURL:   item.ImageURL,
			Permalink:  item.Permalink,
			Caption:    item.Caption,
			UnitPrice:  item.UnitPrice,
			Currency:   item.Currency,
			Quantity:   item.Quantity,
			LineTotal:  item.LineTotal(),
		})
	}
	return OrderView{
		OrderCode:       order.OrderCode,
		CustomerName:    order.CustomerName,
		CustomerEmail:   order.CustomerEmail,
		CustomerPhone:   order.CustomerPhone,
		ShippingAddress: order.ShippingAddress,
		Note:            order.Note,
		PaymentMethod:   order.PaymentMethod,
		PaymentStatus:   order.PaymentStatus,
		Currency:        order.Currency,
		CurrencyTotals:  order.CurrencyTotals,
		MerchantTotals:  order.MerchantTotals,
		Total:           order.CurrencyTotals[order.Currency],
		Items:           items,
		CreatedAt:       order.CreatedAt,
		PaidAt:          order.PaidAt,
	}
}

// MerchantOrderSummary is one row of a merchant's order list, scoped to that merchant's lines.
type MerchantOrderSummary struct {
	OrderCode     string              `json:"order_code"`
	CustomerName  string              `json:"customer_name"`
	CustomerEmail string              `json:"customer_email"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Currency      string              `json:"currency"`
	MerchantTotal decimal.Decimal     `json:"merchant_total"`
	ItemCount     int                 `json:"item_count"`
	CreatedAt     time.Time           `json:"created_at"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
}

// MerchantOrderList wraps the paginated orders plus the next page cursor.
type MerchantOrderList struct {
	Orders     []MerchantOrderSummary `json:"orders"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}
