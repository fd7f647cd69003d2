package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderCreatedEvent signals a new checkout, online or offline.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderCode     string              `json:"order_code"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Currency      string              `json:"currency"`
	Total         string              `json:"total"`
	MerchantIDs   []string            `json:"merchant_ids"`
	CustomerEmail string              `json:"customer_email"`
}

// OrderStatusChangedEvent is emitted when an order enters PAID, FAILED, REFUNDED or DISPUTED.
type OrderStatusChangedEvent struct {
	OrderID         uuid.UUID           `json:"order_id"`
	OrderCode       string              `json:"order_code"`
	PaymentStatus   enums.PaymentStatus `json:"payment_status"`
	PaymentIntentID *string             `json:"payment_intent_id,omitempty"`
	ChargeID        *string             `json:"charge_id,omitempty"`
	MerchantIDs     []string            `json:"merchant_ids"`
	Source          string              `json:"source,omitempty"`
	PaidAt          *time.Time          `json:"paid_at,omitempty"`
}

// OrderExpiredEvent is emitted when the stale sweep fails a PENDING order.
type OrderExpiredEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	OrderCode string    `json:"order_code"`
	CreatedAt time.Time `json:"created_at"`
	ExpiredAt time.Time `json:"expired_at"`
}

// PayoutTransfer records one merchant's share of a split order.
type PayoutTransfer struct {
	MerchantID  string `json:"merchant_id"`
	AccountID   string `json:"account_id"`
	TransferID  string `json:"transfer_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

// PayoutsDispatchedEvent is emitted once every merchant transfer of an order succeeded.
type PayoutsDispatchedEvent struct {
	OrderID   uuid.UUID        `json:"order_id"`
	OrderCode string           `json:"order_code"`
	Transfers []PayoutTransfer `json:"transfers"`
}

// MerchantAccountSyncedEvent carries the capability flags after a refresh.
type MerchantAccountSyncedEvent struct {
	MerchantID        string `json:"merchant_id"`
	ProviderAccountID string `json:"provider_account_id"`
	ChargesEnabled    bool   `json:"charges_enabled"`
	PayoutsEnabled    bool   `json:"payouts_enabled"`
	DetailsSubmitted  bool   `json:"details_submitted"`
}
