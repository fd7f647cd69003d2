package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// CurrencyTotals maps an ISO 4217 code to a major-unit amount.
type CurrencyTotals map[string]decimal.Decimal

// MerchantTotals maps a merchant id to its per-currency subtotal.
type MerchantTotals map[string]CurrencyTotals

// Order is a customer checkout. Totals are computed once at creation from Items.
type Order struct {
	ID                  uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderCode           string                `gorm:"column:order_code;type:text;not null;uniqueIndex:ux_orders_order_code"`
	CustomerName        string                `gorm:"column:customer_name;not null"`
	CustomerEmail       string                `gorm:"column:customer_email;not null"`
	CustomerPhone       string                `gorm:"column:customer_phone;not null"`
	ShippingAddress     types.ShippingAddress `gorm:"column:shipping_address;type:jsonb;serializer:json;not null"`
	Note                *string               `gorm:"column:note"`
	PaymentMethod       enums.PaymentMethod   `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus       enums.PaymentStatus   `gorm:"column:payment_status;type:text;not null;index"`
	Currency            string                `gorm:"column:currency;type:text;not null"`
	CurrencyTotals      CurrencyTotals        `gorm:"column:currency_totals;type:jsonb;serializer:json;not null"`
	MerchantTotals      MerchantTotals        `gorm:"column:merchant_totals;type:jsonb;serializer:json;not null"`
	PaymentSessionID    *string               `gorm:"column:payment_session_id"`
	PaymentIntentID     *string               `gorm:"column:payment_intent_id;index"`
	ChargeID            *string               `gorm:"column:charge_id"`
	PaidAt              *time.Time            `gorm:"column:paid_at"`
	PayoutsDispatchedAt *time.Time            `gorm:"column:payouts_dispatched_at"`
	Items               []OrderItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// MerchantIDs returns the merchants that have items in the order, sorted.
func (o *Order) MerchantIDs() []string {
	ids := make([]string, 0, len(o.MerchantTotals))
	for id := range o.MerchantTotals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsMultiMerchant reports whether settlement must be split across merchants.
func (o *Order) IsMultiMerchant() bool {
	return len(o.MerchantTotals) > 1
}
