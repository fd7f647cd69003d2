package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderItem is the immutable snapshot of a purchased catalog item.
type OrderItem struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	MerchantID string          `gorm:"column:merchant_id;type:text;not null;index"`
	MediaID    string          `gorm:"column:media_id;type:text;not null"`
	Title      string          `gorm:"column:title;not null"`
	ImageURL   *string         `gorm:"column:image_url"`
	Permalink  *string         `gorm:"column:permalink"`
	Caption    *string         `gorm:"column:caption"`
	UnitPrice  decimal.Decimal `gorm:"column:unit_price;type:numeric(18,3);not null"`
	Currency   string          `gorm:"column:currency;type:text;not null"`
	Quantity   int             `gorm:"column:quantity;not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (OrderItem) TableName() string { return "order_items" }

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// LineTotal returns unit price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
