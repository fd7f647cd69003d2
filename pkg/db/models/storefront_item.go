package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StorefrontItem is a curated Instagram media entry offered for sale.
// Rows are produced by the media sync job; checkout only reads them.
type StorefrontItem struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	MerchantID string          `gorm:"column:merchant_id;type:text;not null;uniqueIndex:ux_storefront_items_media,priority:1"`
	MediaID    string          `gorm:"column:media_id;type:text;not null;uniqueIndex:ux_storefront_items_media,priority:2"`
	Title      string          `gorm:"column:title;not null"`
	ImageURL   *string         `gorm:"column:image_url"`
	Permalink  *string         `gorm:"column:permalink"`
	Caption    *string         `gorm:"column:caption"`
	Price      decimal.Decimal `gorm:"column:price;type:numeric(18,3);not null"`
	Currency   string          `gorm:"column:currency;type:text;not null"`
	Visible    bool            `gorm:"column:visible;not null;default:true"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (StorefrontItem) TableName() string { return "storefront_items" }

func (s *StorefrontItem) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
