package models

import (
	"time"

	"github.com/google/uuid"
)

// Merchant is a storefront owner. Its id is the stable key used by catalog and order rows.
type Merchant struct {
	ID          string    `gorm:"column:id;type:text;primaryKey"`
	Slug        string    `gorm:"column:slug;type:text;not null;uniqueIndex:ux_merchants_slug"`
	OwnerUserID uuid.UUID `gorm:"column:owner_user_id;type:uuid;not null;index"`
	DisplayName string    `gorm:"column:display_name;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Merchant) TableName() string { return "merchants" }
