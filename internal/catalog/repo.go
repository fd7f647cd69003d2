package catalog

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository reads the curated storefront catalog.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindItems(ctx context.Context, keys []pricing.LineKey) ([]models.StorefrontItem, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindItems loads every catalog row matching one of the keys. Rows are not
// filtered on visibility so callers can tell hidden items from missing ones.
func (r *repository) FindItems(ctx context.Context, keys []pricing.LineKey) ([]models.StorefrontItem, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	merchantIDs := make([]string, 0, len(keys))
	mediaIDs := make([]string, 0, len(keys))
	wanted := make(map[pricing.LineKey]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := wanted[key]; ok {
			continue
		}
		wanted[key] = struct{}{}
		merchantIDs = append(merchantIDs, key.MerchantID)
		mediaIDs = append(mediaIDs, key.MediaID)
	}

	var rows []models.StorefrontItem
	err := r.db.WithContext(ctx).
		Where("merchant_id IN ? AND media_id IN ?", merchantIDs, mediaIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	items := make([]models.StorefrontItem, 0, len(rows))
	for _, row := range rows {
		if _, ok := wanted[pricing.LineKey{MerchantID: row.MerchantID, MediaID: row.MediaID}]; ok {
			items = append(items, row)
		}
	}
	return items, nil
}
