package merchants

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Capabilities mirrors the processor flags persisted on merchant_payment_accounts.
type Capabilities struct {
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

// Repository handles merchant and payment account persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to merchant operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindBySlug loads a merchant by its public slug.
func (r *Repository) FindBySlug(ctx context.Context, slug string) (*models.Merchant, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var merchant models.Merchant
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&merchant).Error; err != nil {
		return nil, err
	}
	return &merchant, nil
}

// FindByOwner returns the merchants owned by the provided user.
func (r *Repository) FindByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Merchant, error) {
	var merchants []models.Merchant
	if err := r.db.WithContext(ctx).Where("owner_user_id = ?", ownerID).Order("slug ASC").Find(&merchants).Error; err != nil {
		return nil, err
	}
	return merchants, nil
}

// FindPaymentAccount returns the merchant's account row or nil when none exists yet.
func (r *Repository) FindPaymentAccount(ctx context.Context, merchantID string) (*models.MerchantPaymentAccount, error) {
	var account models.MerchantPaymentAccount
	err := r.db.WithContext(ctx).Where("merchant_id = ?", merchantID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// FindPaymentAccounts loads the account rows for the given merchants keyed by merchant id.
// Merchants without a row are absent from the map.
func (r *Repository) FindPaymentAccounts(ctx context.Context, merchantIDs []string) (map[string]models.MerchantPaymentAccount, error) {
	out := make(map[string]models.MerchantPaymentAccount, len(merchantIDs))
	if len(merchantIDs) == 0 {
		return out, nil
	}
	var rows []models.MerchantPaymentAccount
	if err := r.db.WithContext(ctx).Where("merchant_id IN ?", merchantIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.MerchantID] = row
	}
	return out, nil
}

// FindPaymentAccountByProvider resolves a processor account id back to its row.
func (r *Repository) FindPaymentAccountByProvider(ctx context.Context, providerAccountID string) (*models.MerchantPaymentAccount, error) {
	var account models.MerchantPaymentAccount
	err := r.db.WithContext(ctx).Where("provider_account_id = ?", providerAccountID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// EnsurePaymentAccount creates the merchant's account row if missing and returns it.
func (r *Repository) EnsurePaymentAccount(ctx context.Context, merchantID string) (*models.MerchantPaymentAccount, error) {
	row := models.MerchantPaymentAccount{MerchantID: merchantID}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "merchant_id"}}, DoNothing: true}).
		Create(&row).Error; err != nil {
		return nil, err
	}
	account, err := r.FindPaymentAccount(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return account, nil
}

// SetProviderAccountID stores the processor account id only if none is set.
// It reports false when the row already carried an id.
func (r *Repository) SetProviderAccountID(ctx context.Context, merchantID, providerAccountID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.MerchantPaymentAccount{}).
		Where("merchant_id = ? AND provider_account_id IS NULL", merchantID).
		Update("provider_account_id", providerAccountID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateCapabilities overwrites the processor flags and reports whether any flag changed.
func (r *Repository) UpdateCapabilities(ctx context.Context, merchantID string, caps Capabilities) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.MerchantPaymentAccount{}).
		Where("merchant_id = ?", merchantID).
		Where("charges_enabled <> ? OR payouts_enabled <> ? OR details_submitted <> ?",
			caps.ChargesEnabled, caps.PayoutsEnabled, caps.DetailsSubmitted).
		Updates(map[string]any{
			"charges_enabled":   caps.ChargesEnabled,
			"payouts_enabled":   caps.PayoutsEnabled,
			"details_submitted": caps.DetailsSubmitted,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
