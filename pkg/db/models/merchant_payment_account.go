package models

import "time"

// MerchantPaymentAccount links a merchant to its processor sub-account.
type MerchantPaymentAccount struct {
	MerchantID        string    `gorm:"column:merchant_id;type:text;primaryKey"`
	ProviderAccountID *string   `gorm:"column:provider_account_id;uniqueIndex:ux_merchant_payment_accounts_provider"`
	ChargesEnabled    bool      `gorm:"column:charges_enabled;not null;default:false"`
	PayoutsEnabled    bool      `gorm:"column:payouts_enabled;not null;default:false"`
	DetailsSubmitted  bool      `gorm:"column:details_submitted;not null;default:false"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (MerchantPaymentAccount) TableName() string { return "merchant_payment_accounts" }

// IsPayable reports whether the account can receive destination charges.
func (a *MerchantPaymentAccount) IsPayable() bool {
	return a != nil && a.ProviderAccountID != nil && *a.ProviderAccountID != "" && a.ChargesEnabled
}
