package payments

import (
	"sort"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// NotPayableDetail lists merchants whose processor account cannot accept charges.
type NotPayableDetail struct {
	MerchantIDs []string `json:"merchant_ids"`
}

// ResolveDestination checks every merchant in the order has a charges-enabled account.
// A single-merchant order returns that merchant's account as the charge destination;
// multi-merchant orders return nil and are settled by transfers after payment.
func ResolveDestination(merchantIDs []string, accounts map[string]models.MerchantPaymentAccount) (*string, error) {
	var missing []string
	for _, id := range merchantIDs {
		account, ok := accounts[id]
		if !ok || !account.IsPayable() {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, pkgerrors.KindMerchantNotPayable,
			"%d merchant(s) cannot accept online payments", len(missing)).
			WithDetails(NotPayableDetail{MerchantIDs: missing})
	}
	if len(merchantIDs) != 1 {
		return nil, nil
	}
	account := accounts[merchantIDs[0]]
	dest := *account.ProviderAccountID
	return &dest, nil
}
