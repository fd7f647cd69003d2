package types

import "strings"

// ShippingAddress is the structured destination captured at checkout.
type ShippingAddress struct {
	Country    string `json:"country" validate:"required,alpha,len=2"`
	City       string `json:"city" validate:"required,max=120"`
	Address    string `json:"address" validate:"required,max=500"`
	PostalCode string `json:"postal_code" validate:"omitempty,max=20"`
}

// Normalized trims every field and upper-cases the country code.
func (a ShippingAddress) Normalized() ShippingAddress {
	return ShippingAddress{
		Country:    strings.ToUpper(strings.TrimSpace(a.Country)),
		City:       strings.TrimSpace(a.City),
		Address:    strings.TrimSpace(a.Address),
		PostalCode: strings.TrimSpace(a.PostalCode),
	}
}
