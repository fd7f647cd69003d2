package enums

// PaymentMethod is how a customer settles an order.
type PaymentMethod string

const (
	PaymentMethodOffline     PaymentMethod = "OFFLINE"
	PaymentMethodOnlineSplit PaymentMethod = "ONLINE_SPLIT"
)

func (p PaymentMethod) String() string { return string(p) }

// InitialStatus is where a new order with this method starts.
func (p PaymentMethod) InitialStatus() PaymentStatus {
	if p == PaymentMethodOffline {
		return PaymentStatusUnpaid
	}
	return PaymentStatusPending
}
