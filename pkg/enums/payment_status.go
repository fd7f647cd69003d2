package enums

import "slices"

// PaymentStatus is the settlement state of an order.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusUnpaid   PaymentStatus = "UNPAID"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
	PaymentStatusDisputed PaymentStatus = "DISPUTED"
)

var paymentStatuses = []PaymentStatus{
	PaymentStatusPending, PaymentStatusUnpaid, PaymentStatusPaid,
	PaymentStatusFailed, PaymentStatusRefunded, PaymentStatusDisputed,
}

// paymentTransitions maps a target status to the statuses it may be entered from.
// FAILED -> PAID is allowed: a captured payment beats an earlier decline.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPaid:     {PaymentStatusPending, PaymentStatusUnpaid, PaymentStatusFailed},
	PaymentStatusFailed:   {PaymentStatusPending, PaymentStatusUnpaid},
	PaymentStatusRefunded: {PaymentStatusPaid},
	PaymentStatusDisputed: {PaymentStatusPaid},
}

func (p PaymentStatus) String() string { return string(p) }

// IsAwaitingPayment reports whether the order still waits for money.
func (p PaymentStatus) IsAwaitingPayment() bool {
	return p == PaymentStatusPending || p == PaymentStatusUnpaid
}

// TransitionSources returns a copy of the statuses p may be entered from.
func (p PaymentStatus) TransitionSources() []PaymentStatus {
	return slices.Clone(paymentTransitions[p])
}

// CanTransitionTo reports whether p -> next is a forward move.
func (p PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return member(p, paymentTransitions[next])
}

func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	return lookup("payment status", raw, paymentStatuses)
}
