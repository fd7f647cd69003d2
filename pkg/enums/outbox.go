package enums

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder                  OutboxAggregateType = "order"
	AggregateMerchantPaymentAccount OutboxAggregateType = "merchant_payment_account"
)

var aggregateTypes = []OutboxAggregateType{AggregateOrder, AggregateMerchantPaymentAccount}

func (a OutboxAggregateType) IsValid() bool { return member(a, aggregateTypes) }

// OutboxEventType names a domain event published through the outbox.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order_created"
	EventOrderPaid             OutboxEventType = "order_paid"
	EventOrderFailed           OutboxEventType = "order_failed"
	EventOrderRefunded         OutboxEventType = "order_refunded"
	EventOrderDisputed         OutboxEventType = "order_disputed"
	EventOrderExpired          OutboxEventType = "order_expired"
	EventPayoutsDispatched     OutboxEventType = "payouts_dispatched"
	EventMerchantAccountSynced OutboxEventType = "merchant_account_synced"
)

var eventTypes = []OutboxEventType{
	EventOrderCreated, EventOrderPaid, EventOrderFailed, EventOrderRefunded,
	EventOrderDisputed, EventOrderExpired, EventPayoutsDispatched, EventMerchantAccountSynced,
}

func (e OutboxEventType) IsValid() bool { return member(e, eventTypes) }

// statusEvents pairs each reachable order status with the event announcing it.
var statusEvents = map[PaymentStatus]OutboxEventType{
	PaymentStatusPaid:     EventOrderPaid,
	PaymentStatusFailed:   EventOrderFailed,
	PaymentStatusRefunded: EventOrderRefunded,
	PaymentStatusDisputed: EventOrderDisputed,
}

// EventForStatus returns the event emitted when an order enters status.
func EventForStatus(status PaymentStatus) (OutboxEventType, bool) {
	ev, ok := statusEvents[status]
	return ev, ok
}

// OutboxDLQErrorReason records why an outbox row stopped being retried.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
