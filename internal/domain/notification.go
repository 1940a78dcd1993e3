package domain

// EventType is the processor's notification type tag.
type EventType string

const EventCheckoutSessionCompleted EventType = "checkout.session.completed"

// OrderIDMetadataKey is the metadata field that correlates a session back to an order.
const OrderIDMetadataKey = "order_id"

// PaymentNotification is a verified inbound notification from the payment processor.
// SessionCompleted is set only for EventCheckoutSessionCompleted.
type PaymentNotification struct {
	EventID          string
	Type             EventType
	SessionCompleted *SessionCompleted
}

type SessionCompleted struct {
	SessionID       string
	PaymentIntentID string
	Metadata        map[string]string
}

// NotificationOutcome is the non-error result reported back to the processor.
type NotificationOutcome string

const (
	OutcomeOK        NotificationOutcome = "ok"
	OutcomeDuplicate NotificationOutcome = "duplicate"
	OutcomeIgnored   NotificationOutcome = "ignored"
	OutcomeUnhandled NotificationOutcome = "unhandled"
)
