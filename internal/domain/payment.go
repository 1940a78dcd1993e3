package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

func (s PaymentStatus) String() string {
	return string(s)
}

// Payment correlates an order with at most one external checkout session.
type Payment struct {
	ID              int64
	OrderID         int64
	SessionID       string
	PaymentIntentID string
	Status          PaymentStatus
	CreatedAt       time.Time
}

func (p *Payment) HasSession() bool {
	return p != nil && p.SessionID != ""
}

// CheckoutSession is what the buyer is redirected to.
type CheckoutSession struct {
	SessionID string
	URL       string
}
