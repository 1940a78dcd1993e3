package domain

import "time"

type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderStatusPaid           OrderStatus = "PAID"
)

// CanTransitionTo reports whether an order may move from s to next.
// Orders only move forward; nothing leaves PAID.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return s == OrderStatusPendingPayment && next == OrderStatusPaid
}

func (s OrderStatus) IsPayable() bool {
	return s == OrderStatusPendingPayment
}

func (s OrderStatus) String() string {
	return string(s)
}

// OrderItem is a snapshot of the product at order time. Title and price are
// copied, never joined, so later product edits do not rewrite history.
type OrderItem struct {
	ID             int64
	OrderID        int64
	ProductID      int64
	Title          string
	UnitPriceCents int64
	Quantity       int64
	LineTotalCents int64
}

type Order struct {
	ID                int64
	BuyerID           int64
	SellerID          int64
	ShippingAddressID int64
	Status            OrderStatus
	Currency          string
	SubtotalCents     int64
	TotalCents        int64
	Items             []OrderItem
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CartLine is one requested (product, quantity) pair.
type CartLine struct {
	ProductID int64
	Quantity  int64
}
