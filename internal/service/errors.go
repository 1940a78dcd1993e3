package service

import "errors"

var (
	ErrEmptyCart         = errors.New("order must contain at least one item")
	ErrInvalidProduct    = errors.New("invalid product")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrMultiSellerCart   = errors.New("one order can only contain items from one seller")

	ErrOrderNotFound   = errors.New("order not found")
	ErrOrderNotPayable = errors.New("order not payable")
	ErrEmptyOrder      = errors.New("order has no items")

	ErrInvalidSignature = errors.New("invalid webhook")
	ErrPaymentProvider  = errors.New("payment provider error")
	ErrConfiguration    = errors.New("payment processor not configured")

	ErrProductNotFound = errors.New("product not found")
	ErrSellerRequired  = errors.New("seller profile required")
	ErrInvalidInput    = errors.New("invalid input")
)
