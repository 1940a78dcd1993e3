package repository

import (
	"context"
	"errors"

	"github.com/Lumixions/flutter-marketplace/internal/domain"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrSellerNotFound   = errors.New("seller profile not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrDuplicateEvent   = errors.New("payment event already processed")
	ErrDuplicatePayment = errors.New("payment for this order or session already exists")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// CatalogStore owns products and their images.
type CatalogStore interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Product, error)
	ListActiveProducts(ctx context.Context) ([]*domain.Product, error)
	ListProductsBySeller(ctx context.Context, sellerID int64) ([]*domain.Product, error)
	CreateProduct(ctx context.Context, p *domain.Product) error
	UpdateProduct(ctx context.Context, id int64, u domain.ProductUpdate) (*domain.Product, error)
	AddProductImages(ctx context.Context, productID int64, keys []string) error
	// DecrementStock lowers stock by qty, never below zero. Unknown products are skipped.
	DecrementStock(ctx context.Context, productID, qty int64) error
}

type SellerStore interface {
	GetSellerByUserID(ctx context.Context, userID int64) (*domain.SellerProfile, error)
	UpsertSeller(ctx context.Context, userID int64, storeName string) (*domain.SellerProfile, error)
}

// OrderLedger owns orders, their items and shipping addresses.
type OrderLedger interface {
	CreateAddress(ctx context.Context, a *domain.Address) error
	// CreateOrder inserts the order and all of its items, filling in generated ids.
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrdersByBuyer(ctx context.Context, buyerID int64) ([]*domain.Order, error)
	// MarkOrderPaid moves a PENDING_PAYMENT order to PAID and reports whether
	// this call performed the transition.
	MarkOrderPaid(ctx context.Context, id int64) (bool, error)
}

// PaymentTracker owns the order -> checkout session mapping.
type PaymentTracker interface {
	GetPaymentByOrderID(ctx context.Context, orderID int64) (*domain.Payment, error)
	CreatePayment(ctx context.Context, p *domain.Payment) error
	UpdatePayment(ctx context.Context, p *domain.Payment) error
}

// EventLedger is the write-once set of processed notification ids.
type EventLedger interface {
	RecordEvent(ctx context.Context, eventID string) error
}

type Store interface {
	Catalog() CatalogStore
	Sellers() SellerStore
	Orders() OrderLedger
	Payments() PaymentTracker
	Events() EventLedger
}

type RepoInterface interface {
	Store
	// WithTx runs fn against a transactional view of the store. Nothing fn
	// writes is visible to others unless fn returns nil and the commit succeeds.
	WithTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
	Close() error
}
