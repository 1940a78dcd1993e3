package domain

import "time"

const DefaultCurrency = "USD"

type Product struct {
	ID          int64
	SellerID    int64
	Title       string
	Description string
	PriceCents  int64
	Currency    string
	StockQty    int64
	IsActive    bool
	Images      []ProductImage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductImage references an object-storage key, never the bytes themselves.
type ProductImage struct {
	ID        int64
	ProductID int64
	Key       string
	SortOrder int
	CreatedAt time.Time
}

// ProductUpdate carries a partial edit; nil fields are left untouched.
type ProductUpdate struct {
	Title       *string
	Description *string
	PriceCents  *int64
	Currency    *string
	StockQty    *int64
	IsActive    *bool
}

// DecrementStock lowers stock by qty, clamping at zero.
func DecrementStock(stock, qty int64) int64 {
	if qty >= stock {
		return 0
	}
	return stock - qty
}
