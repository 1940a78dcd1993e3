package domain

import "time"

type SellerStatus string

const SellerStatusActive SellerStatus = "ACTIVE"

type SellerProfile struct {
	ID        int64
	UserID    int64
	StoreName string
	Status    SellerStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
