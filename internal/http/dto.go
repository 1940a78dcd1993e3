package http

import (
	"time"

	"github.com/Lumixions/flutter-marketplace/internal/domain"
	"github.com/Lumixions/flutter-marketplace/internal/storage"
)

type AddressDTO struct {
	FullName   string `json:"full_name" validate:"required,max=200"`
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2" validate:"max=200"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state" validate:"max=100"`
	PostalCode string `json:"postal_code" validate:"required,max=40"`
	Country    string `json:"country" validate:"omitempty,len=2"`
	Phone      string `json:"phone" validate:"max=40"`
}

func (a AddressDTO) toDomain() domain.Address {
	country := a.Country
	if country == "" {
		country = "US"
	}
	return domain.Address{
		FullName:   a.FullName,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    country,
		Phone:      a.Phone,
	}
}

type OrderLineDTO struct {
	ProductID int64 `json:"product_id" validate:"required"`
	Quantity  int64 `json:"quantity" validate:"gte=1"`
}

type CreateOrderRequestDTO struct {
	Items           []OrderLineDTO `json:"items" validate:"required,min=1,dive"`
	ShippingAddress AddressDTO     `json:"shipping_address"`
}

func (req CreateOrderRequestDTO) lines() []domain.CartLine {
	lines := make([]domain.CartLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, domain.CartLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines
}

type OrderItemDTO struct {
	ID             int64  `json:"id"`
	ProductID      int64  `json:"product_id"`
	Title          string `json:"title"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int64  `json:"quantity"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type OrderResponseDTO struct {
	ID            int64          `json:"id"`
	BuyerID       int64          `json:"buyer_id"`
	SellerID      int64          `json:"seller_id"`
	Status        string         `json:"status"`
	Currency      string         `json:"currency"`
	SubtotalCents int64          `json:"subtotal_cents"`
	TotalCents    int64          `json:"total_cents"`
	CreatedAt     time.Time      `json:"created_at"`
	Items         []OrderItemDTO `json:"items"`
}

func convertOrder(o *domain.Order) OrderResponseDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemDTO{
			ID:             it.ID,
			ProductID:      it.ProductID,
			Title:          it.Title,
			UnitPriceCents: it.UnitPriceCents,
			Quantity:       it.Quantity,
			LineTotalCents: it.LineTotalCents,
		})
	}
	return OrderResponseDTO{
		ID:            o.ID,
		BuyerID:       o.BuyerID,
		SellerID:      o.SellerID,
		Status:        o.Status.String(),
		Currency:      o.Currency,
		SubtotalCents: o.SubtotalCents,
		TotalCents:    o.TotalCents,
		CreatedAt:     o.CreatedAt,
		Items:         items,
	}
}

type CheckoutResponseDTO struct {
	CheckoutURL     string `json:"checkout_url"`
	StripeSessionID string `json:"stripe_session_id"`
}

type ProductCreateDTO struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=4000"`
	PriceCents  int64  `json:"price_cents" validate:"gte=0"`
	Currency    string `json:"currency" validate:"omitempty,len=3"`
	StockQty    int64  `json:"stock_qty" validate:"gte=0"`
	IsActive    *bool  `json:"is_active"`
}

func (d ProductCreateDTO) toDomain() domain.Product {
	active := true
	if d.IsActive != nil {
		active = *d.IsActive
	}
	return domain.Product{
		Title:       d.Title,
		Description: d.Description,
		PriceCents:  d.PriceCents,
		Currency:    d.Currency,
		StockQty:    d.StockQty,
		IsActive:    active,
	}
}

// ProductUpdateDTO is a partial edit; absent fields are left untouched.
type ProductUpdateDTO struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=4000"`
	PriceCents  *int64  `json:"price_cents" validate:"omitempty,gte=0"`
	Currency    *string `json:"currency" validate:"omitempty,len=3"`
	StockQty    *int64  `json:"stock_qty" validate:"omitempty,gte=0"`
	IsActive    *bool   `json:"is_active"`
}

func (d ProductUpdateDTO) toDomain() domain.ProductUpdate {
	return domain.ProductUpdate{
		Title:       d.Title,
		Description: d.Description,
		PriceCents:  d.PriceCents,
		Currency:    d.Currency,
		StockQty:    d.StockQty,
		IsActive:    d.IsActive,
	}
}

type AttachImagesDTO struct {
	S3Keys []string `json:"s3_keys" validate:"required,min=1,dive,required"`
}

type ProductImageDTO struct {
	ID        int64   `json:"id"`
	S3Key     string  `json:"s3_key"`
	SortOrder int     `json:"sort_order"`
	URL       *string `json:"url"`
}

type ProductResponseDTO struct {
	ID          int64             `json:"id"`
	SellerID    int64             `json:"seller_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	PriceCents  int64             `json:"price_cents"`
	Currency    string            `json:"currency"`
	StockQty    int64             `json:"stock_qty"`
	IsActive    bool              `json:"is_active"`
	Images      []ProductImageDTO `json:"images"`
}

func convertProduct(p *domain.Product, urls *storage.URLResolver) ProductResponseDTO {
	images := make([]ProductImageDTO, 0, len(p.Images))
	for _, img := range p.Images {
		dto := ProductImageDTO{ID: img.ID, S3Key: img.Key, SortOrder: img.SortOrder}
		if u := urls.PublicURL(img.Key); u != "" {
			dto.URL = &u
		}
		images = append(images, dto)
	}
	return ProductResponseDTO{
		ID:          p.ID,
		SellerID:    p.SellerID,
		Title:       p.Title,
		Description: p.Description,
		PriceCents:  p.PriceCents,
		Currency:    p.Currency,
		StockQty:    p.StockQty,
		IsActive:    p.IsActive,
		Images:      images,
	}
}

func convertProducts(products []*domain.Product, urls *storage.URLResolver) []ProductResponseDTO {
	dtos := make([]ProductResponseDTO, 0, len(products))
	for _, p := range products {
		dtos = append(dtos, convertProduct(p, urls))
	}
	return dtos
}

type SellerProfileUpsertDTO struct {
	StoreName string `json:"store_name" validate:"required,max=200"`
}

type SellerProfileDTO struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	StoreName string `json:"store_name"`
	Status    string `json:"status"`
}

func convertSeller(sp *domain.SellerProfile) *SellerProfileDTO {
	if sp == nil {
		return nil
	}
	return &SellerProfileDTO{
		ID:        sp.ID,
		UserID:    sp.UserID,
		StoreName: sp.StoreName,
		Status:    string(sp.Status),
	}
}
