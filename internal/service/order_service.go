package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lumixions/flutter-marketplace/internal/domain"
	"github.com/Lumixions/flutter-marketplace/internal/repository"
)

type OrderService struct {
	repo repository.RepoInterface
	log  *slog.Logger
}

func NewOrderService(repo repository.RepoInterface, log *slog.Logger) *OrderService {
	if log == nil {
		log = slog.Default()
	}
	return &OrderService{repo: repo, log: log}
}

// PlaceOrder validates the cart against current catalog state and records a
// PENDING_PAYMENT order with snapshotted lines. Stock is not reserved.
func (s *OrderService) PlaceOrder(ctx context.Context, buyerID int64, lines []domain.CartLine, addr domain.Address) (*domain.Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}

	var order *domain.Order
	err := s.repo.WithTx(ctx, func(tx repository.Store) error {
		products, err := tx.Catalog().GetProductsByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("load products: %w", err)
		}

		o, err := buildOrder(buyerID, lines, products)
		if err != nil {
			return err
		}

		addr.UserID = buyerID
		if err := tx.Orders().CreateAddress(ctx, &addr); err != nil {
			return fmt.Errorf("create address: %w", err)
		}
		o.ShippingAddressID = addr.ID

		if err := tx.Orders().CreateOrder(ctx, o); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "order placed",
		"order_id", order.ID,
		"buyer_id", buyerID,
		"seller_id", order.SellerID,
		"total_cents", order.TotalCents)
	return order, nil
}

// buildOrder checks every line in input order and stops at the first failure.
func buildOrder(buyerID int64, lines []domain.CartLine, products map[int64]*domain.Product) (*domain.Order, error) {
	var sellerID, subtotal int64
	currency := ""
	items := make([]domain.OrderItem, 0, len(lines))

	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok || !p.IsActive {
			return nil, fmt.Errorf("%w: %d", ErrInvalidProduct, l.ProductID)
		}
		if l.Quantity < 1 {
			return nil, fmt.Errorf("%w: product %d", ErrInvalidQuantity, l.ProductID)
		}
		if p.StockQty < l.Quantity {
			return nil, fmt.Errorf("%w for %d", ErrInsufficientStock, p.ID)
		}

		if len(items) == 0 {
			sellerID = p.SellerID
			currency = p.Currency
		} else if sellerID != p.SellerID {
			return nil, ErrMultiSellerCart
		}

		lineTotal := p.PriceCents * l.Quantity
		subtotal += lineTotal
		items = append(items, domain.OrderItem{
			ProductID:      p.ID,
			Title:          p.Title,
			UnitPriceCents: p.PriceCents,
			Quantity:       l.Quantity,
			LineTotalCents: lineTotal,
		})
	}

	if currency == "" {
		currency = domain.DefaultCurrency
	}

	return &domain.Order{
		BuyerID:       buyerID,
		SellerID:      sellerID,
		Status:        domain.OrderStatusPendingPayment,
		Currency:      currency,
		SubtotalCents: subtotal,
		TotalCents:    subtotal,
		Items:         items,
	}, nil
}

func (s *OrderService) ListOrders(ctx context.Context, buyerID int64) ([]*domain.Order, error) {
	orders, err := s.repo.Orders().ListOrdersByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// GetOrder answers ErrOrderNotFound for orders owned by someone else.
func (s *OrderService) GetOrder(ctx context.Context, buyerID, orderID int64) (*domain.Order, error) {
	order, err := s.repo.Orders().GetOrder(ctx, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order.BuyerID != buyerID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}
