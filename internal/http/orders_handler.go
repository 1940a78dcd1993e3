package http

import (
	"context"
	"net/http"
	"time"

	"github.com/Lumixions/flutter-marketplace/internal/domain"
	"github.com/Lumixions/flutter-marketplace/pkg/metrics"
)

type Orders interface {
	PlaceOrder(ctx context.Context, buyerID int64, lines []domain.CartLine, addr domain.Address) (*domain.Order, error)
	ListOrders(ctx context.Context, buyerID int64) ([]*domain.Order, error)
	GetOrder(ctx context.Context, buyerID, orderID int64) (*domain.Order, error)
}

type Checkout interface {
	InitiateCheckout(ctx context.Context, buyerID, orderID int64) (*domain.CheckoutSession, error)
}

type OrdersHandler struct {
	orders   Orders
	checkout Checkout
	metrics  *metrics.Metrics
	timeout  time.Duration
	maxBody  int64
}

func NewOrdersHandler(orders Orders, checkout Checkout, m *metrics.Metrics, timeout time.Duration, maxBody int64) *OrdersHandler {
	return &OrdersHandler{
		orders:   orders,
		checkout: checkout,
		metrics:  m,
		timeout:  timeout,
		maxBody:  maxBody,
	}
}

// POST /api/v1/orders
func (h *OrdersHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateOrderRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}

	order, err := h.orders.PlaceOrder(ctx, getUserIDFromContext(r.Context()), req.lines(), req.ShippingAddress.toDomain())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.metrics.OrderPlaced()
	respondJSON(w, http.StatusCreated, convertOrder(order))
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListOrders(ctx, getUserIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	dtos := make([]OrderResponseDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, convertOrder(o))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := pathID(w, r, "order_id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, getUserIDFromContext(r.Context()), orderID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, convertOrder(order))
}

// POST /api/v1/orders/{order_id}/checkout
// The checkout service bounds processor calls itself, so no extra timeout here.
func (h *OrdersHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "order_id")
	if !ok {
		return
	}

	sess, err := h.checkout.InitiateCheckout(r.Context(), getUserIDFromContext(r.Context()), orderID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, CheckoutResponseDTO{
		CheckoutURL:     sess.URL,
		StripeSessionID: sess.SessionID,
	})
}
