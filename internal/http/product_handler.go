package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Lumixions/flutter-marketplace/internal/domain"
	"github.com/Lumixions/flutter-marketplace/internal/storage"
	"github.com/go-chi/chi/v5"
)

// Catalog is the catalog surface the product and seller handlers need.
type Catalog interface {
	ListProducts(ctx context.Context) ([]*domain.Product, error)
	GetProduct(ctx context.Context, productID int64) (*domain.Product, error)
	GetSellerProfile(ctx context.Context, userID int64) (*domain.SellerProfile, error)
	UpsertSellerProfile(ctx context.Context, userID int64, storeName string) (*domain.SellerProfile, error)
	ListSellerProducts(ctx context.Context, userID int64) ([]*domain.Product, error)
	CreateProduct(ctx context.Context, userID int64, p domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, userID, productID int64, u domain.ProductUpdate) (*domain.Product, error)
	AttachImages(ctx context.Context, userID, productID int64, keys []string) (*domain.Product, error)
}

type ProductHandler struct {
	catalog Catalog
	urls    *storage.URLResolver
	timeout time.Duration
}

func NewProductHandler(catalog Catalog, urls *storage.URLResolver, timeout time.Duration) *ProductHandler {
	return &ProductHandler{
		catalog: catalog,
		urls:    urls,
		timeout: timeout,
	}
}

// GET /api/v1/products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.catalog.ListProducts(ctx)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, convertProducts(products, h.urls))
}

// GET /api/v1/products/{product_id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := pathID(w, r, "product_id")
	if !ok {
		return
	}

	p, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, convertProduct(p, h.urls))
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}
