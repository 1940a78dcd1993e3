package http

import (
	"context"
	"net/http"
	"time"

	"github.com/Lumixions/flutter-marketplace/internal/storage"
)

type SellerHandler struct {
	catalog Catalog
	urls    *storage.URLResolver
	timeout time.Duration
	maxBody int64
}

func NewSellerHandler(catalog Catalog, urls *storage.URLResolver, timeout time.Duration, maxBody int64) *SellerHandler {
	return &SellerHandler{
		catalog: catalog,
		urls:    urls,
		timeout: timeout,
		maxBody: maxBody,
	}
}

// GET /api/v1/seller/profile
// Answers null when the user has not onboarded.
func (h *SellerHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sp, err := h.catalog.GetSellerProfile(ctx, getUserIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, convertSeller(sp))
}

// POST /api/v1/seller/profile
func (h *SellerHandler) UpsertProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SellerProfileUpsertDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}

	sp, err := h.catalog.UpsertSellerProfile(ctx, getUserIDFromContext(r.Context()), req.StoreName)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, convertSeller(sp))
}

// GET /api/v1/seller/products
func (h *SellerHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.catalog.ListSellerProducts(ctx, getUserIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, convertProducts(products, h.urls))
}

// POST /api/v1/seller/products
func (h *SellerHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ProductCreateDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}

	p, err := h.catalog.CreateProduct(ctx, getUserIDFromContext(r.Context()), req.toDomain())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, convertProduct(p, h.urls))
}

// PATCH /api/v1/seller/products/{product_id}
func (h *SellerHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := pathID(w, r, "product_id")
	if !ok {
		return
	}
	var req ProductUpdateDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}

	p, err := h.catalog.UpdateProduct(ctx, getUserIDFromContext(r.Context()), productID, req.toDomain())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, convertProduct(p, h.urls))
}

// POST /api/v1/seller/products/{product_id}/images
func (h *SellerHandler) AttachImages(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := pathID(w, r, "product_id")
	if !ok {
		return
	}
	var req AttachImagesDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}

	p, err := h.catalog.AttachImages(ctx, getUserIDFromContext(r.Context()), productID, req.S3Keys)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, convertProduct(p, h.urls))
}
