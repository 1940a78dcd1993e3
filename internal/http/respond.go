package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Lumixions/flutter-marketplace/internal/service"
	"github.com/go-playground/validator/v10"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// decodeJSON reads a size-limited JSON body into dst and validates it.
// It writes the error response itself and reports whether to continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "request validation failed",
			Code:    "validation_error",
			Details: validationDetails(err),
		})
		return false
	}
	return true
}

func validationDetails(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// handleServiceError maps service sentinels to HTTP responses.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	message := "internal server error"

	switch {
	case errors.Is(err, service.ErrInvalidProduct):
		status, code = http.StatusBadRequest, "invalid_product"
	case errors.Is(err, service.ErrInvalidQuantity):
		status, code = http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, service.ErrInsufficientStock):
		status, code = http.StatusBadRequest, "insufficient_stock"
	case errors.Is(err, service.ErrMultiSellerCart):
		status, code = http.StatusBadRequest, "multi_seller_cart"
	case errors.Is(err, service.ErrEmptyCart):
		status, code = http.StatusBadRequest, "empty_cart"
	case errors.Is(err, service.ErrEmptyOrder):
		status, code = http.StatusBadRequest, "empty_order"
	case errors.Is(err, service.ErrOrderNotPayable):
		status, code = http.StatusBadRequest, "order_not_payable"
	case errors.Is(err, service.ErrInvalidInput):
		status, code = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, service.ErrOrderNotFound):
		status, code = http.StatusNotFound, "order_not_found"
	case errors.Is(err, service.ErrProductNotFound):
		status, code = http.StatusNotFound, "product_not_found"
	case errors.Is(err, service.ErrSellerRequired):
		status, code = http.StatusForbidden, "seller_required"
	case errors.Is(err, service.ErrInvalidSignature):
		respondError(w, http.StatusBadRequest, "invalid_webhook", "invalid webhook")
		return
	case errors.Is(err, service.ErrPaymentProvider):
		status, code = http.StatusBadGateway, "payment_provider_error"
		message = "payment provider error"
	case errors.Is(err, service.ErrConfiguration):
		message = "payment processor not configured"
		code = "configuration_error"
	}

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		message = err.Error()
	}
	respondError(w, status, code, message)
}
