package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Lumixions/flutter-marketplace/internal/domain"
	"github.com/Lumixions/flutter-marketplace/pkg/metrics"
)

type Notifications interface {
	HandlePaymentNotification(ctx context.Context, payload []byte, signature string) (domain.NotificationOutcome, error)
}

type WebhookHandler struct {
	notifications Notifications
	metrics       *metrics.Metrics
	maxBody       int64
}

func NewWebhookHandler(notifications Notifications, m *metrics.Metrics, maxBody int64) *WebhookHandler {
	return &WebhookHandler{notifications: notifications, metrics: m, maxBody: maxBody}
}

// POST /webhooks/stripe
// The raw body is verified as-is; it must not be decoded first.
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "could not read body")
		return
	}

	outcome, err := h.notifications.HandlePaymentNotification(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.metrics.WebhookOutcome("error")
		handleServiceError(w, r, err)
		return
	}
	h.metrics.WebhookOutcome(string(outcome))
	respondJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
}

const landingPage = `<!doctype html>
<html>
  <head><meta charset="utf-8"><title>%[1]s</title></head>
  <body style="font-family: system-ui; padding: 32px;">
    <h2>%[1]s</h2>
    <p>You can close this tab and return to the app.</p>
  </body>
</html>
`

func landing(title string) http.HandlerFunc {
	page := []byte(fmt.Sprintf(landingPage, title))
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(page)
	}
}

// GET /stripe/success
var StripeSuccess = landing("Payment successful")

// GET /stripe/cancel
var StripeCancel = landing("Payment cancelled")
