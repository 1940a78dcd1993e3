package payment

import (
	"context"
	"errors"

	"github.com/Lumixions/flutter-marketplace/internal/domain"
)

var (
	ErrInvalidSignature = errors.New("invalid notification signature")
	ErrNoSessionURL     = errors.New("processor returned no hosted session url")
)

type LineItem struct {
	Name            string
	UnitAmountCents int64
	Quantity        int64
}

type SessionRequest struct {
	OrderID    int64
	Currency   string
	Lines      []LineItem
	SuccessURL string
	CancelURL  string
	// IdempotencyKey makes a retried create return the session made by the first attempt.
	IdempotencyKey string
}

// Processor is the external payment processor as seen by the services.
type Processor interface {
	CreateSession(ctx context.Context, req SessionRequest) (*domain.CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (*domain.CheckoutSession, error)
	// ParseNotification verifies the signature over the raw payload and decodes it.
	ParseNotification(payload []byte, signature string) (*domain.PaymentNotification, error)
}
