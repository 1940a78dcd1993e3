package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Lumixions/flutter-marketplace/internal/domain"
	"github.com/Lumixions/flutter-marketplace/internal/payment"
	"github.com/Lumixions/flutter-marketplace/pkg/circuitbreaker"
	"github.com/sony/gobreaker/v2"
)

// PaymentHandler bounds every processor call with a timeout and a breaker.
type PaymentHandler struct {
	processor payment.Processor
	timeout   time.Duration
	breaker   *gobreaker.CircuitBreaker[*domain.CheckoutSession]
}

func NewPaymentHandler(processor payment.Processor, timeout time.Duration, log *slog.Logger) *PaymentHandler {
	cfg := circuitbreaker.DefaultConfig("payment-processor")
	cfg.IsSuccessful = func(err error) bool {
		return err == nil || payment.IsClientError(err) || errors.Is(err, context.Canceled)
	}
	return &PaymentHandler{
		processor: processor,
		timeout:   timeout,
		breaker:   circuitbreaker.New[*domain.CheckoutSession](cfg, log),
	}
}

func (h *PaymentHandler) createSession(ctx context.Context, req payment.SessionRequest) (*domain.CheckoutSession, error) {
	return h.breaker.Execute(func() (*domain.CheckoutSession, error) {
		callCtx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()
		return h.processor.CreateSession(callCtx, req)
	})
}

func (h *PaymentHandler) retrieveSession(ctx context.Context, sessionID string) (*domain.CheckoutSession, error) {
	return h.breaker.Execute(func() (*domain.CheckoutSession, error) {
		callCtx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()
		return h.processor.RetrieveSession(callCtx, sessionID)
	})
}
