package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lumixions/flutter-marketplace/internal/domain"
	"github.com/Lumixions/flutter-marketplace/internal/payment"
	"github.com/Lumixions/flutter-marketplace/internal/repository"
	"github.com/Lumixions/flutter-marketplace/pkg/circuitbreaker"
)

type RedirectURLs struct {
	SuccessURL string
	CancelURL  string
}

type CheckoutService struct {
	repo    repository.RepoInterface
	payment *PaymentHandler
	urls    RedirectURLs
	log     *slog.Logger
}

// NewCheckoutService accepts a nil payment handler; checkout then fails with
// ErrConfiguration.
func NewCheckoutService(repo repository.RepoInterface, payment *PaymentHandler, urls RedirectURLs, log *slog.Logger) *CheckoutService {
	if log == nil {
		log = slog.Default()
	}
	return &CheckoutService{repo: repo, payment: payment, urls: urls, log: log}
}

func idempotencyKey(orderID int64) string {
	return fmt.Sprintf("checkout-order-%d", orderID)
}

// InitiateCheckout returns a hosted payment page for the buyer's pending
// order, reusing the session already recorded for it if there is one.
func (s *CheckoutService) InitiateCheckout(ctx context.Context, buyerID, orderID int64) (*domain.CheckoutSession, error) {
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
	if !order.Status.IsPayable() {
		return nil, fmt.Errorf("%w (status=%s)", ErrOrderNotPayable, order.Status)
	}

	if s.payment == nil || s.urls.SuccessURL == "" || s.urls.CancelURL == "" {
		return nil, ErrConfiguration
	}

	existing, err := s.repo.Payments().GetPaymentByOrderID(ctx, order.ID)
	if err != nil && !errors.Is(err, repository.ErrPaymentNotFound) {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if existing.HasSession() {
		s.log.InfoContext(ctx, "reusing checkout session", "order_id", order.ID, "session_id", existing.SessionID)
		return s.retrieve(ctx, existing.SessionID)
	}

	if len(order.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	req := payment.SessionRequest{
		OrderID:        order.ID,
		Currency:       order.Currency,
		SuccessURL:     s.urls.SuccessURL,
		CancelURL:      s.urls.CancelURL,
		IdempotencyKey: idempotencyKey(order.ID),
	}
	for _, it := range order.Items {
		req.Lines = append(req.Lines, payment.LineItem{
			Name:            it.Title,
			UnitAmountCents: it.UnitPriceCents,
			Quantity:        it.Quantity,
		})
	}

	session, err := s.payment.createSession(ctx, req)
	if err != nil {
		if circuitbreaker.IsOpen(err) {
			s.log.WarnContext(ctx, "payment processor circuit open", "order_id", order.ID)
		} else {
			s.log.ErrorContext(ctx, "create checkout session failed", "order_id", order.ID, "error", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}

	recorded, err := s.recordSession(ctx, order.ID, session.SessionID)
	if err != nil {
		return nil, err
	}
	if recorded != session.SessionID {
		// a concurrent checkout for the same order won the insert
		return s.retrieve(ctx, recorded)
	}

	s.log.InfoContext(ctx, "checkout session created", "order_id", order.ID, "session_id", session.SessionID)
	if session.URL == "" {
		return s.retrieve(ctx, session.SessionID)
	}
	return session, nil
}

// recordSession stores sessionID on the order's payment and returns the
// session id that ended up recorded.
func (s *CheckoutService) recordSession(ctx context.Context, orderID int64, sessionID string) (string, error) {
	recorded := sessionID
	err := s.repo.WithTx(ctx, func(tx repository.Store) error {
		pay, err := tx.Payments().GetPaymentByOrderID(ctx, orderID)
		switch {
		case errors.Is(err, repository.ErrPaymentNotFound):
			return tx.Payments().CreatePayment(ctx, &domain.Payment{
				OrderID:   orderID,
				SessionID: sessionID,
				Status:    domain.PaymentStatusPending,
			})
		case err != nil:
			return err
		case pay.HasSession():
			recorded = pay.SessionID
			return nil
		default:
			pay.SessionID = sessionID
			pay.Status = domain.PaymentStatusPending
			return tx.Payments().UpdatePayment(ctx, pay)
		}
	})
	if errors.Is(err, repository.ErrDuplicatePayment) {
		pay, getErr := s.repo.Payments().GetPaymentByOrderID(ctx, orderID)
		if getErr == nil && pay.HasSession() {
			return pay.SessionID, nil
		}
	}
	if err != nil {
		return "", fmt.Errorf("record checkout session: %w", err)
	}
	return recorded, nil
}

func (s *CheckoutService) retrieve(ctx context.Context, sessionID string) (*domain.CheckoutSession, error) {
	session, err := s.payment.retrieveSession(ctx, sessionID)
	if err != nil {
		s.log.ErrorContext(ctx, "retrieve checkout session failed", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}
	return session, nil
}
