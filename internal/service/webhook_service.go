package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Lumixions/flutter-marketplace/internal/cache"
	"github.com/Lumixions/flutter-marketplace/internal/domain"
	"github.com/Lumixions/flutter-marketplace/internal/repository"
)

// NotificationVerifier authenticates and decodes a raw processor notification.
type NotificationVerifier interface {
	ParseNotification(payload []byte, signature string) (*domain.PaymentNotification, error)
}

type WebhookService struct {
	repo     repository.RepoInterface
	verifier NotificationVerifier
	cache    cache.ProductCache
	log      *slog.Logger
}

// NewWebhookService accepts a nil verifier when no webhook secret is
// configured; every notification is then refused with ErrConfiguration.
func NewWebhookService(repo repository.RepoInterface, verifier NotificationVerifier, productCache cache.ProductCache, log *slog.Logger) *WebhookService {
	if productCache == nil {
		productCache = cache.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &WebhookService{repo: repo, verifier: verifier, cache: productCache, log: log}
}

// HandlePaymentNotification applies a processor notification at most once.
// Duplicate, unresolvable and unknown notifications are outcomes, not errors.
func (s *WebhookService) HandlePaymentNotification(ctx context.Context, payload []byte, signature string) (domain.NotificationOutcome, error) {
	if s.verifier == nil {
		return "", ErrConfiguration
	}

	n, err := s.verifier.ParseNotification(payload, signature)
	if err != nil {
		s.log.WarnContext(ctx, "rejected payment notification", "error", err)
		return "", ErrInvalidSignature
	}
	if n.EventID == "" {
		s.log.WarnContext(ctx, "payment notification without event id", "type", n.Type)
		return "", ErrInvalidSignature
	}

	var outcome domain.NotificationOutcome
	var touched []int64

	err = s.repo.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Events().RecordEvent(ctx, n.EventID); err != nil {
			return err
		}

		switch n.Type {
		case domain.EventCheckoutSessionCompleted:
			var err error
			outcome, touched, err = s.settle(ctx, tx, n.SessionCompleted)
			return err
		default:
			outcome = domain.OutcomeUnhandled
			return nil
		}
	})
	if errors.Is(err, repository.ErrDuplicateEvent) {
		s.log.InfoContext(ctx, "duplicate payment notification", "event_id", n.EventID)
		return domain.OutcomeDuplicate, nil
	}
	if err != nil {
		s.log.ErrorContext(ctx, "payment notification failed", "event_id", n.EventID, "error", err)
		return "", fmt.Errorf("process notification %s: %w", n.EventID, err)
	}

	s.log.InfoContext(ctx, "payment notification processed",
		"event_id", n.EventID,
		"type", n.Type,
		"outcome", outcome)

	if len(touched) > 0 {
		s.invalidate(ctx, touched)
	}
	return outcome, nil
}

// settle marks the referenced order paid. The order and stock effects run
// only on the transition out of PENDING_PAYMENT, so any redelivery that gets
// past the event ledger changes nothing.
func (s *WebhookService) settle(ctx context.Context, tx repository.Store, sc *domain.SessionCompleted) (domain.NotificationOutcome, []int64, error) {
	if sc == nil {
		return domain.OutcomeIgnored, nil, nil
	}
	raw, ok := sc.Metadata[domain.OrderIDMetadataKey]
	if !ok || raw == "" {
		return domain.OutcomeIgnored, nil, nil
	}
	orderID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return domain.OutcomeIgnored, nil, nil
	}

	order, err := tx.Orders().GetOrder(ctx, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return domain.OutcomeIgnored, nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("get order: %w", err)
	}

	if err := upsertPaidPayment(ctx, tx, order.ID, sc); err != nil {
		return "", nil, err
	}

	moved, err := tx.Orders().MarkOrderPaid(ctx, order.ID)
	if err != nil {
		return "", nil, err
	}
	if !moved {
		return domain.OutcomeOK, nil, nil
	}

	touched := make([]int64, 0, len(order.Items))
	for _, it := range order.Items {
		if err := tx.Catalog().DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			return "", nil, err
		}
		touched = append(touched, it.ProductID)
	}
	return domain.OutcomeOK, touched, nil
}

func upsertPaidPayment(ctx context.Context, tx repository.Store, orderID int64, sc *domain.SessionCompleted) error {
	pay, err := tx.Payments().GetPaymentByOrderID(ctx, orderID)
	if errors.Is(err, repository.ErrPaymentNotFound) {
		return tx.Payments().CreatePayment(ctx, &domain.Payment{
			OrderID:         orderID,
			SessionID:       sc.SessionID,
			PaymentIntentID: sc.PaymentIntentID,
			Status:          domain.PaymentStatusPaid,
		})
	}
	if err != nil {
		return fmt.Errorf("get payment: %w", err)
	}

	if pay.SessionID == "" {
		pay.SessionID = sc.SessionID
	}
	if sc.PaymentIntentID != "" {
		pay.PaymentIntentID = sc.PaymentIntentID
	}
	pay.Status = domain.PaymentStatusPaid
	return tx.Payments().UpdatePayment(ctx, pay)
}

func (s *WebhookService) invalidate(ctx context.Context, productIDs []int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, productIDs...); err != nil {
		s.log.WarnContext(ctx, "product cache invalidate failed", "error", err)
	}
}
