package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Lumixions/flutter-marketplace/internal/domain"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

type StripeOptions struct {
	SecretKey     string
	WebhookSecret string
	// APIURL points the client at another API host, such as stripe-mock.
	APIURL            string
	HTTPClient        *http.Client
	MaxNetworkRetries *int64
	Logger            *slog.Logger
}

// StripeProcessor implements Processor on Stripe Checkout.
type StripeProcessor struct {
	sc            *client.API
	webhookSecret string
}

func NewStripeProcessor(opts StripeOptions) *StripeProcessor {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	backend := func(kind stripe.SupportedBackend) stripe.Backend {
		cfg := &stripe.BackendConfig{
			HTTPClient:        opts.HTTPClient,
			MaxNetworkRetries: opts.MaxNetworkRetries,
			LeveledLogger:     slogLeveled{log: log.With("component", "stripe")},
		}
		if opts.APIURL != "" {
			cfg.URL = stripe.String(opts.APIURL)
		}
		return stripe.GetBackendWithConfig(kind, cfg)
	}

	sc := &client.API{}
	sc.Init(opts.SecretKey, &stripe.Backends{
		API:     backend(stripe.APIBackend),
		Connect: backend(stripe.ConnectBackend),
		Uploads: backend(stripe.UploadsBackend),
	})

	return &StripeProcessor{sc: sc, webhookSecret: opts.WebhookSecret}
}

func (p *StripeProcessor) CreateSession(ctx context.Context, req SessionRequest) (*domain.CheckoutSession, error) {
	orderID := strconv.FormatInt(req.OrderID, 10)
	currency := strings.ToLower(req.Currency)

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(orderID),
	}
	for _, line := range req.Lines {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(line.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(line.UnitAmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(line.Name),
				},
			},
		})
	}
	params.AddMetadata(domain.OrderIDMetadataKey, orderID)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.Context = ctx

	s, err := p.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	if s.URL == "" {
		// Older API versions omit the url on create.
		return p.RetrieveSession(ctx, s.ID)
	}
	return &domain.CheckoutSession{SessionID: s.ID, URL: s.URL}, nil
}

func (p *StripeProcessor) RetrieveSession(ctx context.Context, sessionID string) (*domain.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := p.sc.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve checkout session %s: %w", sessionID, err)
	}
	if s.URL == "" {
		return nil, fmt.Errorf("%w: session %s", ErrNoSessionURL, sessionID)
	}
	return &domain.CheckoutSession{SessionID: s.ID, URL: s.URL}, nil
}

func (p *StripeProcessor) ParseNotification(payload []byte, signature string) (*domain.PaymentNotification, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	n := &domain.PaymentNotification{
		EventID: event.ID,
		Type:    domain.EventType(event.Type),
	}

	if n.Type == domain.EventCheckoutSessionCompleted && event.Data != nil {
		var s stripe.CheckoutSession
		// A malformed object leaves SessionCompleted nil; the event is still
		// authentic and gets acknowledged as ignored.
		if err := json.Unmarshal(event.Data.Raw, &s); err == nil {
			sc := &domain.SessionCompleted{
				SessionID: s.ID,
				Metadata:  s.Metadata,
			}
			if s.PaymentIntent != nil {
				sc.PaymentIntentID = s.PaymentIntent.ID
			}
			n.SessionCompleted = sc
		}
	}
	return n, nil
}

// IsClientError reports whether err is a 4xx answer from Stripe. Those are
// request problems rather than an unhealthy upstream.
func IsClientError(err error) bool {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		return serr.HTTPStatusCode >= 400 && serr.HTTPStatusCode < 500 && serr.HTTPStatusCode != http.StatusTooManyRequests
	}
	return false
}

// slogLeveled adapts slog to stripe's LeveledLoggerInterface.
type slogLeveled struct {
	log *slog.Logger
}

func (l slogLeveled) Debugf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}

func (l slogLeveled) Infof(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}

func (l slogLeveled) Warnf(format string, v ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, v...))
}

func (l slogLeveled) Errorf(format string, v ...interface{}) {
	l.log.Error(fmt.Sprintf(format, v...))
}
