package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Lumixions/flutter-marketplace/internal/domain"
	"github.com/Lumixions/flutter-marketplace/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testURLs = RedirectURLs{
	SuccessURL: "https://shop.example/stripe/success",
	CancelURL:  "https://shop.example/stripe/cancel",
}

func newCheckout(f *fixture, proc *fakeProcessor, timeout time.Duration) *CheckoutService {
	return NewCheckoutService(f.repo, NewPaymentHandler(proc, timeout, nil), testURLs, nil)
}

func TestInitiateCheckout_CreatesSessionAndPayment(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, f.sellerA, "Mug", 1500, 5)
	order := f.placeOrder(t, domain.CartLine{ProductID: p.ID, Quantity: 2})
	proc := newFakeProcessor()

	sess, err := newCheckout(f, proc, time.Second).InitiateCheckout(context.Background(), buyerID, order.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.SessionID)
	assert.Equal(t, "https://checkout.example/"+sess.SessionID, sess.URL)

	req := proc.lastRequest
	assert.Equal(t, order.ID, req.OrderID)
	assert.Equal(t, "USD", req.Currency)
	assert.Equal(t, testURLs.SuccessURL, req.SuccessURL)
	assert.Equal(t, testURLs.CancelURL, req.CancelURL)
	assert.NotEmpty(t, req.IdempotencyKey)
	require.Len(t, req.Lines, 1)
	assert.Equal(t, "Mug", req.Lines[0].Name)
	assert.Equal(t, int64(1500), req.Lines[0].UnitAmountCents)
	assert.Equal(t, int64(2), req.Lines[0].Quantity)

	pay, err := f.store.Payments().GetPaymentByOrderID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.SessionID, pay.SessionID)
	assert.Equal(t, domain.PaymentStatusPending, pay.Status)
}

func TestInitiateCheckout_ReusesSession(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, f.sellerA, "Mug", 1500, 5)
	order := f.placeOrder(t, domain.CartLine{ProductID: p.ID, Quantity: 1})
	proc := newFakeProcessor()
	svc := newCheckout(f, proc, time.Second)

	first, err := svc.InitiateCheckout(context.Background(), buyerID, order.ID)
	require.NoError(t, err)
	second, err := svc.InitiateCheckout(context.Background(), buyerID, order.ID)
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, first.URL, second.URL)
	assert.Equal(t, 1, proc.creates())
	assert.Equal(t, 1, proc.retrieveCalls)
}

func TestInitiateCheckout_ConcurrentClicksShareOneSession(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, f.sellerA, "Mug", 1500, 5)
	order := f.placeOrder(t, domain.CartLine{ProductID: p.ID, Quantity: 1})
	svc := newCheckout(f, newFakeProcessor(), time.Second)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := svc.InitiateCheckout(context.Background(), buyerID, order.ID)
			if assert.NoError(t, err) {
				ids[i] = sess.SessionID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestInitiateCheckout_FillsExistingPaymentWithoutSession(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, f.sellerA, "Mug", 1500, 5)
	order := f.placeOrder(t, domain.CartLine{ProductID: p.ID, Quantity: 1})
	require.NoError(t, f.store.Payments().CreatePayment(context.Background(),
		&domain.Payment{OrderID: order.ID, Status: domain.PaymentStatusPending}))

	sess, err := newCheckout(f, newFakeProcessor(), time.Second).InitiateCheckout(context.Background(), buyerID, order.ID)
	require.NoError(t, err)

	pay, err := f.store.Payments().GetPaymentByOrderID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.SessionID, pay.SessionID)
}

func TestInitiateCheckout_NotFoundAndNotOwned(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, f.sellerA, "Mug", 1500, 5)
	order := f.placeOrder(t, domain.CartLine{ProductID: p.ID, Quantity: 1})
	proc := newFakeProcessor()
	svc := newCheckout(f, proc, time.Second)

	_, err := svc.InitiateCheckout(context.Background(), otherUser, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = svc.InitiateCheckout(context.Background(), buyerID, 9999)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Zero(t, proc.creates())
}

func TestInitiateCheckout_PaidOrderNotPayable(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, f.sellerA, "Mug", 1500, 5)
	order := f.placeOrder(t, domain.CartLine{ProductID: p.ID, Quantity: 1})
	_, err := f.store.Orders().MarkOrderPaid(context.Background(), order.ID)
	require.NoError(t, err)

	_, err = newCheckout(f, newFakeProcessor(), time.Second).InitiateCheckout(context.Background(), buyerID, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotPayable)
	assert.Contains(t, err.Error(), "status=PAID")
}

func TestInitiateCheckout_NotConfigured(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, f.sellerA, "Mug", 1500, 5)
	order := f.placeOrder(t, domain.CartLine{ProductID: p.ID, Quantity: 1})

	_, err := NewCheckoutService(f.repo, nil, testURLs, nil).InitiateCheckout(context.Background(), buyerID, order.ID)
	assert.ErrorIs(t, err, ErrConfiguration)

	noURLs := NewCheckoutService(f.repo, NewPaymentHandler(newFakeProcessor(), time.Second, nil), RedirectURLs{}, nil)
	_, err = noURLs.InitiateCheckout(context.Background(), buyerID, order.ID)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestInitiateCheckout_EmptyOrder(t *testing.T) {
	f := newFixture(t)
	order := &domain.Order{BuyerID: buyerID, SellerID: f.sellerA.ID, Status: domain.OrderStatusPendingPayment, Currency: "USD"}
	require.NoError(t, f.store.Orders().CreateOrder(context.Background(), order))
	proc := newFakeProcessor()

	_, err := newCheckout(f, proc, time.Second).InitiateCheckout(context.Background(), buyerID, order.ID)
	assert.ErrorIs(t, err, ErrEmptyOrder)
	assert.Zero(t, proc.creates())
}

func TestInitiateCheckout_ProviderFailureWritesNoPayment(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, f.sellerA, "Mug", 1500, 5)
	order := f.placeOrder(t, domain.CartLine{ProductID: p.ID, Quantity: 1})
	proc := newFakeProcessor()
	proc.createErr = errors.New("connection reset")

	_, err := newCheckout(f, proc, time.Second).InitiateCheckout(context.Background(), buyerID, order.ID)
	assert.ErrorIs(t, err, ErrPaymentProvider)

	_, err = f.store.Payments().GetPaymentByOrderID(context.Background(), order.ID)
	assert.ErrorIs(t, err, repository.ErrPaymentNotFound)
}

func TestInitiateCheckout_TimeoutThenRetryReusesSession(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, f.sellerA, "Mug", 1500, 5)
	order := f.placeOrder(t, domain.CartLine{ProductID: p.ID, Quantity: 1})
	proc := newFakeProcessor()
	proc.blockCreate = true
	svc := newCheckout(f, proc, 20*time.Millisecond)

	_, err := svc.InitiateCheckout(context.Background(), buyerID, order.ID)
	require.ErrorIs(t, err, ErrPaymentProvider)
	_, err = f.store.Payments().GetPaymentByOrderID(context.Background(), order.ID)
	assert.ErrorIs(t, err, repository.ErrPaymentNotFound)

	proc.mu.Lock()
	proc.blockCreate = false
	proc.mu.Unlock()

	first, err := svc.InitiateCheckout(context.Background(), buyerID, order.ID)
	require.NoError(t, err)
	second, err := svc.InitiateCheckout(context.Background(), buyerID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
	// both create attempts carried the same idempotency key
	assert.Equal(t, idempotencyKey(order.ID), proc.lastRequest.IdempotencyKey)
}

func TestInitiateCheckout_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, f.sellerA, "Mug", 1500, 5)
	order := f.placeOrder(t, domain.CartLine{ProductID: p.ID, Quantity: 1})
	proc := newFakeProcessor()
	proc.createErr = errors.New("503 from upstream")
	svc := newCheckout(f, proc, time.Second)

	for i := 0; i < 5; i++ {
		_, err := svc.InitiateCheckout(context.Background(), buyerID, order.ID)
		require.ErrorIs(t, err, ErrPaymentProvider)
	}
	assert.Equal(t, 5, proc.creates())

	_, err := svc.InitiateCheckout(context.Background(), buyerID, order.ID)
	assert.ErrorIs(t, err, ErrPaymentProvider)
	assert.Equal(t, 5, proc.creates())
}

func TestInitiateCheckout_MissingURLIsProviderError(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, f.sellerA, "Mug", 1500, 5)
	order := f.placeOrder(t, domain.CartLine{ProductID: p.ID, Quantity: 1})
	proc := newFakeProcessor()
	proc.noURL = true

	_, err := newCheckout(f, proc, time.Second).InitiateCheckout(context.Background(), buyerID, order.ID)
	assert.ErrorIs(t, err, ErrPaymentProvider)
}
