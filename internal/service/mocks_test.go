package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Lumixions/flutter-marketplace/internal/cache"
	"github.com/Lumixions/flutter-marketplace/internal/domain"
	"github.com/Lumixions/flutter-marketplace/internal/payment"
	"github.com/Lumixions/flutter-marketplace/internal/repository"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testWebhookSecret = "whsec_test_secret"

// fakeProcessor implements payment.Processor. Like the real processor, a
// repeated idempotency key yields the session created the first time.
type fakeProcessor struct {
	mu            sync.Mutex
	createCalls   int
	retrieveCalls int
	createErr     error
	retrieveErr   error
	noURL         bool
	blockCreate   bool
	lastRequest   payment.SessionRequest
	byKey         map[string]string
	seq           int
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{byKey: make(map[string]string)}
}

func (f *fakeProcessor) CreateSession(ctx context.Context, req payment.SessionRequest) (*domain.CheckoutSession, error) {
	f.mu.Lock()
	f.createCalls++
	f.lastRequest = req
	block, createErr := f.blockCreate, f.createErr
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if createErr != nil {
		return nil, createErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byKey[req.IdempotencyKey]
	if !ok {
		f.seq++
		id = fmt.Sprintf("cs_test_%d", f.seq)
		f.byKey[req.IdempotencyKey] = id
	}
	return &domain.CheckoutSession{SessionID: id, URL: f.url(id)}, nil
}

func (f *fakeProcessor) RetrieveSession(_ context.Context, sessionID string) (*domain.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieveCalls++
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	if f.noURL {
		return nil, fmt.Errorf("%w: session %s", payment.ErrNoSessionURL, sessionID)
	}
	return &domain.CheckoutSession{SessionID: sessionID, URL: f.url(sessionID)}, nil
}

func (f *fakeProcessor) ParseNotification([]byte, string) (*domain.PaymentNotification, error) {
	return nil, payment.ErrInvalidSignature
}

func (f *fakeProcessor) url(id string) string {
	if f.noURL {
		return ""
	}
	return "https://checkout.example/" + id
}

func (f *fakeProcessor) creates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

// recordingRepo wraps a real store, recording transactional writes and
// optionally failing stock decrements.
type recordingRepo struct {
	repository.RepoInterface

	mu            sync.Mutex
	writes        []string
	failDecrement error
}

func (r *recordingRepo) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return r.RepoInterface.WithTx(ctx, func(tx repository.Store) error {
		return fn(recordingStore{Store: tx, r: r})
	})
}

func (r *recordingRepo) record(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, op)
}

func (r *recordingRepo) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.writes...)
}

type recordingStore struct {
	repository.Store
	r *recordingRepo
}

func (s recordingStore) Orders() repository.OrderLedger {
	return recordingOrders{OrderLedger: s.Store.Orders(), r: s.r}
}

func (s recordingStore) Catalog() repository.CatalogStore {
	return recordingCatalog{CatalogStore: s.Store.Catalog(), r: s.r}
}

type recordingOrders struct {
	repository.OrderLedger
	r *recordingRepo
}

func (o recordingOrders) CreateAddress(ctx context.Context, a *domain.Address) error {
	o.r.record("address")
	return o.OrderLedger.CreateAddress(ctx, a)
}

func (o recordingOrders) CreateOrder(ctx context.Context, order *domain.Order) error {
	o.r.record("order")
	return o.OrderLedger.CreateOrder(ctx, order)
}

type recordingCatalog struct {
	repository.CatalogStore
	r *recordingRepo
}

func (c recordingCatalog) DecrementStock(ctx context.Context, productID, qty int64) error {
	c.r.mu.Lock()
	failErr := c.r.failDecrement
	c.r.mu.Unlock()
	if failErr != nil {
		return failErr
	}
	c.r.record(fmt.Sprintf("decrement:%d:%d", productID, qty))
	return c.CatalogStore.DecrementStock(ctx, productID, qty)
}

// mockCache implements cache.ProductCache in memory.
type mockCache struct {
	mu       sync.Mutex
	products map[int64]*domain.Product
	deleted  []int64
	gets     int
}

func newMockCache() *mockCache {
	return &mockCache{products: make(map[int64]*domain.Product)}
}

func (m *mockCache) Get(_ context.Context, productID int64) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	p, ok := m.products[productID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	cp := *p
	return &cp, nil
}

func (m *mockCache) Set(_ context.Context, p *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *mockCache) Delete(_ context.Context, productIDs ...int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range productIDs {
		delete(m.products, id)
		m.deleted = append(m.deleted, id)
	}
	return nil
}

func (m *mockCache) cached(productID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.products[productID]
	return ok
}

// fixture is a memory store seeded with two sellers and their products.
type fixture struct {
	repo    *recordingRepo
	store   *repository.MemoryStore
	sellerA *domain.SellerProfile
	sellerB *domain.SellerProfile
}

const (
	buyerID   int64 = 500
	otherUser int64 = 501
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	ctx := context.Background()

	a, err := store.Sellers().UpsertSeller(ctx, 100, "Shop A")
	require.NoError(t, err)
	b, err := store.Sellers().UpsertSeller(ctx, 200, "Shop B")
	require.NoError(t, err)

	return &fixture{
		repo:    &recordingRepo{RepoInterface: store},
		store:   store,
		sellerA: a,
		sellerB: b,
	}
}

func (f *fixture) product(t *testing.T, seller *domain.SellerProfile, title string, price, stock int64) *domain.Product {
	t.Helper()
	p := &domain.Product{
		SellerID:   seller.ID,
		Title:      title,
		PriceCents: price,
		Currency:   domain.DefaultCurrency,
		StockQty:   stock,
		IsActive:   true,
	}
	require.NoError(t, f.store.Catalog().CreateProduct(context.Background(), p))
	return p
}

func (f *fixture) stock(t *testing.T, productID int64) int64 {
	t.Helper()
	p, err := f.store.Catalog().GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.StockQty
}

func testAddress() domain.Address {
	return domain.Address{
		FullName:   "Ann Buyer",
		Line1:      "1 Main St",
		City:       "Austin",
		PostalCode: "78701",
		Country:    "US",
	}
}

func (f *fixture) placeOrder(t *testing.T, lines ...domain.CartLine) *domain.Order {
	t.Helper()
	order, err := NewOrderService(f.repo, nil).PlaceOrder(context.Background(), buyerID, lines, testAddress())
	require.NoError(t, err)
	return order
}

// signedEvent builds a notification payload and a valid signature header for it.
func signedEvent(t *testing.T, eventID, eventType string, object map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":     eventID,
		"object": "event",
		"type":   eventType,
		"data":   map[string]any{"object": object},
	})
	require.NoError(t, err)

	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, testWebhookSecret)
	return payload, fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func sessionCompletedObject(sessionID, intentID string, metadata map[string]string) map[string]any {
	return map[string]any{
		"id":             sessionID,
		"object":         "checkout.session",
		"payment_intent": intentID,
		"metadata":       metadata,
	}
}
