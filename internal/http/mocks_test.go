package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Lumixions/flutter-marketplace/internal/domain"
	"github.com/Lumixions/flutter-marketplace/internal/repository"
	"github.com/Lumixions/flutter-marketplace/internal/service"
	"github.com/Lumixions/flutter-marketplace/internal/storage"
	"github.com/Lumixions/flutter-marketplace/pkg/metrics"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret"

// --- Mocks ---

type CheckoutMock struct {
	session *domain.CheckoutSession
	err     error
}

func (m CheckoutMock) InitiateCheckout(context.Context, int64, int64) (*domain.CheckoutSession, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

type NotificationsMock struct {
	mu        sync.Mutex
	outcome   domain.NotificationOutcome
	err       error
	payload   []byte
	signature string
}

func (m *NotificationsMock) HandlePaymentNotification(_ context.Context, payload []byte, signature string) (domain.NotificationOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payload = payload
	m.signature = signature
	if m.err != nil {
		return "", m.err
	}
	return m.outcome, nil
}

type PingerMock struct{ err error }

func (m PingerMock) Ping(context.Context) error { return m.err }

// --- helpers ---

type testServer struct {
	handler       http.Handler
	store         *repository.MemoryStore
	checkout      *CheckoutMock
	notifications *NotificationsMock
	metrics       *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := repository.NewMemoryStore()
	catalog := service.NewCatalogService(store, nil, nil)
	orders := service.NewOrderService(store, nil)
	checkout := &CheckoutMock{session: &domain.CheckoutSession{SessionID: "cs_test_1", URL: "https://checkout.example/cs_test_1"}}
	notifications := &NotificationsMock{outcome: domain.OutcomeOK}
	urls := storage.NewURLResolver("shop-images", "eu-west-1")
	m := metrics.New("marketplace")

	handler := NewRouter(RouterConfig{
		Products:       NewProductHandler(catalog, urls, 5*time.Second),
		Seller:         NewSellerHandler(catalog, urls, 5*time.Second, 1<<20),
		Orders:         NewOrdersHandler(orders, checkout, m, 5*time.Second, 1<<20),
		Webhooks:       NewWebhookHandler(notifications, m, 1<<10),
		Auth:           NewJWTAuthenticator(testJWTSecret),
		Health:         PingerMock{},
		Metrics:        m,
		RequestTimeout: 5 * time.Second,
		AllowOrigins:   []string{"https://app.example"},
	})

	return &testServer{handler: handler, store: store, checkout: checkout, notifications: notifications, metrics: m}
}

func (s *testServer) do(t *testing.T, method, path string, userID int64, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+signToken(t, testJWTSecret, strconv.FormatInt(userID, 10), time.Hour))
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) seller(t *testing.T, userID int64, name string) *domain.SellerProfile {
	t.Helper()
	sp, err := s.store.Sellers().UpsertSeller(context.Background(), userID, name)
	require.NoError(t, err)
	return sp
}

func (s *testServer) product(t *testing.T, sellerID int64, title string, price, stock int64, active bool) *domain.Product {
	t.Helper()
	p := &domain.Product{
		SellerID:   sellerID,
		Title:      title,
		PriceCents: price,
		Currency:   domain.DefaultCurrency,
		StockQty:   stock,
		IsActive:   active,
	}
	require.NoError(t, s.store.Catalog().CreateProduct(context.Background(), p))
	return p
}

func signToken(t *testing.T, secret, subject string, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func validOrderBody(productID, qty int64) map[string]interface{} {
	return map[string]interface{}{
		"items": []map[string]interface{}{{"product_id": productID, "quantity": qty}},
		"shipping_address": map[string]interface{}{
			"full_name":   "Ann Buyer",
			"line1":       "1 Main St",
			"city":        "Austin",
			"postal_code": "78701",
		},
	}
}
