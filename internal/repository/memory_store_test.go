package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Lumixions/flutter-marketplace/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *MemoryStore {
	store := NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	return store
}

func seedProduct(t *testing.T, store *MemoryStore, sellerID, price, stock int64) *domain.Product {
	p := &domain.Product{
		SellerID:   sellerID,
		Title:      "Mug",
		PriceCents: price,
		Currency:   domain.DefaultCurrency,
		StockQty:   stock,
		IsActive:   true,
	}
	require.NoError(t, store.Catalog().CreateProduct(context.Background(), p))
	return p
}

func TestMemoryStore_CreateAndGetProduct(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	p := seedProduct(t, store, 7, 1500, 5)
	assert.NotZero(t, p.ID)

	got, err := store.Catalog().GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), got.PriceCents)
	assert.Equal(t, int64(5), got.StockQty)

	_, err = store.Catalog().GetProduct(ctx, 9999)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestMemoryStore_GetProductsByIDs_SkipsUnknown(t *testing.T) {
	store := setupStore(t)
	p := seedProduct(t, store, 1, 100, 1)

	got, err := store.Catalog().GetProductsByIDs(context.Background(), []int64{p.ID, 404})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, p.ID)
}

func TestMemoryStore_ReturnedProductsAreCopies(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	p := seedProduct(t, store, 1, 100, 3)

	got, err := store.Catalog().GetProduct(ctx, p.ID)
	require.NoError(t, err)
	got.StockQty = 0

	again, err := store.Catalog().GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), again.StockQty)
}

func TestMemoryStore_UpdateProduct_Partial(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	p := seedProduct(t, store, 1, 100, 3)

	title := "Big Mug"
	inactive := false
	updated, err := store.Catalog().UpdateProduct(ctx, p.ID, domain.ProductUpdate{Title: &title, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "Big Mug", updated.Title)
	assert.False(t, updated.IsActive)
	assert.Equal(t, int64(100), updated.PriceCents)

	active, err := store.Catalog().ListActiveProducts(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestMemoryStore_AddProductImages_IncreasingSortOrder(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	p := seedProduct(t, store, 1, 100, 3)

	require.NoError(t, store.Catalog().AddProductImages(ctx, p.ID, []string{"a.jpg", "b.jpg"}))
	require.NoError(t, store.Catalog().AddProductImages(ctx, p.ID, []string{"c.jpg"}))

	got, err := store.Catalog().GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Images, 3)
	assert.Equal(t, 0, got.Images[0].SortOrder)
	assert.Equal(t, 1, got.Images[1].SortOrder)
	assert.Equal(t, 2, got.Images[2].SortOrder)
	assert.Equal(t, "c.jpg", got.Images[2].Key)
}

func TestMemoryStore_DecrementStock_ClampsAtZero(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	p := seedProduct(t, store, 1, 100, 1)

	require.NoError(t, store.Catalog().DecrementStock(ctx, p.ID, 3))
	got, err := store.Catalog().GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.StockQty)

	// unknown products are skipped
	assert.NoError(t, store.Catalog().DecrementStock(ctx, 404, 1))
}

func TestMemoryStore_UpsertSeller(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	first, err := store.Sellers().UpsertSeller(ctx, 10, "Shop")
	require.NoError(t, err)
	assert.Equal(t, domain.SellerStatusActive, first.Status)

	second, err := store.Sellers().UpsertSeller(ctx, 10, "Renamed")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Renamed", second.StoreName)

	_, err = store.Sellers().GetSellerByUserID(ctx, 11)
	assert.ErrorIs(t, err, ErrSellerNotFound)
}

func TestMemoryStore_MarkOrderPaid_OnlyOnce(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	order := &domain.Order{BuyerID: 1, SellerID: 2, Status: domain.OrderStatusPendingPayment, Currency: "USD"}
	require.NoError(t, store.Orders().CreateOrder(ctx, order))

	moved, err := store.Orders().MarkOrderPaid(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = store.Orders().MarkOrderPaid(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, moved)

	_, err = store.Orders().MarkOrderPaid(ctx, 404)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestMemoryStore_ListOrdersByBuyer_NewestFirst(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	o1 := &domain.Order{BuyerID: 1, SellerID: 2, Status: domain.OrderStatusPendingPayment}
	o2 := &domain.Order{BuyerID: 1, SellerID: 2, Status: domain.OrderStatusPendingPayment}
	other := &domain.Order{BuyerID: 9, SellerID: 2, Status: domain.OrderStatusPendingPayment}
	require.NoError(t, store.Orders().CreateOrder(ctx, o1))
	require.NoError(t, store.Orders().CreateOrder(ctx, o2))
	require.NoError(t, store.Orders().CreateOrder(ctx, other))

	orders, err := store.Orders().ListOrdersByBuyer(ctx, 1)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, o2.ID, orders[0].ID)
	assert.Equal(t, o1.ID, orders[1].ID)
}

func TestMemoryStore_Payments_UniquePerOrderAndSession(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Payments().CreatePayment(ctx, &domain.Payment{OrderID: 1, SessionID: "cs_1", Status: domain.PaymentStatusPending}))

	err := store.Payments().CreatePayment(ctx, &domain.Payment{OrderID: 1, SessionID: "cs_2", Status: domain.PaymentStatusPending})
	assert.ErrorIs(t, err, ErrDuplicatePayment)

	err = store.Payments().CreatePayment(ctx, &domain.Payment{OrderID: 2, SessionID: "cs_1", Status: domain.PaymentStatusPending})
	assert.ErrorIs(t, err, ErrDuplicatePayment)

	pay, err := store.Payments().GetPaymentByOrderID(ctx, 1)
	require.NoError(t, err)
	pay.Status = domain.PaymentStatusPaid
	pay.PaymentIntentID = "pi_1"
	require.NoError(t, store.Payments().UpdatePayment(ctx, pay))

	got, err := store.Payments().GetPaymentByOrderID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, got.Status)
	assert.Equal(t, "pi_1", got.PaymentIntentID)
}

func TestMemoryStore_RecordEvent_Duplicate(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Events().RecordEvent(ctx, "evt_1"))
	assert.ErrorIs(t, store.Events().RecordEvent(ctx, "evt_1"), ErrDuplicateEvent)
}

func TestMemoryStore_WithTx_RollsBackOnError(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	p := seedProduct(t, store, 1, 100, 5)
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx Store) error {
		require.NoError(t, tx.Events().RecordEvent(ctx, "evt_1"))
		require.NoError(t, tx.Catalog().DecrementStock(ctx, p.ID, 2))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Catalog().GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.StockQty)
	// the event id was not kept, so it can be recorded again
	assert.NoError(t, store.Events().RecordEvent(ctx, "evt_1"))
}

func TestMemoryStore_WithTx_Commits(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	p := seedProduct(t, store, 1, 100, 5)

	err := store.WithTx(ctx, func(tx Store) error {
		return tx.Catalog().DecrementStock(ctx, p.ID, 2)
	})
	require.NoError(t, err)

	got, err := store.Catalog().GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.StockQty)
}

func TestMemoryStore_ConcurrentDecrement(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	p := seedProduct(t, store, 1, 100, 100)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.WithTx(ctx, func(tx Store) error {
				return tx.Catalog().DecrementStock(ctx, p.ID, 1)
			})
		}()
	}
	wg.Wait()

	got, err := store.Catalog().GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.StockQty)
}
