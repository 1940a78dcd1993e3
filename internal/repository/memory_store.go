package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Lumixions/flutter-marketplace/internal/domain"
)

// memState is everything the MemoryStore holds. Transactions work on a clone
// and swap it in on commit.
type memState struct {
	sellers  map[int64]*domain.SellerProfile // sellerID -> profile
	products map[int64]*domain.Product
	addrs    map[int64]*domain.Address
	orders   map[int64]*domain.Order
	payments map[int64]*domain.Payment // orderID -> payment
	events   map[string]time.Time

	seq int64
}

func newMemState() *memState {
	return &memState{
		sellers:  make(map[int64]*domain.SellerProfile),
		products: make(map[int64]*domain.Product),
		addrs:    make(map[int64]*domain.Address),
		orders:   make(map[int64]*domain.Order),
		payments: make(map[int64]*domain.Payment),
		events:   make(map[string]time.Time),
	}
}

func (st *memState) nextID() int64 {
	st.seq++
	return st.seq
}

func (st *memState) clone() *memState {
	c := &memState{
		sellers:  make(map[int64]*domain.SellerProfile, len(st.sellers)),
		products: make(map[int64]*domain.Product, len(st.products)),
		addrs:    make(map[int64]*domain.Address, len(st.addrs)),
		orders:   make(map[int64]*domain.Order, len(st.orders)),
		payments: make(map[int64]*domain.Payment, len(st.payments)),
		events:   make(map[string]time.Time, len(st.events)),
		seq:      st.seq,
	}
	for k, v := range st.sellers {
		cp := *v
		c.sellers[k] = &cp
	}
	for k, v := range st.products {
		c.products[k] = copyProduct(v)
	}
	for k, v := range st.addrs {
		cp := *v
		c.addrs[k] = &cp
	}
	for k, v := range st.orders {
		c.orders[k] = copyOrder(v)
	}
	for k, v := range st.payments {
		cp := *v
		c.payments[k] = &cp
	}
	for k, v := range st.events {
		c.events[k] = v
	}
	return c
}

func copyProduct(p *domain.Product) *domain.Product {
	cp := *p
	cp.Images = append([]domain.ProductImage(nil), p.Images...)
	return &cp
}

func copyOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	return &cp
}

// MemoryStore implements RepoInterface with in-memory storage. Every call
// and every transaction is serialized on one mutex.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func (s *MemoryStore) view() memView { return memView{owner: s} }

func (s *MemoryStore) Catalog() CatalogStore    { return memCatalog{s.view()} }
func (s *MemoryStore) Sellers() SellerStore     { return memSellers{s.view()} }
func (s *MemoryStore) Orders() OrderLedger      { return memOrders{s.view()} }
func (s *MemoryStore) Payments() PaymentTracker { return memPayments{s.view()} }
func (s *MemoryStore) Events() EventLedger      { return memEvents{s.view()} }

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(memTx{memView{st: work}}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// memView routes an operation either through the owner's lock or, inside a
// transaction, straight to the working copy.
type memView struct {
	owner *MemoryStore
	st    *memState
}

func (v memView) with(fn func(st *memState) error) error {
	if v.owner == nil {
		return fn(v.st)
	}
	v.owner.mu.Lock()
	defer v.owner.mu.Unlock()
	return fn(v.owner.state)
}

type memTx struct{ v memView }

func (t memTx) Catalog() CatalogStore    { return memCatalog{t.v} }
func (t memTx) Sellers() SellerStore     { return memSellers{t.v} }
func (t memTx) Orders() OrderLedger      { return memOrders{t.v} }
func (t memTx) Payments() PaymentTracker { return memPayments{t.v} }
func (t memTx) Events() EventLedger      { return memEvents{t.v} }

func sortNewestFirst[T any](items []T, created func(T) time.Time, id func(T) int64) {
	sort.Slice(items, func(i, j int) bool {
		ci, cj := created(items[i]), created(items[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return id(items[i]) > id(items[j])
	})
}

// ---- catalog ----

type memCatalog struct{ v memView }

func (c memCatalog) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	var out *domain.Product
	err := c.v.with(func(st *memState) error {
		p, ok := st.products[id]
		if !ok {
			return ErrProductNotFound
		}
		out = copyProduct(p)
		return nil
	})
	return out, err
}

func (c memCatalog) GetProductsByIDs(_ context.Context, ids []int64) (map[int64]*domain.Product, error) {
	out := make(map[int64]*domain.Product, len(ids))
	err := c.v.with(func(st *memState) error {
		for _, id := range ids {
			if p, ok := st.products[id]; ok {
				out[id] = copyProduct(p)
			}
		}
		return nil
	})
	return out, err
}

func (c memCatalog) list(keep func(*domain.Product) bool) ([]*domain.Product, error) {
	var out []*domain.Product
	err := c.v.with(func(st *memState) error {
		for _, p := range st.products {
			if keep(p) {
				out = append(out, copyProduct(p))
			}
		}
		return nil
	})
	sortNewestFirst(out,
		func(p *domain.Product) time.Time { return p.CreatedAt },
		func(p *domain.Product) int64 { return p.ID })
	return out, err
}

func (c memCatalog) ListActiveProducts(_ context.Context) ([]*domain.Product, error) {
	return c.list(func(p *domain.Product) bool { return p.IsActive })
}

func (c memCatalog) ListProductsBySeller(_ context.Context, sellerID int64) ([]*domain.Product, error) {
	return c.list(func(p *domain.Product) bool { return p.SellerID == sellerID })
}

func (c memCatalog) CreateProduct(_ context.Context, p *domain.Product) error {
	return c.v.with(func(st *memState) error {
		now := time.Now().UTC()
		p.ID = st.nextID()
		p.CreatedAt, p.UpdatedAt = now, now
		st.products[p.ID] = copyProduct(p)
		return nil
	})
}

func (c memCatalog) UpdateProduct(_ context.Context, id int64, u domain.ProductUpdate) (*domain.Product, error) {
	var out *domain.Product
	err := c.v.with(func(st *memState) error {
		p, ok := st.products[id]
		if !ok {
			return ErrProductNotFound
		}
		if u.Title != nil {
			p.Title = *u.Title
		}
		if u.Description != nil {
			p.Description = *u.Description
		}
		if u.PriceCents != nil {
			p.PriceCents = *u.PriceCents
		}
		if u.Currency != nil {
			p.Currency = *u.Currency
		}
		if u.StockQty != nil {
			p.StockQty = *u.StockQty
		}
		if u.IsActive != nil {
			p.IsActive = *u.IsActive
		}
		p.UpdatedAt = time.Now().UTC()
		out = copyProduct(p)
		return nil
	})
	return out, err
}

func (c memCatalog) AddProductImages(_ context.Context, productID int64, keys []string) error {
	return c.v.with(func(st *memState) error {
		p, ok := st.products[productID]
		if !ok {
			return ErrProductNotFound
		}
		next := 0
		for _, img := range p.Images {
			if img.SortOrder >= next {
				next = img.SortOrder + 1
			}
		}
		now := time.Now().UTC()
		for i, key := range keys {
			p.Images = append(p.Images, domain.ProductImage{
				ID:        st.nextID(),
				ProductID: productID,
				Key:       key,
				SortOrder: next + i,
				CreatedAt: now,
			})
		}
		return nil
	})
}

func (c memCatalog) DecrementStock(_ context.Context, productID, qty int64) error {
	return c.v.with(func(st *memState) error {
		if p, ok := st.products[productID]; ok {
			p.StockQty = domain.DecrementStock(p.StockQty, qty)
			p.UpdatedAt = time.Now().UTC()
		}
		return nil
	})
}

// ---- sellers ----

type memSellers struct{ v memView }

func (s memSellers) GetSellerByUserID(_ context.Context, userID int64) (*domain.SellerProfile, error) {
	var out *domain.SellerProfile
	err := s.v.with(func(st *memState) error {
		for _, sp := range st.sellers {
			if sp.UserID == userID {
				cp := *sp
				out = &cp
				return nil
			}
		}
		return ErrSellerNotFound
	})
	return out, err
}

func (s memSellers) UpsertSeller(_ context.Context, userID int64, storeName string) (*domain.SellerProfile, error) {
	var out *domain.SellerProfile
	err := s.v.with(func(st *memState) error {
		now := time.Now().UTC()
		for _, sp := range st.sellers {
			if sp.UserID == userID {
				sp.StoreName = storeName
				sp.UpdatedAt = now
				cp := *sp
				out = &cp
				return nil
			}
		}
		sp := &domain.SellerProfile{
			ID:        st.nextID(),
			UserID:    userID,
			StoreName: storeName,
			Status:    domain.SellerStatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		st.sellers[sp.ID] = sp
		cp := *sp
		out = &cp
		return nil
	})
	return out, err
}

// ---- orders ----

type memOrders struct{ v memView }

func (o memOrders) CreateAddress(_ context.Context, a *domain.Address) error {
	return o.v.with(func(st *memState) error {
		a.ID = st.nextID()
		a.CreatedAt = time.Now().UTC()
		cp := *a
		st.addrs[a.ID] = &cp
		return nil
	})
}

func (o memOrders) CreateOrder(_ context.Context, order *domain.Order) error {
	return o.v.with(func(st *memState) error {
		now := time.Now().UTC()
		order.ID = st.nextID()
		order.CreatedAt, order.UpdatedAt = now, now
		for i := range order.Items {
			order.Items[i].ID = st.nextID()
			order.Items[i].OrderID = order.ID
		}
		st.orders[order.ID] = copyOrder(order)
		return nil
	})
}

func (o memOrders) GetOrder(_ context.Context, id int64) (*domain.Order, error) {
	var out *domain.Order
	err := o.v.with(func(st *memState) error {
		ord, ok := st.orders[id]
		if !ok {
			return ErrOrderNotFound
		}
		out = copyOrder(ord)
		return nil
	})
	return out, err
}

func (o memOrders) ListOrdersByBuyer(_ context.Context, buyerID int64) ([]*domain.Order, error) {
	var out []*domain.Order
	err := o.v.with(func(st *memState) error {
		for _, ord := range st.orders {
			if ord.BuyerID == buyerID {
				out = append(out, copyOrder(ord))
			}
		}
		return nil
	})
	sortNewestFirst(out,
		func(o *domain.Order) time.Time { return o.CreatedAt },
		func(o *domain.Order) int64 { return o.ID })
	return out, err
}

func (o memOrders) MarkOrderPaid(_ context.Context, id int64) (bool, error) {
	var moved bool
	err := o.v.with(func(st *memState) error {
		ord, ok := st.orders[id]
		if !ok {
			return ErrOrderNotFound
		}
		if !ord.Status.CanTransitionTo(domain.OrderStatusPaid) {
			return nil
		}
		ord.Status = domain.OrderStatusPaid
		ord.UpdatedAt = time.Now().UTC()
		moved = true
		return nil
	})
	return moved, err
}

// ---- payments ----

type memPayments struct{ v memView }

func (p memPayments) GetPaymentByOrderID(_ context.Context, orderID int64) (*domain.Payment, error) {
	var out *domain.Payment
	err := p.v.with(func(st *memState) error {
		pay, ok := st.payments[orderID]
		if !ok {
			return ErrPaymentNotFound
		}
		cp := *pay
		out = &cp
		return nil
	})
	return out, err
}

func sessionTaken(st *memState, sessionID string, exceptOrder int64) bool {
	if sessionID == "" {
		return false
	}
	for orderID, pay := range st.payments {
		if orderID != exceptOrder && pay.SessionID == sessionID {
			return true
		}
	}
	return false
}

func (p memPayments) CreatePayment(_ context.Context, pay *domain.Payment) error {
	return p.v.with(func(st *memState) error {
		if _, exists := st.payments[pay.OrderID]; exists {
			return ErrDuplicatePayment
		}
		if sessionTaken(st, pay.SessionID, pay.OrderID) {
			return ErrDuplicatePayment
		}
		pay.ID = st.nextID()
		pay.CreatedAt = time.Now().UTC()
		cp := *pay
		st.payments[pay.OrderID] = &cp
		return nil
	})
}

func (p memPayments) UpdatePayment(_ context.Context, pay *domain.Payment) error {
	return p.v.with(func(st *memState) error {
		cur, ok := st.payments[pay.OrderID]
		if !ok || cur.ID != pay.ID {
			return ErrPaymentNotFound
		}
		if sessionTaken(st, pay.SessionID, pay.OrderID) {
			return ErrDuplicatePayment
		}
		cur.SessionID = pay.SessionID
		cur.PaymentIntentID = pay.PaymentIntentID
		cur.Status = pay.Status
		return nil
	})
}

// ---- processed events ----

type memEvents struct{ v memView }

func (e memEvents) RecordEvent(_ context.Context, eventID string) error {
	return e.v.with(func(st *memState) error {
		if _, seen := st.events[eventID]; seen {
			return ErrDuplicateEvent
		}
		st.events[eventID] = time.Now().UTC()
		return nil
	})
}
