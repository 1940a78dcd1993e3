package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lumixions/flutter-marketplace/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository struct {
	db *sql.DB
	pgStore
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	slog.Info("connected to postgres", "host", cred.Host, "db", cred.DBName)
	return &Repository{db: db, pgStore: pgStore{q: db}}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "marketplace_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx Store) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(pgStore{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.WarnContext(ctx, "rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

type pgStore struct {
	q querier
}

func (s pgStore) Catalog() CatalogStore    { return pgCatalog{q: s.q} }
func (s pgStore) Sellers() SellerStore     { return pgSellers{q: s.q} }
func (s pgStore) Orders() OrderLedger      { return pgOrders{q: s.q} }
func (s pgStore) Payments() PaymentTracker { return pgPayments{q: s.q} }
func (s pgStore) Events() EventLedger      { return pgEvents{q: s.q} }

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

type rowScanner interface {
	Scan(dest ...any) error
}

// ---- catalog ----

type pgCatalog struct{ q querier }

const productColumns = `id, seller_id, title, description, price_cents, currency, stock_qty, is_active, created_at, updated_at`

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID,
		&p.SellerID,
		&p.Title,
		&p.Description,
		&p.PriceCents,
		&p.Currency,
		&p.StockQty,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c pgCatalog) queryProducts(ctx context.Context, query string, args ...any) ([]*domain.Product, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	if err := c.attachImages(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

func (c pgCatalog) attachImages(ctx context.Context, products []*domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(products))
	byID := make(map[int64]*domain.Product, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
		byID[p.ID] = p
	}

	rows, err := c.q.QueryContext(ctx,
		`SELECT id, product_id, s3_key, sort_order, created_at
		 FROM product_images WHERE product_id = ANY($1) ORDER BY product_id, sort_order, id`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query product images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var img domain.ProductImage
		if err := rows.Scan(&img.ID, &img.ProductID, &img.Key, &img.SortOrder, &img.CreatedAt); err != nil {
			return fmt.Errorf("scan product image: %w", err)
		}
		if p, ok := byID[img.ProductID]; ok {
			p.Images = append(p.Images, img)
		}
	}
	return rows.Err()
}

func (c pgCatalog) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	products, err := c.queryProducts(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, ErrProductNotFound
	}
	return products[0], nil
}

func (c pgCatalog) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Product, error) {
	result := make(map[int64]*domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := c.q.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query products by ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return result, nil
}

func (c pgCatalog) ListActiveProducts(ctx context.Context) ([]*domain.Product, error) {
	return c.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE is_active = TRUE ORDER BY created_at DESC, id DESC`)
}

func (c pgCatalog) ListProductsBySeller(ctx context.Context, sellerID int64) ([]*domain.Product, error) {
	return c.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE seller_id = $1 ORDER BY created_at DESC, id DESC`, sellerID)
}

func (c pgCatalog) CreateProduct(ctx context.Context, p *domain.Product) error {
	query := `INSERT INTO products (seller_id, title, description, price_cents, currency, stock_qty, is_active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	          RETURNING id, created_at, updated_at`

	err := c.q.QueryRowContext(ctx, query,
		p.SellerID,
		p.Title,
		p.Description,
		p.PriceCents,
		p.Currency,
		p.StockQty,
		p.IsActive,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (c pgCatalog) UpdateProduct(ctx context.Context, id int64, u domain.ProductUpdate) (*domain.Product, error) {
	query := `UPDATE products SET
	            title       = COALESCE($2, title),
	            description = COALESCE($3, description),
	            price_cents = COALESCE($4, price_cents),
	            currency    = COALESCE($5, currency),
	            stock_qty   = COALESCE($6, stock_qty),
	            is_active   = COALESCE($7, is_active),
	            updated_at  = NOW()
	          WHERE id = $1`

	res, err := c.q.ExecContext(ctx, query, id,
		nullString(u.Title),
		nullString(u.Description),
		nullInt64(u.PriceCents),
		nullString(u.Currency),
		nullInt64(u.StockQty),
		nullBool(u.IsActive),
	)
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrProductNotFound
	}
	return c.GetProduct(ctx, id)
}

func (c pgCatalog) AddProductImages(ctx context.Context, productID int64, keys []string) error {
	var next int
	err := c.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sort_order) + 1, 0) FROM product_images WHERE product_id = $1`,
		productID).Scan(&next)
	if err != nil {
		return fmt.Errorf("query next sort order: %w", err)
	}

	for i, key := range keys {
		_, err := c.q.ExecContext(ctx,
			`INSERT INTO product_images (product_id, s3_key, sort_order, created_at) VALUES ($1, $2, $3, NOW())`,
			productID, key, next+i)
		if err != nil {
			return fmt.Errorf("insert product image: %w", err)
		}
	}
	return nil
}

func (c pgCatalog) DecrementStock(ctx context.Context, productID, qty int64) error {
	_, err := c.q.ExecContext(ctx,
		`UPDATE products SET stock_qty = GREATEST(stock_qty - $2, 0), updated_at = NOW() WHERE id = $1`,
		productID, qty)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	return nil
}

// ---- sellers ----

type pgSellers struct{ q querier }

func (s pgSellers) GetSellerByUserID(ctx context.Context, userID int64) (*domain.SellerProfile, error) {
	var sp domain.SellerProfile
	err := s.q.QueryRowContext(ctx,
		`SELECT id, user_id, store_name, status, created_at, updated_at FROM seller_profiles WHERE user_id = $1`,
		userID).Scan(&sp.ID, &sp.UserID, &sp.StoreName, &sp.Status, &sp.CreatedAt, &sp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSellerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query seller profile: %w", err)
	}
	return &sp, nil
}

func (s pgSellers) UpsertSeller(ctx context.Context, userID int64, storeName string) (*domain.SellerProfile, error) {
	query := `INSERT INTO seller_profiles (user_id, store_name, status, created_at, updated_at)
	          VALUES ($1, $2, $3, NOW(), NOW())
	          ON CONFLICT (user_id) DO UPDATE SET store_name = EXCLUDED.store_name, updated_at = NOW()
	          RETURNING id, user_id, store_name, status, created_at, updated_at`

	var sp domain.SellerProfile
	err := s.q.QueryRowContext(ctx, query, userID, storeName, domain.SellerStatusActive).
		Scan(&sp.ID, &sp.UserID, &sp.StoreName, &sp.Status, &sp.CreatedAt, &sp.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert seller profile: %w", err)
	}
	return &sp, nil
}

// ---- orders ----

type pgOrders struct{ q querier }

const orderColumns = `id, buyer_id, seller_id, shipping_address_id, status, currency, subtotal_cents, total_cents, created_at, updated_at`

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID,
		&o.BuyerID,
		&o.SellerID,
		&o.ShippingAddressID,
		&o.Status,
		&o.Currency,
		&o.SubtotalCents,
		&o.TotalCents,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (o pgOrders) CreateAddress(ctx context.Context, a *domain.Address) error {
	query := `INSERT INTO addresses (user_id, full_name, line1, line2, city, state, postal_code, country, phone, created_at)
	          VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), $7, $8, NULLIF($9, ''), NOW())
	          RETURNING id, created_at`

	err := o.q.QueryRowContext(ctx, query,
		a.UserID,
		a.FullName,
		a.Line1,
		a.Line2,
		a.City,
		a.State,
		a.PostalCode,
		a.Country,
		a.Phone,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert address: %w", err)
	}
	return nil
}

func (o pgOrders) CreateOrder(ctx context.Context, order *domain.Order) error {
	query := `INSERT INTO orders (buyer_id, seller_id, shipping_address_id, status, currency, subtotal_cents, total_cents, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	          RETURNING id, created_at, updated_at`

	err := o.q.QueryRowContext(ctx, query,
		order.BuyerID,
		order.SellerID,
		order.ShippingAddressID,
		order.Status,
		order.Currency,
		order.SubtotalCents,
		order.TotalCents,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err := o.q.QueryRowContext(ctx,
			`INSERT INTO order_items (order_id, product_id, title, unit_price_cents, quantity, line_total_cents)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			item.OrderID,
			item.ProductID,
			item.Title,
			item.UnitPriceCents,
			item.Quantity,
			item.LineTotalCents,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (o pgOrders) loadItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(orders))
	byID := make(map[int64]*domain.Order, len(orders))
	for _, ord := range orders {
		ids = append(ids, ord.ID)
		byID[ord.ID] = ord
	}

	rows, err := o.q.QueryContext(ctx,
		`SELECT id, order_id, product_id, title, unit_price_cents, quantity, line_total_cents
		 FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Title, &it.UnitPriceCents, &it.Quantity, &it.LineTotalCents); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if ord, ok := byID[it.OrderID]; ok {
			ord.Items = append(ord.Items, it)
		}
	}
	return rows.Err()
}

func (o pgOrders) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := scanOrder(o.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	if err := o.loadItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (o pgOrders) ListOrdersByBuyer(ctx context.Context, buyerID int64) ([]*domain.Order, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC, id DESC`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("query orders by buyer id: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	if err := o.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (o pgOrders) MarkOrderPaid(ctx context.Context, id int64) (bool, error) {
	res, err := o.q.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3`,
		id, domain.OrderStatusPaid, domain.OrderStatusPendingPayment)
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ---- payments ----

type pgPayments struct{ q querier }

func (p pgPayments) GetPaymentByOrderID(ctx context.Context, orderID int64) (*domain.Payment, error) {
	var pay domain.Payment
	var sessionID, intentID sql.NullString
	err := p.q.QueryRowContext(ctx,
		`SELECT id, order_id, session_id, payment_intent_id, status, created_at FROM payments WHERE order_id = $1`,
		orderID).Scan(&pay.ID, &pay.OrderID, &sessionID, &intentID, &pay.Status, &pay.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query payment by order id: %w", err)
	}
	pay.SessionID = sessionID.String
	pay.PaymentIntentID = intentID.String
	return &pay, nil
}

func (p pgPayments) CreatePayment(ctx context.Context, pay *domain.Payment) error {
	query := `INSERT INTO payments (order_id, session_id, payment_intent_id, status, created_at)
	          VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, NOW())
	          RETURNING id, created_at`

	err := p.q.QueryRowContext(ctx, query,
		pay.OrderID,
		pay.SessionID,
		pay.PaymentIntentID,
		pay.Status,
	).Scan(&pay.ID, &pay.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePayment
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (p pgPayments) UpdatePayment(ctx context.Context, pay *domain.Payment) error {
	res, err := p.q.ExecContext(ctx,
		`UPDATE payments SET session_id = NULLIF($2, ''), payment_intent_id = NULLIF($3, ''), status = $4 WHERE id = $1`,
		pay.ID, pay.SessionID, pay.PaymentIntentID, pay.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePayment
		}
		return fmt.Errorf("update payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// ---- processed events ----

type pgEvents struct{ q querier }

func (e pgEvents) RecordEvent(ctx context.Context, eventID string) error {
	_, err := e.q.ExecContext(ctx,
		`INSERT INTO processed_payment_events (event_id, processed_at) VALUES ($1, NOW())`, eventID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("insert processed event: %w", err)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}
