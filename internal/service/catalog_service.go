package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Lumixions/flutter-marketplace/internal/cache"
	"github.com/Lumixions/flutter-marketplace/internal/domain"
	"github.com/Lumixions/flutter-marketplace/internal/repository"
	"golang.org/x/sync/singleflight"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 4000
	maxStoreNameLen   = 200
)

type CatalogService struct {
	repo  repository.RepoInterface
	cache cache.ProductCache
	sfg   singleflight.Group
	log   *slog.Logger
}

func NewCatalogService(repo repository.RepoInterface, productCache cache.ProductCache, log *slog.Logger) *CatalogService {
	if productCache == nil {
		productCache = cache.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &CatalogService{repo: repo, cache: productCache, log: log}
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	products, err := s.repo.Catalog().ListActiveProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// GetProduct returns an active product, reading through the product cache.
func (s *CatalogService) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	v, err, _ := s.sfg.Do(strconv.FormatInt(productID, 10), func() (interface{}, error) {
		p, err := s.cache.Get(ctx, productID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.WarnContext(ctx, "product cache get failed", "product_id", productID, "error", err)
		}

		p, err = s.repo.Catalog().GetProduct(ctx, productID)
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("get product: %w", err)
		}

		go func(p *domain.Product) {
			setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := s.cache.Set(setCtx, p); err != nil {
				s.log.Warn("product cache set failed", "product_id", p.ID, "error", err)
			}
		}(p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	p := v.(*domain.Product)
	if !p.IsActive {
		return nil, ErrProductNotFound
	}
	return p, nil
}

// GetSellerProfile returns nil without error when the user has no profile.
func (s *CatalogService) GetSellerProfile(ctx context.Context, userID int64) (*domain.SellerProfile, error) {
	sp, err := s.repo.Sellers().GetSellerByUserID(ctx, userID)
	if errors.Is(err, repository.ErrSellerNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get seller profile: %w", err)
	}
	return sp, nil
}

func (s *CatalogService) UpsertSellerProfile(ctx context.Context, userID int64, storeName string) (*domain.SellerProfile, error) {
	if n := utf8.RuneCountInString(storeName); n < 1 || n > maxStoreNameLen {
		return nil, fmt.Errorf("%w: store_name must be 1..%d characters", ErrInvalidInput, maxStoreNameLen)
	}
	sp, err := s.repo.Sellers().UpsertSeller(ctx, userID, storeName)
	if err != nil {
		return nil, fmt.Errorf("upsert seller profile: %w", err)
	}
	return sp, nil
}

func (s *CatalogService) sellerFor(ctx context.Context, userID int64) (*domain.SellerProfile, error) {
	sp, err := s.repo.Sellers().GetSellerByUserID(ctx, userID)
	if errors.Is(err, repository.ErrSellerNotFound) {
		return nil, ErrSellerRequired
	}
	if err != nil {
		return nil, fmt.Errorf("get seller profile: %w", err)
	}
	return sp, nil
}

// ownedProduct loads a product the seller owns. Someone else's product is
// reported as not found.
func (s *CatalogService) ownedProduct(ctx context.Context, userID, productID int64) (*domain.Product, error) {
	seller, err := s.sellerFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.Catalog().GetProduct(ctx, productID)
	if errors.Is(err, repository.ErrProductNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if p.SellerID != seller.ID {
		return nil, ErrProductNotFound
	}
	return p, nil
}

// ListSellerProducts returns an empty list for users without a profile.
func (s *CatalogService) ListSellerProducts(ctx context.Context, userID int64) ([]*domain.Product, error) {
	seller, err := s.sellerFor(ctx, userID)
	if errors.Is(err, ErrSellerRequired) {
		return []*domain.Product{}, nil
	}
	if err != nil {
		return nil, err
	}
	products, err := s.repo.Catalog().ListProductsBySeller(ctx, seller.ID)
	if err != nil {
		return nil, fmt.Errorf("list seller products: %w", err)
	}
	return products, nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, userID int64, p domain.Product) (*domain.Product, error) {
	seller, err := s.sellerFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	if p.Currency == "" {
		p.Currency = domain.DefaultCurrency
	}
	p.Currency = strings.ToUpper(p.Currency)
	if err := validateProduct(p.Title, p.Description, p.PriceCents, p.Currency, p.StockQty); err != nil {
		return nil, err
	}

	p.ID = 0
	p.SellerID = seller.ID
	p.Images = nil
	if err := s.repo.Catalog().CreateProduct(ctx, &p); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.log.InfoContext(ctx, "product created", "product_id", p.ID, "seller_id", seller.ID)
	return &p, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, userID, productID int64, u domain.ProductUpdate) (*domain.Product, error) {
	current, err := s.ownedProduct(ctx, userID, productID)
	if err != nil {
		return nil, err
	}

	if u.Currency != nil {
		upper := strings.ToUpper(*u.Currency)
		u.Currency = &upper
	}
	merged := *current
	if u.Title != nil {
		merged.Title = *u.Title
	}
	if u.Description != nil {
		merged.Description = *u.Description
	}
	if u.PriceCents != nil {
		merged.PriceCents = *u.PriceCents
	}
	if u.Currency != nil {
		merged.Currency = *u.Currency
	}
	if u.StockQty != nil {
		merged.StockQty = *u.StockQty
	}
	if err := validateProduct(merged.Title, merged.Description, merged.PriceCents, merged.Currency, merged.StockQty); err != nil {
		return nil, err
	}

	updated, err := s.repo.Catalog().UpdateProduct(ctx, productID, u)
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	s.invalidate(ctx, productID)
	return updated, nil
}

// AttachImages appends object keys after the product's existing images.
func (s *CatalogService) AttachImages(ctx context.Context, userID, productID int64, keys []string) (*domain.Product, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: at least one image key is required", ErrInvalidInput)
	}
	for _, k := range keys {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("%w: image keys must not be empty", ErrInvalidInput)
		}
	}
	if _, err := s.ownedProduct(ctx, userID, productID); err != nil {
		return nil, err
	}

	var updated *domain.Product
	err := s.repo.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Catalog().AddProductImages(ctx, productID, keys); err != nil {
			return err
		}
		p, err := tx.Catalog().GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("attach images: %w", err)
	}
	s.invalidate(ctx, productID)
	return updated, nil
}

func (s *CatalogService) invalidate(ctx context.Context, productIDs ...int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, productIDs...); err != nil {
		s.log.WarnContext(ctx, "product cache invalidate failed", "error", err)
	}
}

func validateProduct(title, description string, priceCents int64, currency string, stock int64) error {
	switch {
	case utf8.RuneCountInString(title) < 1 || utf8.RuneCountInString(title) > maxTitleLen:
		return fmt.Errorf("%w: title must be 1..%d characters", ErrInvalidInput, maxTitleLen)
	case utf8.RuneCountInString(description) > maxDescriptionLen:
		return fmt.Errorf("%w: description must be at most %d characters", ErrInvalidInput, maxDescriptionLen)
	case priceCents < 0:
		return fmt.Errorf("%w: price_cents must be >= 0", ErrInvalidInput)
	case len(currency) != 3:
		return fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidInput)
	case stock < 0:
		return fmt.Errorf("%w: stock_qty must be >= 0", ErrInvalidInput)
	}
	return nil
}
