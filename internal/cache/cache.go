package cache

import (
	"context"
	"errors"

	"github.com/Lumixions/flutter-marketplace/internal/domain"
)

type ProductCache interface {
	Get(ctx context.Context, productID int64) (*domain.Product, error)
	Set(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, productIDs ...int64) error
}

var ErrCacheMiss = errors.New("cache miss")

// Nop is used when no redis is configured. Every Get misses.
type Nop struct{}

func (Nop) Get(context.Context, int64) (*domain.Product, error) { return nil, ErrCacheMiss }
func (Nop) Set(context.Context, *domain.Product) error          { return nil }
func (Nop) Delete(context.Context, ...int64) error              { return nil }
