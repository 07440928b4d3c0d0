package port

import (
	"context"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
)

type CacheRepository interface {
	// GetProduct returns a cached product; ok is false on a miss
	GetProduct(ctx context.Context, productID string) (product *domain.Product, ok bool, err error)

	// SetProduct caches a product snapshot
	SetProduct(ctx context.Context, product domain.Product) error

	// InvalidateProducts drops cached snapshots (after stock changes)
	InvalidateProducts(ctx context.Context, productIDs ...string) error
}
