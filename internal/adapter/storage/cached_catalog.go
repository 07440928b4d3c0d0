package storage

import (
	"context"
	"log/slog"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
	"github.com/shaheenexpress/orderflow/internal/port"
)

// CachedCatalog reads products through the cache. Cache failures degrade to
// the backing catalog; they never fail a checkout.
type CachedCatalog struct {
	source port.CatalogRepository
	cache  port.CacheRepository
	logger *slog.Logger
}

func NewCachedCatalog(source port.CatalogRepository, cache port.CacheRepository, logger *slog.Logger) *CachedCatalog {
	return &CachedCatalog{source: source, cache: cache, logger: logger}
}

func (c *CachedCatalog) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	cached, ok, err := c.cache.GetProduct(ctx, productID)
	if err != nil {
		c.logger.Warn("catalog cache read failed", "product_id", productID, "error", err)
	}
	if ok {
		return cached, nil
	}

	product, err := c.source.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetProduct(ctx, *product); err != nil {
		c.logger.Warn("catalog cache write failed", "product_id", productID, "error", err)
	}
	return product, nil
}
