package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/shaheenexpress/orderflow/internal/core/domain"
)

const (
	productKeyPrefix  = "product:"
	defaultProductTTL = 5 * time.Minute
)

// RedisAdapter caches catalog snapshots as JSON under product:<id>.
type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAdapter(client *redis.Client, ttl time.Duration) *RedisAdapter {
	if ttl <= 0 {
		ttl = defaultProductTTL
	}
	return &RedisAdapter{client: client, ttl: ttl}
}

type cachedProduct struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Stock     int             `json:"stock"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func (r *RedisAdapter) GetProduct(ctx context.Context, productID string) (*domain.Product, bool, error) {
	raw, err := r.client.Get(ctx, productKeyPrefix+productID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var c cachedProduct
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, false, fmt.Errorf("decode cached product %s: %w", productID, err)
	}

	return c.toDomain(), true, nil
}

func (r *RedisAdapter) SetProduct(ctx context.Context, product domain.Product) error {
	raw, err := json.Marshal(cachedProduct{
		ID:        product.ID,
		Name:      product.Name,
		Price:     product.Price,
		Currency:  product.Currency,
		Stock:     product.Stock,
		UpdatedAt: product.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode product %s: %w", product.ID, err)
	}
	return r.client.Set(ctx, productKeyPrefix+product.ID, raw, r.ttl).Err()
}

func (r *RedisAdapter) InvalidateProducts(ctx context.Context, productIDs ...string) error {
	if len(productIDs) == 0 {
		return nil
	}
	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = productKeyPrefix + id
	}
	return r.client.Del(ctx, keys...).Err()
}

func (c cachedProduct) toDomain() *domain.Product {
	return &domain.Product{
		ID:        c.ID,
		Name:      c.Name,
		Price:     c.Price,
		Currency:  c.Currency,
		Stock:     c.Stock,
		UpdatedAt: c.UpdatedAt,
	}
}
