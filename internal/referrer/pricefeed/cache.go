package pricefeed

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type priceStore interface {
	GetTokenPrice(ctx context.Context, name string) (decimal.Decimal, error)
}

// Cache reads token prices through redis and a small local cache onto the store.
type Cache struct {
	cache *cache.Cache
	store priceStore
	ttl   time.Duration
}

func NewCache(rdb redis.UniversalClient, store priceStore, ttl time.Duration) *Cache {
	return &Cache{
		cache: cache.New(&cache.Options{
			Redis:      rdb,
			LocalCache: cache.NewTinyLFU(100, time.Minute),
		}),
		store: store,
		ttl:   ttl,
	}
}

func priceKey(symbol string) string {
	return "token_price:" + symbol
}

func (c *Cache) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var raw string
	err := c.cache.Once(&cache.Item{
		Ctx:   ctx,
		Key:   priceKey(symbol),
		Value: &raw,
		TTL:   c.ttl,
		Do: func(*cache.Item) (interface{}, error) {
			price, err := c.store.GetTokenPrice(ctx, symbol)
			if err != nil {
				return nil, err
			}
			return price.String(), nil
		},
	})
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "cache.Once failed: ")
	}
	return decimal.NewFromString(raw)
}

func (c *Cache) Invalidate(ctx context.Context, symbols ...string) error {
	for _, s := range symbols {
		if err := c.cache.Delete(ctx, priceKey(s)); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			return errors.Wrap(err, "cache.Delete failed: ")
		}
	}
	return nil
}
