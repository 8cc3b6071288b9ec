package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/cache/v8"

	"github.com/vmaslov/brokerage/internal/model"
)

// Cache keeps the latest quote per symbol in redis
type Cache struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewCache is constructor
func NewCache(c *cache.Cache, ttl time.Duration) *Cache {
	return &Cache{cache: c, ttl: ttl}
}

// Set stores the quote under its symbol
func (c *Cache) Set(quote *model.Quote) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return c.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   quote.Symbol,
		Value: quote,
		TTL:   c.ttl,
	})
}

// Get returns the latest quote for the symbol. A missing or expired
// entry surfaces model.ErrQuoteUnavailable so batch scans can skip the
// symbol instead of failing
func (c *Cache) Get(symbol string) (*model.Quote, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var quote model.Quote
	err := c.cache.Get(ctx, symbol, &quote)
	if err == cache.ErrCacheMiss {
		return nil, fmt.Errorf("%s: %w", symbol, model.ErrQuoteUnavailable)
	}
	if err != nil {
		return nil, err
	}
	return &quote, nil
}
