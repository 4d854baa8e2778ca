package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"price_alert_backend/models"
)

// Cache stores recently fetched prices. Get reports a miss with ok=false.
type Cache interface {
	Get(ctx context.Context, class models.AssetClass, symbol string) (price decimal.Decimal, ok bool, err error)
	Set(ctx context.Context, class models.AssetClass, symbol string, price decimal.Decimal, ttl time.Duration) error
}

// CacheKey builds the key shared by every cache implementation
func CacheKey(class models.AssetClass, symbol string) string {
	return fmt.Sprintf("price:%s:%s", class, symbol)
}

type memoryEntry struct {
	price     decimal.Decimal
	expiresAt time.Time
}

// MemoryCache is an in-process cache with per-entry expiry
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-process cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, class models.AssetClass, symbol string) (decimal.Decimal, bool, error) {
	key := CacheKey(class, symbol)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return decimal.Zero, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		// Re-check so a fresh write that landed in between is kept
		if current, exists := c.entries[key]; exists && !c.now().Before(current.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return decimal.Zero, false, nil
	}
	return entry.price, true, nil
}

func (c *MemoryCache) Set(_ context.Context, class models.AssetClass, symbol string, price decimal.Decimal, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[CacheKey(class, symbol)] = memoryEntry{price: price, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisCache shares prices between engine instances through redis
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing redis client
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, class models.AssetClass, symbol string) (decimal.Decimal, bool, error) {
	raw, err := c.client.Get(ctx, CacheKey(class, symbol)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("redis get: %w", err)
	}

	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("corrupt cached price %q: %w", raw, err)
	}
	return price, true, nil
}

func (c *RedisCache) Set(ctx context.Context, class models.AssetClass, symbol string, price decimal.Decimal, ttl time.Duration) error {
	if err := c.client.Set(ctx, CacheKey(class, symbol), price.String(), ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
