package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price_alert_backend/models"
)

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "price:crypto:BTC", CacheKey(models.AssetClassCrypto, "BTC"))
	assert.Equal(t, "price:stock:AAPL", CacheKey(models.AssetClassStock, "AAPL"))
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cache := NewMemoryCache()
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, models.AssetClassCrypto, "BTC", decimal.NewFromInt(50000), 5*time.Second))

	price, ok, err := cache.Get(ctx, models.AssetClassCrypto, "BTC")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromInt(50000)))

	now = now.Add(5 * time.Second)
	_, ok, err = cache.Get(ctx, models.AssetClassCrypto, "BTC")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestMemoryCacheMiss(t *testing.T) {
	cache := NewMemoryCache()
	_, ok, err := cache.Get(context.Background(), models.AssetClassStock, "MSFT")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewRedisCache(client)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, models.AssetClassCrypto, "ETH")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, models.AssetClassCrypto, "ETH", decimal.RequireFromString("3012.55"), 5*time.Second))

	stored, err := mr.Get("price:crypto:ETH")
	require.NoError(t, err)
	assert.Equal(t, "3012.55", stored)
	assert.Equal(t, 5*time.Second, mr.TTL("price:crypto:ETH"))

	price, ok, err := cache.Get(ctx, models.AssetClassCrypto, "ETH")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, price.Equal(decimal.RequireFromString("3012.55")))

	mr.FastForward(6 * time.Second)
	_, ok, err = cache.Get(ctx, models.AssetClassCrypto, "ETH")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheCorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, mr.Set("price:stock:AAPL", "not-a-number"))

	_, ok, err := NewRedisCache(client).Get(context.Background(), models.AssetClassStock, "AAPL")
	assert.Error(t, err)
	assert.False(t, ok)
}
