package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Coin  string    `json:"coin"`
	Price float64   `json:"price"`
	At    time.Time `json:"at"`
}

func newRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisCacheFromClient(client, "test"), mr
}

func exerciseService(t *testing.T, c Service) {
	ctx := context.Background()
	want := payload{Coin: "BTCUSDT", Price: 43125.5, At: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}

	require.NoError(t, c.Set(ctx, "candles:BTCUSDT:1d", want, time.Minute))
	got, err := GetTyped[payload](ctx, c, "candles:BTCUSDT:1d")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	var missing payload
	assert.ErrorIs(t, c.Get(ctx, "nope", &missing), ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "candles:ETHUSDT:1h", want, time.Minute))
	require.NoError(t, c.Set(ctx, "meta:bitcoin", want, time.Minute))
	require.NoError(t, c.DeleteByPattern(ctx, BuildPattern("candles:")))
	assert.ErrorIs(t, c.Get(ctx, "candles:ETHUSDT:1h", &missing), ErrCacheMiss)
	require.NoError(t, c.Get(ctx, "meta:bitcoin", &missing))

	ok, err := c.TryLock(ctx, "train:bitcoin", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.TryLock(ctx, "train:bitcoin", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, c.Unlock(ctx, "train:bitcoin"))
	ok, err = c.TryLock(ctx, "train:bitcoin", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	exerciseService(t, c)
}

func TestRedisCache(t *testing.T) {
	c, _ := newRedis(t)
	defer c.Close()
	exerciseService(t, c)
}

func TestLayeredCache(t *testing.T) {
	r, mr := newRedis(t)
	c := NewLayeredCache(r)
	defer c.Close()
	exerciseService(t, c)

	// L1 serves a value even after Redis lost it, until its own TTL.
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", payload{Coin: "SOLUSDT"}, time.Hour))
	mr.FlushAll()
	got, err := GetTyped[payload](ctx, c, "k")
	require.NoError(t, err)
	assert.Equal(t, "SOLUSDT", got.Coin)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(WithMemoryMaxSize(2))
	defer c.Close()

	require.NoError(t, c.Set(ctx, "a", 1, time.Minute))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, c.Set(ctx, "b", 2, time.Minute))
	time.Sleep(2 * time.Millisecond)
	var v int
	require.NoError(t, c.Get(ctx, "a", &v))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, c.Set(ctx, "c", 3, time.Minute))

	assert.Equal(t, 2, c.Len())
	assert.ErrorIs(t, c.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, c.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)
}
