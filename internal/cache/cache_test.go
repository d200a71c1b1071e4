package cache

import (
	"context"
	"testing"
	"time"

	"campus-marketplace/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, zap.NewNop()), mr
}

func caches(t *testing.T) map[string]Cache {
	redisCache, _ := newRedisCache(t)
	return map[string]Cache{
		"redis":  redisCache,
		"memory": NewInMemoryCache(zap.NewNop()),
	}
}

func TestCache_GetSetDelete(t *testing.T) {
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := c.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrCacheMiss)

			require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
			val, err := c.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("v"), val)

			exists, err := c.Exists(ctx, "k")
			require.NoError(t, err)
			assert.True(t, exists)

			require.NoError(t, c.Delete(ctx, "k"))
			exists, err = c.Exists(ctx, "k")
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestCache_SetNX(t *testing.T) {
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ok, err := c.SetNX(ctx, "lock", []byte("1"), time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = c.SetNX(ctx, "lock", []byte("2"), time.Minute)
			require.NoError(t, err)
			assert.False(t, ok)

			val, _ := c.Get(ctx, "lock")
			assert.Equal(t, []byte("1"), val)
		})
	}
}

func TestCache_DeleteByPattern(t *testing.T) {
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, c.Set(ctx, SearchPrefix+"a", []byte("1"), time.Minute))
			require.NoError(t, c.Set(ctx, SearchPrefix+"b", []byte("2"), time.Minute))
			require.NoError(t, c.Set(ctx, RevokedPrefix+"jti", []byte("1"), time.Minute))

			require.NoError(t, c.DeleteByPattern(ctx, SearchPrefix+"*"))

			exists, _ := c.Exists(ctx, SearchPrefix+"a")
			assert.False(t, exists)
			exists, _ = c.Exists(ctx, RevokedPrefix+"jti")
			assert.True(t, exists)
		})
	}
}

func TestCache_JSONHelpers(t *testing.T) {
	c := NewInMemoryCache(zap.NewNop())
	ctx := context.Background()

	type payload struct {
		IDs []string `json:"ids"`
	}
	require.NoError(t, SetJSON(ctx, c, "json", payload{IDs: []string{"a", "b"}}, TTL(60)))

	var got payload
	require.NoError(t, GetJSON(ctx, c, "json", &got))
	assert.Equal(t, []string{"a", "b"}, got.IDs)
}

func TestRedisCache_Expiry(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "ttl", []byte("v"), time.Second))

	mr.FastForward(2 * time.Second)

	_, err := c.Get(ctx, "ttl")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestInMemoryCache_Expiry(t *testing.T) {
	c := NewInMemoryCache(zap.NewNop())
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "ttl", []byte("v"), time.Millisecond))

	time.Sleep(5 * time.Millisecond)

	_, err := c.Get(ctx, "ttl")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestNewCache_FallsBackToMemory(t *testing.T) {
	cfg := &config.Config{UseCache: true, RedisHost: "127.0.0.1", RedisPort: "1"}
	c := NewCache(cfg, zap.NewNop())
	_, ok := c.(*InMemoryCache)
	assert.True(t, ok)

	mr := miniredis.RunT(t)
	cfg.RedisHost, cfg.RedisPort = mr.Host(), mr.Port()
	c = NewCache(cfg, zap.NewNop())
	redisCache, ok := c.(*RedisCache)
	require.True(t, ok)
	redisCache.Close()
}
