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

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWithClient(client), mr
}

func TestSetGetRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	in := map[string]string{"marca": "Volkswagen"}
	c.Set(ctx, "fipe:brands:carros", "fipe", in, time.Minute)

	var out map[string]string
	require.True(t, c.Get(ctx, "fipe:brands:carros", &out))
	assert.Equal(t, in, out)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Sets)
}

func TestMissOnUnknownKey(t *testing.T) {
	c, _ := newTestCache(t)

	var out string
	assert.False(t, c.Get(context.Background(), "nope", &out))
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestExpiredEntryIsMiss(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "k", "test", "v", time.Second)
	mr.FastForward(2 * time.Second)

	var out string
	assert.False(t, c.Get(ctx, "k", &out))
}

func TestNilCacheDegradesSilently(t *testing.T) {
	var c *Cache

	var out string
	assert.False(t, c.Get(context.Background(), "k", &out))
	c.Set(context.Background(), "k", "test", "v", time.Minute)
	assert.False(t, c.Ping(context.Background()))
}

func TestRedisDownDegradesToMiss(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "k", "test", "v", time.Minute)
	mr.Close()

	var out string
	assert.False(t, c.Get(ctx, "k", &out))
	assert.Greater(t, c.Stats().Errors, int64(0))
}
