package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)

	_, err := c.Get(ctx, "chunk:1:0:0:0")
	assert.True(t, IsCacheMiss(err), "Пустой кеш должен давать промах")

	require.NoError(t, c.Set(ctx, "chunk:1:0:0:0", []byte{1, 2, 3}, 0))
	val, err := c.Get(ctx, "chunk:1:0:0:0")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, val)

	ok, err := c.Exists(ctx, "chunk:1:0:0:0")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "chunk:1:0:0:0"))
	_, err = c.Get(ctx, "chunk:1:0:0:0")
	assert.ErrorIs(t, err, ErrCacheMiss)

	m := c.GetMetrics()
	assert.Equal(t, int64(3), m.TotalRequests)
	assert.Equal(t, int64(1), m.CacheHits)
	assert.InDelta(t, 1.0/3.0, m.HitRatio, 1e-9)
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Second)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	now = now.Add(2 * time.Second)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss, "Истекший ключ не должен возвращаться")
	ok, _ := c.Exists(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCache_Closed(t *testing.T) {
	c := NewMemoryCache(0)
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Set(context.Background(), "k", nil, 0), ErrCacheClosed)
}
