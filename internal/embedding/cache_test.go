package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey(t *testing.T) {
	a := CacheKey("nomic-embed-text", "hello")

	assert.Equal(t, a, CacheKey("nomic-embed-text", "hello"))
	assert.NotEqual(t, a, CacheKey("other-model", "hello"))
	assert.Len(t, a, len("emb:")+32)
	assert.Equal(t, "emb:", a[:4])
}

func TestLocalLRU_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewLocalLRU(2)

	c.Set(ctx, "a", []float64{1, 2}, time.Minute)
	v, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2}, v)

	_, ok = c.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestLocalLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewLocalLRU(2)

	c.Set(ctx, "a", []float64{1}, time.Minute)
	c.Set(ctx, "b", []float64{2}, time.Minute)
	_, _ = c.Get(ctx, "a")
	c.Set(ctx, "c", []float64{3}, time.Minute)

	_, ok := c.Get(ctx, "b")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestLocalLRU_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewLocalLRU(0)

	c.Set(ctx, "a", []float64{1}, -time.Second)

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := NewRedisCache(ctx, mr.Addr())
	require.NoError(t, err)
	defer c.Close()

	vec := []float64{0.25, -1.5, 3e-9}
	c.Set(ctx, "emb:x", vec, time.Hour)

	got, ok := c.Get(ctx, "emb:x")
	require.True(t, ok)
	assert.Equal(t, vec, got)

	_, ok = c.Get(ctx, "emb:missing")
	assert.False(t, ok)

	mr.FastForward(2 * time.Hour)
	_, ok = c.Get(ctx, "emb:x")
	assert.False(t, ok)
}

func TestRedisCache_CorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("emb:bad", "abc"))

	c, err := NewRedisCache(context.Background(), mr.Addr())
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get(context.Background(), "emb:bad")
	assert.False(t, ok)
}

func TestNewCache(t *testing.T) {
	ctx := context.Background()

	c, err := NewCache(ctx, CacheNone, "", 0)
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = NewCache(ctx, CacheMemory, "", 10)
	require.NoError(t, err)
	assert.IsType(t, &LocalLRU{}, c)

	mr := miniredis.RunT(t)
	c, err = NewCache(ctx, CacheRedis, mr.Addr(), 0)
	require.NoError(t, err)
	assert.IsType(t, &RedisCache{}, c)

	_, err = NewCache(ctx, "memcached", "", 0)
	assert.Error(t, err)
}
