package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedBot struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

func TestMemoryCacheRoundTripsStructsAndStrings(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "bot:1", cachedBot{ID: "1", Secret: "s"}, time.Minute))
	var got cachedBot
	require.NoError(t, mc.Get(ctx, "bot:1", &got))
	assert.Equal(t, cachedBot{ID: "1", Secret: "s"}, got)

	require.NoError(t, mc.Set(ctx, "plain", "value", 0))
	var s string
	require.NoError(t, mc.Get(ctx, "plain", &s))
	assert.Equal(t, "value", s)

	assert.ErrorIs(t, mc.Get(ctx, "missing", &s), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "k", "v", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	var s string
	assert.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	_ = mc.Set(ctx, "bot:1", "a", 0)
	_ = mc.Set(ctx, "bot:2", "b", 0)
	_ = mc.Set(ctx, "event-lock:1", "c", 0)

	require.NoError(t, mc.DeleteByPattern(ctx, BuildPattern("bot:")))
	ok, _ := mc.Exists(ctx, "bot:1", "bot:2")
	assert.False(t, ok)
	ok, _ = mc.Exists(ctx, "event-lock:1")
	assert.True(t, ok)
}

func TestMemoryCacheTryLockAndIncrement(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	ok, err := mc.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = mc.TryLock(ctx, "lock", time.Minute)
	assert.False(t, ok)
	require.NoError(t, mc.Unlock(ctx, "lock"))
	ok, _ = mc.TryLock(ctx, "lock", time.Minute)
	assert.True(t, ok)

	n, _ := mc.Increment(ctx, "ctr")
	assert.Equal(t, int64(1), n)
	n, _ = mc.Increment(ctx, "ctr")
	assert.Equal(t, int64(2), n)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	_ = mc.Set(ctx, "a", "1", 0)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "b", "2", 0)
	time.Sleep(time.Millisecond)
	var s string
	_ = mc.Get(ctx, "a", &s)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "c", "3", 0)

	ok, _ := mc.Exists(ctx, "b")
	assert.False(t, ok)
	ok, _ = mc.Exists(ctx, "a")
	assert.True(t, ok)
}

func TestMemoryCacheSweepsExpiredItems(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryCleanup(5*time.Millisecond), WithMemoryMaxSize(0))
	defer mc.Close()
	assert.Equal(t, 1000, mc.maxSize)

	require.NoError(t, mc.Set(ctx, "k", "v", time.Millisecond))
	require.Eventually(t, func() bool {
		mc.mutex.Lock()
		defer mc.mutex.Unlock()
		return len(mc.data) == 0
	}, time.Second, 5*time.Millisecond)
}
