package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentimentEntry struct {
	Score float64 `json:"score"`
	Label string  `json:"label"`
}

func TestMemoryCache_SetGetStruct(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	defer c.Close()

	require.NoError(t, c.Set(ctx, "sentiment:EURUSD", sentimentEntry{Score: 0.4, Label: "bullish"}, time.Minute))

	var got sentimentEntry
	require.NoError(t, c.Get(ctx, "sentiment:EURUSD", &got))
	assert.Equal(t, sentimentEntry{Score: 0.4, Label: "bullish"}, got)

	var f float64
	require.NoError(t, c.Set(ctx, "score", 0.25, time.Minute))
	require.NoError(t, c.Get(ctx, "score", &f))
	assert.Equal(t, 0.25, f)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", "v", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	var s string
	assert.ErrorIs(t, c.Get(ctx, "k", &s), ErrCacheMiss)
	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
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

	assert.ErrorIs(t, c.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, c.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)
}

func TestMemoryCache_Lock(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	defer c.Close()

	ok, err := c.TryLock(ctx, "lock:ticket:7", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.TryLock(ctx, "lock:ticket:7", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Unlock(ctx, "lock:ticket:7"))
	ok, err = c.TryLock(ctx, "lock:ticket:7", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRemember(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	defer c.Close()

	calls := 0
	load := func(context.Context) (float64, error) {
		calls++
		return 0.7, nil
	}

	v, err := Remember(ctx, c, "s", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 0.7, v)
	v, err = Remember(ctx, c, "s", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 0.7, v)
	assert.Equal(t, 1, calls)
}
