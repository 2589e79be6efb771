package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/tiercache/metric"
)

// fakeClock is a manually advanced time source for expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestNewLRU_InvalidCapacity(t *testing.T) {
	_, err := NewLRU[string, int](0)
	require.Error(t, err)

	_, err = NewLRU[string, int](-1)
	require.Error(t, err)
}

func TestLRU_GetSet(t *testing.T) {
	c, err := NewLRU[string, string](10)
	require.NoError(t, err)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	created := c.Set("a", "alpha")
	assert.True(t, created)

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "alpha", got)

	created = c.Set("a", "alpha2")
	assert.False(t, created)

	got, ok = c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "alpha2", got)
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewLRU[string, int](2)
	require.NoError(t, err)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3) // evicts a

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should have been evicted")

	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)

	assert.Equal(t, 2, c.Size())
	assert.Equal(t, int64(1), c.Stats().Evictions())
}

func TestLRU_GetRefreshesRecency(t *testing.T) {
	c, err := NewLRU[string, int](2)
	require.NoError(t, err)

	c.Set("a", 1)
	c.Set("b", 2)

	// Touch a so b becomes the LRU entry.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", 3) // evicts b

	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRU_UpdateExistingNeverEvicts(t *testing.T) {
	c, err := NewLRU[string, int](2)
	require.NoError(t, err)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10) // update, not insert

	assert.Equal(t, 2, c.Size())
	assert.Equal(t, int64(0), c.Stats().Evictions())

	got, ok := c.Get("b")
	require.True(t, ok)
	assert.Equal(t, 2, got)
}

func TestLRU_NeverExceedsCapacity(t *testing.T) {
	const maxEntries = 16
	c, err := NewLRU[string, int](maxEntries)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i)
		assert.LessOrEqual(t, c.Size(), maxEntries)
	}
	assert.Equal(t, maxEntries, c.Size())
}

func TestLRU_TTLExpiry(t *testing.T) {
	clock := newFakeClock()
	c, err := NewLRU[string, string](10, WithClock[string, string](clock.Now))
	require.NoError(t, err)

	c.SetTTL("a", "alpha", 100*time.Millisecond)

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "alpha", got)

	clock.Advance(150 * time.Millisecond)

	_, ok = c.Get("a")
	assert.False(t, ok, "entry past its TTL should be a miss")
	assert.Equal(t, int64(1), c.Stats().Expirations())
	assert.Equal(t, 0, c.Size(), "expired entry should be removed on access")
}

func TestLRU_DefaultTTL(t *testing.T) {
	clock := newFakeClock()
	c, err := NewLRU[string, int](10,
		WithClock[string, int](clock.Now),
		WithDefaultTTL[string, int](time.Minute),
	)
	require.NoError(t, err)

	c.Set("a", 1)
	c.SetTTL("forever", 2, 0)

	clock.Advance(2 * time.Minute)

	_, ok := c.Get("a")
	assert.False(t, ok)

	got, ok := c.Get("forever")
	require.True(t, ok, "zero TTL entry should never expire")
	assert.Equal(t, 2, got)
}

func TestLRU_SetRestartsTTL(t *testing.T) {
	clock := newFakeClock()
	c, err := NewLRU[string, int](10, WithClock[string, int](clock.Now))
	require.NoError(t, err)

	c.SetTTL("a", 1, 100*time.Millisecond)
	clock.Advance(80 * time.Millisecond)
	c.SetTTL("a", 2, 100*time.Millisecond)
	clock.Advance(80 * time.Millisecond)

	got, ok := c.Get("a")
	require.True(t, ok, "rewrite should restart the TTL window")
	assert.Equal(t, 2, got)
}

func TestLRU_DeleteAndClear(t *testing.T) {
	c, err := NewLRU[string, int](10)
	require.NoError(t, err)

	c.Set("a", 1)
	c.Set("b", 2)

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
	assert.Equal(t, 1, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())
	assert.Empty(t, c.Keys())
}

func TestLRU_KeysMostRecentFirst(t *testing.T) {
	c, err := NewLRU[string, int](10)
	require.NoError(t, err)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	c.Get("a")

	assert.Equal(t, []string{"a", "c", "b"}, c.Keys())
}

func TestLRU_EvictionCallback(t *testing.T) {
	var mu sync.Mutex
	evicted := make(map[string]int)

	c, err := NewLRU[string, int](2,
		WithEvictionCallback[string, int](func(key string, value int) {
			mu.Lock()
			evicted[key] = value
			mu.Unlock()
		}),
	)
	require.NoError(t, err)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"a": 1}, evicted)
}

func TestLRU_StatsTracking(t *testing.T) {
	c, err := NewLRU[string, int](10)
	require.NoError(t, err)

	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits())
	assert.Equal(t, int64(1), stats.Misses())
	assert.Equal(t, int64(1), stats.Sets())
	assert.InDelta(t, 2.0/3.0, stats.HitRatio(), 0.0001)
}

func TestStatistics_Snapshot(t *testing.T) {
	c, err := NewLRU[string, int](2)
	require.NoError(t, err)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3) // evicts a
	c.Get("b")
	c.Get("missing")
	c.Delete("b")

	snap := c.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.Hits)
	assert.Equal(t, int64(1), snap.Misses)
	assert.Equal(t, int64(3), snap.Sets)
	assert.Equal(t, int64(1), snap.Deletes)
	assert.Equal(t, int64(1), snap.Evictions)
	assert.Equal(t, int64(1), snap.CurrentSize)
	assert.Equal(t, int64(2), snap.MaxSize)
	assert.InDelta(t, 0.5, snap.HitRatio, 0.0001)
	assert.GreaterOrEqual(t, snap.UptimeMS, int64(0))
}

func TestLRU_WithMetrics(t *testing.T) {
	registry := metric.NewRegistry()

	c, err := NewLRU[string, int](10, WithMetrics[string, int](registry, "test_cache"))
	require.NoError(t, err)

	c.Set("a", 1)
	c.Get("a")

	// A second cache under the same prefix must be rejected.
	_, err = NewLRU[string, int](10, WithMetrics[string, int](registry, "test_cache"))
	require.Error(t, err)
}

func TestLRU_ConcurrentAccess(t *testing.T) {
	c, err := NewLRU[int, int](64)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := (base*500 + i) % 100
				c.Set(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Size(), 64)
}
