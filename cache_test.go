package cache_test

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cache "github.com/krisalay/menu-cache"
	"github.com/krisalay/menu-cache/engine"
	"github.com/krisalay/menu-cache/types"
)

//
// ================= HELPER: CREATE CACHE =================
//

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// newTestCache builds a cache with a fake clock and a fixed 100-byte size
// per entry so memory accounting is predictable.
func newTestCache(maxEntries int, maxBytes int64) (*cache.BoundedCache[string], *types.FakeClock, *types.Counters) {
	clock := types.NewFakeClock(epoch)
	metrics := &types.Counters{}
	eng := engine.NewCacheEngine(
		engine.WithClock(clock),
		engine.WithSizer(types.FixedSizer(100)),
		engine.WithMetrics(metrics),
	)
	c := cache.New[string](cache.Config{
		Name:       "test",
		TTL:        time.Minute,
		MaxEntries: maxEntries,
		MaxBytes:   maxBytes,
	}, eng)
	return c, clock, metrics
}

//
// ================= BASIC OPERATIONS =================
//

func TestAddAndRetrieve(t *testing.T) {
	c, _, _ := newTestCache(10, 10_000)

	c.Set("key1", "value1")

	v, ok := c.Get("key1")
	require.True(t, ok)
	assert.Equal(t, "value1", v)
}

func TestRetrieveNonExistentKey(t *testing.T) {
	c, _, metrics := newTestCache(10, 10_000)

	v, ok := c.Get("missing")
	assert.False(t, ok)
	assert.Empty(t, v)
	assert.Equal(t, int64(1), metrics.Snapshot().Misses)
}

func TestUpdateExistingKeyReleasesMemory(t *testing.T) {
	c, _, _ := newTestCache(10, 10_000)

	c.Set("key1", "value1")
	c.Set("key1", "value2")

	v, ok := c.Get("key1")
	require.True(t, ok)
	assert.Equal(t, "value2", v)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(100), c.Memory())
}

func TestDeleteKey(t *testing.T) {
	c, _, _ := newTestCache(10, 10_000)

	c.Set("key1", "value1")
	c.Delete("key1")
	c.Delete("key1") // no-op

	_, ok := c.Get("key1")
	assert.False(t, ok)
	assert.Equal(t, int64(0), c.Memory())
	assert.Empty(t, c.Keys())
}

func TestClear(t *testing.T) {
	c, _, _ := newTestCache(10, 10_000)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Clear()

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Memory())
	assert.Empty(t, c.Keys())
}

//
// ================= CAPACITY & EVICTION =================
//

func TestEvictionOnEntryCount(t *testing.T) {
	c, _, metrics := newTestCache(2, 10_000)

	c.Set("key1", "value1")
	c.Set("key2", "value2")
	c.Set("key3", "value3") // should evict key1

	assert.False(t, c.Has("key1"))
	assert.True(t, c.Has("key2"))
	assert.True(t, c.Has("key3"))
	assert.Equal(t, int64(1), metrics.Snapshot().Evictions)
}

func TestEvictionPrefersLeastRecentlyAccessed(t *testing.T) {
	c, _, _ := newTestCache(2, 10_000)

	c.Set("A", "a")
	c.Set("B", "b")

	// A is read after B was inserted, so B is now the LRU key
	_, ok := c.Get("A")
	require.True(t, ok)

	c.Set("C", "c")

	assert.True(t, c.Has("A"))
	assert.False(t, c.Has("B"))
	assert.Equal(t, []string{"A", "C"}, c.Keys())
}

func TestHasDoesNotChangeRecency(t *testing.T) {
	c, _, _ := newTestCache(2, 10_000)

	c.Set("A", "a")
	c.Set("B", "b")
	require.True(t, c.Has("A"))

	c.Set("C", "c")

	assert.False(t, c.Has("A"))
	assert.True(t, c.Has("B"))
}

func TestEvictionOnMemoryBudget(t *testing.T) {
	// room for two 100-byte entries
	c, _, _ := newTestCache(10, 250)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("c", "3")

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(200), c.Memory())
	assert.False(t, c.Has("a"))
}

func TestOversizedEntryIsNotStored(t *testing.T) {
	c, _, _ := newTestCache(10, 50)

	c.Set("big", "value")

	assert.False(t, c.Has("big"))
	assert.Equal(t, int64(0), c.Memory())
}

func TestBoundsHoldForRandomOperations(t *testing.T) {
	const maxEntries = 5
	const maxBytes = 2_000

	eng := engine.NewCacheEngine(engine.WithSizer(types.SizerFunc(func(v any) (int64, error) {
		return int64(len(v.(string))), nil
	})))
	c := cache.New[string](cache.Config{MaxEntries: maxEntries, MaxBytes: maxBytes}, eng)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2_000; i++ {
		key := fmt.Sprintf("k%d", rng.Intn(12))
		switch rng.Intn(3) {
		case 0:
			c.Delete(key)
		case 1:
			c.Get(key)
		default:
			c.Set(key, string(make([]byte, rng.Intn(900)+1)))
		}

		require.LessOrEqual(t, c.Len(), maxEntries)
		require.LessOrEqual(t, c.Memory(), int64(maxBytes))

		// recency sequence is a permutation of the stored keys
		keys := c.Keys()
		require.Len(t, keys, c.Len())
		sorted := append([]string(nil), keys...)
		sort.Strings(sorted)
		for j := 1; j < len(sorted); j++ {
			require.NotEqual(t, sorted[j-1], sorted[j])
		}
		for _, k := range keys {
			_, ok := c.Peek(k)
			require.True(t, ok)
		}
	}
}

//
// ================= TTL =================
//

func TestTTLExpiration(t *testing.T) {
	c, clock, metrics := newTestCache(10, 10_000)

	c.SetWithTTL("ttlKey", "temp", time.Second)
	clock.Advance(2 * time.Second)

	_, ok := c.Get("ttlKey")
	assert.False(t, ok)
	assert.False(t, c.Has("ttlKey"))
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(1), metrics.Snapshot().Expired)
}

func TestEntryAtExactTTLIsStillFresh(t *testing.T) {
	c, clock, _ := newTestCache(10, 10_000)

	c.SetWithTTL("k", "v", time.Second)
	clock.Advance(time.Second)

	assert.True(t, c.Has("k"))
}

func TestExpireThenReplace(t *testing.T) {
	c, clock, _ := newTestCache(10, 10_000)

	c.SetWithTTL("x", "v1", 100*time.Millisecond)
	clock.Advance(150 * time.Millisecond)

	_, ok := c.Get("x")
	require.False(t, ok)

	c.Set("x", "v2")
	v, ok := c.Get("x")
	require.True(t, ok)
	assert.Equal(t, "v2", v)
}

func TestLookupAndPeekKeepExpiredEntries(t *testing.T) {
	c, clock, _ := newTestCache(10, 10_000)

	c.SetWithTTL("k", "old", time.Second)
	clock.Advance(5 * time.Second)

	v, fresh, ok := c.Lookup("k")
	require.True(t, ok)
	assert.False(t, fresh)
	assert.Equal(t, "old", v)

	v, ok = c.Peek("k")
	require.True(t, ok)
	assert.Equal(t, "old", v)
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	c, clock, _ := newTestCache(10, 10_000)

	c.SetWithTTL("short", "1", time.Second)
	c.SetWithTTL("long", "2", time.Hour)
	clock.Advance(time.Minute)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, []string{"long"}, c.Keys())
	assert.Equal(t, int64(100), c.Memory())
}

//
// ================= SIZE ESTIMATION =================
//

func TestSizeEstimationFailureUsesDefault(t *testing.T) {
	eng := engine.NewCacheEngine(engine.WithSizer(types.SizerFunc(func(any) (int64, error) {
		return 0, errors.New("cannot serialize")
	})))
	c := cache.New[string](cache.Config{}, eng)

	c.Set("k", "v")

	assert.True(t, c.Has("k"))
	assert.Equal(t, types.DefaultEntrySize, c.Memory())
}

func TestJSONSizerUnserializableValue(t *testing.T) {
	c := cache.New[any](cache.Config{}, nil)

	c.Set("ch", make(chan int))

	assert.Equal(t, types.DefaultEntrySize, c.Memory())
}

//
// ================= STATS =================
//

func TestStats(t *testing.T) {
	c, clock, _ := newTestCache(10, 10_000)

	c.Set("first", "1")
	clock.Advance(time.Second)
	c.Set("second", "2")

	c.Get("second")
	c.Get("second")
	c.Get("first")

	s := c.Stats()
	assert.Equal(t, 2, s.Entries)
	assert.Equal(t, int64(200), s.MemoryBytes)
	assert.Equal(t, int64(3), s.TotalAccesses)
	assert.InDelta(t, 3.0/5.0, s.HitRate, 1e-9)
	assert.Equal(t, "first", s.OldestKey)
	assert.Equal(t, "second", s.MostAccessedKey)
}

func TestStatsWithoutExpirationStrategy(t *testing.T) {
	clock := types.NewFakeClock(epoch)
	eng := engine.NewCacheEngine(
		engine.WithClock(clock),
		engine.WithSizer(types.FixedSizer(100)),
		engine.WithExpiration(nil),
	)
	c := cache.New[string](cache.Config{Name: "forever", TTL: time.Minute, MaxEntries: 10, MaxBytes: 10_000}, eng)

	c.Set("soup", "tomato")
	clock.Advance(time.Hour)
	c.Get("soup")
	c.Get("soup")

	s := c.Stats()
	assert.Equal(t, int64(2), s.TotalAccesses)
	assert.Equal(t, "soup", s.MostAccessedKey)
	assert.InDelta(t, 2.0/3.0, s.HitRate, 1e-9)
}

func TestStatsEmpty(t *testing.T) {
	c, _, _ := newTestCache(10, 10_000)

	s := c.Stats()
	assert.Zero(t, s.Entries)
	assert.Zero(t, s.HitRate)
	assert.Empty(t, s.OldestKey)
}

//
// ================= DOMAINS =================
//

func TestDomainCachesAreIndependent(t *testing.T) {
	d := cache.NewDomainCaches(cache.DefaultDomainConfig(), nil)

	d.API.Set("menu-items", []string{"soup"})
	d.Images.Set("menu-items", []byte("png"))

	v, ok := d.API.Get("menu-items")
	require.True(t, ok)
	assert.Equal(t, []string{"soup"}, v)
	assert.False(t, d.Menu.Has("menu-items"))

	d.Clear()
	assert.Equal(t, 0, d.API.Len()+d.Images.Len()+d.Menu.Len())
}

func TestDomainCachesStats(t *testing.T) {
	d := cache.NewDomainCaches(cache.DefaultDomainConfig(), nil)
	d.Menu.Set("categories", []string{"mains"})

	stats := d.Stats()
	require.Len(t, stats, 3)
	assert.Equal(t, 1, stats["menu"].Entries)
	assert.Equal(t, 0, stats["api"].Entries)
	assert.Equal(t, 0, stats["images"].Entries)
}

//
// ================= CONCURRENCY =================
//

func TestConcurrentAccess(t *testing.T) {
	c, _, _ := newTestCache(20, 1_000)

	wg := sync.WaitGroup{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("k%d", (id+j)%30)
				c.Set(key, "v")
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 10)
	assert.LessOrEqual(t, c.Memory(), int64(1_000))
}
