package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/krisalay/menu-cache/engine"
	"github.com/krisalay/menu-cache/eviction"
	"github.com/krisalay/menu-cache/types"
)

// Config bounds a BoundedCache. It is copied on construction and never
// changes afterwards.
type Config struct {
	// Name labels the instance in logs.
	Name string

	// TTL is the default time-to-live used by Set.
	TTL time.Duration

	// MaxEntries caps the number of stored keys.
	MaxEntries int

	// MaxBytes caps the estimated memory of all stored values.
	MaxBytes int64
}

const (
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 100
	DefaultMaxBytes   = 10 << 20
)

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	return c
}

/*
BoundedCache is a process-local key/value store with per-entry TTL, LRU
eviction and a soft memory budget.

This struct is the orchestrator that connects:
- the entry map
- the LRU recency sequence
- the engine (clock, expiry, sizing, metrics, logging)

INVARIANTS (hold whenever no method is running):
- the recency sequence is a permutation of the entry map's keys
- Len() <= MaxEntries
- estimated memory <= MaxBytes

Expiry is lazy: expired entries are removed when they are read, or by Sweep.
*/
type BoundedCache[V any] struct {
	mu sync.Mutex

	cfg Config

	// entries holds the actual key → entry data.
	entries map[string]*types.CacheEntry[V]

	// recency orders keys from least to most recently used.
	recency eviction.Policy

	// memory is the running sum of entry sizes.
	memory int64

	// engine contains the "rules" of the cache.
	engine *engine.CacheEngine
}

// New creates an empty cache. A nil engine gets engine.NewCacheEngine().
func New[V any](cfg Config, eng *engine.CacheEngine) *BoundedCache[V] {
	if eng == nil {
		eng = engine.NewCacheEngine()
	}
	return &BoundedCache[V]{
		cfg:     cfg.withDefaults(),
		entries: make(map[string]*types.CacheEntry[V]),
		recency: eviction.NewEvictionPolicy(),
		engine:  eng,
	}
}

// Config returns the effective configuration.
func (c *BoundedCache[V]) Config() Config { return c.cfg }

// TTL returns the default time-to-live.
func (c *BoundedCache[V]) TTL() time.Duration { return c.cfg.TTL }

/*
Get retrieves a value from the cache.
*/
func (c *BoundedCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		c.engine.Metrics.Miss()
		var zero V
		return zero, false
	}

	// Lazy expiry: an expired entry dies on read
	if c.engine.IsExpired(&ent.EntryMeta) {
		c.engine.Metrics.Expire()
		c.engine.Metrics.Miss()
		c.removeLocked(key)
		var zero V
		return zero, false
	}

	c.touchLocked(ent)
	return ent.Data, true
}

/*
Lookup returns fresh values like Get, and expired values without deleting them.
*/
func (c *BoundedCache[V]) Lookup(key string) (V, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		c.engine.Metrics.Miss()
		var zero V
		return zero, false, false
	}
	if c.engine.IsExpired(&ent.EntryMeta) {
		c.engine.Metrics.Miss()
		return ent.Data, false, true
	}

	c.touchLocked(ent)
	return ent.Data, true, true
}

// Peek returns the stored value regardless of expiry.
func (c *BoundedCache[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return ent.Data, true
}

// Has applies Get's expiry rule but leaves recency and access counts alone.
func (c *BoundedCache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.engine.IsExpired(&ent.EntryMeta) {
		c.engine.Metrics.Expire()
		c.removeLocked(key)
		return false
	}
	return true
}

/*
Set stores a value with the default TTL.
*/
func (c *BoundedCache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, 0)
}

/*
SetWithTTL stores a value with an explicit TTL. A non-positive ttl means
the cache default.

Steps:
------
1. Release any existing entry under key
2. Estimate the new entry's size
3. Evict least recently used keys while the cache is at MaxEntries, or
   while the new entry would push memory over MaxBytes
4. Insert and append the key at the most recently used end

A value that is bigger than MaxBytes on its own is not stored.
*/
func (c *BoundedCache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}

	// Estimate outside the lock; serialization can be slow
	size := c.engine.Estimate(key, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeLocked(key)

	for len(c.entries) > 0 &&
		(len(c.entries) >= c.cfg.MaxEntries || c.memory+size > c.cfg.MaxBytes) {
		evicted := c.recency.Evict()
		if evicted == "" {
			break
		}
		c.dropLocked(evicted)
		c.engine.Metrics.Eviction()
		c.engine.Logger.LogAttrs(context.Background(), slog.LevelDebug, "evicted least recently used entry",
			slog.String("cache", c.cfg.Name),
			slog.String("evicted", evicted),
			slog.String("key", key),
		)
	}

	if size > c.cfg.MaxBytes {
		c.engine.Logger.LogAttrs(context.Background(), slog.LevelWarn, "entry larger than cache memory budget, not stored",
			slog.String("cache", c.cfg.Name),
			slog.String("key", key),
			slog.Int64("size", size),
		)
		return
	}

	ent := &types.CacheEntry[V]{
		Key:  key,
		Data: value,
		EntryMeta: types.EntryMeta{
			TTL:  ttl,
			Size: size,
		},
	}
	c.engine.OnWrite(&ent.EntryMeta)

	c.entries[key] = ent
	c.memory += size
	c.recency.OnPut(key)
}

/*
Delete removes a key from the cache immediately.
*/
func (c *BoundedCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

// Clear drops all entries and resets memory accounting.
func (c *BoundedCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*types.CacheEntry[V])
	c.recency.Reset()
	c.memory = 0
}

// Len returns the number of stored entries, expired ones included.
func (c *BoundedCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Memory returns the estimated bytes held.
func (c *BoundedCache[V]) Memory() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memory
}

// Keys lists keys from least to most recently used.
func (c *BoundedCache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Keys()
}

// Sweep removes every expired entry and reports how many were dropped.
func (c *BoundedCache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, ent := range c.entries {
		if c.engine.IsExpired(&ent.EntryMeta) {
			c.removeLocked(key)
			c.engine.Metrics.Expire()
			removed++
		}
	}
	return removed
}

/*
StartSweeper runs Sweep every interval until ctx is done.
Correctness never depends on it; it only returns memory sooner.
*/
func (c *BoundedCache[V]) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.engine.Logger.LogAttrs(ctx, slog.LevelDebug, "swept expired entries",
					slog.String("cache", c.cfg.Name),
					slog.Int("removed", n),
				)
			}
		case <-ctx.Done():
			return
		}
	}
}

// touchLocked records a successful read.
func (c *BoundedCache[V]) touchLocked(ent *types.CacheEntry[V]) {
	c.engine.OnRead(&ent.EntryMeta)
	c.recency.OnGet(ent.Key)
	c.engine.Metrics.Hit()
}

// removeLocked deletes key from both the map and the recency sequence.
func (c *BoundedCache[V]) removeLocked(key string) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	c.recency.Remove(key)
	c.dropLocked(key)
}

// dropLocked deletes key from the map only; the caller handles recency.
func (c *BoundedCache[V]) dropLocked(key string) {
	ent, ok := c.entries[key]
	if !ok {
		return
	}
	c.memory -= ent.Size
	delete(c.entries, key)
}
