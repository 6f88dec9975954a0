package types

import "sync/atomic"

// This file defines how the caches report what they are doing.

/*
Metrics is an interface that defines what the cache wants to measure.
Each method represents an event in the cache lifecycle. The cache and the
coordinator call these methods whenever something happens.
*/
type Metrics interface {

	// Hit is called when the cache returns a fresh value.
	Hit()

	// Miss is called when the cache has no fresh value for a key.
	Miss()

	// Eviction is called when a key is removed because the cache is over
	// its entry or memory budget.
	Eviction()

	// Expire is called when a key is removed because it has passed its TTL.
	Expire()

	// Stale is called when a stale value is served because a fetch failed.
	Stale()
}

/*
NoopMetrics is a "do nothing" implementation of Metrics.

Callers that do not care about metrics still get a working cache without
nil checks sprinkled through the code.
*/
type NoopMetrics struct{}

func (NoopMetrics) Hit()      {}
func (NoopMetrics) Miss()     {}
func (NoopMetrics) Eviction() {}
func (NoopMetrics) Expire()   {}
func (NoopMetrics) Stale()    {}

// Counters is a lock-free Metrics implementation.
type Counters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	expired   atomic.Int64
	stale     atomic.Int64
}

func (c *Counters) Hit()      { c.hits.Add(1) }
func (c *Counters) Miss()     { c.misses.Add(1) }
func (c *Counters) Eviction() { c.evictions.Add(1) }
func (c *Counters) Expire()   { c.expired.Add(1) }
func (c *Counters) Stale()    { c.stale.Add(1) }

// CounterSnapshot is a point-in-time copy of Counters.
type CounterSnapshot struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Expired   int64
	Stale     int64
}

// Snapshot reads every counter.
func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Expired:   c.expired.Load(),
		Stale:     c.stale.Load(),
	}
}
