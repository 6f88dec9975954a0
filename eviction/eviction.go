package eviction

/*
This file defines how the cache decides what to remove when it runs out of space.
*/

/*
Policy is the interface that the eviction bookkeeping must follow.

The cache does NOT care how eviction works internally.
It only calls these methods, and it calls them while holding its own lock,
so implementations do not need to be safe for concurrent use.
*/
type Policy interface {

	// OnGet is called whenever a key is read from the cache.
	// The key becomes the most recently used one.
	OnGet(string)

	// OnPut is called whenever a key is inserted into the cache.
	// The key is appended at the most recently used end.
	OnPut(string)

	// Remove is called when a key is deleted or expires.
	Remove(string)

	// Evict removes and returns the least recently used key.
	// It returns "" when nothing is tracked.
	Evict() string

	// Keys returns the tracked keys from least to most recently used.
	Keys() []string

	// Len reports how many keys are tracked.
	Len() int

	// Reset forgets every key.
	Reset()
}

// NewEvictionPolicy returns the LRU recency sequence used by BoundedCache.
func NewEvictionPolicy() Policy {
	return newLRU()
}
