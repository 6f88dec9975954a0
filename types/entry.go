package types

import "time"

// EntryMeta is the bookkeeping the cache keeps next to every value.
// It is split from CacheEntry so policies can work on it without generics.
type EntryMeta struct {
	StoredAt       time.Time
	TTL            time.Duration
	AccessCount    int64
	LastAccessedAt time.Time

	// Size is the estimated memory footprint in bytes.
	Size int64
}

// CacheEntry is owned by exactly one cache instance.
// It is destroyed on eviction, expiry-on-read or explicit delete.
type CacheEntry[V any] struct {
	Key  string
	Data V
	EntryMeta
}
