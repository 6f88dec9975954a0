package cache

import "time"

/*
Cache defines the PUBLIC API of a bounded in-memory cache.
This is a contract that guarantees certain behaviors, without exposing internals.
Eviction order, expiry bookkeeping, memory accounting and locking are all
hidden behind this interface.
*/
type Cache[V any] interface {

	/*
		Get retrieves the value associated with the given key.

		BEHAVIOR:
		-------------------
		1. If the key exists and is NOT expired:
		   - Count the access and mark the key most recently used
		   - Return the value and true (cache hit)

		2. If the key exists but is expired:
		   - Delete it
		   - Return false (cache miss)

		3. If the key does NOT exist:
		   - Return false (cache miss)
	*/
	Get(key string) (V, bool)

	/*
		Lookup is Get for callers that can still use an expired value.

		- Fresh entry: same as Get, fresh=true
		- Expired entry: value returned with fresh=false, entry left in place
		- Missing: ok=false
	*/
	Lookup(key string) (value V, fresh bool, ok bool)

	/*
		Peek returns whatever is physically stored under key, expired or not.
		It does NOT touch recency or access counts.
	*/
	Peek(key string) (V, bool)

	/*
		Set stores a value with the cache's default TTL.

		BEHAVIOR:
		---------
		- Releases any previous entry under the same key first
		- Evicts least recently used keys until the new entry fits
		- Stores the value as the most recently used key
	*/
	Set(key string, value V)

	// SetWithTTL is Set with an explicit time-to-live.
	SetWithTTL(key string, value V, ttl time.Duration)

	// Has reports whether a fresh entry exists. It applies the same expiry
	// rule as Get but never changes recency or access counts.
	Has(key string) bool

	/*
		Delete removes a key immediately.

		This operation is idempotent:
		- Deleting a non-existing key is safe
	*/
	Delete(key string)

	// Clear drops every entry and resets memory accounting to zero.
	Clear()

	// TTL returns the default time-to-live applied by Set.
	TTL() time.Duration
}
