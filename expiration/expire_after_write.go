package expiration

import (
	"time"

	"github.com/krisalay/menu-cache/types"
)

/*
ExpireAfterWrite is a fixed TTL measured from the moment the value was stored.
Reads do NOT extend the lifetime. Once now - StoredAt exceeds the TTL the
entry is dead, no matter how popular it is.
*/
type ExpireAfterWrite struct{}

// IsExpired reports whether the entry is strictly older than its TTL.
// A non-positive TTL never expires.
func (ExpireAfterWrite) IsExpired(meta *types.EntryMeta, now time.Time) bool {
	if meta.TTL <= 0 {
		return false
	}
	return now.Sub(meta.StoredAt) > meta.TTL
}

// OnAccess does nothing; reads never move the deadline.
func (ExpireAfterWrite) OnAccess(*types.EntryMeta, time.Time) {}

// OnWrite starts the TTL.
func (ExpireAfterWrite) OnWrite(meta *types.EntryMeta, now time.Time) {
	meta.StoredAt = now
}
