// This file defines how cache entries expire over time.

package expiration

import (
	"time"

	"github.com/krisalay/menu-cache/types"
)

/*
Strategy is the interface that all expiration rules must follow. Instead of hard-coding
expiration logic into the cache, we define a strategy so expiration behavior can be swapped easily.
*/
type Strategy interface {

	// IsExpired checks if the entry is expired at now.
	IsExpired(*types.EntryMeta, time.Time) bool

	// OnAccess is called whenever a cache entry is read successfully, after
	// the engine has updated the access count and time.
	OnAccess(*types.EntryMeta, time.Time)

	// OnWrite is called whenever a cache entry is written, after the engine
	// has stamped it.
	OnWrite(*types.EntryMeta, time.Time)
}
