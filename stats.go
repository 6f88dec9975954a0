package cache

import (
	api "github.com/krisalay/menu-cache/api"
)

var _ api.Cache[any] = (*BoundedCache[any])(nil)

// Stats describes a cache at one moment.
type Stats struct {
	Entries     int   `json:"entries"`
	MemoryBytes int64 `json:"memory_bytes"`
	MaxEntries  int   `json:"max_entries"`
	MaxBytes    int64 `json:"max_bytes"`

	// TotalAccesses sums the access counts of the live entries.
	TotalAccesses int64 `json:"total_accesses"`

	// HitRate is TotalAccesses / (TotalAccesses + Entries). It does not
	// count misses and is not a true hit ratio; types.Counters has that.
	HitRate float64 `json:"hit_rate"`

	// OldestKey is the key stored the longest time ago.
	OldestKey string `json:"oldest_key,omitempty"`

	// MostAccessedKey is the key with the highest access count.
	MostAccessedKey string `json:"most_accessed_key,omitempty"`
}

// Stats reports entry count, memory and descriptive aggregates.
func (c *BoundedCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Entries:     len(c.entries),
		MemoryBytes: c.memory,
		MaxEntries:  c.cfg.MaxEntries,
		MaxBytes:    c.cfg.MaxBytes,
	}

	var mostAccessed int64 = -1
	// Walk in recency order so ties resolve the same way every time
	for _, key := range c.recency.Keys() {
		ent := c.entries[key]
		s.TotalAccesses += ent.AccessCount

		if s.OldestKey == "" || ent.StoredAt.Before(c.entries[s.OldestKey].StoredAt) {
			s.OldestKey = key
		}
		if ent.AccessCount > mostAccessed {
			mostAccessed = ent.AccessCount
			s.MostAccessedKey = key
		}
	}

	if denom := s.TotalAccesses + int64(s.Entries); denom > 0 {
		s.HitRate = float64(s.TotalAccesses) / float64(denom)
	}
	return s
}
