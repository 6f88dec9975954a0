package cache

import (
	"context"
	"sync"
	"time"

	"github.com/krisalay/menu-cache/engine"
)

// DomainConfig holds one budget per resource domain.
type DomainConfig struct {
	API    Config
	Images Config
	Menu   Config
}

// DefaultDomainConfig returns the budgets used by the menu application.
func DefaultDomainConfig() DomainConfig {
	return DomainConfig{
		API:    Config{Name: "api", TTL: 5 * time.Minute, MaxEntries: 100, MaxBytes: 10 << 20},
		Images: Config{Name: "images", TTL: 30 * time.Minute, MaxEntries: 200, MaxBytes: 50 << 20},
		Menu:   Config{Name: "menu", TTL: 10 * time.Minute, MaxEntries: 50, MaxBytes: 5 << 20},
	}
}

/*
DomainCaches groups the independent caches of one process.
They share an engine (clock, metrics, logger) but never share entries.
Their lifetime is the lifetime of the value returned here: build one at
process start and pass it down, or build one per test.
*/
type DomainCaches struct {
	API    *BoundedCache[any]
	Images *BoundedCache[[]byte]
	Menu   *BoundedCache[any]
}

// NewDomainCaches builds the three caches.
func NewDomainCaches(cfg DomainConfig, eng *engine.CacheEngine) *DomainCaches {
	if eng == nil {
		eng = engine.NewCacheEngine()
	}
	if cfg.API.Name == "" {
		cfg.API.Name = "api"
	}
	if cfg.Images.Name == "" {
		cfg.Images.Name = "images"
	}
	if cfg.Menu.Name == "" {
		cfg.Menu.Name = "menu"
	}
	return &DomainCaches{
		API:    New[any](cfg.API, eng),
		Images: New[[]byte](cfg.Images, eng),
		Menu:   New[any](cfg.Menu, eng),
	}
}

// Clear empties every domain.
func (d *DomainCaches) Clear() {
	d.API.Clear()
	d.Images.Clear()
	d.Menu.Clear()
}

// Sweep removes expired entries from every domain.
func (d *DomainCaches) Sweep() int {
	return d.API.Sweep() + d.Images.Sweep() + d.Menu.Sweep()
}

// StartSweeper runs the sweeper of every domain until ctx is done.
func (d *DomainCaches) StartSweeper(ctx context.Context, interval time.Duration) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); d.API.StartSweeper(ctx, interval) }()
	go func() { defer wg.Done(); d.Images.StartSweeper(ctx, interval) }()
	go func() { defer wg.Done(); d.Menu.StartSweeper(ctx, interval) }()
	wg.Wait()
}

// Stats reports every domain by name.
func (d *DomainCaches) Stats() map[string]Stats {
	return map[string]Stats{
		d.API.Config().Name:    d.API.Stats(),
		d.Images.Config().Name: d.Images.Stats(),
		d.Menu.Config().Name:   d.Menu.Stats(),
	}
}
