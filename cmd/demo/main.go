package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-git/go-billy/v5/memfs"

	cache "github.com/krisalay/menu-cache"
	"github.com/krisalay/menu-cache/coordinator"
	"github.com/krisalay/menu-cache/edge"
	"github.com/krisalay/menu-cache/engine"
	"github.com/krisalay/menu-cache/persist"
	"github.com/krisalay/menu-cache/types"
)

// ================= UPSTREAM =================

// Upstream is a menu API that can be switched offline.
type Upstream struct {
	offline atomic.Bool
	calls   atomic.Int64
}

func (u *Upstream) RoundTrip(req *http.Request) (*http.Response, error) {
	u.calls.Add(1)
	if u.offline.Load() {
		return nil, errors.New("dial tcp: network is unreachable")
	}
	fmt.Println("UPSTREAM → GET", req.URL.Path)
	time.Sleep(20 * time.Millisecond)
	return persist.NewHTTPResponse(req, http.StatusOK,
		http.Header{"Content-Type": []string{"application/json"}},
		[]byte(`["paneer tikka","dal makhani","gulab jamun"]`)), nil
}

// ================= MAIN =================

func main() {
	ctx := context.Background()

	fmt.Println("\n==================== SYSTEM BOOT ====================")

	// ---------------- System Config ----------------
	fmt.Println("EVICTION POLICY : LRU")
	fmt.Println("TTL STRATEGY    : ExpireAfterWrite")
	fmt.Println("CAPACITY        : 3 keys / 4 KiB")
	fmt.Println("EDGE STORAGE    : memfs")

	upstream := &Upstream{}
	clock := types.NewFakeClock(time.Now())
	counters := &types.Counters{}

	// ---------------- Cache Engine ----------------
	eng := engine.NewCacheEngine(
		engine.WithClock(clock),
		engine.WithMetrics(counters),
	)

	menu := cache.New[any](cache.Config{
		Name:       "menu",
		TTL:        10 * time.Minute,
		MaxEntries: 3,
		MaxBytes:   4 << 10,
	}, eng)

	// ---------------- Edge Worker ----------------
	storage, err := persist.NewStorage(memfs.New(), "/")
	if err != nil {
		panic(err)
	}
	worker, err := edge.New(upstream, storage)
	if err != nil {
		panic(err)
	}
	if err := worker.Activate(ctx); err != nil {
		panic(err)
	}

	coord := coordinator.New[any](menu, coordinator.WithMetrics(counters))
	client := &http.Client{Transport: worker}
	fetchMenu := coordinator.JSONFetcher[any](client, "http://localhost/api/menu-items")

	// ====================================================
	fmt.Println("\n==================== 1) CACHE MISS ====================")
	v, _ := coord.Resolve(ctx, "menu-items", fetchMenu)
	fmt.Println("CACHE  → RESOLVE menu-items =", v)

	// ====================================================
	fmt.Println("\n==================== 2) CACHE HIT ====================")
	v, _ = coord.Resolve(ctx, "menu-items", fetchMenu)
	fmt.Println("CACHE  → RESOLVE menu-items =", v)

	// ====================================================
	fmt.Println("\n==================== 3) TTL EXPIRATION ====================")
	menu.SetWithTTL("x", "temp-value", time.Second)
	fmt.Println("CACHE  → SET x (TTL = 1s)")

	clock.Advance(2 * time.Second)

	_, ok := menu.Get("x")
	fmt.Println("CACHE  → GET x after TTL, found =", ok)

	// ====================================================
	fmt.Println("\n==================== 4) REQUEST COALESCING ====================")

	coord.Invalidate("menu-items")
	before := upstream.calls.Load()

	wg := sync.WaitGroup{}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			val, _ := coord.Resolve(ctx, "menu-items", fetchMenu)
			fmt.Printf("GOROUTINE-%d → RESOLVE menu-items = %v\n", id, val)
		}(i)
	}
	wg.Wait()
	fmt.Println("UPSTREAM → calls during burst =", upstream.calls.Load()-before)

	// ====================================================
	fmt.Println("\n==================== 5) EVICTION ====================")

	menu.Get("menu-items")
	for i := 0; i < 3; i++ {
		menu.Set(fmt.Sprintf("k%d", i), i)
	}
	_, ok = menu.Get("menu-items")
	fmt.Println("CACHE  → menu-items still cached =", ok, "keys =", menu.Keys())

	// ====================================================
	fmt.Println("\n==================== 6) OFFLINE ====================")

	menu.Set("menu-items", "last known menu")
	clock.Advance(time.Hour)
	upstream.offline.Store(true)

	// the edge still holds the last response for this URL
	v, err = coord.Resolve(ctx, "menu-items", fetchMenu)
	fmt.Println("CACHE  → RESOLVE menu-items while offline =", v, "err =", err)

	// nothing at the edge for this one, so the stale in-process value is served
	menu.Set("specials", "yesterday's specials")
	clock.Advance(time.Hour)
	v, err = coord.Resolve(ctx, "specials", coordinator.JSONFetcher[any](client, "http://localhost/api/specials"))
	fmt.Println("CACHE  → RESOLVE specials (stale) =", v, "err =", err)

	resp, _ := worker.Intercept(httptest.NewRequest(http.MethodGet, "http://localhost/api/categories", nil))
	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("EDGE   → GET /api/categories = %d %s\n", resp.StatusCode, body)

	resp, _ = worker.Intercept(httptest.NewRequest(http.MethodGet, "https://res.cloudinary.com/demo/dish.jpg", nil))
	fmt.Println("EDGE   → GET image =", resp.StatusCode, resp.Header.Get("Content-Type"))

	// ====================================================
	snap := counters.Snapshot()
	fmt.Println("\n==================== METRICS ====================")
	fmt.Printf("HITS      : %d\n", snap.Hits)
	fmt.Printf("MISSES    : %d\n", snap.Misses)
	fmt.Printf("EVICTIONS : %d\n", snap.Evictions)
	fmt.Printf("EXPIRED   : %d\n", snap.Expired)
	fmt.Printf("STALE     : %d\n", snap.Stale)

	fmt.Println("\n==================== SHUTDOWN ====================")
	menu.Clear()
	fmt.Println("SYSTEM → cache cleared")
}
