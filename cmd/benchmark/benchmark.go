package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	cache "github.com/krisalay/menu-cache"
	"github.com/krisalay/menu-cache/coordinator"
	"github.com/krisalay/menu-cache/engine"
	"github.com/krisalay/menu-cache/types"
)

// ================= BENCHMARK =================

func main() {
	ctx := context.Background()

	// ---------------- Cache Config ----------------
	const (
		capacity    = 200000
		maxBytes    = 512 << 20
		preloadKeys = 100000
		goroutines  = 200
		opsPerG     = 5000
		hotKeys     = 64
	)

	fmt.Println("\n================ CACHE LOAD BENCHMARK =================")
	fmt.Println("CONFIG")
	fmt.Println("---------------------------------")
	fmt.Println("Capacity     :", capacity)
	fmt.Println("Max Bytes    :", maxBytes)
	fmt.Println("Preload Keys :", preloadKeys)
	fmt.Println("Goroutines   :", goroutines)
	fmt.Println("Ops/Goroutine:", opsPerG)
	fmt.Println("---------------------------------")

	// ---------------- Cache Engine ----------------
	counters := &types.Counters{}
	eng := engine.NewCacheEngine(
		engine.WithMetrics(counters),
		engine.WithSizer(types.FixedSizer(256)),
	)

	c := cache.New[int](cache.Config{
		Name:       "bench",
		TTL:        time.Minute,
		MaxEntries: capacity,
		MaxBytes:   maxBytes,
	}, eng)

	// ---------------- Preload Cache ----------------
	fmt.Println("Preloading cache...")
	for i := 0; i < preloadKeys; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i)
	}
	fmt.Println("Preload complete.")

	// ---------------- Read Load ----------------
	fmt.Println("Running concurrent reads...")

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerG; j++ {
				c.Get(fmt.Sprintf("key-%d", j%preloadKeys))
			}
		}()
	}
	wg.Wait()
	readDuration := time.Since(start)

	// ---------------- Coordinator Load ----------------
	fmt.Println("Running coalesced resolves...")

	coord := coordinator.New[int](cache.New[int](cache.Config{Name: "coalesce", TTL: time.Minute}, eng))

	var fetches atomic.Int64
	fetch := func(ctx context.Context) (int, error) {
		fetches.Add(1)
		time.Sleep(time.Millisecond)
		return 1, nil
	}

	start = time.Now()
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < opsPerG/10; j++ {
				_, _ = coord.Resolve(ctx, fmt.Sprintf("hot-%d", (id+j)%hotKeys), fetch)
			}
		}(i)
	}
	wg.Wait()
	resolveDuration := time.Since(start)

	readOps := goroutines * opsPerG
	resolveOps := goroutines * (opsPerG / 10)
	snap := counters.Snapshot()
	stats := c.Stats()

	fmt.Println("\n================ RESULTS =================")
	fmt.Printf("Read Operations    : %d\n", readOps)
	fmt.Printf("Read Time          : %v\n", readDuration)
	fmt.Printf("Read Throughput    : %.2f ops/sec\n", float64(readOps)/readDuration.Seconds())
	fmt.Printf("Resolve Operations : %d\n", resolveOps)
	fmt.Printf("Resolve Time       : %v\n", resolveDuration)
	fmt.Printf("Upstream Fetches   : %d\n", fetches.Load())
	fmt.Printf("Hits / Misses      : %d / %d\n", snap.Hits, snap.Misses)
	fmt.Printf("Evictions          : %d\n", snap.Evictions)
	fmt.Printf("Entries / Memory   : %d / %d bytes\n", stats.Entries, stats.MemoryBytes)
	fmt.Println("=========================================")
}
