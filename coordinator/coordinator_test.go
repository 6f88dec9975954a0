package coordinator_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cache "github.com/krisalay/menu-cache"
	"github.com/krisalay/menu-cache/coordinator"
	"github.com/krisalay/menu-cache/engine"
	"github.com/krisalay/menu-cache/types"
)

type menuItem struct {
	Name  string `json:"name"`
	Price int    `json:"price"`
}

func newTestCoordinator(opts ...coordinator.Option) (*coordinator.Coordinator[[]menuItem], *cache.BoundedCache[[]menuItem], *types.FakeClock, *types.Counters) {
	clock := types.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	metrics := &types.Counters{}
	eng := engine.NewCacheEngine(engine.WithClock(clock), engine.WithMetrics(metrics))
	c := cache.New[[]menuItem](cache.Config{Name: "menu", TTL: time.Minute}, eng)
	opts = append(opts, coordinator.WithMetrics(metrics))
	return coordinator.New[[]menuItem](c, opts...), c, clock, metrics
}

var soup = []menuItem{{Name: "soup", Price: 5}}

func TestResolveFetchesAndCaches(t *testing.T) {
	co, c, _, _ := newTestCoordinator()
	ctx := context.Background()

	var calls atomic.Int32
	fetch := func(context.Context) ([]menuItem, error) {
		calls.Add(1)
		return soup, nil
	}

	v, err := co.Resolve(ctx, "menu-items", fetch)
	require.NoError(t, err)
	assert.Equal(t, soup, v)

	v, err = co.Resolve(ctx, "menu-items", fetch)
	require.NoError(t, err)
	assert.Equal(t, soup, v)

	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, c.Has("menu-items"))
}

func TestResolveDeduplicatesConcurrentCallers(t *testing.T) {
	co, _, _, _ := newTestCoordinator()
	ctx := context.Background()

	const callers = 20
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context) ([]menuItem, error) {
		calls.Add(1)
		<-release
		return soup, nil
	}

	results := make([][]menuItem, callers)
	wg := sync.WaitGroup{}
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := co.Resolve(ctx, "menu-items", fetch)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// give every caller time to join the flight
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		require.Len(t, r, 1)
		// every caller holds the very same slice
		assert.Same(t, &results[0][0], &r[0])
	}
}

func TestResolveServesStaleOnFailure(t *testing.T) {
	co, _, clock, metrics := newTestCoordinator()
	ctx := context.Background()

	_, err := co.Resolve(ctx, "menu-items", func(context.Context) ([]menuItem, error) {
		return soup, nil
	})
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	v, err := co.Resolve(ctx, "menu-items", func(context.Context) ([]menuItem, error) {
		return nil, errors.New(errors.CodeNetwork, "offline")
	})
	require.NoError(t, err)
	assert.Equal(t, soup, v)
	assert.Equal(t, int64(1), metrics.Snapshot().Stale)
}

func TestResolvePropagatesFailureWithoutCache(t *testing.T) {
	co, _, _, _ := newTestCoordinator()
	ctx := context.Background()

	var calls atomic.Int32
	failing := func(context.Context) ([]menuItem, error) {
		calls.Add(1)
		return nil, assert.AnError
	}

	_, err := co.Resolve(ctx, "categories", failing)
	require.Error(t, err)
	assert.Equal(t, errors.CodeNetwork, errors.GetCode(err))
	assert.ErrorIs(t, err, assert.AnError)

	// the registry was cleared, so the next call fetches again
	_, err = co.Resolve(ctx, "categories", failing)
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestResolveKeepsExistingErrorCode(t *testing.T) {
	co, _, _, _ := newTestCoordinator()

	_, err := co.Resolve(context.Background(), "k", func(context.Context) ([]menuItem, error) {
		return nil, errors.New(errors.CodeUnavailable, "maintenance")
	})

	assert.Equal(t, errors.CodeUnavailable, errors.GetCode(err))
}

func TestResolveIgnoresCallerCancellation(t *testing.T) {
	co, _, _, _ := newTestCoordinator()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v, err := co.Resolve(ctx, "k", func(fctx context.Context) ([]menuItem, error) {
		if err := fctx.Err(); err != nil {
			return nil, err
		}
		return soup, nil
	})
	require.NoError(t, err)
	assert.Equal(t, soup, v)
}

func TestPreloadCachesValue(t *testing.T) {
	co, c, _, _ := newTestCoordinator()

	co.Preload(context.Background(), "menu-items", func(context.Context) ([]menuItem, error) {
		return soup, nil
	})

	v, ok := c.Get("menu-items")
	require.True(t, ok)
	assert.Equal(t, soup, v)
}

func TestPreloadTimeoutIsSilent(t *testing.T) {
	co, c, _, _ := newTestCoordinator(coordinator.WithPreloadTimeout(20 * time.Millisecond))

	start := time.Now()
	co.Preload(context.Background(), "slow", func(ctx context.Context) ([]menuItem, error) {
		<-ctx.Done()
		return soup, nil
	})

	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, c.Has("slow"))
}

func TestResolveJoiningTimedOutPreloadStillResolves(t *testing.T) {
	co, c, _, _ := newTestCoordinator(coordinator.WithPreloadTimeout(50 * time.Millisecond))

	started := make(chan struct{}, 2)
	var calls atomic.Int32
	fetch := func(ctx context.Context) ([]menuItem, error) {
		calls.Add(1)
		started <- struct{}{}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(150 * time.Millisecond):
			return soup, nil
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		co.Preload(context.Background(), "menu-items", fetch)
	}()
	<-started

	v, err := co.Resolve(context.Background(), "menu-items", fetch)
	require.NoError(t, err)
	assert.Equal(t, soup, v)
	assert.Equal(t, int32(2), calls.Load())
	assert.True(t, c.Has("menu-items"))
	<-done
}

func TestPreloadSkipsFreshKey(t *testing.T) {
	co, c, _, _ := newTestCoordinator()
	c.Set("menu-items", soup)

	co.Preload(context.Background(), "menu-items", func(context.Context) ([]menuItem, error) {
		t.Fatal("fetch must not run for a fresh key")
		return nil, nil
	})
}

func TestPreloadAll(t *testing.T) {
	co, c, _, _ := newTestCoordinator()

	co.PreloadAll(context.Background(), map[string]types.Fetcher[[]menuItem]{
		"a": func(context.Context) ([]menuItem, error) { return soup, nil },
		"b": func(context.Context) ([]menuItem, error) { return nil, assert.AnError },
		"c": func(context.Context) ([]menuItem, error) { return soup, nil },
	})

	assert.True(t, c.Has("a"))
	assert.False(t, c.Has("b"))
	assert.True(t, c.Has("c"))
}

func TestInvalidate(t *testing.T) {
	co, c, _, _ := newTestCoordinator()
	c.Set("menu-items", soup)

	co.Invalidate("menu-items")

	assert.False(t, c.Has("menu-items"))
}

func TestJSONFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/menu-items":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"name":"soup","price":5}]`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	ctx := context.Background()

	v, err := coordinator.JSONFetcher[[]menuItem](srv.Client(), srv.URL+"/api/menu-items")(ctx)
	require.NoError(t, err)
	assert.Equal(t, soup, v)

	_, err = coordinator.JSONFetcher[[]menuItem](srv.Client(), srv.URL+"/api/broken")(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.CodeNetwork, errors.GetCode(err))
}
