package coordinator

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/jmgilman/go/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	api "github.com/krisalay/menu-cache/api"
	"github.com/krisalay/menu-cache/types"
)

const (
	// DefaultPreloadTimeout bounds a preload so a slow network never
	// holds up unrelated work.
	DefaultPreloadTimeout = 5 * time.Second

	// DefaultPreloadConcurrency caps PreloadAll fan-out.
	DefaultPreloadConcurrency = 4
)

type settings struct {
	logger             *slog.Logger
	metrics            types.Metrics
	preloadTimeout     time.Duration
	preloadConcurrency int
}

// Option configures a Coordinator.
type Option func(*settings)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithMetrics reports stale serves to m.
func WithMetrics(m types.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithPreloadTimeout overrides DefaultPreloadTimeout.
func WithPreloadTimeout(d time.Duration) Option {
	return func(s *settings) { s.preloadTimeout = d }
}

// WithPreloadConcurrency overrides DefaultPreloadConcurrency.
func WithPreloadConcurrency(n int) Option {
	return func(s *settings) { s.preloadConcurrency = n }
}

/*
Coordinator turns "fetch resource by key" into a deduplicated, cache-aside,
failure-tolerant operation in front of one cache.

GUARANTEES:
-----------
- At most one fetch per key is in flight at any time
- Every caller waiting on a key sees the same value or the same error
- A failed fetch falls back to whatever value is still stored for the key
*/
type Coordinator[V any] struct {
	cache api.Cache[V]

	// flights is the pending-request registry. A key is registered before
	// its fetch starts and dropped the moment the fetch settles.
	flights singleflight.Group

	settings
}

// New creates a Coordinator reading through c.
func New[V any](c api.Cache[V], opts ...Option) *Coordinator[V] {
	s := settings{
		preloadTimeout:     DefaultPreloadTimeout,
		preloadConcurrency: DefaultPreloadConcurrency,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.metrics == nil {
		s.metrics = types.NoopMetrics{}
	}
	if s.preloadTimeout <= 0 {
		s.preloadTimeout = DefaultPreloadTimeout
	}
	if s.preloadConcurrency <= 0 {
		s.preloadConcurrency = DefaultPreloadConcurrency
	}
	return &Coordinator[V]{cache: c, settings: s}
}

/*
Resolve returns the value for key.

1. If a fetch for key is already in flight, wait for its outcome
2. Otherwise return a fresh cached value if there is one
3. Otherwise fetch, store the result with the cache's default TTL and
   hand it to every waiter
4. If the fetch fails, serve the value still stored for key (stale)
5. Only if nothing is stored does the error reach the callers

The fetch is detached from ctx cancellation: once it has started, every
waiter waits for it to settle. Joining a preload that runs out of time
does not end the wait; Resolve starts a flight of its own instead.
*/
func (c *Coordinator[V]) Resolve(ctx context.Context, key string, fetch types.Fetcher[V]) (V, error) {
	for {
		v, err, _ := c.flights.Do(key, func() (any, error) {
			return c.load(context.WithoutCancel(ctx), key, fetch)
		})

		var aborted preloadAborted
		if errors.As(err, &aborted) {
			continue
		}
		if err != nil {
			var zero V
			return zero, err
		}
		val, _ := v.(V)
		return val, nil
	}
}

// preloadAborted marks a flight cut short by the preload deadline. It only
// ever reaches callers that joined the preload's flight.
type preloadAborted struct {
	err error
}

func (e preloadAborted) Error() string { return e.err.Error() }
func (e preloadAborted) Unwrap() error { return e.err }

/*
Preload warms key ahead of need.

It is cache-aside like Resolve but bounded by the preload timeout. On
timeout or error nothing is cached and nothing is reported to the caller.
*/
func (c *Coordinator[V]) Preload(ctx context.Context, key string, fetch types.Fetcher[V]) {
	if c.cache.Has(key) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.preloadTimeout)
	defer cancel()

	ch := c.flights.DoChan(key, func() (any, error) {
		v, err := c.load(ctx, key, fetch)
		if err != nil && ctx.Err() != nil {
			return v, preloadAborted{err: err}
		}
		return v, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			c.logger.LogAttrs(ctx, slog.LevelDebug, "preload failed",
				slog.String("key", key),
				slog.String("error", res.Err.Error()),
			)
		}
	case <-ctx.Done():
		c.logger.LogAttrs(context.WithoutCancel(ctx), slog.LevelDebug, "preload timed out",
			slog.String("key", key),
			slog.Duration("timeout", c.preloadTimeout),
		)
	}
}

// PreloadAll preloads every key concurrently and returns when all are done.
func (c *Coordinator[V]) PreloadAll(ctx context.Context, fetchers map[string]types.Fetcher[V]) {
	var g errgroup.Group
	g.SetLimit(c.preloadConcurrency)

	for key, fetch := range fetchers {
		g.Go(func() error {
			c.Preload(ctx, key, fetch)
			return nil
		})
	}
	_ = g.Wait()
}

// Invalidate drops the cached value for key. An in-flight fetch is not
// affected and will store its result when it settles.
func (c *Coordinator[V]) Invalidate(key string) {
	c.cache.Delete(key)
}

// load runs inside the flight for key.
func (c *Coordinator[V]) load(ctx context.Context, key string, fetch types.Fetcher[V]) (V, error) {
	if v, fresh, ok := c.cache.Lookup(key); ok && fresh {
		return v, nil
	}

	v, err := fetch(ctx)
	if err == nil && ctx.Err() != nil {
		// the caller gave up; a late result must not be cached
		err = ctx.Err()
	}
	if err == nil {
		c.cache.Set(key, v)
		return v, nil
	}

	if stale, ok := c.cache.Peek(key); ok {
		c.metrics.Stale()
		c.logger.LogAttrs(ctx, slog.LevelWarn, "fetch failed, serving stale data",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return stale, nil
	}

	var zero V
	return zero, classify(err, key)
}

// classify keeps codes that already exist and labels everything else a
// network failure.
func classify(err error, key string) error {
	var perr errors.PlatformError
	if !errors.As(err, &perr) {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			err = errors.Wrap(err, errors.CodeTimeout, "fetch timed out")
		default:
			err = errors.Wrap(err, errors.CodeNetwork, "fetch failed")
		}
	}
	return errors.WithContext(err, "key", key)
}
