package engine

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/krisalay/menu-cache/expiration"
	"github.com/krisalay/menu-cache/types"
)

/*
CacheEngine is the "brain" of the cache system.
It is responsible for the "behavior" of the cache, NOT storage.
This acts as the policy layer.

It decides:
- What time it is
- When data is expired
- How access metadata is updated on reads/writes
- How big a value is
- How events are recorded and logged

It does NOT:
- Store data
- Handle locking
- Decide eviction order
*/
type CacheEngine struct {

	// Expiration controls when a cache entry should be considered "too old".
	// If this is nil, entries never expire based on time.
	Expiration expiration.Strategy

	// Clock is the single source of "now". Tests swap in a FakeClock.
	Clock types.Clock

	// Sizer estimates the memory footprint of a value.
	Sizer types.SizeEstimator

	// Metrics is how we keep track of what the cache is doing.
	Metrics types.Metrics

	// Logger receives structured cache events.
	Logger *slog.Logger
}

// Option customises a CacheEngine.
type Option func(*CacheEngine)

// WithClock replaces the wall clock.
func WithClock(c types.Clock) Option {
	return func(e *CacheEngine) { e.Clock = c }
}

// WithSizer replaces the JSON size estimator.
func WithSizer(s types.SizeEstimator) Option {
	return func(e *CacheEngine) { e.Sizer = s }
}

// WithMetrics plugs in a metrics sink.
func WithMetrics(m types.Metrics) Option {
	return func(e *CacheEngine) { e.Metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *CacheEngine) { e.Logger = l }
}

// WithExpiration replaces the fixed-TTL strategy.
func WithExpiration(s expiration.Strategy) Option {
	return func(e *CacheEngine) { e.Expiration = s }
}

/*
NewCacheEngine creates a CacheEngine with expire-after-write TTLs, the
system clock, JSON size estimation, no metrics and a discarding logger.
*/
func NewCacheEngine(opts ...Option) *CacheEngine {
	e := &CacheEngine{
		Expiration: expiration.ExpireAfterWrite{},
		Clock:      types.SystemClock{},
		Sizer:      types.JSONSizer{},
	}
	for _, opt := range opts {
		opt(e)
	}

	// Ensure collaborators are always non-nil
	if e.Metrics == nil {
		e.Metrics = types.NoopMetrics{}
	}
	if e.Logger == nil {
		e.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.Clock == nil {
		e.Clock = types.SystemClock{}
	}
	if e.Sizer == nil {
		e.Sizer = types.JSONSizer{}
	}
	return e
}

// Now returns the engine's current time.
func (e *CacheEngine) Now() time.Time {
	return e.Clock.Now()
}

// IsExpired returns false if no expiration strategy is configured.
func (e *CacheEngine) IsExpired(meta *types.EntryMeta) bool {
	return e.Expiration != nil &&
		e.Expiration.IsExpired(meta, e.Clock.Now())
}

// OnRead is called every time the cache returns a fresh value. Access
// metadata is kept here whatever expiration strategy is set.
func (e *CacheEngine) OnRead(meta *types.EntryMeta) {
	now := e.Clock.Now()
	meta.AccessCount++
	meta.LastAccessedAt = now
	if e.Expiration != nil {
		e.Expiration.OnAccess(meta, now)
	}
}

// OnWrite stamps a new entry before it is stored.
func (e *CacheEngine) OnWrite(meta *types.EntryMeta) {
	now := e.Clock.Now()
	meta.StoredAt = now
	meta.LastAccessedAt = now
	meta.AccessCount = 0
	if e.Expiration != nil {
		e.Expiration.OnWrite(meta, now)
	}
}

/*
Estimate returns the memory footprint of value.

Estimation never fails from the caller's point of view: if the sizer
errors, the fixed DefaultEntrySize is used and the failure is logged.
*/
func (e *CacheEngine) Estimate(key string, value any) int64 {
	n, err := e.Sizer.Estimate(value)
	if err != nil {
		e.Logger.LogAttrs(context.Background(), slog.LevelDebug, "size estimation failed, using default",
			slog.String("key", key),
			slog.Int64("size", types.DefaultEntrySize),
			slog.String("error", err.Error()),
		)
		return types.DefaultEntrySize
	}
	return n
}
