package edge

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/jmgilman/go/errors"

	"github.com/krisalay/menu-cache/persist"
	"github.com/krisalay/menu-cache/retryqueue"
	"github.com/krisalay/menu-cache/types"
)

// State is the worker lifecycle position.
type State int32

const (
	StateInstalling State = iota
	StateInstalled
	StateActivated
)

func (s State) String() string {
	switch s {
	case StateInstalled:
		return "installed"
	case StateActivated:
		return "activated"
	default:
		return "installing"
	}
}

type settings struct {
	rules    Rules
	gen      Generation
	origin   *url.URL
	queue    retryqueue.Queue
	replayRT http.RoundTripper
	notifier Notifier
	clients  Clients
	clock    types.Clock
	logger   *slog.Logger
	icon     string
	badge    string
}

// Option configures a Worker.
type Option func(*settings)

// WithRules replaces DefaultRules.
func WithRules(r Rules) Option {
	return func(s *settings) { s.rules = r }
}

// WithGeneration sets the persistent cache generation.
func WithGeneration(g Generation) Option {
	return func(s *settings) { s.gen = g }
}

// WithOrigin sets the base URL the install manifest is resolved against.
func WithOrigin(u *url.URL) Option {
	return func(s *settings) { s.origin = u }
}

// WithQueue sets the background sync retry queue.
func WithQueue(q retryqueue.Queue) Option {
	return func(s *settings) { s.queue = q }
}

// WithReplayTransport sets the transport background sync re-issues parked
// requests through. It defaults to the worker's network transport.
func WithReplayTransport(rt http.RoundTripper) Option {
	return func(s *settings) { s.replayRT = rt }
}

func WithNotifier(n Notifier) Option {
	return func(s *settings) { s.notifier = n }
}

func WithClients(c Clients) Option {
	return func(s *settings) { s.clients = c }
}

func WithClock(c types.Clock) Option {
	return func(s *settings) { s.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithNotificationIcons sets the icon and badge shown on push notifications.
func WithNotificationIcons(icon, badge string) Option {
	return func(s *settings) {
		s.icon = icon
		s.badge = badge
	}
}

/*
Worker sits between the application and the network and applies a caching
strategy per resource class:

	image        cache-first, SVG placeholder when everything fails
	api, page    network-first, dynamic cache fallback, offline sentinel
	static       cache-first, the error propagates when everything fails

Only GET requests are handled; everything else goes straight to the
network, as does every request made before the worker is activated.

Worker implements http.RoundTripper so it can be the transport of an
http.Client or an httputil.ReverseProxy.
*/
type Worker struct {
	network http.RoundTripper
	storage *persist.Storage

	state     atomic.Int32
	notifySeq atomic.Int64

	settings
}

// New creates a Worker that reaches the network through network and keeps
// its persistent caches in storage.
func New(network http.RoundTripper, storage *persist.Storage, opts ...Option) (*Worker, error) {
	if storage == nil {
		return nil, errors.New(errors.CodeInvalidInput, "storage cannot be nil")
	}
	if network == nil {
		network = http.DefaultTransport
	}

	s := settings{
		rules: DefaultRules(),
		gen:   Generation{Prefix: "menu", Version: "v1"},
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.origin == nil {
		s.origin = &url.URL{Scheme: "http", Host: "localhost"}
	}
	if s.queue == nil {
		s.queue = retryqueue.NewMemoryQueue()
	}
	if s.replayRT == nil {
		s.replayRT = network
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{Logger: s.logger}
	}
	if s.clients == nil {
		s.clients = LogClients{Logger: s.logger}
	}
	if s.clock == nil {
		s.clock = types.SystemClock{}
	}

	return &Worker{network: network, storage: storage, settings: s}, nil
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Generation returns the cache generation the worker serves from.
func (w *Worker) Generation() Generation {
	return w.gen
}

func (w *Worker) RoundTrip(req *http.Request) (*http.Response, error) {
	return w.Intercept(req)
}

/*
Intercept answers req. The only error it returns is a static asset that is
neither reachable nor cached; every other failure becomes a substitute
response.
*/
func (w *Worker) Intercept(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || w.State() != StateActivated {
		return w.network.RoundTrip(req)
	}

	class := w.rules.Classify(req.URL)
	cacheName := w.gen.cacheFor(class)

	switch class {
	case ClassImage:
		resp, err := w.cacheFirst(req, class, cacheName)
		if err != nil {
			w.logger.LogAttrs(req.Context(), slog.LevelDebug, "serving image placeholder",
				slog.String("url", req.URL.String()),
				slog.String("error", err.Error()),
			)
			return placeholderImage(req), nil
		}
		return resp, nil

	case ClassAPI, ClassPage:
		return w.networkFirst(req, class, cacheName)

	default:
		return w.cacheFirst(req, class, cacheName)
	}
}

func (w *Worker) cacheFirst(req *http.Request, class ResourceClass, cacheName string) (*http.Response, error) {
	c := w.openCache(req.Context(), cacheName)
	if resp, ok := w.match(req, c); ok {
		return resp, nil
	}

	resp, err := w.fetch(req)
	if err != nil {
		return nil, err
	}
	return w.store(req, c, class, resp)
}

func (w *Worker) networkFirst(req *http.Request, class ResourceClass, cacheName string) (*http.Response, error) {
	c := w.openCache(req.Context(), cacheName)

	resp, err := w.fetch(req)
	if err == nil {
		resp, err = w.store(req, c, class, resp)
	}
	if err == nil {
		return resp, nil
	}

	if cached, ok := w.match(req, c); ok {
		w.logger.LogAttrs(req.Context(), slog.LevelWarn, "network unavailable, serving cached response",
			slog.String("class", class.String()),
			slog.String("url", req.URL.String()),
			slog.String("error", err.Error()),
		)
		return cached, nil
	}

	w.logger.LogAttrs(req.Context(), slog.LevelWarn, "network unavailable, serving offline response",
		slog.String("class", class.String()),
		slog.String("url", req.URL.String()),
		slog.String("error", err.Error()),
	)
	if class == ClassAPI {
		return offlineAPI(req), nil
	}
	return offlinePage(req), nil
}

/*
fetch sends req to the network. A transport error or a response outside
2xx is a network failure, except for redirects, which are handed back
uncached for the caller to follow.
*/
func (w *Worker) fetch(req *http.Request) (*http.Response, error) {
	resp, err := send(w.network, req)
	if err != nil {
		return nil, err
	}
	if isRedirect(resp.StatusCode) {
		return resp, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		discard(resp)
		return nil, statusError(req, resp.StatusCode)
	}
	return resp, nil
}

func send(rt http.RoundTripper, req *http.Request) (*http.Response, error) {
	resp, err := rt.RoundTrip(req)
	if err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, errors.CodeNetwork, "fetch failed"),
			"url", req.URL.String(),
		)
	}
	return resp, nil
}

func isRedirect(status int) bool {
	return status >= 300 && status <= 399
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func statusError(req *http.Request, status int) error {
	return errors.WithContext(
		errors.Newf(errors.CodeNetwork, "upstream returned status %d", status),
		"url", req.URL.String(),
	)
}

/*
store puts a clone of a 2xx response into c and returns a response the
caller can read. Redirects pass through untouched. A body that cannot be
read is a network failure. Storage failures are only logged.
*/
func (w *Worker) store(req *http.Request, c *persist.Cache, class ResourceClass, resp *http.Response) (*http.Response, error) {
	if isRedirect(resp.StatusCode) {
		return resp, nil
	}

	stored, live, err := persist.Capture(resp, w.clock.Now())
	if err != nil {
		return nil, errors.WithContext(err, "url", req.URL.String())
	}
	if c == nil {
		return live, nil
	}

	if err := c.Put(req, stored); err != nil {
		w.logger.LogAttrs(req.Context(), slog.LevelError, "failed to store response",
			slog.String("cache", c.Name()),
			slog.String("class", class.String()),
			slog.String("url", req.URL.String()),
			slog.String("error", err.Error()),
		)
	}
	return live, nil
}

// openCache returns nil when the cache cannot be opened; strategies then
// behave as if it were empty.
func (w *Worker) openCache(ctx context.Context, name string) *persist.Cache {
	c, err := w.storage.Open(name)
	if err != nil {
		w.logger.LogAttrs(ctx, slog.LevelError, "failed to open cache",
			slog.String("cache", name),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return c
}

func (w *Worker) match(req *http.Request, c *persist.Cache) (*http.Response, bool) {
	if c == nil {
		return nil, false
	}
	resp, ok, err := c.Match(req)
	if err != nil {
		w.logger.LogAttrs(req.Context(), slog.LevelError, "cache read failed",
			slog.String("cache", c.Name()),
			slog.String("url", req.URL.String()),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return resp, ok
}
