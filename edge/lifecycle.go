package edge

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/jmgilman/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/krisalay/menu-cache/persist"
)

// Control messages accepted by Message.
const (
	MessageSkipWaiting = "SKIP_WAITING"
	MessageClearCache  = "CLEAR_CACHE"
)

// installConcurrency caps parallel manifest fetches.
const installConcurrency = 4

/*
Install prefetches the static manifest into the static cache and marks the
worker ready to activate without waiting for an older instance to go away.
Any manifest fetch that fails fails the install; the worker then stays in
the installing state.
*/
func (w *Worker) Install(ctx context.Context) error {
	c, err := w.storage.Open(w.gen.Static())
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(installConcurrency)

	for _, p := range w.rules.StaticManifest {
		g.Go(func() error {
			return w.prefetch(gctx, c, p)
		})
	}
	if err := g.Wait(); err != nil {
		w.logger.LogAttrs(ctx, slog.LevelError, "install failed",
			slog.String("cache", c.Name()),
			slog.String("error", err.Error()),
		)
		return err
	}

	w.state.CompareAndSwap(int32(StateInstalling), int32(StateInstalled))
	w.logger.LogAttrs(ctx, slog.LevelInfo, "installed",
		slog.String("cache", c.Name()),
		slog.Int("assets", len(w.rules.StaticManifest)),
	)
	return nil
}

func (w *Worker) prefetch(ctx context.Context, c *persist.Cache, p string) error {
	ref, err := url.Parse(p)
	if err != nil {
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInvalidConfig, "invalid manifest entry"),
			"path", p,
		)
	}
	u := w.origin.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidConfig, "invalid manifest entry")
	}

	resp, err := w.fetch(req)
	if err != nil {
		return err
	}
	if isRedirect(resp.StatusCode) {
		discard(resp)
		return statusError(req, resp.StatusCode)
	}

	stored, _, err := persist.Capture(resp, w.clock.Now())
	if err != nil {
		return errors.Wrap(err, errors.CodeNetwork, "failed to read manifest asset")
	}
	return c.Put(req, stored)
}

/*
Activate deletes every persistent cache that is not part of the current
generation, then takes control of the open pages. Activation is allowed
from any state; a failed install simply leaves the static cache cold.
*/
func (w *Worker) Activate(ctx context.Context) error {
	names, err := w.storage.Keys()
	if err != nil {
		return err
	}

	allow := w.gen.AllowList()
	for _, name := range names {
		if slices.Contains(allow, name) {
			continue
		}
		if _, err := w.storage.Delete(name); err != nil {
			w.logger.LogAttrs(ctx, slog.LevelError, "failed to delete old cache",
				slog.String("cache", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		w.logger.LogAttrs(ctx, slog.LevelInfo, "deleted old cache", slog.String("cache", name))
	}

	w.state.Store(int32(StateActivated))

	if err := w.clients.Claim(ctx); err != nil {
		w.logger.LogAttrs(ctx, slog.LevelWarn, "failed to claim clients", slog.String("error", err.Error()))
	}
	return nil
}

// ClearCaches deletes every persistent cache, live generation included.
func (w *Worker) ClearCaches(ctx context.Context) error {
	names, err := w.storage.Keys()
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := w.storage.Delete(name); err != nil {
			return err
		}
	}
	w.logger.LogAttrs(ctx, slog.LevelInfo, "cleared caches", slog.Int("count", len(names)))
	return nil
}

// Message handles a control message from a page.
func (w *Worker) Message(ctx context.Context, msg string) error {
	switch msg {
	case MessageSkipWaiting:
		return w.Activate(ctx)
	case MessageClearCache:
		return w.ClearCaches(ctx)
	default:
		return errors.WithContext(
			errors.New(errors.CodeInvalidInput, "unknown message"),
			"message", msg,
		)
	}
}
