package edge

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jmgilman/go/errors"

	"github.com/krisalay/menu-cache/retryqueue"
)

// SyncTag is the background sync trigger that drains the retry queue.
const SyncTag = "background-sync"

// SyncReport counts the outcome of one drain.
type SyncReport struct {
	Replayed int
	Failed   int
}

/*
Sync replays the retry queue when tag is SyncTag; other tags are ignored.

Each parked request is re-issued through the network. A request that gets
a non-5xx response is removed from the queue. One that fails stays queued
for the next trigger and the drain moves on.
*/
func (w *Worker) Sync(ctx context.Context, tag string) (SyncReport, error) {
	var report SyncReport
	if tag != SyncTag {
		return report, nil
	}

	items, err := w.queue.Drain(ctx)
	if err != nil {
		return report, errors.Wrap(err, errors.CodeUnavailable, "failed to read retry queue")
	}

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if err := w.replay(ctx, it); err != nil {
			report.Failed++
			w.logger.LogAttrs(ctx, slog.LevelWarn, "background sync failed, keeping request",
				slog.String("id", it.ID),
				slog.String("url", it.URL),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := w.queue.Remove(ctx, it.ID); err != nil {
			w.logger.LogAttrs(ctx, slog.LevelError, "failed to remove replayed request",
				slog.String("id", it.ID),
				slog.String("error", err.Error()),
			)
		}
		report.Replayed++
	}

	w.logger.LogAttrs(ctx, slog.LevelInfo, "background sync finished",
		slog.Int("replayed", report.Replayed),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

func (w *Worker) replay(ctx context.Context, it retryqueue.Item) error {
	req, err := it.Request(ctx)
	if err != nil {
		return err
	}
	resp, err := send(w.replayRT, req)
	if err != nil {
		return err
	}
	discard(resp)
	if resp.StatusCode >= http.StatusInternalServerError {
		return statusError(req, resp.StatusCode)
	}
	return nil
}
