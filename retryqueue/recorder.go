package retryqueue

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

// This file implements asynchronous capture of failed writes.

/*
Recorder parks items in a Queue from a background worker, so the request
path never waits on queue storage.
*/
type Recorder struct {

	// queue is where parked items end up.
	queue Queue

	// ch is a buffered channel that holds items waiting to be parked.
	//
	// Buffering is important:
	// - Allows bursts of offline writes without blocking
	// - Keeps slow queue storage off the request path
	ch chan Item

	logger *slog.Logger

	// mu guards closed; Record holds it shared while sending on ch.
	mu     sync.RWMutex
	closed bool

	// wg is used to wait for the worker to finish during shutdown.
	wg sync.WaitGroup
}

// NewRecorder starts a Recorder with room for buffer pending items.
func NewRecorder(queue Queue, buffer int, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Recorder{
		queue:  queue,
		ch:     make(chan Item, buffer),
		logger: logger,
	}

	// Start one background worker
	r.wg.Add(1)
	go r.worker()

	return r
}

// Record hands it to the worker. If the buffer is full, or the recorder is
// closed, the item is dropped and Record returns false.
func (r *Recorder) Record(it Item) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.logger.Warn("recorder closed, dropping request",
			slog.String("method", it.Method),
			slog.String("url", it.URL),
		)
		return false
	}

	select {
	case r.ch <- it:
		return true
	default:
		r.logger.Warn("retry buffer full, dropping request",
			slog.String("method", it.Method),
			slog.String("url", it.URL),
		)
		return false
	}
}

/*
worker runs in the background and parks queued items one at a time.
Storage errors are logged; the item is lost.
*/
func (r *Recorder) worker() {
	defer r.wg.Done()

	for it := range r.ch {
		if err := r.queue.Enqueue(context.Background(), it); err != nil {
			r.logger.Error("failed to park request for background sync",
				slog.String("id", it.ID),
				slog.String("url", it.URL),
				slog.String("error", err.Error()),
			)
		}
	}
}

/*
Close shuts down the recorder gracefully.
------------------
1. Stop accepting items (later Records return false)
2. Wait for the worker to park what is already buffered

Close is safe to call more than once.
*/
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
	r.mu.Unlock()

	r.wg.Wait()
}

/*
Transport records mutating requests that fail at the transport level so
background sync can replay them later. Reads pass straight through, and
the original error is still returned to the caller. The caller's request
is never modified; a clone carrying the buffered body is sent instead.
*/
type Transport struct {
	Base     http.RoundTripper
	Recorder *Recorder
}

// NewTransport wraps base. A nil base means http.DefaultTransport.
func NewTransport(base http.RoundTripper, rec *Recorder) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Recorder: rec}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodGet || req.Method == http.MethodHead || req.Method == http.MethodOptions {
		return t.Base.RoundTrip(req)
	}

	it, err := capture(req)
	if err != nil {
		return nil, err
	}

	out := req.Clone(req.Context())
	if it.Body != nil {
		setBody(out, it.Body)
	}

	resp, err := t.Base.RoundTrip(out)
	if err != nil {
		t.Recorder.Record(it)
		return nil, err
	}
	return resp, nil
}
