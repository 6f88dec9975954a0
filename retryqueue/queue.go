package retryqueue

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmgilman/go/errors"
)

/*
This file defines the retry queue used by background sync.

A mutating request (POST, PUT, DELETE...) that could not reach the server
is captured as an Item and parked in a Queue. When the sync trigger fires,
the edge worker drains the queue and re-issues every item, removing the
ones that went through.
*/

// Item is one parked request.
type Item struct {
	ID         string      `json:"id"`
	Method     string      `json:"method"`
	URL        string      `json:"url"`
	Header     http.Header `json:"header,omitempty"`
	Body       []byte      `json:"body,omitempty"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}

/*
Capture snapshots req into an Item with a fresh ID. The request body is
read and put back so req can still be sent.
*/
func Capture(req *http.Request) (Item, error) {
	it, err := capture(req)
	if err != nil {
		return Item{}, err
	}
	if it.Body != nil {
		setBody(req, it.Body)
	}
	return it, nil
}

// capture consumes and closes req.Body.
func capture(req *http.Request) (Item, error) {
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		b, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return Item{}, errors.Wrap(err, errors.CodeInvalidInput, "failed to read request body")
		}
		body = b
	}

	return Item{
		ID:         uuid.NewString(),
		Method:     req.Method,
		URL:        req.URL.String(),
		Header:     req.Header.Clone(),
		Body:       body,
		EnqueuedAt: time.Now(),
	}, nil
}

func setBody(req *http.Request, b []byte) {
	req.Body = io.NopCloser(bytes.NewReader(b))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}
	req.ContentLength = int64(len(b))
}

// Request rebuilds the parked request.
func (it Item) Request(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(it.Body) > 0 {
		body = bytes.NewReader(it.Body)
	}
	req, err := http.NewRequestWithContext(ctx, it.Method, it.URL, body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "failed to rebuild request")
	}
	if it.Header != nil {
		req.Header = it.Header.Clone()
	}
	return req, nil
}

/*
Queue is the storage contract for parked requests.
The edge worker only defines the drain/retry protocol on top of it.
*/
type Queue interface {

	// Enqueue parks an item. Items keep their enqueue order.
	Enqueue(ctx context.Context, it Item) error

	// Drain returns every parked item, oldest first, without removing them.
	Drain(ctx context.Context) ([]Item, error)

	// Remove deletes the item with the given ID. Unknown IDs are ignored.
	Remove(ctx context.Context, id string) error
}

// MemoryQueue is a process-local Queue.
type MemoryQueue struct {
	mu    sync.Mutex
	items []Item
}

// NewMemoryQueue returns an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(_ context.Context, it Item) error {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, it)
	return nil
}

func (q *MemoryQueue) Drain(context.Context) ([]Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Item(nil), q.items...), nil
}

func (q *MemoryQueue) Remove(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
	return nil
}
