package retryqueue

import (
	"context"
	"encoding/json"
	"os"
	"path"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
	"github.com/jmgilman/go/errors"
)

const queueVersion = "1"

type queueFile struct {
	Version string `json:"version"`
	Items   []Item `json:"items"`
}

/*
FileQueue keeps the queue in one JSON file so parked requests survive a
restart. Every mutation rewrites the file atomically.
*/
type FileQueue struct {
	fs   billy.Filesystem
	path string
	mu   sync.Mutex
}

// NewFileQueue stores the queue at p on fs.
func NewFileQueue(fs billy.Filesystem, p string) (*FileQueue, error) {
	if fs == nil {
		return nil, errors.New(errors.CodeInvalidInput, "filesystem cannot be nil")
	}
	if err := fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create queue directory")
	}
	return &FileQueue{fs: fs, path: p}, nil
}

func (q *FileQueue) Enqueue(ctx context.Context, it Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	f, err := q.load()
	if err != nil {
		return err
	}
	f.Items = append(f.Items, it)
	return q.save(f)
}

func (q *FileQueue) Drain(ctx context.Context) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	f, err := q.load()
	if err != nil {
		return nil, err
	}
	return f.Items, nil
}

func (q *FileQueue) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	f, err := q.load()
	if err != nil {
		return err
	}
	for i, it := range f.Items {
		if it.ID == id {
			f.Items = append(f.Items[:i], f.Items[i+1:]...)
			return q.save(f)
		}
	}
	return nil
}

// load reads the queue file; a missing file is an empty queue.
func (q *FileQueue) load() (*queueFile, error) {
	if _, err := q.fs.Stat(q.path); os.IsNotExist(err) {
		return &queueFile{Version: queueVersion}, nil
	}

	data, err := util.ReadFile(q.fs, q.path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to read queue file")
	}

	var f queueFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to parse queue file")
	}
	if f.Version != queueVersion {
		return nil, errors.Newf(errors.CodeInternal, "unsupported queue version: %s (expected %s)", f.Version, queueVersion)
	}
	return &f, nil
}

// save writes to a temporary file and renames it over the queue file.
func (q *FileQueue) save(f *queueFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to marshal queue")
	}

	tmpPath := q.path + ".tmp"
	tmp, err := q.fs.Create(tmpPath)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to create temporary queue file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = q.fs.Remove(tmpPath)
		return errors.Wrap(err, errors.CodeInternal, "failed to write temporary queue file")
	}
	if err := tmp.Close(); err != nil {
		_ = q.fs.Remove(tmpPath)
		return errors.Wrap(err, errors.CodeInternal, "failed to close temporary queue file")
	}
	if err := q.fs.Rename(tmpPath, q.path); err != nil {
		_ = q.fs.Remove(tmpPath)
		return errors.Wrap(err, errors.CodeInternal, "failed to rename queue file")
	}
	return nil
}
