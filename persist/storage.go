package persist

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/go/errors"
)

const entrySuffix = ".json"

/*
Storage is a set of named response caches on a billy filesystem.

Layout:

	<root>/<cache name>/<sha256(url)>.json

There is no per-entry expiry at this tier. A cache lives until its whole
directory is deleted, which is how generations are retired.
*/
type Storage struct {
	fs   billy.Filesystem
	root string

	// mu serializes every filesystem mutation; reads share it. billy
	// filesystems such as memfs are not safe for concurrent writes.
	mu sync.RWMutex
}

// NewStorage creates root if needed. Use osfs.New(dir) in production and
// memfs.New() in tests.
func NewStorage(fs billy.Filesystem, root string) (*Storage, error) {
	if fs == nil {
		return nil, errors.New(errors.CodeInvalidInput, "filesystem cannot be nil")
	}
	if root == "" {
		root = "."
	}
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create storage root")
	}
	return &Storage{fs: fs, root: root}, nil
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return errors.WithContext(
			errors.New(errors.CodeInvalidInput, "invalid cache name"),
			"cache", name,
		)
	}
	return nil
}

// Open returns the named cache, creating it if it does not exist.
func (s *Storage) Open(name string) (*Cache, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := path.Join(s.root, name)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, errors.CodeInternal, "failed to create cache %q", name)
	}
	return &Cache{storage: s, name: name, dir: dir}, nil
}

// Has reports whether the named cache exists.
func (s *Storage) Has(name string) (bool, error) {
	if err := validName(name); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	fi, err := s.fs.Stat(path.Join(s.root, name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.CodeInternal, "failed to stat cache")
	}
	return fi.IsDir(), nil
}

// Keys lists every cache name in sorted order.
func (s *Storage) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos, err := s.fs.ReadDir(s.root)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to list caches")
	}

	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir() && validName(fi.Name()) == nil {
			names = append(names, fi.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the named cache and everything in it. It reports whether
// the cache existed.
func (s *Storage) Delete(name string) (bool, error) {
	if err := validName(name); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := path.Join(s.root, name)
	if _, err := s.fs.Stat(dir); os.IsNotExist(err) {
		return false, nil
	}
	if err := util.RemoveAll(s.fs, dir); err != nil {
		return false, errors.Wrapf(err, errors.CodeInternal, "failed to delete cache %q", name)
	}
	return true, nil
}

// Cache is one named response cache.
type Cache struct {
	storage *Storage
	name    string
	dir     string
}

// Name returns the cache name.
func (c *Cache) Name() string { return c.name }

func entryFile(u string) string {
	sum := sha256.Sum256([]byte(u))
	return hex.EncodeToString(sum[:]) + entrySuffix
}

/*
Match looks up the stored response for req's URL.
A missing entry is (nil, false, nil), not an error.
*/
func (c *Cache) Match(req *http.Request) (*http.Response, bool, error) {
	r, ok, err := c.Lookup(req.URL.String())
	if err != nil || !ok {
		return nil, ok, err
	}
	return r.HTTP(req), true, nil
}

// Lookup returns the stored form for url.
func (c *Cache) Lookup(url string) (Response, bool, error) {
	c.storage.mu.RLock()
	defer c.storage.mu.RUnlock()

	p := path.Join(c.dir, entryFile(url))
	data, err := util.ReadFile(c.storage.fs, p)
	if os.IsNotExist(err) {
		return Response{}, false, nil
	}
	if err != nil {
		return Response{}, false, errors.Wrap(err, errors.CodeInternal, "failed to read cache entry")
	}

	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return Response{}, false, errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "corrupt cache entry"),
			"cache", c.name,
		)
	}
	return r, true, nil
}

// Put stores r under req's URL, replacing any previous entry.
func (c *Cache) Put(req *http.Request, r Response) error {
	if r.URL == "" {
		r.URL = req.URL.String()
	}
	return c.put(req.URL.String(), r)
}

/*
put writes the entry atomically: a temp file in the cache directory is
renamed over the final name, so readers never see a partial entry.
*/
func (c *Cache) put(url string, r Response) error {
	data, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to marshal cache entry")
	}

	c.storage.mu.Lock()
	defer c.storage.mu.Unlock()

	tmp, err := util.TempFile(c.storage.fs, c.dir, "put-")
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to create temporary entry")
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = c.storage.fs.Remove(tmpPath)
		return errors.Wrap(err, errors.CodeInternal, "failed to write temporary entry")
	}
	if err := tmp.Close(); err != nil {
		_ = c.storage.fs.Remove(tmpPath)
		return errors.Wrap(err, errors.CodeInternal, "failed to close temporary entry")
	}

	if err := c.storage.fs.Rename(tmpPath, path.Join(c.dir, entryFile(url))); err != nil {
		_ = c.storage.fs.Remove(tmpPath)
		return errors.Wrap(err, errors.CodeInternal, "failed to commit cache entry")
	}
	return nil
}

// Delete removes the entry for req's URL and reports whether it existed.
func (c *Cache) Delete(req *http.Request) (bool, error) {
	c.storage.mu.Lock()
	defer c.storage.mu.Unlock()

	err := c.storage.fs.Remove(path.Join(c.dir, entryFile(req.URL.String())))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.CodeInternal, "failed to delete cache entry")
	}
	return true, nil
}

// Len counts stored entries.
func (c *Cache) Len() (int, error) {
	c.storage.mu.RLock()
	defer c.storage.mu.RUnlock()

	infos, err := c.storage.fs.ReadDir(c.dir)
	if err != nil {
		return 0, errors.Wrapf(err, errors.CodeInternal, "failed to list cache %q", c.name)
	}
	n := 0
	for _, fi := range infos {
		if !fi.IsDir() && strings.HasSuffix(fi.Name(), entrySuffix) {
			n++
		}
	}
	return n, nil
}
