// Package cache implements the local content cache: a digest-keyed store of
// fetched and uploaded file bytes shared by every storage handler.
//
// Entries are published atomically. Bytes are streamed into a temporary file
// and renamed into place on Commit, so a path reported as a hit always holds
// a complete file. Writers for the same key are serialized.
package cache

import (
	"encoding/base64"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/opencontainers/go-digest"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/fs"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/fs/billy"
)

// EnvCacheDir overrides the default cache root.
const EnvCacheDir = "ARTIFACT_CACHE_DIR"

// Writer streams content into the cache.
//
// Exactly one of Commit or Discard must be called. Commit publishes the
// bytes at the path returned by the check that produced the writer; Discard
// throws them away. Both release the per-key lock.
type Writer interface {
	io.Writer

	// Commit finalizes the entry, making it visible as a hit.
	Commit() error

	// Discard aborts the write and removes temporary data.
	Discard() error
}

// Opener acquires the per-key lock and opens a Writer for a cache miss.
type Opener func() (Writer, error)

// Cache is a content cache rooted at a directory.
type Cache struct {
	root   string
	fs     fs.Filesystem
	logger *slog.Logger
	locks  *keyLocks

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithFilesystem sets the filesystem the cache stores its files on.
func WithFilesystem(f fs.Filesystem) Option {
	return func(c *Cache) {
		c.fs = f
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a cache rooted at root. An empty root selects DefaultDir.
// Without WithFilesystem the cache uses the OS filesystem.
func New(root string, opts ...Option) *Cache {
	if root == "" {
		root = DefaultDir()
	}
	c := &Cache{
		root:   root,
		logger: slog.New(slog.DiscardHandler),
		locks:  newKeyLocks(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.fs == nil {
		c.fs = billy.NewOSFS("/")
	}
	return c
}

// DefaultDir returns the cache root: $ARTIFACT_CACHE_DIR if set, otherwise
// "artifactsync" under the user cache directory.
func DefaultDir() string {
	if dir := os.Getenv(EnvCacheDir); dir != "" {
		return dir
	}
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "artifactsync")
}

// Root returns the cache root directory.
func (c *Cache) Root() string {
	return c.root
}

// CheckETag looks up a reference by URI and backend ETag. size is the
// expected byte length; a negative size matches any length.
//
// On a hit, path holds verified bytes. On a miss, the caller fetches the
// object, verifies it, and writes it through open.
func (c *Cache) CheckETag(uri, etag string, size int64) (path string, hit bool, open Opener) {
	key := digest.FromString(uri + etag).Encoded()
	path = filepath.Join(c.root, "obj", "etag", key[:2], key[2:])
	return c.check(path, size)
}

// CheckMD5 looks up artifact-owned content by its base64 MD5.
//
// Errors:
//   - INVALID_INPUT if b64md5 is not valid base64.
func (c *Cache) CheckMD5(b64md5 string, size int64) (path string, hit bool, open Opener, err error) {
	raw, err := base64.StdEncoding.DecodeString(b64md5)
	if err != nil || len(raw) == 0 {
		return "", false, nil, errors.Newf(errors.CodeInvalidInput, "cache.md5", "invalid MD5 digest %q", b64md5)
	}
	hexDigest := hex.EncodeToString(raw)
	path = filepath.Join(c.root, "obj", "md5", hexDigest[:2], hexDigest[2:])
	path, hit, open = c.check(path, size)
	return path, hit, open, nil
}

func (c *Cache) check(path string, size int64) (string, bool, Opener) {
	if c.isHit(path, size) {
		c.hits.Add(1)
		c.logger.Debug("cache hit", "path", path)
		return path, true, nil
	}
	c.misses.Add(1)
	c.logger.Debug("cache miss", "path", path)
	return path, false, func() (Writer, error) {
		return c.openWriter(path, size)
	}
}

func (c *Cache) isHit(path string, size int64) bool {
	info, err := c.fs.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return size < 0 || info.Size() == size
}

// Metrics returns a snapshot of the cache counters.
func (c *Cache) Metrics() Metrics {
	return Metrics{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// Metrics tracks cache effectiveness.
type Metrics struct {
	// Hits is the number of lookups that found a complete entry.
	Hits int64
	// Misses is the number of lookups that did not.
	Misses int64
	// Evictions is the number of files removed by Cleanup.
	Evictions int64
}

// HitRate returns the hit rate as a value between 0.0 and 1.0.
func (m Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0.0
	}
	return float64(m.Hits) / float64(total)
}
