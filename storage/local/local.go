// Package local implements the storage handler for file:// references to
// files and directories on a mounted filesystem.
package local

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/cache"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/fs"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/fs/billy"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/manifest"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/storage"
)

// Handler is the file:// storage handler. Digests are base64 MD5s, so
// fetched files land in the MD5 section of the cache.
type Handler struct {
	fs     fs.Filesystem
	cache  *cache.Cache
	logger *slog.Logger
}

var _ storage.Handler = (*Handler)(nil)

// Option configures a Handler.
type Option func(*Handler)

// WithFilesystem sets the filesystem references are read from.
func WithFilesystem(f fs.Filesystem) Option {
	return func(h *Handler) {
		h.fs = f
	}
}

// WithCache sets the content cache.
func WithCache(c *cache.Cache) Option {
	return func(h *Handler) {
		h.cache = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// New creates a file:// handler.
func New(opts ...Option) *Handler {
	h := &Handler{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(h)
	}
	if h.fs == nil {
		h.fs = billy.NewOSFS("/")
	}
	if h.cache == nil {
		h.cache = cache.New("", cache.WithLogger(h.logger))
	}
	return h
}

// CanHandle implements storage.Handler.
func (h *Handler) CanHandle(u *url.URL) bool {
	return u.Scheme == "file"
}

// StorePath implements storage.Handler. A file becomes one entry; a
// directory becomes one entry per file below it, named relative to it.
//
// Errors:
//   - NOT_FOUND if the path does not exist.
//   - CAPACITY_EXCEEDED if a directory holds more than the max objects.
func (h *Handler) StorePath(ctx context.Context, uri string, opts ...storage.StoreOption) ([]*manifest.Entry, error) {
	cfg := storage.NewStoreConfig(opts...)
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "local.store", "invalid reference URI")
	}
	root := filepath.FromSlash(u.Path)

	if !cfg.Checksum {
		name := cfg.Name
		if name == "" {
			name = path.Base(u.Path)
		}
		return []*manifest.Entry{storage.SingleEntry(uri, name)}, nil
	}

	info, err := h.fs.Stat(root)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.Newf(errors.CodeNotFound, "local.store", "no such file or directory: %s", root)
		}
		return nil, errors.Wrap(err, errors.CodeInternal, "local.store", "stat failed")
	}

	if !info.IsDir() {
		name := cfg.Name
		if name == "" {
			name = filepath.Base(root)
		}
		e, err := h.entry(root, name)
		if err != nil {
			return nil, err
		}
		return []*manifest.Entry{e}, nil
	}

	var files []string
	err = h.fs.Walk(root, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if fi.IsDir() {
			return nil
		}
		if len(files) == cfg.MaxObjects {
			return storage.CapacityError("local.store", uri, cfg.MaxObjects)
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		if errors.IsCapacity(err) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.CodeInternal, "local.store", "walking directory")
	}

	entries := make([]*manifest.Entry, 0, len(files))
	for _, p := range files {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "local.store", "relative path")
		}
		e, err := h.entry(p, path.Join(cfg.Name, filepath.ToSlash(rel)))
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	h.logger.Debug("directory reference stored", "path", root, "objects", len(entries))
	return entries, nil
}

func (h *Handler) entry(p, name string) (*manifest.Entry, error) {
	f, err := h.fs.Open(p)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "local.store", "opening file").WithContext("path", p)
	}
	defer f.Close()

	digest, size, err := manifest.B64MD5(f)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "local.store", "hashing file").WithContext("path", p)
	}
	return &manifest.Entry{
		Path:   name,
		Ref:    (&url.URL{Scheme: "file", Path: filepath.ToSlash(p)}).String(),
		Digest: digest,
		Size:   manifest.Int64(size),
	}, nil
}

// LoadPath implements storage.Handler. The referenced file is copied into
// the cache after checking that it still hashes to the entry digest.
//
// Errors:
//   - NOT_FOUND if the file no longer exists.
//   - INTEGRITY_FAILED if its contents changed.
func (h *Handler) LoadPath(_ context.Context, entry *manifest.Entry, local bool) (string, error) {
	if !local {
		return entry.Ref, nil
	}
	size := int64(-1)
	if entry.Size != nil {
		size = *entry.Size
	}
	cachePath, hit, open, err := h.cache.CheckMD5(entry.Digest, size)
	if err != nil {
		return "", err
	}
	if hit {
		return cachePath, nil
	}

	u, err := entry.RefURL()
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInvalidInput, "local.load", "invalid reference URI")
	}
	src := filepath.FromSlash(u.Path)
	f, err := h.fs.Open(src)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeNotFound, "local.load", "local file not found").
			WithContext("path", src)
	}
	defer f.Close()

	w, err := open()
	if err != nil {
		return "", err
	}
	digest, _, err := manifest.B64MD5(io.TeeReader(f, w))
	if err != nil {
		_ = w.Discard()
		return "", errors.Wrap(err, errors.CodeInternal, "local.load", "copying file").WithContext("path", src)
	}
	if digest != entry.Digest {
		_ = w.Discard()
		return "", errors.Newf(errors.CodeIntegrity, "local.load",
			"digest mismatch for %s: expected %s but found %s", src, entry.Digest, digest).
			WithContext("uri", entry.Ref)
	}
	if err := w.Commit(); err != nil {
		return "", err
	}
	return cachePath, nil
}
