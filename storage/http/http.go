// Package http implements the storage handler for http:// and https://
// references. The digest of a reference is its ETag, or the URL itself when
// the server sends none.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/cache"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/internal/pool"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/manifest"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/storage"
)

// Handler is the HTTP storage handler.
type Handler struct {
	client *http.Client
	cache  *cache.Cache
	logger *slog.Logger
}

var _ storage.Handler = (*Handler)(nil)

// Option configures a Handler.
type Option func(*Handler)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Handler) {
		h.client = c
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

// New creates an HTTP handler.
func New(opts ...Option) *Handler {
	h := &Handler{
		client: http.DefaultClient,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.cache == nil {
		h.cache = cache.New("", cache.WithLogger(h.logger))
	}
	return h
}

// CanHandle implements storage.Handler.
func (h *Handler) CanHandle(u *url.URL) bool {
	return u.Scheme == "http" || u.Scheme == "https"
}

// StorePath implements storage.Handler. The URL always maps to a single
// entry.
//
// Errors:
//   - NOT_FOUND on a 404.
//   - NETWORK_ERROR, UNAUTHORIZED or FORBIDDEN for other failures.
func (h *Handler) StorePath(ctx context.Context, uri string, opts ...storage.StoreOption) ([]*manifest.Entry, error) {
	cfg := storage.NewStoreConfig(opts...)
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "http.store", "invalid reference URI")
	}
	name := cfg.Name
	if name == "" {
		name = path.Base(u.Path)
	}
	if !cfg.Checksum {
		return []*manifest.Entry{storage.SingleEntry(uri, name)}, nil
	}

	resp, err := h.do(ctx, http.MethodHead, uri)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	etag := trimETag(resp.Header.Get("ETag"))
	digest := etag
	if digest == "" {
		digest = uri
	}
	e := &manifest.Entry{Path: name, Ref: uri, Digest: digest}
	if resp.ContentLength >= 0 {
		e.Size = manifest.Int64(resp.ContentLength)
	}
	if etag != "" {
		e.Extra = map[string]any{"etag": etag}
	}
	return []*manifest.Entry{e}, nil
}

// LoadPath implements storage.Handler.
//
// Errors:
//   - NOT_FOUND on a 404.
//   - INTEGRITY_FAILED if the server returns a different ETag, or none when
//     the digest is an ETag.
func (h *Handler) LoadPath(ctx context.Context, entry *manifest.Entry, local bool) (string, error) {
	if !local {
		return entry.Ref, nil
	}
	size := int64(-1)
	if entry.Size != nil {
		size = *entry.Size
	}
	cachePath, hit, open := h.cache.CheckETag(entry.Ref, entry.Digest, size)
	if hit {
		return cachePath, nil
	}

	resp, err := h.do(ctx, http.MethodGet, entry.Ref)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if entry.Digest != entry.Ref {
		etag := trimETag(resp.Header.Get("ETag"))
		if etag == "" {
			return "", errors.Newf(errors.CodeIntegrity, "http.load",
				"server returned no ETag for %s, expected %s", entry.Ref, entry.Digest).
				WithContext("uri", entry.Ref)
		}
		if etag != entry.Digest {
			return "", errors.Newf(errors.CodeIntegrity, "http.load",
				"digest mismatch for %s: expected %s but found %s", entry.Ref, entry.Digest, etag).
				WithContext("uri", entry.Ref)
		}
	}

	w, err := open()
	if err != nil {
		return "", err
	}
	if _, err := pool.Copy(w, resp.Body, resp.ContentLength); err != nil {
		_ = w.Discard()
		return "", errors.Wrap(err, errors.CodeNetwork, "http.load", "reading response body").WithContext("uri", entry.Ref)
	}
	if err := w.Commit(); err != nil {
		return "", err
	}
	h.logger.Debug("http reference cached", "uri", entry.Ref)
	return cachePath, nil
}

func (h *Handler) do(ctx context.Context, method, uri string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, uri, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "http.request", "building request")
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeNetwork, "http.request", "request failed").WithContext("uri", uri)
	}
	if resp.StatusCode < 300 {
		return resp, nil
	}
	resp.Body.Close()

	code := errors.CodeNetwork
	switch resp.StatusCode {
	case http.StatusNotFound:
		code = errors.CodeNotFound
	case http.StatusUnauthorized:
		code = errors.CodeUnauthorized
	case http.StatusForbidden:
		code = errors.CodeForbidden
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		code = errors.CodeUnavailable
	}
	return nil, errors.Newf(code, "http.request", "%s %s returned %s", method, uri, resp.Status).
		WithContext("status", strconv.Itoa(resp.StatusCode))
}

func trimETag(etag string) string {
	return strings.Trim(strings.TrimPrefix(etag, "W/"), `"`)
}
