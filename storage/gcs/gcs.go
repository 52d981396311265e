// Package gcs implements the storage handler for Google Cloud Storage
// references of the form gs://bucket/key[?versionId=generation].
//
// Entry digests are the base64 MD5 Cloud Storage records for each object,
// falling back to the ETag for composite objects, and the object generation
// is kept as the version.
package gcs

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/cache"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/manifest"
	syncstorage "github.com/input-output-hk/catalyst-forge-libs/artifactsync/storage"
)

// Handler is the Cloud Storage handler. The client is created on first use.
type Handler struct {
	scheme     string
	clientOpts []option.ClientOption
	cache      *cache.Cache
	logger     *slog.Logger

	mu  sync.Mutex
	api objectAPI
}

var _ syncstorage.Handler = (*Handler)(nil)

// Option configures a Handler.
type Option func(*Handler)

// WithClientOptions passes options to storage.NewClient, for example an
// emulator endpoint or explicit credentials.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(h *Handler) {
		h.clientOpts = append(h.clientOpts, opts...)
	}
}

// WithClient uses an existing Cloud Storage client.
func WithClient(client *storage.Client) Option {
	return func(h *Handler) {
		h.api = clientAPI{client: client}
	}
}

// WithCache sets the content cache fetched objects are stored in.
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

func withAPI(api objectAPI) Option {
	return func(h *Handler) {
		h.api = api
	}
}

// New creates a Cloud Storage handler.
func New(opts ...Option) *Handler {
	h := &Handler{
		scheme: "gs",
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
	return u.Scheme == h.scheme
}

//nolint:ireturn // returns the mockable API seam
func (h *Handler) objects(ctx context.Context) (objectAPI, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.api != nil {
		return h.api, nil
	}
	client, err := storage.NewClient(ctx, h.clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "gcs.client", "failed to create GCS client")
	}
	h.api = clientAPI{client: client}
	return h.api, nil
}

// StorePath implements storage.Handler. Resolution follows the same rules
// as the S3 handler: a missing object, an empty key or a "/"-terminated
// placeholder expands to every non-empty object under the prefix.
//
// Errors:
//   - CAPACITY_EXCEEDED if more than the max objects qualify.
//   - NETWORK_ERROR if Cloud Storage cannot be reached.
func (h *Handler) StorePath(ctx context.Context, uri string, opts ...syncstorage.StoreOption) ([]*manifest.Entry, error) {
	cfg := syncstorage.NewStoreConfig(opts...)
	bucket, key, generation, err := parseURI(uri)
	if err != nil {
		return nil, err
	}
	if !cfg.Checksum {
		ref := fmt.Sprintf("%s://%s/%s", h.scheme, bucket, key)
		return []*manifest.Entry{syncstorage.SingleEntry(ref, syncstorage.UncheckedName(cfg.Name, bucket, key))}, nil
	}

	api, err := h.objects(ctx)
	if err != nil {
		return nil, err
	}

	multi := key == ""
	var objs []*storage.ObjectAttrs
	if !multi {
		attrs, err := api.Attrs(ctx, bucket, key, generation)
		switch {
		case stderrors.Is(err, storage.ErrObjectNotExist):
			multi = true
		case err != nil:
			return nil, connectivityError(err, "gcs.store", bucket, key)
		case strings.HasSuffix(attrs.Name, "/"):
			multi = true
		default:
			objs = []*storage.ObjectAttrs{attrs}
		}
	}

	if multi {
		q := &storage.Query{Prefix: key}
		err := api.List(ctx, bucket, q, func(attrs *storage.ObjectAttrs) error {
			if attrs.Size <= 0 {
				return nil
			}
			if len(objs) == cfg.MaxObjects {
				return syncstorage.CapacityError("gcs.store", uri, cfg.MaxObjects)
			}
			objs = append(objs, attrs)
			return nil
		})
		if errors.IsCapacity(err) {
			return nil, err
		}
		if err != nil {
			return nil, connectivityError(err, "gcs.list", bucket, key)
		}
	}

	entries := make([]*manifest.Entry, 0, len(objs))
	for _, attrs := range objs {
		if attrs.Size <= 0 {
			continue
		}
		entryPath, rel := syncstorage.ObjectPath(cfg.Name, key, attrs.Name, multi)
		entries = append(entries, &manifest.Entry{
			Path:   entryPath,
			Ref:    syncstorage.ObjectRef(h.scheme, bucket, key, rel),
			Digest: digestOf(attrs),
			Size:   manifest.Int64(attrs.Size),
			Extra: map[string]any{
				"etag":      attrs.Etag,
				"versionID": strconv.FormatInt(attrs.Generation, 10),
			},
		})
	}
	return entries, nil
}

// LoadPath implements storage.Handler.
//
// Errors:
//   - NOT_FOUND if the object does not exist.
//   - INTEGRITY_FAILED if a pinned generation changed, no generation
//     matches the entry digest, or the fetched bytes do not hash to it.
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

	api, err := h.objects(ctx)
	if err != nil {
		return "", err
	}
	bucket, key, _, err := parseURI(entry.Ref)
	if err != nil {
		return "", err
	}
	var generation int64
	if v, ok := entry.ExtraString("versionID"); ok {
		generation, _ = strconv.ParseInt(v, 10, 64)
	}

	attrs, err := api.Attrs(ctx, bucket, key, generation)
	if stderrors.Is(err, storage.ErrObjectNotExist) {
		return "", errors.Newf(errors.CodeNotFound, "gcs.load", "unable to find %s at %s", entry.Path, entry.Ref)
	}
	if err != nil {
		return "", connectivityError(err, "gcs.load", bucket, key)
	}

	if got := digestOf(attrs); got != entry.Digest {
		if generation > 0 {
			return "", errors.Newf(errors.CodeIntegrity, "gcs.load",
				"digest mismatch for object %s with generation %d: expected %s but found %s",
				entry.Ref, generation, entry.Digest, got).WithContext("uri", entry.Ref)
		}
		attrs, err = h.findGeneration(ctx, api, bucket, key, entry.Digest)
		if err != nil {
			return "", err
		}
	}

	if err := h.download(ctx, api, open, attrs, bucket); err != nil {
		return "", err
	}
	return cachePath, nil
}

func (h *Handler) findGeneration(
	ctx context.Context,
	api objectAPI,
	bucket, key, digest string,
) (*storage.ObjectAttrs, error) {
	h.logger.Warn("object changed since it was stored, searching its generations",
		"bucket", bucket, "key", key, "digest", digest)

	var match *storage.ObjectAttrs
	errFound := stderrors.New("found")
	err := api.List(ctx, bucket, &storage.Query{Prefix: key, Versions: true}, func(attrs *storage.ObjectAttrs) error {
		if attrs.Name == key && digestOf(attrs) == digest {
			match = attrs
			return errFound
		}
		return nil
	})
	if err != nil && !stderrors.Is(err, errFound) {
		return nil, connectivityError(err, "gcs.versions", bucket, key)
	}
	if match == nil {
		notFound := errors.Newf(errors.CodeNotFound, "gcs.versions",
			"couldn't find object generation for %s/%s matching digest %s", bucket, key, digest)
		return nil, errors.Wrap(notFound, errors.CodeIntegrity, "gcs.load", "no generation matches the recorded digest").
			WithContext("expected", digest)
	}
	return match, nil
}

func (h *Handler) download(ctx context.Context, api objectAPI, open cache.Opener, attrs *storage.ObjectAttrs, bucket string) error {
	r, err := api.Read(ctx, bucket, attrs.Name, attrs.Generation)
	if err != nil {
		return connectivityError(err, "gcs.read", bucket, attrs.Name)
	}
	defer r.Close()

	w, err := open()
	if err != nil {
		return err
	}
	digest, _, err := manifest.B64MD5(io.TeeReader(r, w))
	if err != nil {
		_ = w.Discard()
		return errors.Wrap(err, errors.CodeNetwork, "gcs.read", "reading object body").
			WithContext("bucket", bucket).
			WithContext("key", attrs.Name)
	}
	if len(attrs.MD5) > 0 && digest != base64.StdEncoding.EncodeToString(attrs.MD5) {
		_ = w.Discard()
		return errors.Newf(errors.CodeIntegrity, "gcs.read",
			"fetched bytes hash to %s, expected %s", digest, digestOf(attrs)).
			WithContext("bucket", bucket).
			WithContext("key", attrs.Name)
	}
	return w.Commit()
}

// digestOf returns the base64 MD5 of an object, or its ETag when Cloud
// Storage does not record an MD5 (composite objects).
func digestOf(attrs *storage.ObjectAttrs) string {
	if len(attrs.MD5) > 0 {
		return base64.StdEncoding.EncodeToString(attrs.MD5)
	}
	return attrs.Etag
}

func parseURI(uri string) (bucket, key string, generation int64, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", 0, errors.Wrap(err, errors.CodeInvalidInput, "gcs.parse", "invalid reference URI")
	}
	if v := u.Query().Get("versionId"); v != "" {
		generation, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return "", "", 0, errors.Newf(errors.CodeInvalidInput, "gcs.parse", "invalid generation %q", v)
		}
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), generation, nil
}

func connectivityError(err error, op, bucket, key string) error {
	code := errors.CodeNetwork
	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401:
			code = errors.CodeUnauthorized
		case 403:
			code = errors.CodeForbidden
		case 429, 503:
			code = errors.CodeUnavailable
		}
	}
	return errors.Wrap(err, code, op, "unable to reach Google Cloud Storage").
		WithContext("bucket", bucket).
		WithContext("key", key)
}
