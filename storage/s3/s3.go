// Package s3 implements the storage handler for S3 and S3-compatible object
// stores.
//
// References have the form s3://bucket/key[?versionId=...]. A reference to a
// single object becomes one manifest entry; a reference to a prefix expands
// to one entry per non-empty object below it. Entry digests are the object
// ETags, and fetches are verified against them before they reach the cache.
package s3

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/cache"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/storage"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/storage/s3/internal/s3api"
)

// Handler is the S3 storage handler. The SDK client is built on first use
// and shared by all calls; Handler is safe for concurrent use.
type Handler struct {
	cfg    handlerConfig
	cache  *cache.Cache
	logger *slog.Logger

	mu     sync.Mutex
	client s3api.S3API
}

var _ storage.Handler = (*Handler)(nil)

// New creates an S3 handler.
//
// Example:
//
//	h := s3.New(s3.FromEnv(), s3.WithCache(c))
//	entries, err := h.StorePath(ctx, "s3://bucket/prefix/")
func New(opts ...Option) *Handler {
	cfg := handlerConfig{
		scheme: "s3",
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.cache == nil {
		cfg.cache = cache.New("", cache.WithLogger(cfg.logger))
	}
	return &Handler{
		cfg:    cfg,
		cache:  cfg.cache,
		logger: cfg.logger,
		client: cfg.client,
	}
}

// CanHandle implements storage.Handler.
func (h *Handler) CanHandle(u *url.URL) bool {
	return u.Scheme == h.cfg.scheme
}

// s3Client returns the SDK client, building it on first use.
//
//nolint:ireturn // returns the mockable API seam
func (h *Handler) s3Client(ctx context.Context) (s3api.S3API, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.client != nil {
		return h.client, nil
	}

	var awsCfg aws.Config
	if h.cfg.awsConfig != nil {
		awsCfg = *h.cfg.awsConfig
	} else {
		var loadOpts []func(*config.LoadOptions) error
		if h.cfg.region != "" {
			loadOpts = append(loadOpts, config.WithRegion(h.cfg.region))
		}
		var err error
		awsCfg, err = config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidConfig, "s3.client", "loading AWS configuration")
		}
	}
	if h.cfg.region != "" {
		awsCfg.Region = h.cfg.region
	}

	h.client = s3.NewFromConfig(awsCfg, clientOptions(h.cfg.endpoint, h.cfg.pathStyle)...)
	h.logger.Debug("s3 client initialized", "endpoint", h.cfg.endpoint, "region", awsCfg.Region)
	return h.client, nil
}

// clientOptions points the client at a custom endpoint. Allow-listed hosts
// are forced to virtual-hosted style.
func clientOptions(endpoint string, pathStyle bool) []func(*s3.Options) {
	if endpoint == "" {
		return nil
	}
	virtual := RequiresVirtualHost(endpoint)
	base := normalizeEndpoint(endpoint)
	return []func(*s3.Options){
		func(o *s3.Options) {
			o.BaseEndpoint = aws.String(base)
			switch {
			case virtual:
				o.UsePathStyle = false
			case pathStyle:
				o.UsePathStyle = true
			}
		},
	}
}

// parseURI splits scheme://bucket/key?versionId=v.
func parseURI(uri string) (bucket, key, version string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", "", errors.Wrap(err, errors.CodeInvalidInput, "s3.parse", "invalid reference URI")
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), u.Query().Get("versionId"), nil
}

func (h *Handler) baseRef(bucket, key string) string {
	return fmt.Sprintf("%s://%s/%s", h.cfg.scheme, bucket, key)
}

// trimETag strips the quotes S3 puts around ETags.
func trimETag(etag *string) string {
	return strings.Trim(aws.ToString(etag), `"`)
}
