// Package storage defines the storage handler capability interface and the
// registry that dispatches reference URIs to the handler for their scheme.
//
// A handler resolves a reference into manifest entries when it is added to
// an artifact (StorePath) and back into bytes when it is fetched (LoadPath),
// verifying integrity on the way.
package storage

import (
	"context"
	"net/url"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/manifest"
)

// DefaultMaxObjects is the default cap on the number of objects a single
// reference may expand to.
const DefaultMaxObjects = 10000

// Handler is implemented by every storage backend.
type Handler interface {
	// CanHandle reports whether the handler serves u's scheme.
	CanHandle(u *url.URL) bool

	// StorePath resolves uri into one entry per underlying object.
	StorePath(ctx context.Context, uri string, opts ...StoreOption) ([]*manifest.Entry, error)

	// LoadPath returns the entry's reference unchanged if local is false,
	// otherwise a local path holding verified bytes.
	LoadPath(ctx context.Context, entry *manifest.Entry, local bool) (string, error)
}

// StoreConfig holds the options of a StorePath call.
type StoreConfig struct {
	// Name is the manifest path, or path prefix in multi-object mode.
	Name string

	// Checksum requests per-object digests. When false a single entry
	// trusting the URI as both reference and digest is returned.
	Checksum bool

	// MaxObjects caps the number of entries a reference may expand to.
	MaxObjects int
}

// StoreOption configures a StorePath call.
type StoreOption func(*StoreConfig)

// WithName sets the manifest path (or prefix) for the stored reference.
func WithName(name string) StoreOption {
	return func(c *StoreConfig) {
		c.Name = name
	}
}

// WithChecksum enables or disables per-object checksumming.
func WithChecksum(checksum bool) StoreOption {
	return func(c *StoreConfig) {
		c.Checksum = checksum
	}
}

// WithMaxObjects sets the object cap. Non-positive values keep the default.
func WithMaxObjects(n int) StoreOption {
	return func(c *StoreConfig) {
		if n > 0 {
			c.MaxObjects = n
		}
	}
}

// NewStoreConfig applies opts over the defaults.
func NewStoreConfig(opts ...StoreOption) StoreConfig {
	cfg := StoreConfig{
		Checksum:   true,
		MaxObjects: DefaultMaxObjects,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
