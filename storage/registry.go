package storage

import (
	"context"
	"net/url"
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/manifest"
)

// Registry dispatches references to the first registered handler that can
// handle their URI. References no handler claims go to the fallback
// handler, which defaults to a TrackingHandler.
type Registry struct {
	mu       sync.RWMutex
	handlers []Handler
	fallback Handler
}

var _ Handler = (*Registry)(nil)

// NewRegistry creates a registry with the given handlers, tried in order.
func NewRegistry(handlers ...Handler) *Registry {
	return &Registry{
		handlers: handlers,
		fallback: NewTrackingHandler(),
	}
}

// Register appends h to the dispatch list.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// SetFallback replaces the handler used for unclaimed URIs. A nil handler
// makes unclaimed URIs an error.
func (r *Registry) SetFallback(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = h
}

// CanHandle reports whether any handler, including the fallback, accepts u.
func (r *Registry) CanHandle(u *url.URL) bool {
	_, err := r.handlerFor(u)
	return err == nil
}

// StorePath dispatches to the handler for uri.
//
// Errors:
//   - INVALID_INPUT if uri cannot be parsed or no handler accepts it.
func (r *Registry) StorePath(ctx context.Context, uri string, opts ...StoreOption) ([]*manifest.Entry, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "storage.store", "invalid reference URI")
	}
	h, err := r.handlerFor(u)
	if err != nil {
		return nil, err
	}
	return h.StorePath(ctx, uri, opts...)
}

// LoadPath dispatches to the handler for the entry's reference.
//
// Errors:
//   - INVALID_INPUT if the entry has no reference, it cannot be parsed,
//     or no handler accepts it.
func (r *Registry) LoadPath(ctx context.Context, entry *manifest.Entry, local bool) (string, error) {
	if !entry.IsReference() {
		return "", errors.Newf(errors.CodeInvalidInput, "storage.load", "entry %q is not a reference", entry.Path)
	}
	u, err := entry.RefURL()
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInvalidInput, "storage.load", "invalid reference URI")
	}
	h, err := r.handlerFor(u)
	if err != nil {
		return "", err
	}
	return h.LoadPath(ctx, entry, local)
}

//nolint:ireturn // handlers are pluggable
func (r *Registry) handlerFor(u *url.URL) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.handlers {
		if h.CanHandle(u) {
			return h, nil
		}
	}
	if r.fallback != nil && r.fallback.CanHandle(u) {
		return r.fallback, nil
	}
	return nil, errors.Newf(errors.CodeInvalidInput, "storage.dispatch", "no storage handler for scheme %q", u.Scheme)
}
