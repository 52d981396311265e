package storage

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/manifest"
)

// TrackingHandler records references verbatim. The URI is both reference
// and digest, so there is no integrity guarantee, and tracked references
// cannot be downloaded.
type TrackingHandler struct {
	scheme string
}

var _ Handler = (*TrackingHandler)(nil)

// NewTrackingHandler returns a handler that accepts any URI. Pass a scheme
// to restrict it.
func NewTrackingHandler(scheme ...string) *TrackingHandler {
	h := &TrackingHandler{}
	if len(scheme) > 0 {
		h.scheme = scheme[0]
	}
	return h
}

// CanHandle implements Handler.
func (h *TrackingHandler) CanHandle(u *url.URL) bool {
	return h.scheme == "" || u.Scheme == h.scheme
}

// StorePath implements Handler. Checksum and object limits do not apply.
func (h *TrackingHandler) StorePath(_ context.Context, uri string, opts ...StoreOption) ([]*manifest.Entry, error) {
	cfg := NewStoreConfig(opts...)
	name := cfg.Name
	if name == "" {
		u, err := url.Parse(uri)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidInput, "tracking.store", "invalid reference URI")
		}
		name = strings.TrimPrefix(path.Join(u.Host, u.Path), "/")
	}
	return []*manifest.Entry{{Path: name, Ref: uri, Digest: uri}}, nil
}

// LoadPath implements Handler.
//
// Errors:
//   - INVALID_INPUT if local is true.
func (h *TrackingHandler) LoadPath(_ context.Context, entry *manifest.Entry, local bool) (string, error) {
	if local {
		return "", errors.Newf(errors.CodeInvalidInput, "tracking.load",
			"cannot download tracked reference %s", entry.Ref)
	}
	return entry.Ref, nil
}

// SingleEntry builds the entry returned when checksumming is disabled: the
// URI is trusted as both reference and digest.
func SingleEntry(uri, name string) *manifest.Entry {
	return &manifest.Entry{Path: name, Ref: uri, Digest: uri}
}
