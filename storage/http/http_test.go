package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/cache"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/fs/billy"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/storage"
)

func newServer(t *testing.T, etag *atomic.Value, gets *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/model.bin":
			if v, _ := etag.Load().(string); v != "" {
				w.Header().Set("ETag", v)
			}
			w.Header().Set("Content-Length", "7")
			if r.Method == http.MethodGet {
				gets.Add(1)
				_, _ = w.Write([]byte("weights"))
			}
		case "/secret":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newHandler() *Handler {
	return New(WithCache(cache.New("/cache", cache.WithFilesystem(billy.NewInMemoryFS()))))
}

func TestHandler_StoreAndLoad(t *testing.T) {
	var etag atomic.Value
	etag.Store(`"v1"`)
	var gets atomic.Int32
	srv := newServer(t, &etag, &gets)
	h := newHandler()
	ctx := context.Background()

	entries, err := h.StorePath(ctx, srv.URL+"/model.bin")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "model.bin", e.Path)
	assert.Equal(t, "v1", e.Digest)
	assert.Equal(t, int64(7), e.SizeOrZero())

	_, err = h.LoadPath(ctx, e, true)
	require.NoError(t, err)
	_, err = h.LoadPath(ctx, e, true)
	require.NoError(t, err)
	assert.Equal(t, int32(1), gets.Load())

	etag.Store(`"v2"`)
	changed := e.Clone()
	changed.Ref = srv.URL + "/model.bin?bust=1"
	_, err = h.LoadPath(ctx, changed, true)
	assert.True(t, errors.IsIntegrity(err))
}

func TestHandler_LoadRequiresETag(t *testing.T) {
	var etag atomic.Value
	etag.Store(`"v1"`)
	var gets atomic.Int32
	srv := newServer(t, &etag, &gets)
	h := newHandler()
	ctx := context.Background()

	entries, err := h.StorePath(ctx, srv.URL+"/model.bin")
	require.NoError(t, err)
	require.Equal(t, "v1", entries[0].Digest)

	etag.Store("")
	_, err = h.LoadPath(ctx, entries[0], true)
	require.Error(t, err)
	assert.True(t, errors.IsIntegrity(err))
	assert.Equal(t, int32(1), gets.Load())
}

func TestHandler_NoETagUsesURI(t *testing.T) {
	var etag atomic.Value
	var gets atomic.Int32
	srv := newServer(t, &etag, &gets)
	h := newHandler()

	entries, err := h.StorePath(context.Background(), srv.URL+"/model.bin", storage.WithName("m"))
	require.NoError(t, err)
	assert.Equal(t, "m", entries[0].Path)
	assert.Equal(t, srv.URL+"/model.bin", entries[0].Digest)
	assert.Nil(t, entries[0].Extra)

	_, err = h.LoadPath(context.Background(), entries[0], true)
	require.NoError(t, err)
}

func TestHandler_Errors(t *testing.T) {
	var etag atomic.Value
	var gets atomic.Int32
	srv := newServer(t, &etag, &gets)
	h := newHandler()

	_, err := h.StorePath(context.Background(), srv.URL+"/missing")
	assert.True(t, errors.IsNotFound(err))

	_, err = h.StorePath(context.Background(), srv.URL+"/secret")
	assert.Equal(t, errors.CodeForbidden, errors.CodeOf(err))
	assert.True(t, errors.IsConnectivity(err))
}
