//go:build integration
// +build integration

package s3_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/cache"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/storage"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/storage/s3"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/storage/s3/internal/testutil"
)

// TestIntegrationStoreAndLoad stores references against LocalStack and
// fetches them back through the cache, including the version fallback.
func TestIntegrationStoreAndLoad(t *testing.T) {
	ctx := context.Background()
	ls := testutil.StartLocalStack(ctx, t)

	seed, err := ls.Client(ctx)
	require.NoError(t, err)
	const bucket = "artifactsync-integration"
	require.NoError(t, testutil.CreateVersionedBucket(ctx, seed, bucket))
	require.NoError(t, testutil.PutObject(ctx, seed, bucket, "data/a.txt", []byte("alpha")))
	require.NoError(t, testutil.PutObject(ctx, seed, bucket, "data/sub/b.txt", []byte("bravo!")))
	require.NoError(t, testutil.PutObject(ctx, seed, bucket, "data/empty", nil))

	awsCfg, err := ls.AWSConfig(ctx)
	require.NoError(t, err)
	h := s3.New(
		s3.WithAWSConfig(&awsCfg),
		s3.WithEndpoint(ls.Endpoint()),
		s3.WithPathStyle(true),
		s3.WithCache(cache.New(t.TempDir())),
	)

	entries, err := h.StorePath(ctx, "s3://"+bucket+"/data/")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byPath := map[string]string{}
	for _, e := range entries {
		byPath[e.Path] = e.Ref
		assert.NotEmpty(t, e.Extra["versionID"])
	}
	assert.Equal(t, "s3://"+bucket+"/data/a.txt", byPath["a.txt"])
	assert.Equal(t, "s3://"+bucket+"/data/sub/b.txt", byPath["sub/b.txt"])

	_, err = h.StorePath(ctx, "s3://"+bucket+"/data/", storage.WithMaxObjects(1))
	assert.True(t, errors.IsCapacity(err))

	single, err := h.StorePath(ctx, "s3://"+bucket+"/data/a.txt")
	require.NoError(t, err)
	require.Len(t, single, 1)
	entry := single[0]
	delete(entry.Extra, "versionID")

	require.NoError(t, testutil.PutObject(ctx, seed, bucket, "data/a.txt", []byte("ALPHA-2")))

	local, err := h.LoadPath(ctx, entry, true)
	require.NoError(t, err)
	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))
}
