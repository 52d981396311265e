package cache

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/fs/billy"
)

func newMemCache() (*Cache, *billy.FS) {
	mem := billy.NewInMemoryFS()
	return New("/cache", WithFilesystem(mem)), mem
}

func TestCache_CheckETag_MissThenHit(t *testing.T) {
	c, mem := newMemCache()

	path, hit, open := c.CheckETag("s3://bucket/file.txt", "abc123", 10)
	assert.False(t, hit)
	require.NotNil(t, open)
	assert.True(t, strings.HasPrefix(path, "/cache/obj/etag/"))

	w, err := open()
	require.NoError(t, err)
	_, err = w.Write([]byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	again, hit, open := c.CheckETag("s3://bucket/file.txt", "abc123", 10)
	assert.True(t, hit)
	assert.Nil(t, open)
	assert.Equal(t, path, again)

	data, err := mem.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	m := c.Metrics()
	assert.Equal(t, int64(1), m.Hits)
	assert.Equal(t, int64(1), m.Misses)
	assert.InDelta(t, 0.5, m.HitRate(), 0.0001)
}

func TestCache_KeysAreDistinct(t *testing.T) {
	c, _ := newMemCache()

	p1, _, _ := c.CheckETag("s3://bucket/a", "etag1", 1)
	p2, _, _ := c.CheckETag("s3://bucket/a", "etag2", 1)
	p3, _, _ := c.CheckETag("s3://bucket/b", "etag1", 1)
	assert.NotEqual(t, p1, p2)
	assert.NotEqual(t, p1, p3)
}

func TestCache_SizeMismatchIsMiss(t *testing.T) {
	c, mem := newMemCache()
	path, _, _ := c.CheckETag("s3://bucket/a", "e", 3)
	require.NoError(t, mem.WriteFile(path, []byte("abcd"), 0o644))

	_, hit, _ := c.CheckETag("s3://bucket/a", "e", 3)
	assert.False(t, hit)

	_, hit, _ = c.CheckETag("s3://bucket/a", "e", -1)
	assert.True(t, hit)
}

func TestCache_DiscardLeavesNothing(t *testing.T) {
	c, mem := newMemCache()

	path, _, open := c.CheckETag("s3://bucket/a", "e", 4)
	w, err := open()
	require.NoError(t, err)
	_, err = w.Write([]byte("ab"))
	require.NoError(t, err)
	require.NoError(t, w.Discard())

	exists, err := mem.Exists(path)
	require.NoError(t, err)
	assert.False(t, exists)

	tmp, err := mem.ReadDir("/cache/tmp")
	require.NoError(t, err)
	assert.Empty(t, tmp)

	assert.Error(t, w.Commit())
	assert.NoError(t, w.Discard())
}

func TestCache_CommitTwice(t *testing.T) {
	c, mem := newMemCache()

	path, _, open := c.CheckETag("s3://bucket/twice", "e", 3)
	w, err := open()
	require.NoError(t, err)
	_, err = w.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	err = w.Commit()
	require.Error(t, err)
	assert.Equal(t, errors.CodeConflict, errors.CodeOf(err))
	assert.NoError(t, w.Discard())

	data, err := mem.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestCache_CommitRejectsShortWrite(t *testing.T) {
	c, mem := newMemCache()

	path, _, open := c.CheckETag("s3://bucket/a", "e", 10)
	w, err := open()
	require.NoError(t, err)
	_, err = w.Write([]byte("short"))
	require.NoError(t, err)

	err = w.Commit()
	require.Error(t, err)
	assert.True(t, errors.IsIntegrity(err))

	exists, err := mem.Exists(path)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCache_CheckMD5(t *testing.T) {
	c, _ := newMemCache()

	path, hit, open, err := c.CheckMD5("1B2M2Y8AsgTpgAmY7PhCfg==", 0)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "/cache/obj/md5/d4/1d8cd98f00b204e9800998ecf8427e", filepath.ToSlash(path))

	w, err := open()
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	_, hit, _, err = c.CheckMD5("1B2M2Y8AsgTpgAmY7PhCfg==", 0)
	require.NoError(t, err)
	assert.True(t, hit)

	_, _, _, err = c.CheckMD5("%%%", 0)
	assert.Equal(t, errors.CodeInvalidInput, errors.CodeOf(err))
}

func TestCache_WritersForSameKeyAreSerialized(t *testing.T) {
	c, mem := newMemCache()
	path, _, open := c.CheckETag("s3://bucket/shared", "e", 5)

	first, err := open()
	require.NoError(t, err)

	var wg sync.WaitGroup
	acquired := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		w, err := open()
		if err != nil {
			return
		}
		close(acquired)
		_, _ = w.Write([]byte("world"))
		_ = w.Commit()
	}()

	select {
	case <-acquired:
		t.Fatal("second writer acquired the key while the first was open")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = first.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, first.Commit())

	wg.Wait()
	data, err := mem.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))
}

func TestCache_Cleanup(t *testing.T) {
	root := t.TempDir()
	c := New(root)

	now := time.Now()
	var paths []string
	for i, uri := range []string{"s3://b/old", "s3://b/mid", "s3://b/new"} {
		path, _, open := c.CheckETag(uri, "e", 4)
		w, err := open()
		require.NoError(t, err)
		_, err = w.Write([]byte("data"))
		require.NoError(t, err)
		require.NoError(t, w.Commit())

		mtime := now.Add(time.Duration(i-3) * time.Hour)
		require.NoError(t, os.Chtimes(path, mtime, mtime))
		paths = append(paths, path)
	}

	reclaimed, err := c.Cleanup(4)
	require.NoError(t, err)
	assert.Equal(t, int64(8), reclaimed)

	assert.NoFileExists(t, paths[0])
	assert.NoFileExists(t, paths[1])
	assert.FileExists(t, paths[2])
	assert.Equal(t, int64(2), c.Metrics().Evictions)

	reclaimed, err = c.Cleanup(4)
	require.NoError(t, err)
	assert.Zero(t, reclaimed)
}

func TestCache_CleanupEmpty(t *testing.T) {
	c := New(t.TempDir())
	reclaimed, err := c.Cleanup(0)
	require.NoError(t, err)
	assert.Zero(t, reclaimed)
}

func TestDefaultDir(t *testing.T) {
	t.Setenv(EnvCacheDir, "/custom/cache")
	assert.Equal(t, "/custom/cache", DefaultDir())

	t.Setenv(EnvCacheDir, "")
	assert.True(t, strings.HasSuffix(DefaultDir(), "artifactsync"))
}
