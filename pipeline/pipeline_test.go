package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/manifest"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/synctypes"
)

// eventLog records pipeline events in the order they are observed.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(ev string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakeCommitter struct {
	log *eventLog
	err error
}

func (c *fakeCommitter) CommitArtifact(_ context.Context, artifactID string) error {
	c.log.add("commit:" + artifactID)
	return c.err
}

type nopPolicy struct{}

func (nopPolicy) Name() string { return "nop" }

func (nopPolicy) Config() map[string]any { return nil }

func (nopPolicy) LoadFile(context.Context, string, *manifest.Entry) (string, error) {
	return "", nil
}

func (nopPolicy) LoadReference(context.Context, *manifest.Entry, bool) (string, error) {
	return "", nil
}

func (nopPolicy) StoreFile(context.Context, string, *manifest.Entry, synctypes.ProgressFunc) (bool, error) {
	return false, nil
}

func newManifest(t *testing.T, files int, refs int) *manifest.Manifest {
	t.Helper()
	m := manifest.New(nopPolicy{})
	for i := range files {
		require.NoError(t, m.AddEntry(&manifest.Entry{
			Path:      fmt.Sprintf("file-%d", i),
			Digest:    fmt.Sprintf("d%d", i),
			Size:      manifest.Int64(3),
			LocalPath: fmt.Sprintf("/tmp/file-%d", i),
		}))
	}
	for i := range refs {
		require.NoError(t, m.AddEntry(&manifest.Entry{
			Path:   fmt.Sprintf("ref-%d", i),
			Digest: "etag",
			Ref:    fmt.Sprintf("s3://bucket/ref-%d", i),
		}))
	}
	return m
}

func waitResult(t *testing.T, result <-chan error) error {
	t.Helper()
	select {
	case err := <-result:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for commit result")
		return nil
	}
}

func TestPipeline_CommitOrdering(t *testing.T) {
	log := &eventLog{}
	p := New(&fakeCommitter{log: log}, WithConcurrency(3))
	m := newManifest(t, 8, 2)

	var calls atomic.Int32
	store := func(_ context.Context, e *manifest.Entry, progress synctypes.ProgressFunc) (bool, error) {
		calls.Add(1)
		time.Sleep(5 * time.Millisecond)
		progress(e.SizeOrZero(), e.SizeOrZero())
		log.add("upload:" + e.Path)
		return false, nil
	}

	ctx := context.Background()
	require.NoError(t, p.StoreManifestFiles(ctx, m, "art-1", store))

	result := make(chan error, 1)
	require.NoError(t, p.CommitArtifact(ctx, "art-1", true, func(context.Context) error {
		log.add("before-commit")
		return nil
	}, result))

	require.NoError(t, waitResult(t, result))
	p.Wait()

	events := log.snapshot()
	require.Len(t, events, 10)
	assert.Equal(t, int32(8), calls.Load(), "reference entries are not uploaded")
	for _, ev := range events[:8] {
		assert.Contains(t, ev, "upload:")
	}
	assert.Equal(t, "before-commit", events[8])
	assert.Equal(t, "commit:art-1", events[9])

	stats := p.Stats()
	assert.Equal(t, int64(8), stats.FilesUploaded)
	assert.Equal(t, int64(24), stats.BytesUploaded)
}

func TestPipeline_CommitWithoutUploads(t *testing.T) {
	log := &eventLog{}
	p := New(&fakeCommitter{log: log})

	require.NoError(t, p.StoreManifestFiles(context.Background(), newManifest(t, 0, 1), "art", nil))

	result := make(chan error, 1)
	require.NoError(t, p.CommitArtifact(context.Background(), "art", true, nil, result))
	require.NoError(t, waitResult(t, result))
	assert.Equal(t, []string{"commit:art"}, log.snapshot())
}

func TestPipeline_NoFinalize(t *testing.T) {
	log := &eventLog{}
	p := New(&fakeCommitter{log: log})
	store := func(context.Context, *manifest.Entry, synctypes.ProgressFunc) (bool, error) {
		return true, nil
	}
	require.NoError(t, p.StoreManifestFiles(context.Background(), newManifest(t, 2, 0), "art", store))

	result := make(chan error, 1)
	require.NoError(t, p.CommitArtifact(context.Background(), "art", false, func(context.Context) error {
		log.add("before-commit")
		return nil
	}, result))
	require.NoError(t, waitResult(t, result))
	p.Wait()

	assert.Equal(t, []string{"before-commit"}, log.snapshot())
	assert.Equal(t, int64(2), p.Stats().FilesExisting)
	assert.Equal(t, int64(0), p.Stats().FilesUploaded)
}

func TestPipeline_UploadFailureSkipsCommit(t *testing.T) {
	log := &eventLog{}
	p := New(&fakeCommitter{log: log})
	uploadErr := errors.New(errors.CodeNetwork, "upload", "connection reset")
	store := func(_ context.Context, e *manifest.Entry, _ synctypes.ProgressFunc) (bool, error) {
		if e.Path == "file-1" {
			return false, uploadErr
		}
		return false, nil
	}
	require.NoError(t, p.StoreManifestFiles(context.Background(), newManifest(t, 3, 0), "art", store))

	result := make(chan error, 1)
	require.NoError(t, p.CommitArtifact(context.Background(), "art", true, func(context.Context) error {
		log.add("before-commit")
		return nil
	}, result))

	err := waitResult(t, result)
	require.ErrorIs(t, err, uploadErr)
	p.Wait()
	assert.Empty(t, log.snapshot())
	assert.Equal(t, int64(1), p.Stats().Failures)
}

func TestPipeline_BeforeCommitFailure(t *testing.T) {
	log := &eventLog{}
	p := New(&fakeCommitter{log: log})
	hookErr := errors.New(errors.CodeProtocol, "finalize", "unresolved reference")

	result := make(chan error, 1)
	require.NoError(t, p.CommitArtifact(context.Background(), "art", true, func(context.Context) error {
		return hookErr
	}, result))

	require.ErrorIs(t, waitResult(t, result), hookErr)
	assert.Empty(t, log.snapshot(), "commit must not follow a failed hook")
}

func TestPipeline_CommitFailure(t *testing.T) {
	commitErr := errors.New(errors.CodeUnavailable, "commit", "backend down")
	p := New(&fakeCommitter{log: &eventLog{}, err: commitErr})

	result := make(chan error, 1)
	require.NoError(t, p.CommitArtifact(context.Background(), "art", true, nil, result))
	require.ErrorIs(t, waitResult(t, result), commitErr)
}

func TestPipeline_DuplicateCommit(t *testing.T) {
	p := New(&fakeCommitter{log: &eventLog{}})
	block := make(chan struct{})
	store := func(context.Context, *manifest.Entry, synctypes.ProgressFunc) (bool, error) {
		<-block
		return false, nil
	}
	require.NoError(t, p.StoreManifestFiles(context.Background(), newManifest(t, 1, 0), "art", store))

	result := make(chan error, 1)
	require.NoError(t, p.CommitArtifact(context.Background(), "art", true, nil, result))
	err := p.CommitArtifact(context.Background(), "art", true, nil, make(chan error, 1))
	assert.Equal(t, errors.CodeConflict, errors.CodeOf(err))

	err = p.StoreManifestFiles(context.Background(), newManifest(t, 1, 0), "art", store)
	assert.Equal(t, errors.CodeConflict, errors.CodeOf(err))

	close(block)
	require.NoError(t, waitResult(t, result))
}

func TestPipeline_ConcurrencyBound(t *testing.T) {
	p := New(&fakeCommitter{log: &eventLog{}}, WithConcurrency(2))
	var running, peak atomic.Int32
	store := func(context.Context, *manifest.Entry, synctypes.ProgressFunc) (bool, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return false, nil
	}
	require.NoError(t, p.StoreManifestFiles(context.Background(), newManifest(t, 6, 0), "art", store))

	result := make(chan error, 1)
	require.NoError(t, p.CommitArtifact(context.Background(), "art", true, nil, result))
	require.NoError(t, waitResult(t, result))
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPipeline_CanceledContext(t *testing.T) {
	p := New(&fakeCommitter{log: &eventLog{}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.StoreManifestFiles(ctx, newManifest(t, 1, 0), "art", nil)
	assert.Equal(t, errors.CodeTimeout, errors.CodeOf(err))
}
