package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/manifest"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/synctypes"
)

// DefaultConcurrency is the number of uploads run at once.
const DefaultConcurrency = 5

// StoreFunc pushes one entry's bytes. exists reports that the backend already
// held them.
type StoreFunc func(ctx context.Context, entry *manifest.Entry, progress synctypes.ProgressFunc) (exists bool, err error)

// Committer marks an artifact as no longer pending.
type Committer interface {
	CommitArtifact(ctx context.Context, artifactID string) error
}

// Stats counts the work a pipeline has done.
type Stats struct {
	FilesUploaded int64
	FilesExisting int64
	BytesUploaded int64
	Failures      int64
}

// Pipeline uploads manifest entries and commits artifacts once their uploads
// complete.
type Pipeline struct {
	committer Committer
	logger    *slog.Logger

	maxConcurrency int
	semaphore      chan struct{}
	wg             sync.WaitGroup

	mu        sync.Mutex
	artifacts map[string]*barrier

	filesUploaded atomic.Int64
	filesExisting atomic.Int64
	bytesUploaded atomic.Int64
	failures      atomic.Int64
}

// barrier tracks the outstanding uploads of one artifact.
type barrier struct {
	pending int
	err     error
	commit  *commitRequest
}

type commitRequest struct {
	ctx          context.Context //nolint:containedctx // carried to the deferred commit
	finalize     bool
	beforeCommit func(context.Context) error
	result       chan<- error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConcurrency sets the maximum number of concurrent uploads.
// Non-positive values keep the default.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxConcurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a pipeline that commits through committer.
func New(committer Committer, opts ...Option) *Pipeline {
	p := &Pipeline{
		committer:      committer,
		logger:         slog.New(slog.DiscardHandler),
		maxConcurrency: DefaultConcurrency,
		artifacts:      make(map[string]*barrier),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.semaphore = make(chan struct{}, p.maxConcurrency)
	return p
}

// StoreManifestFiles enqueues an upload for every local entry of m and
// returns without waiting for them. Reference entries are skipped.
func (p *Pipeline) StoreManifestFiles(ctx context.Context, m *manifest.Manifest, artifactID string, store StoreFunc) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.CodeTimeout, "pipeline.store", "context done before enqueue")
	}

	var local []*manifest.Entry
	for _, e := range m.Entries() {
		if e.IsLocal() {
			local = append(local, e)
		}
	}

	p.mu.Lock()
	b := p.barrierLocked(artifactID)
	if b.commit != nil {
		p.mu.Unlock()
		return errors.New(errors.CodeConflict, "pipeline.store", "artifact commit already registered").
			WithContext("artifact_id", artifactID)
	}
	b.pending += len(local)
	p.mu.Unlock()

	p.logger.Debug("enqueued uploads", "artifact_id", artifactID, "files", len(local))
	for _, e := range local {
		p.wg.Add(1)
		go p.upload(ctx, artifactID, e, store)
	}
	return nil
}

// CommitArtifact registers the commit of artifactID. Once every upload
// enqueued for it has completed, beforeCommit runs, then the artifact is
// committed if finalize is set. The outcome is sent on result, which must
// be able to receive one value.
//
// Errors:
//   - CONFLICT if a commit is already registered for the artifact.
func (p *Pipeline) CommitArtifact(
	ctx context.Context,
	artifactID string,
	finalize bool,
	beforeCommit func(context.Context) error,
	result chan<- error,
) error {
	req := &commitRequest{ctx: ctx, finalize: finalize, beforeCommit: beforeCommit, result: result}

	p.mu.Lock()
	b := p.barrierLocked(artifactID)
	if b.commit != nil {
		p.mu.Unlock()
		return errors.New(errors.CodeConflict, "pipeline.commit", "artifact commit already registered").
			WithContext("artifact_id", artifactID)
	}
	b.commit = req
	ready := b.pending == 0
	if ready {
		delete(p.artifacts, artifactID)
	}
	p.mu.Unlock()

	if ready {
		p.wg.Add(1)
		go p.commit(artifactID, b.err, req)
	}
	return nil
}

// Wait blocks until every enqueued upload and triggered commit has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Stats returns the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		FilesUploaded: p.filesUploaded.Load(),
		FilesExisting: p.filesExisting.Load(),
		BytesUploaded: p.bytesUploaded.Load(),
		Failures:      p.failures.Load(),
	}
}

func (p *Pipeline) barrierLocked(artifactID string) *barrier {
	b, ok := p.artifacts[artifactID]
	if !ok {
		b = &barrier{}
		p.artifacts[artifactID] = b
	}
	return b
}

func (p *Pipeline) upload(ctx context.Context, artifactID string, e *manifest.Entry, store StoreFunc) {
	defer p.wg.Done()

	err := p.runUpload(ctx, e, store)
	if err != nil {
		p.failures.Add(1)
		p.logger.Error("upload failed", "artifact_id", artifactID, "path", e.Path, "error", err)
	}

	p.mu.Lock()
	b := p.artifacts[artifactID]
	b.pending--
	if err != nil && b.err == nil {
		b.err = err
	}
	req := b.commit
	ready := b.pending == 0 && req != nil
	if ready {
		delete(p.artifacts, artifactID)
	}
	p.mu.Unlock()

	if ready {
		p.wg.Add(1)
		go p.commit(artifactID, b.err, req)
	}
}

func (p *Pipeline) runUpload(ctx context.Context, e *manifest.Entry, store StoreFunc) error {
	select {
	case p.semaphore <- struct{}{}:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.CodeTimeout, "pipeline.upload", "context done before upload").
			WithContext("path", e.Path)
	}
	defer func() { <-p.semaphore }()

	start := time.Now()
	exists, err := store(ctx, e, func(transferred, total int64) {
		p.logger.Debug("upload progress", "path", e.Path, "transferred", transferred, "total", total)
	})
	if err != nil {
		return err
	}
	if exists {
		p.filesExisting.Add(1)
		return nil
	}
	p.filesUploaded.Add(1)
	p.bytesUploaded.Add(e.SizeOrZero())
	p.logger.Debug("uploaded file", "path", e.Path, "duration", time.Since(start))
	return nil
}

func (p *Pipeline) commit(artifactID string, uploadErr error, req *commitRequest) {
	defer p.wg.Done()
	err := p.runCommit(artifactID, uploadErr, req)
	select {
	case req.result <- err:
	case <-req.ctx.Done():
	}
}

func (p *Pipeline) runCommit(artifactID string, uploadErr error, req *commitRequest) error {
	if uploadErr != nil {
		return uploadErr
	}
	if req.beforeCommit != nil {
		if err := req.beforeCommit(req.ctx); err != nil {
			return err
		}
	}
	if !req.finalize {
		return nil
	}
	if err := p.committer.CommitArtifact(req.ctx, artifactID); err != nil {
		return err
	}
	p.logger.Info("artifact committed", "artifact_id", artifactID)
	return nil
}
