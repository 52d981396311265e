// Package saver implements the artifact commit protocol: create the artifact
// record, register a placeholder manifest, upload every local file through
// the pipeline, finalize the manifest once the uploads land, and commit.
//
// Either the whole sequence completes or the artifact stays PENDING on the
// server so a later save can retry it.
package saver

import (
	"context"
	"io"
	"log/slog"

	"github.com/Masterminds/semver/v3"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/manifest"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/pipeline"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/synctypes"
)

// manifestUpdateConstraint is the server version range that supports
// updating a manifest record in place.
const manifestUpdateConstraint = ">= 0.50.0"

// Backend is the server the saver talks to. Its methods are network calls
// that may fail; retries are its own business.
type Backend interface {
	CreateArtifact(ctx context.Context, in synctypes.CreateArtifactInput) (artifact, latest *synctypes.ServerArtifact, err error)
	CreateArtifactManifest(ctx context.Context, in synctypes.CreateManifestInput) (manifestID string, target *synctypes.UploadTarget, err error)
	UpdateArtifactManifest(ctx context.Context, manifestID, digest string) (*synctypes.UploadTarget, error)
	UseArtifact(ctx context.Context, artifactID, entity, project string) error
	UploadFileRetry(ctx context.Context, url string, body io.Reader, headers map[string]string) error
	ResolveClientID(ctx context.Context, clientID string) (artifactID string, err error)
	CreateArtifactFiles(ctx context.Context, reqs []synctypes.PrepareRequest) ([]synctypes.PrepareResponse, error)
}

// Pipeline uploads manifest files and triggers the commit once they land.
type Pipeline interface {
	StoreManifestFiles(ctx context.Context, m *manifest.Manifest, artifactID string, store pipeline.StoreFunc) error
	CommitArtifact(
		ctx context.Context,
		artifactID string,
		finalize bool,
		beforeCommit func(context.Context) error,
		result chan<- error,
	) error
}

var _ Pipeline = (*pipeline.Pipeline)(nil)

// preparerBinder is implemented by storage policies that take the per-save
// prepare batcher.
type preparerBinder interface {
	WithPreparer(synctypes.Preparer) manifest.StoragePolicy
}

// Saver commits manifests as server artifacts.
type Saver struct {
	backend         Backend
	pipeline        Pipeline
	logger          *slog.Logger
	manifestUpdates bool
	batcherOpts     []pipeline.BatcherOption
}

// Option configures a Saver.
type Option func(*Saver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Saver) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithManifestUpdates declares whether the server can update a manifest
// record in place. When it cannot, full manifests are finalized by creating
// a new record.
func WithManifestUpdates(enabled bool) Option {
	return func(s *Saver) {
		s.manifestUpdates = enabled
	}
}

// WithServerVersion enables manifest updates when version satisfies the
// supported range. Unparseable versions leave them disabled.
func WithServerVersion(version string) Option {
	return func(s *Saver) {
		s.manifestUpdates = supportsManifestUpdates(version)
	}
}

// WithBatcherOptions configures the prepare batcher created for each save.
func WithBatcherOptions(opts ...pipeline.BatcherOption) Option {
	return func(s *Saver) {
		s.batcherOpts = append(s.batcherOpts, opts...)
	}
}

// New creates a saver.
func New(backend Backend, pl Pipeline, opts ...Option) *Saver {
	s := &Saver{
		backend:  backend,
		pipeline: pl,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func supportsManifestUpdates(version string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	c, err := semver.NewConstraint(manifestUpdateConstraint)
	if err != nil {
		return false
	}
	return c.Check(v)
}
