package saver

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/manifest"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/pipeline"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/synctypes"
)

// SaveRequest describes the artifact version to save.
type SaveRequest struct {
	Type               string
	Name               string
	Description        string
	Metadata           map[string]any
	Aliases            []string
	Tags               []string
	TTLDurationSeconds *int64

	// DistributedID groups writers that each contribute a partial manifest
	// to the same artifact version.
	DistributedID string

	// BaseID is the artifact version incremental and patch manifests build
	// on. It defaults to the latest version reported by the server.
	BaseID string

	// ClientID and SequenceClientID are generated when empty.
	ClientID         string
	SequenceClientID string

	HistoryStep *int64
	Entity      string
	Project     string
	RunID       string

	// Incremental requests append semantics on top of BaseID.
	Incremental bool
}

type saveConfig struct {
	finalize       bool
	useAfterCommit bool
}

// SaveOption tunes a single save.
type SaveOption func(*saveConfig)

// WithoutFinalize uploads and finalizes the manifest but leaves the artifact
// uncommitted, for distributed writers that are not the last.
func WithoutFinalize() SaveOption {
	return func(c *saveConfig) {
		c.finalize = false
	}
}

// WithUseAfterCommit marks the artifact as used by the run once committed.
func WithUseAfterCommit() SaveOption {
	return func(c *saveConfig) {
		c.useAfterCommit = true
	}
}

// Save commits m as an artifact version and returns the server record.
//
// Errors:
//   - PROTOCOL_VIOLATION if the server reports an unknown artifact state or a
//     client reference cannot be resolved.
//   - Any upload, finalize or commit failure, unchanged.
func (s *Saver) Save(
	ctx context.Context,
	m *manifest.Manifest,
	req SaveRequest,
	opts ...SaveOption,
) (*synctypes.ServerArtifact, error) {
	cfg := saveConfig{finalize: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}
	if req.SequenceClientID == "" {
		req.SequenceClientID = uuid.NewString()
	}
	start := time.Now()

	art, latest, err := s.backend.CreateArtifact(ctx, synctypes.CreateArtifactInput{
		Type:               req.Type,
		Name:               req.Name,
		Digest:             m.Digest(),
		Description:        req.Description,
		Metadata:           req.Metadata,
		Aliases:            req.Aliases,
		Tags:               req.Tags,
		TTLDurationSeconds: req.TTLDurationSeconds,
		DistributedID:      req.DistributedID,
		ClientID:           req.ClientID,
		SequenceClientID:   req.SequenceClientID,
		HistoryStep:        req.HistoryStep,
		Entity:             req.Entity,
		Project:            req.Project,
		RunID:              req.RunID,
		Incremental:        req.Incremental,
	})
	if err != nil {
		return nil, err
	}
	if art == nil {
		return nil, errors.New(errors.CodeProtocol, "saver.create_artifact", "server returned no artifact")
	}
	baseID := req.BaseID
	if baseID == "" && latest != nil {
		baseID = latest.ID
	}

	switch art.State {
	case synctypes.StateCommitted:
		s.logger.Info("artifact already committed", "artifact_id", art.ID)
		if cfg.useAfterCommit {
			if err := s.backend.UseArtifact(ctx, art.ID, req.Entity, req.Project); err != nil {
				return nil, err
			}
		}
		return art, nil
	case synctypes.StatePending, synctypes.StateDeleted:
	default:
		return nil, errors.Newf(errors.CodeProtocol, "saver.create_artifact", "unknown artifact state %q", art.State).
			WithContext("artifact_id", art.ID)
	}

	mtype := manifestType(req)
	manifestID, _, err := s.backend.CreateArtifactManifest(ctx, synctypes.CreateManifestInput{
		ArtifactID:     art.ID,
		BaseArtifactID: baseID,
		Filename:       mtype.Filename(),
		Type:           mtype,
		Entity:         req.Entity,
		Project:        req.Project,
		RunID:          req.RunID,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("saving artifact", "artifact_id", art.ID, "manifest_id", manifestID, "type", string(mtype))

	if err := s.resolveClientRefs(ctx, m); err != nil {
		return nil, err
	}

	batcherOpts := append([]pipeline.BatcherOption{pipeline.WithBatcherLogger(s.logger)}, s.batcherOpts...)
	batcher := pipeline.NewBatcher(s.backend, batcherOpts...)
	batcher.Start()
	defer batcher.Shutdown()

	policy := m.StoragePolicy()
	if b, ok := policy.(preparerBinder); ok {
		policy = b.WithPreparer(batcher)
	}
	store := func(ctx context.Context, e *manifest.Entry, progress synctypes.ProgressFunc) (bool, error) {
		return policy.StoreFile(ctx, art.ID, e, progress)
	}
	if err := s.pipeline.StoreManifestFiles(ctx, m, art.ID, store); err != nil {
		return nil, err
	}

	f := &finalizer{
		saver:      s,
		manifest:   m,
		artifactID: art.ID,
		manifestID: manifestID,
		baseID:     baseID,
		mtype:      mtype,
		req:        req,
	}
	result := make(chan error, 1)
	if err := s.pipeline.CommitArtifact(ctx, art.ID, cfg.finalize, f.run, result); err != nil {
		return nil, err
	}

	select {
	case err := <-result:
		if err != nil {
			s.logger.Error("artifact save failed", "artifact_id", art.ID, "error", err)
			return nil, err
		}
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), errors.CodeTimeout, "saver.commit", "waiting for commit").
			WithContext("artifact_id", art.ID)
	}

	if cfg.finalize && cfg.useAfterCommit {
		if err := s.backend.UseArtifact(ctx, art.ID, req.Entity, req.Project); err != nil {
			return nil, err
		}
	}
	s.logger.Info("artifact saved", "artifact_id", art.ID, "duration", time.Since(start))
	return art, nil
}

func manifestType(req SaveRequest) synctypes.ManifestType {
	switch {
	case req.Incremental:
		return synctypes.ManifestIncremental
	case req.DistributedID != "":
		return synctypes.ManifestPatch
	default:
		return synctypes.ManifestFull
	}
}
