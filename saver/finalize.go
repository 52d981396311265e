package saver

import (
	"bytes"
	"context"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/manifest"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/synctypes"
)

// finalizer is the before-commit step of one save.
type finalizer struct {
	saver      *Saver
	manifest   *manifest.Manifest
	artifactID string
	manifestID string
	baseID     string
	mtype      synctypes.ManifestType
	req        SaveRequest
}

// run serializes the manifest, records its digest on the server and uploads
// the manifest body.
func (f *finalizer) run(ctx context.Context) error {
	s := f.saver
	if err := s.resolveClientRefs(ctx, f.manifest); err != nil {
		return err
	}
	data, err := f.manifest.ToJSON()
	if err != nil {
		return err
	}
	digest := manifest.B64MD5Bytes(data)

	var target *synctypes.UploadTarget
	if f.mtype != synctypes.ManifestFull || s.manifestUpdates {
		target, err = s.backend.UpdateArtifactManifest(ctx, f.manifestID, digest)
	} else {
		_, target, err = s.backend.CreateArtifactManifest(ctx, synctypes.CreateManifestInput{
			ArtifactID:     f.artifactID,
			BaseArtifactID: f.baseID,
			Filename:       f.mtype.Filename(),
			Digest:         digest,
			Type:           f.mtype,
			Entity:         f.req.Entity,
			Project:        f.req.Project,
			RunID:          f.req.RunID,
			IncludeUpload:  true,
		})
	}
	if err != nil {
		return err
	}
	if target == nil || target.URL == "" {
		return errors.New(errors.CodeProtocol, "saver.finalize", "server returned no manifest upload URL").
			WithContext("artifact_id", f.artifactID)
	}

	if err := s.backend.UploadFileRetry(ctx, target.URL, bytes.NewReader(data), target.HeaderMap()); err != nil {
		return err
	}
	s.logger.Debug("manifest finalized", "artifact_id", f.artifactID, "manifest_id", f.manifestID, "digest", digest)
	return nil
}

// resolveClientRefs rewrites client-artifact:// references to the permanent
// artifact:// form. Resolved references are left alone.
func (s *Saver) resolveClientRefs(ctx context.Context, m *manifest.Manifest) error {
	for _, e := range m.Entries() {
		if e.Ref == "" {
			continue
		}
		scheme, clientID, p, ok := manifest.ParseArtifactRef(e.Ref)
		if !ok || scheme != manifest.ClientArtifactScheme {
			continue
		}
		id, err := s.backend.ResolveClientID(ctx, clientID)
		if err != nil {
			return errors.Wrap(err, errors.CodeProtocol, "saver.resolve", "could not resolve client id").
				WithContext("client_id", clientID)
		}
		if id == "" {
			return errors.Newf(errors.CodeProtocol, "saver.resolve", "could not resolve client id %s", clientID).
				WithContext("path", e.Path)
		}
		hexID, err := manifest.B64ToHex(id)
		if err != nil {
			return errors.Wrap(err, errors.CodeProtocol, "saver.resolve", "server artifact id is not base64").
				WithContext("client_id", clientID)
		}
		e.Ref = manifest.ArtifactScheme + "://" + hexID + "/" + p
	}
	return nil
}
