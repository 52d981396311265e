// Package synctypes provides the types shared between the manifest, the
// storage policy, the upload pipeline and the artifact saver.
package synctypes

import (
	"context"
	"strings"
)

// ArtifactState is the server-side lifecycle state of an artifact record.
type ArtifactState string

const (
	// StatePending marks an artifact that has been created but not committed.
	StatePending ArtifactState = "PENDING"

	// StateCommitted marks an immutable, committed artifact.
	StateCommitted ArtifactState = "COMMITTED"

	// StateDeleted marks a soft-deleted artifact. It is re-committed like a
	// pending one.
	StateDeleted ArtifactState = "DELETED"
)

// ManifestType selects how a manifest relates to prior versions.
type ManifestType string

const (
	// ManifestFull is a self-contained manifest.
	ManifestFull ManifestType = "FULL"

	// ManifestIncremental adds to the previous version without restating
	// unchanged entries.
	ManifestIncremental ManifestType = "INCREMENTAL"

	// ManifestPatch is one distributed writer's partial manifest.
	ManifestPatch ManifestType = "PATCH"
)

// Filename returns the server-side file name for a manifest of this type.
// Each type maps to a distinct name so historical manifests never collide.
func (t ManifestType) Filename() string {
	switch t {
	case ManifestIncremental:
		return "artifact_manifest.incremental.json"
	case ManifestPatch:
		return "artifact_manifest.patch.json"
	default:
		return "artifact_manifest.json"
	}
}

// ServerArtifact is the subset of an artifact record the saver relies on.
type ServerArtifact struct {
	ID      string
	State   ArtifactState
	Version string
}

// CreateArtifactInput carries everything the backend needs to create or
// look up an artifact record.
type CreateArtifactInput struct {
	Type               string
	Name               string
	Digest             string
	Description        string
	Metadata           map[string]any
	Aliases            []string
	Tags               []string
	TTLDurationSeconds *int64
	DistributedID      string
	ClientID           string
	SequenceClientID   string
	HistoryStep        *int64
	Entity             string
	Project            string
	RunID              string
	Incremental        bool
}

// CreateManifestInput describes a manifest record to create.
type CreateManifestInput struct {
	ArtifactID     string
	BaseArtifactID string
	Filename       string
	Digest         string
	Type           ManifestType
	Entity         string
	Project        string
	RunID          string
	IncludeUpload  bool
}

// UploadTarget is where the backend wants a file body uploaded.
type UploadTarget struct {
	URL string

	// Headers are raw "Name:Value" strings as returned by the backend.
	Headers []string
}

// HeaderMap parses Headers, splitting each one on its first colon.
// Malformed headers without a colon are skipped.
func (t *UploadTarget) HeaderMap() map[string]string {
	if t == nil {
		return nil
	}
	out := make(map[string]string, len(t.Headers))
	for _, h := range t.Headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			continue
		}
		out[name] = value
	}
	return out
}

// PrepareRequest asks the backend where to upload one file of an artifact.
type PrepareRequest struct {
	ArtifactID      string
	Name            string
	MD5             string
	BirthArtifactID string
}

// PrepareResponse answers a PrepareRequest. An empty UploadURL means the
// backend already holds the bytes.
type PrepareResponse struct {
	BirthArtifactID string
	UploadURL       string
	UploadHeaders   []string
	UploadID        string
	StorageKey      string
}

// Preparer resolves prepare requests, typically by batching them into a
// single backend call.
type Preparer interface {
	Prepare(ctx context.Context, req PrepareRequest) (PrepareResponse, error)
}

// ProgressFunc reports bytes transferred so far out of total.
type ProgressFunc func(transferred, total int64)
