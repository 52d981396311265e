package manifest

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gowebpki/jcs"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
)

// FormatVersion is the manifest JSON format version this package reads and writes.
const FormatVersion = 1

// MaxSize is the largest entry size ToJSON accepts. Canonical JSON numbers
// are IEEE 754 doubles, which hold integers exactly only up to 2^53.
const MaxSize = int64(1) << 53

type manifestJSON struct {
	Version             int                  `json:"version"`
	StoragePolicy       string               `json:"storagePolicy"`
	StoragePolicyConfig map[string]any       `json:"storagePolicyConfig"`
	Contents            map[string]entryJSON `json:"contents"`
}

type entryJSON struct {
	Digest          string         `json:"digest"`
	Size            *int64         `json:"size,omitempty"`
	Ref             string         `json:"ref,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
	BirthArtifactID string         `json:"birthArtifactID,omitempty"`
}

// ToJSON serializes the manifest to canonical JSON. Contents are keyed by
// path, so the output does not depend on insertion order and two manifests
// with equal entry sets serialize to identical bytes.
// Entries larger than MaxSize are rejected with INVALID_INPUT.
func (m *Manifest) ToJSON() ([]byte, error) {
	doc := manifestJSON{
		Version:             FormatVersion,
		StoragePolicy:       m.policy.Name(),
		StoragePolicyConfig: m.policy.Config(),
		Contents:            make(map[string]entryJSON, len(m.entries)),
	}
	if doc.StoragePolicyConfig == nil {
		doc.StoragePolicyConfig = map[string]any{}
	}
	for p, e := range m.entries {
		if e.Size != nil && *e.Size > MaxSize {
			return nil, errors.Newf(errors.CodeInvalidInput, "manifest.encode",
				"size %d of %s exceeds %d", *e.Size, p, MaxSize)
		}
		doc.Contents[p] = entryJSON{
			Digest:          e.Digest,
			Size:            e.Size,
			Ref:             e.Ref,
			Extra:           e.Extra,
			BirthArtifactID: e.BirthArtifactID,
		}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshaling manifest: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing manifest: %w", err)
	}
	return canonical, nil
}

// FromJSON deserializes a manifest, rebuilding its storage policy through
// resolve. Entries are added in path order.
//
// Errors:
//   - INVALID_INPUT if the document is malformed, has an unsupported
//     version, or contains an invalid path.
//   - Whatever resolve returns.
func FromJSON(data []byte, resolve PolicyResolver) (*Manifest, error) {
	var doc manifestJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "manifest.decode", "malformed manifest JSON")
	}
	if doc.Version != FormatVersion {
		return nil, errors.Newf(errors.CodeInvalidInput, "manifest.decode",
			"unsupported manifest version %d", doc.Version)
	}
	if resolve == nil {
		return nil, errors.New(errors.CodeInvalidConfig, "manifest.decode", "no storage policy resolver")
	}

	policy, err := resolve(doc.StoragePolicy, doc.StoragePolicyConfig)
	if err != nil {
		return nil, fmt.Errorf("resolving storage policy %q: %w", doc.StoragePolicy, err)
	}

	m := New(policy)
	for _, p := range sortedKeys(doc.Contents) {
		c := doc.Contents[p]
		cp, err := cleanPath(p)
		if err != nil {
			return nil, err
		}
		if _, dup := m.entries[cp]; dup {
			return nil, errors.Newf(errors.CodeInvalidInput, "manifest.decode",
				"duplicate entry path %q", cp).WithContext("key", p)
		}
		if err := m.AddEntry(&Entry{
			Path:            p,
			Digest:          c.Digest,
			Size:            c.Size,
			Ref:             c.Ref,
			Extra:           c.Extra,
			BirthArtifactID: c.BirthArtifactID,
		}); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func sortedKeys(m map[string]entryJSON) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
