// Package manifest implements the artifact manifest: an ordered mapping of
// logical paths to entries, bound to the storage policy that knows how to
// push and fetch their bytes.
//
// A manifest serializes to canonical JSON (RFC 8785), so the same entry set
// always produces the same bytes and therefore the same digest.
package manifest

import (
	"context"
	"crypto/md5" //nolint:gosec // manifest digest format
	"encoding/hex"
	"path"
	"sort"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/synctypes"
)

// digestHeader prefixes the content digest computation.
const digestHeader = "artifact-manifest-v1\n"

// StoragePolicy decides where an artifact's bytes physically live and how
// entries are pushed and fetched.
type StoragePolicy interface {
	// Name identifies the policy in serialized manifests.
	Name() string

	// Config is the policy configuration serialized alongside the entries.
	Config() map[string]any

	// StoreFile pushes a local entry's bytes. exists reports that the
	// backend already held them and nothing was uploaded.
	StoreFile(ctx context.Context, artifactID string, entry *Entry, progress synctypes.ProgressFunc) (exists bool, err error)

	// LoadFile fetches an artifact-owned entry to a local path.
	LoadFile(ctx context.Context, artifactID string, entry *Entry) (string, error)

	// LoadReference resolves a reference entry, to local bytes if local is set.
	LoadReference(ctx context.Context, entry *Entry, local bool) (string, error)
}

// PolicyResolver rebuilds a storage policy from its serialized name and config.
type PolicyResolver func(name string, config map[string]any) (StoragePolicy, error)

// Manifest is the versioned listing of an artifact's files and references.
// It is not safe for concurrent mutation.
type Manifest struct {
	policy  StoragePolicy
	entries map[string]*Entry
	order   []string
}

// New creates an empty manifest bound to policy.
func New(policy StoragePolicy) *Manifest {
	return &Manifest{
		policy:  policy,
		entries: make(map[string]*Entry),
	}
}

// StoragePolicy returns the policy the manifest is bound to.
//
//nolint:ireturn // the policy is pluggable
func (m *Manifest) StoragePolicy() StoragePolicy {
	return m.policy
}

// AddEntry adds e, replacing any entry already stored at the same path.
// The path is normalized to a clean, slash-separated relative path.
//
// Errors:
//   - INVALID_INPUT if the path is empty or escapes the artifact root.
func (m *Manifest) AddEntry(e *Entry) error {
	p, err := cleanPath(e.Path)
	if err != nil {
		return err
	}
	e.Path = p
	if _, ok := m.entries[p]; !ok {
		m.order = append(m.order, p)
	}
	m.entries[p] = e
	return nil
}

// Entry returns the entry stored at p.
func (m *Manifest) Entry(p string) (*Entry, bool) {
	e, ok := m.entries[p]
	return e, ok
}

// Entries returns all entries in insertion order.
func (m *Manifest) Entries() []*Entry {
	out := make([]*Entry, 0, len(m.order))
	for _, p := range m.order {
		out = append(out, m.entries[p])
	}
	return out
}

// Len returns the number of distinct paths.
func (m *Manifest) Len() int {
	return len(m.entries)
}

// Size returns the total size of all entries with a known size.
func (m *Manifest) Size() int64 {
	var total int64
	for _, e := range m.entries {
		total += e.SizeOrZero()
	}
	return total
}

// Digest returns the content digest of the manifest: the hex MD5 of a fixed
// header followed by one "path:digest" line per entry in path order. It
// depends only on paths and entry digests.
func (m *Manifest) Digest() string {
	paths := make([]string, 0, len(m.entries))
	for p := range m.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := md5.New() //nolint:gosec // manifest digest format
	_, _ = h.Write([]byte(digestHeader))
	for _, p := range paths {
		_, _ = h.Write([]byte(p + ":" + m.entries[p].Digest + "\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Download fetches the entry at p to a local path using the manifest's
// storage policy.
//
// Errors:
//   - NOT_FOUND if p is not in the manifest.
//   - Whatever the policy or storage handler returns.
func (m *Manifest) Download(ctx context.Context, artifactID, p string) (string, error) {
	e, ok := m.entries[p]
	if !ok {
		return "", errors.Newf(errors.CodeNotFound, "manifest.download", "no entry at path %q", p)
	}
	if e.IsReference() {
		return m.policy.LoadReference(ctx, e, true)
	}
	return m.policy.LoadFile(ctx, artifactID, e)
}

func cleanPath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return "", errors.New(errors.CodeInvalidInput, "manifest.add", "entry path is empty")
	}
	clean := path.Clean(strings.TrimPrefix(p, "/"))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.Newf(errors.CodeInvalidInput, "manifest.add", "entry path %q is outside the artifact", p)
	}
	return clean, nil
}
