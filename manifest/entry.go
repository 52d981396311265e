package manifest

import (
	"crypto/md5" //nolint:gosec // MD5 is the content fingerprint the backend expects
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Reference URI schemes used for links between artifacts.
const (
	// ClientArtifactScheme addresses an artifact by its client-assigned
	// temporary ID, before the backend has assigned a permanent one.
	ClientArtifactScheme = "client-artifact"

	// ArtifactScheme addresses an artifact by its permanent backend ID,
	// hex-encoded.
	ArtifactScheme = "artifact"
)

// Entry is one path's record within a manifest.
type Entry struct {
	// Path is the logical, slash-separated path. It is unique per manifest.
	Path string

	// Digest is a base64 MD5 for artifact-owned content, or the
	// backend-native fingerprint (ETag, URI) for references.
	Digest string

	// Size is the byte length. It may be nil for unresolved references.
	Size *int64

	// Ref points at externally-stored content. Empty means the artifact
	// store owns the bytes.
	Ref string

	// Extra holds backend-specific metadata such as the raw ETag and the
	// object version.
	Extra map[string]any

	// BirthArtifactID is the artifact the content was first uploaded with.
	BirthArtifactID string

	// LocalPath is the on-disk source for bytes that this save must push.
	// It is never serialized.
	LocalPath string
}

// IsLocal reports whether the entry's bytes must be pushed by this save.
func (e *Entry) IsLocal() bool {
	return e.LocalPath != "" && e.Ref == ""
}

// IsReference reports whether the entry points at external content.
func (e *Entry) IsReference() bool {
	return e.Ref != ""
}

// SizeOrZero returns the entry size, or 0 if unknown.
func (e *Entry) SizeOrZero() int64 {
	if e.Size == nil {
		return 0
	}
	return *e.Size
}

// ExtraString returns Extra[key] if it is a non-empty string.
func (e *Entry) ExtraString(key string) (string, bool) {
	if e.Extra == nil {
		return "", false
	}
	s, ok := e.Extra[key].(string)
	return s, ok && s != ""
}

// RefURL parses Ref.
func (e *Entry) RefURL() (*url.URL, error) {
	u, err := url.Parse(e.Ref)
	if err != nil {
		return nil, fmt.Errorf("parsing reference %q: %w", e.Ref, err)
	}
	return u, nil
}

// Clone returns a deep copy of the entry. Extra is copied one level deep.
func (e *Entry) Clone() *Entry {
	c := *e
	if e.Size != nil {
		size := *e.Size
		c.Size = &size
	}
	if e.Extra != nil {
		c.Extra = make(map[string]any, len(e.Extra))
		for k, v := range e.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// Int64 returns a pointer to v, for populating Entry.Size.
func Int64(v int64) *int64 {
	return &v
}

// B64MD5 reads r to the end and returns its base64-encoded MD5 and length.
func B64MD5(r io.Reader) (string, int64, error) {
	h := md5.New() //nolint:gosec // content fingerprint
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, fmt.Errorf("hashing content: %w", err)
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), n, nil
}

// B64MD5Bytes returns the base64-encoded MD5 of data.
func B64MD5Bytes(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec // content fingerprint
	return base64.StdEncoding.EncodeToString(sum[:])
}

// B64ToHex converts a base64 digest or ID to lowercase hex.
func B64ToHex(s string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("decoding base64 %q: %w", s, err)
	}
	return hex.EncodeToString(raw), nil
}

// ParseArtifactRef splits a client-artifact:// or artifact:// URI into its
// scheme, artifact ID and path within the artifact.
func ParseArtifactRef(ref string) (scheme, id, path string, ok bool) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", "", false
	}
	if u.Scheme != ClientArtifactScheme && u.Scheme != ArtifactScheme {
		return "", "", "", false
	}
	return u.Scheme, u.Host, strings.TrimPrefix(u.Path, "/"), true
}
