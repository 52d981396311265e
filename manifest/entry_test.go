package manifest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntry_IsLocal(t *testing.T) {
	assert.True(t, (&Entry{LocalPath: "/tmp/x"}).IsLocal())
	assert.False(t, (&Entry{LocalPath: "/tmp/x", Ref: "s3://b/k"}).IsLocal())
	assert.False(t, (&Entry{}).IsLocal())
}

func TestEntry_Clone(t *testing.T) {
	e := &Entry{Path: "p", Size: Int64(4), Extra: map[string]any{"etag": "x"}}
	c := e.Clone()
	*c.Size = 5
	c.Extra["etag"] = "y"

	assert.Equal(t, int64(4), *e.Size)
	assert.Equal(t, "x", e.Extra["etag"])
}

func TestB64MD5(t *testing.T) {
	digest, n, err := B64MD5(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, "1B2M2Y8AsgTpgAmY7PhCfg==", digest)
	assert.Equal(t, digest, B64MD5Bytes(nil))

	hexDigest, err := B64ToHex(digest)
	require.NoError(t, err)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", hexDigest)

	_, err = B64ToHex("not base64!")
	assert.Error(t, err)
}

func TestParseArtifactRef(t *testing.T) {
	scheme, id, p, ok := ParseArtifactRef("client-artifact://tmp-123/dir/file.txt")
	require.True(t, ok)
	assert.Equal(t, ClientArtifactScheme, scheme)
	assert.Equal(t, "tmp-123", id)
	assert.Equal(t, "dir/file.txt", p)

	_, _, _, ok = ParseArtifactRef("s3://bucket/key")
	assert.False(t, ok)
}
