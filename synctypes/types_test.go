package synctypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManifestType_Filename(t *testing.T) {
	names := map[string]ManifestType{}
	for _, typ := range []ManifestType{ManifestFull, ManifestIncremental, ManifestPatch} {
		name := typ.Filename()
		_, dup := names[name]
		assert.False(t, dup, "filename %q reused", name)
		names[name] = typ
	}
	assert.Equal(t, "artifact_manifest.json", ManifestFull.Filename())
	assert.Equal(t, "artifact_manifest.json", ManifestType("").Filename())
}

func TestUploadTarget_HeaderMap(t *testing.T) {
	target := &UploadTarget{
		URL: "https://upload.example.com",
		Headers: []string{
			"Content-MD5:1B2M2Y8AsgTpgAmY7PhCfg==",
			"x-amz-meta-url:https://a.example.com/b",
			"malformed",
		},
	}

	got := target.HeaderMap()
	assert.Equal(t, map[string]string{
		"Content-MD5":    "1B2M2Y8AsgTpgAmY7PhCfg==",
		"x-amz-meta-url": "https://a.example.com/b",
	}, got)

	var nilTarget *UploadTarget
	assert.Nil(t, nilTarget.HeaderMap())
}
