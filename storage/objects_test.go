package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
)

func TestObjectPath(t *testing.T) {
	tests := []struct {
		name      string
		entryName string
		prefix    string
		key       string
		multi     bool
		wantPath  string
		wantRel   string
	}{
		{name: "single object", prefix: "file.txt", key: "file.txt", wantPath: "file.txt"},
		{name: "single nested object", prefix: "dir/file.txt", key: "dir/file.txt", wantPath: "file.txt"},
		{name: "single object named", entryName: "renamed.txt", prefix: "file.txt", key: "file.txt", wantPath: "renamed.txt"},
		{name: "directory", prefix: "prefix/", key: "prefix/a.txt", multi: true, wantPath: "a.txt", wantRel: "a.txt"},
		{name: "directory no slash", prefix: "prefix", key: "prefix/sub/a.txt", multi: true, wantPath: "sub/a.txt", wantRel: "sub/a.txt"},
		{name: "directory named", entryName: "data", prefix: "prefix/", key: "prefix/sub/a.txt", multi: true, wantPath: "data/sub/a.txt", wantRel: "sub/a.txt"},
		{name: "whole bucket", prefix: "", key: "top/a.txt", multi: true, wantPath: "top/a.txt", wantRel: "top/a.txt"},
		{name: "directory marker object", prefix: "prefix/", key: "prefix/", multi: true, wantPath: "prefix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotPath, gotRel := ObjectPath(tt.entryName, tt.prefix, tt.key, tt.multi)
			assert.Equal(t, tt.wantPath, gotPath)
			assert.Equal(t, tt.wantRel, gotRel)
		})
	}
}

func TestObjectRef(t *testing.T) {
	assert.Equal(t, "s3://bucket/prefix/a.txt", ObjectRef("s3", "bucket", "prefix/", "a.txt"))
	assert.Equal(t, "s3://bucket/file.txt", ObjectRef("s3", "bucket", "file.txt", ""))
	assert.Equal(t, "gs://bucket/a.txt", ObjectRef("gs", "bucket", "", "a.txt"))
}

func TestUncheckedName(t *testing.T) {
	assert.Equal(t, "n", UncheckedName("n", "b", "k"))
	assert.Equal(t, "dir/k", UncheckedName("", "b", "dir/k"))
	assert.Equal(t, "b", UncheckedName("", "b", ""))
}

func TestCapacityError(t *testing.T) {
	err := CapacityError("s3.store", "s3://b/p/", 1)
	assert.True(t, errors.IsCapacity(err))
	assert.Contains(t, err.Error(), "exceeded 1 objects")
	assert.Contains(t, err.Error(), "uri=s3://b/p/")
}
