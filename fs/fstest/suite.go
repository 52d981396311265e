// Package fstest provides a conformance test suite for fs.Filesystem
// implementations. The cache relies on the publish contract checked here:
// bytes written to a temp file become visible at their final path only when
// the temp file is renamed there.
//
// Example usage:
//
//	func TestMyProvider(t *testing.T) {
//	    fstest.TestSuite(t, func(t *testing.T) (fs.Filesystem, string) {
//	        return myprovider.New(), "/base"
//	    })
//	}
package fstest

import (
	"testing"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/fs"
)

// NewFunc returns a fresh filesystem and the directory tests may write under.
type NewFunc func(t *testing.T) (fs.Filesystem, string)

// TestSuite runs all conformance tests against a filesystem.
// Each group gets a fresh filesystem from newFS.
func TestSuite(t *testing.T, newFS NewFunc) {
	t.Run("ReadFS", func(t *testing.T) {
		filesystem, base := newFS(t)
		TestReadFS(t, filesystem, base)
	})
	t.Run("WriteFS", func(t *testing.T) {
		filesystem, base := newFS(t)
		TestWriteFS(t, filesystem, base)
	})
	t.Run("PublishFS", func(t *testing.T) {
		filesystem, base := newFS(t)
		TestPublishFS(t, filesystem, base)
	})
}
