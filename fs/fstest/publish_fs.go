package fstest

import (
	"path"
	"strings"
	"testing"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/fs"
)

// TestPublishFS tests TempFile and Rename, the pair the cache uses to make
// fully written files visible atomically.
func TestPublishFS(t *testing.T, filesystem fs.Filesystem, base string) {
	tmpDir := path.Join(base, "tmp")
	final := path.Join(base, "obj", "ab", "cdef")

	t.Run("TempFileCreatesDir", func(t *testing.T) {
		f, err := filesystem.TempFile(tmpDir, "part-")
		if err != nil {
			t.Fatalf("TempFile(%q): got error %v, want nil", tmpDir, err)
		}
		defer f.Close()
		if !strings.HasPrefix(path.Base(f.Name()), "part-") {
			t.Errorf("TempFile(): name %q lacks prefix %q", f.Name(), "part-")
		}
	})

	t.Run("RenamePublishes", func(t *testing.T) {
		f, err := filesystem.TempFile(tmpDir, "part-")
		if err != nil {
			t.Fatalf("TempFile(%q): got error %v, want nil", tmpDir, err)
		}
		if _, err := f.Write([]byte("published")); err != nil {
			_ = f.Close()
			t.Fatalf("Write(): got error %v, want nil", err)
		}
		if ok, _ := filesystem.Exists(final); ok {
			t.Fatalf("Exists(%q) before Rename: got true, want false", final)
		}
		if err := f.Close(); err != nil {
			t.Fatalf("Close(): got error %v, want nil", err)
		}
		if err := filesystem.MkdirAll(path.Dir(final), 0o755); err != nil {
			t.Fatalf("MkdirAll(%q): got error %v, want nil", path.Dir(final), err)
		}
		if err := filesystem.Rename(f.Name(), final); err != nil {
			t.Fatalf("Rename(%q, %q): got error %v, want nil", f.Name(), final, err)
		}
		assertContent(t, filesystem, final, []byte("published"))
		if ok, _ := filesystem.Exists(f.Name()); ok {
			t.Errorf("Exists(%q) after Rename: got true, want false", f.Name())
		}
	})
}
