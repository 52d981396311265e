package fstest

import (
	"bytes"
	"errors"
	"io"
	iofs "io/fs"
	"path"
	"testing"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/fs"
)

// TestReadFS tests read-only operations: Open, Stat, ReadDir, ReadFile, Exists.
func TestReadFS(t *testing.T, filesystem fs.Filesystem, base string) {
	testContent := []byte("test file content")
	dir := path.Join(base, "testdir")
	file := path.Join(dir, "testfile.txt")

	if err := filesystem.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll(%q): setup failed: %v", dir, err)
	}
	if err := filesystem.WriteFile(file, testContent, 0o644); err != nil {
		t.Fatalf("WriteFile(%q): setup failed: %v", file, err)
	}

	t.Run("Open", func(t *testing.T) {
		f, err := filesystem.Open(file)
		if err != nil {
			t.Fatalf("Open(%q): got error %v, want nil", file, err)
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			t.Fatalf("Read(): got error %v, want nil", err)
		}
		if !bytes.Equal(data, testContent) {
			t.Errorf("Read(): got %q, want %q", data, testContent)
		}
	})

	t.Run("StatFile", func(t *testing.T) {
		info, err := filesystem.Stat(file)
		if err != nil {
			t.Fatalf("Stat(%q): got error %v, want nil", file, err)
		}
		if info.IsDir() {
			t.Errorf("Stat(%q): IsDir() = true, want false", file)
		}
		if info.Size() != int64(len(testContent)) {
			t.Errorf("Stat(%q): Size() = %d, want %d", file, info.Size(), len(testContent))
		}
	})

	t.Run("StatDir", func(t *testing.T) {
		info, err := filesystem.Stat(dir)
		if err != nil {
			t.Fatalf("Stat(%q): got error %v, want nil", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("Stat(%q): IsDir() = false, want true", dir)
		}
	})

	t.Run("ReadDir", func(t *testing.T) {
		entries, err := filesystem.ReadDir(dir)
		if err != nil {
			t.Fatalf("ReadDir(%q): got error %v, want nil", dir, err)
		}
		if len(entries) != 1 || entries[0].Name() != "testfile.txt" {
			t.Errorf("ReadDir(%q): got %v, want [testfile.txt]", dir, entries)
		}
	})

	t.Run("ReadFile", func(t *testing.T) {
		data, err := filesystem.ReadFile(file)
		if err != nil {
			t.Fatalf("ReadFile(%q): got error %v, want nil", file, err)
		}
		if !bytes.Equal(data, testContent) {
			t.Errorf("ReadFile(%q): got %q, want %q", file, data, testContent)
		}
	})

	t.Run("OpenNotExist", func(t *testing.T) {
		missing := path.Join(base, "nonexistent")
		_, err := filesystem.Open(missing)
		if !errors.Is(err, iofs.ErrNotExist) {
			t.Errorf("Open(%q): got error %v, want fs.ErrNotExist", missing, err)
		}
	})

	t.Run("Exists", func(t *testing.T) {
		for p, want := range map[string]bool{file: true, dir: true, path.Join(base, "nonexistent"): false} {
			got, err := filesystem.Exists(p)
			if err != nil {
				t.Errorf("Exists(%q): got error %v, want nil", p, err)
				continue
			}
			if got != want {
				t.Errorf("Exists(%q): got %v, want %v", p, got, want)
			}
		}
	})
}
