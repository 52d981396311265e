package fstest

import (
	"bytes"
	"os"
	"path"
	"sort"
	"strings"
	"testing"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/fs"
)

// TestWriteFS tests write operations: Create, OpenFile, WriteFile, MkdirAll, Remove.
func TestWriteFS(t *testing.T, filesystem fs.Filesystem, base string) {
	t.Run("CreateAndWrite", func(t *testing.T) {
		name := path.Join(base, "created.txt")
		testData := []byte("test data for Create")

		f, err := filesystem.Create(name)
		if err != nil {
			t.Fatalf("Create(%q): got error %v, want nil", name, err)
		}
		if _, err := f.Write(testData); err != nil {
			_ = f.Close()
			t.Fatalf("Write(): got error %v, want nil", err)
		}
		if err := f.Close(); err != nil {
			t.Fatalf("Close(): got error %v, want nil", err)
		}
		assertContent(t, filesystem, name, testData)
	})

	t.Run("OpenFileTruncate", func(t *testing.T) {
		name := path.Join(base, "openfile.txt")
		if err := filesystem.WriteFile(name, []byte("a much longer first version"), 0o644); err != nil {
			t.Fatalf("WriteFile(%q): got error %v, want nil", name, err)
		}
		f, err := filesystem.OpenFile(name, os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			t.Fatalf("OpenFile(%q, O_WRONLY|O_TRUNC): got error %v, want nil", name, err)
		}
		if _, err := f.Write([]byte("short")); err != nil {
			_ = f.Close()
			t.Fatalf("Write(): got error %v, want nil", err)
		}
		if err := f.Close(); err != nil {
			t.Fatalf("Close(): got error %v, want nil", err)
		}
		assertContent(t, filesystem, name, []byte("short"))
	})

	t.Run("MkdirAllAndRemove", func(t *testing.T) {
		dir := path.Join(base, "a", "b", "c")
		if err := filesystem.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("MkdirAll(%q): got error %v, want nil", dir, err)
		}
		name := path.Join(dir, "f.txt")
		if err := filesystem.WriteFile(name, []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile(%q): got error %v, want nil", name, err)
		}
		if err := filesystem.Remove(name); err != nil {
			t.Fatalf("Remove(%q): got error %v, want nil", name, err)
		}
		if ok, _ := filesystem.Exists(name); ok {
			t.Errorf("Exists(%q) after Remove: got true, want false", name)
		}
	})

	t.Run("Walk", func(t *testing.T) {
		root := path.Join(base, "walk")
		for _, p := range []string{"x.txt", "sub/y.txt", "sub/deeper/z.txt"} {
			full := path.Join(root, p)
			if err := filesystem.MkdirAll(path.Dir(full), 0o755); err != nil {
				t.Fatalf("MkdirAll(%q): setup failed: %v", path.Dir(full), err)
			}
			if err := filesystem.WriteFile(full, []byte(p), 0o644); err != nil {
				t.Fatalf("WriteFile(%q): setup failed: %v", full, err)
			}
		}

		var files []string
		err := filesystem.Walk(root, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() {
				files = append(files, strings.TrimPrefix(p, root+"/"))
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Walk(%q): got error %v, want nil", root, err)
		}
		sort.Strings(files)
		want := []string{"sub/deeper/z.txt", "sub/y.txt", "x.txt"}
		if strings.Join(files, ",") != strings.Join(want, ",") {
			t.Errorf("Walk(%q): got %v, want %v", root, files, want)
		}
	})
}

func assertContent(t *testing.T, filesystem fs.Filesystem, name string, want []byte) {
	t.Helper()
	data, err := filesystem.ReadFile(name)
	if err != nil {
		t.Fatalf("ReadFile(%q): got error %v, want nil", name, err)
	}
	if !bytes.Equal(data, want) {
		t.Errorf("ReadFile(%q): got %q, want %q", name, data, want)
	}
}
