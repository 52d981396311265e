package billy

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	parentfs "github.com/input-output-hk/catalyst-forge-libs/artifactsync/fs"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/fs/fstest"
)

func TestFS_TempFileRename(t *testing.T) {
	fs := NewInMemoryFS()

	f, err := fs.TempFile("/cache/tmp", "obj-")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, fs.MkdirAll("/cache/obj", 0o755))
	require.NoError(t, fs.Rename(f.Name(), "/cache/obj/hello"))

	exists, err := fs.Exists(f.Name())
	require.NoError(t, err)
	assert.False(t, exists)

	data, err := fs.ReadFile("/cache/obj/hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestFS_FileStat(t *testing.T) {
	fs := NewInMemoryFS()
	require.NoError(t, fs.WriteFile("/a/b.txt", []byte("12345"), 0o644))

	f, err := fs.Open("/a/b.txt")
	require.NoError(t, err)
	defer f.Close()

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "12345", string(data))
}

func TestFS_Walk(t *testing.T) {
	fs := NewInMemoryFS()
	require.NoError(t, fs.WriteFile("/root/x/1.txt", []byte("1"), 0o644))
	require.NoError(t, fs.WriteFile("/root/y/2.txt", []byte("22"), 0o644))

	var files []string
	err := fs.Walk("/root", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, filepath.ToSlash(path))
		}
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/root/x/1.txt", "/root/y/2.txt"}, files)
}

func TestFS_ErrorsAreWrapped(t *testing.T) {
	fs := NewInMemoryFS()

	_, err := fs.Open("/missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "billy: open")

	exists, err := fs.Exists("/missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNewOSFS(t *testing.T) {
	dir := t.TempDir()
	fs := NewOSFS("/")

	path := filepath.Join(dir, "data.bin")
	require.NoError(t, fs.WriteFile(path, []byte("abc"), 0o644))

	info, err := fs.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size())
}

func TestFS_Conformance(t *testing.T) {
	t.Run("memfs", func(t *testing.T) {
		fstest.TestSuite(t, func(*testing.T) (parentfs.Filesystem, string) {
			return NewInMemoryFS(), "/base"
		})
	})
	t.Run("osfs", func(t *testing.T) {
		fstest.TestSuite(t, func(t *testing.T) (parentfs.Filesystem, string) {
			return NewOSFS("/"), t.TempDir()
		})
	})
}
