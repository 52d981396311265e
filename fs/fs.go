// Package fs defines the filesystem abstraction used by the content cache and
// the local reference handler, so both can run against the OS or in memory.
package fs

import (
	"os"
	"path/filepath"
)

// Filesystem is the set of filesystem operations the sync engine relies on.
// Rename must replace the destination atomically where the backing
// filesystem supports it; the content cache depends on that to publish
// fully-written files.
type Filesystem interface {
	Create(name string) (File, error)
	Exists(path string) (bool, error)
	MkdirAll(path string, perm os.FileMode) error
	Open(name string) (File, error)
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	ReadDir(dirname string) ([]os.FileInfo, error)
	ReadFile(path string) ([]byte, error)
	Remove(name string) error
	Rename(oldpath, newpath string) error
	Stat(name string) (os.FileInfo, error)
	TempFile(dir, prefix string) (File, error)
	Walk(root string, walkFn filepath.WalkFunc) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
}
