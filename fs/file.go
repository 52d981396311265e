package fs

import "io/fs"

// File represents an open file handle supporting the I/O the sync engine needs:
// streaming reads for hashing and uploads, streaming writes for cache fills.
// Implementations should behave consistently with the standard library.
type File interface {
	Close() error
	Name() string
	Read(p []byte) (n int, err error)
	Stat() (fs.FileInfo, error)
	Write(p []byte) (n int, err error)
}
