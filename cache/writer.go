package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/fs"
)

type writer struct {
	c       *Cache
	tmp     fs.File
	dest    string
	size    int64
	written int64
	unlock  func()
	once    sync.Once
}

func (c *Cache) openWriter(dest string, size int64) (Writer, error) {
	unlock := c.locks.lock(dest)

	tmp, err := c.fs.TempFile(filepath.Join(c.root, "tmp"), "part-")
	if err != nil {
		unlock()
		return nil, fmt.Errorf("opening cache writer for %s: %w", dest, err)
	}
	return &writer{c: c, tmp: tmp, dest: dest, size: size, unlock: unlock}, nil
}

func (w *writer) Write(p []byte) (int, error) {
	n, err := w.tmp.Write(p)
	w.written += int64(n)
	return n, err
}

// Commit closes the temporary file and renames it over the destination.
// A length mismatch discards the data.
func (w *writer) Commit() error {
	var err error = errors.New(errors.CodeConflict, "cache.commit", "writer already finished")
	w.once.Do(func() {
		defer w.unlock()
		err = w.commit()
	})
	return err
}

func (w *writer) commit() error {
	if cerr := w.tmp.Close(); cerr != nil {
		_ = w.c.fs.Remove(w.tmp.Name())
		return fmt.Errorf("closing cache file: %w", cerr)
	}
	if w.size >= 0 && w.written != w.size {
		_ = w.c.fs.Remove(w.tmp.Name())
		return errors.Newf(errors.CodeIntegrity, "cache.commit",
			"wrote %d bytes, expected %d", w.written, w.size).WithContext("path", w.dest)
	}
	if err := w.c.fs.MkdirAll(filepath.Dir(w.dest), 0o755); err != nil {
		_ = w.c.fs.Remove(w.tmp.Name())
		return fmt.Errorf("creating cache directory: %w", err)
	}
	if exists, _ := w.c.fs.Exists(w.dest); exists {
		if err := w.c.fs.Remove(w.dest); err != nil && !os.IsNotExist(err) {
			_ = w.c.fs.Remove(w.tmp.Name())
			return fmt.Errorf("replacing cache entry: %w", err)
		}
	}
	if err := w.c.fs.Rename(w.tmp.Name(), w.dest); err != nil {
		_ = w.c.fs.Remove(w.tmp.Name())
		return fmt.Errorf("publishing cache entry: %w", err)
	}
	w.c.logger.Debug("cache entry committed", "path", w.dest, "size", w.written)
	return nil
}

// Discard closes and removes the temporary file. It is a no-op after Commit.
func (w *writer) Discard() error {
	var err error
	w.once.Do(func() {
		defer w.unlock()
		_ = w.tmp.Close()
		if rerr := w.c.fs.Remove(w.tmp.Name()); rerr != nil {
			err = fmt.Errorf("removing temporary cache file: %w", rerr)
		}
	})
	return err
}

// keyLocks hands out one mutex per key, dropping it when unused.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
