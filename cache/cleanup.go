package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

type cachedFile struct {
	path    string
	size    int64
	modTime time.Time
}

// Cleanup removes the least recently modified entries until the cache holds
// at most targetSize bytes, and returns the number of bytes reclaimed.
// Entries being written are not affected.
func (c *Cache) Cleanup(targetSize int64) (int64, error) {
	objRoot := filepath.Join(c.root, "obj")
	if exists, err := c.fs.Exists(objRoot); err != nil || !exists {
		return 0, err
	}

	var (
		files []cachedFile
		total int64
	)
	err := c.fs.Walk(objRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		files = append(files, cachedFile{path: path, size: info.Size(), modTime: info.ModTime()})
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scanning cache: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	var reclaimed int64
	for _, f := range files {
		if total <= targetSize {
			break
		}
		unlock := c.locks.lock(f.path)
		err := c.fs.Remove(f.path)
		unlock()
		if err != nil {
			return reclaimed, fmt.Errorf("evicting %s: %w", f.path, err)
		}
		total -= f.size
		reclaimed += f.size
		c.evictions.Add(1)
	}

	c.logger.Debug("cache cleanup finished", "reclaimed", reclaimed, "remaining", total)
	return reclaimed, nil
}
