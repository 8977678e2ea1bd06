// Package source resolves playlist entries to data sources a session can open
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// DownloadFunc writes the content for a cache entry to w
type DownloadFunc func(ctx context.Context, w io.Writer) error

// Cache is a bounded FIFO of downloaded media files. Concurrent requests
// for the same entry share one download.
type Cache struct {
	dir  string
	size int

	mu       sync.Mutex
	fifoList []string
	fifoMap  map[string]bool

	// inProgress tracks downloads currently in flight; channel is closed when done
	inProgress map[string]chan struct{}
}

// NewCache creates the cache directory, clearing anything left from a
// previous run
func NewCache(dir string, size int) (*Cache, error) {
	if size < 1 {
		return nil, fmt.Errorf("cannot have a cache size < 1")
	}

	// clear cache on startup
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("could not delete old cache directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create cache directory: %w", err)
	}

	return &Cache{
		dir:        dir,
		size:       size,
		fifoMap:    make(map[string]bool),
		inProgress: make(map[string]chan struct{}),
	}, nil
}

// Dir returns the cache directory
func (c *Cache) Dir() string {
	return c.dir
}

// Len returns the number of cached files
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fifoList)
}

// Fetch returns the local path of the named entry, downloading it first if
// it is not cached
func (c *Cache) Fetch(ctx context.Context, name string, download DownloadFunc) (string, error) {
	path := filepath.Join(c.dir, filepath.Base(name))

	for {
		c.mu.Lock()
		if c.fifoMap[path] {
			c.mu.Unlock()
			return path, nil
		}

		// wait for a download of the same entry, then re-check the cache
		ch, ok := c.inProgress[path]
		if !ok {
			break
		}
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	// Mark as in progress
	done := make(chan struct{})
	c.inProgress[path] = done
	c.mu.Unlock()

	// cleanup: remove from inProgress and signal waiters when done
	defer func() {
		c.mu.Lock()
		delete(c.inProgress, path)
		c.mu.Unlock()
		close(done)
	}()

	if err := c.write(ctx, path, download); err != nil {
		return "", err
	}
	if err := c.add(path); err != nil {
		return "", err
	}
	return path, nil
}

// write downloads into a temporary file and renames it into place
func (c *Cache) write(ctx context.Context, path string, download DownloadFunc) error {
	tmp, err := os.CreateTemp(c.dir, ".download-*")
	if err != nil {
		return fmt.Errorf("could not create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := download(ctx, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("download %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (c *Cache) add(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fifoList = append(c.fifoList, path)
	c.fifoMap[path] = true

	if len(c.fifoList) > c.size {
		if err := os.Remove(c.fifoList[0]); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("could not remove cached file: %w", err)
		}
		delete(c.fifoMap, c.fifoList[0])
		c.fifoList = c.fifoList[1:]
	}

	return nil
}
