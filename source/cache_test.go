package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeString(s string) DownloadFunc {
	return func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

func TestCacheClearsDirectoryOnStartup(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale.mp4"), []byte("x"), 0644))

	_, err := NewCache(dir, 2)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCacheRejectsZeroSize(t *testing.T) {
	_, err := NewCache(t.TempDir(), 0)
	assert.Error(t, err)
}

func TestCacheFetchDownloadsOnce(t *testing.T) {
	c, err := NewCache(t.TempDir(), 2)
	require.NoError(t, err)

	var calls atomic.Int32
	download := func(ctx context.Context, w io.Writer) error {
		calls.Add(1)
		_, err := io.WriteString(w, "media")
		return err
	}

	p1, err := c.Fetch(context.Background(), "a.mp4", download)
	require.NoError(t, err)
	p2, err := c.Fetch(context.Background(), "a.mp4", download)
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.Equal(t, int32(1), calls.Load())

	data, err := os.ReadFile(p1)
	require.NoError(t, err)
	assert.Equal(t, "media", string(data))
}

func TestCacheConcurrentFetchSharesDownload(t *testing.T) {
	c, err := NewCache(t.TempDir(), 2)
	require.NoError(t, err)

	var calls atomic.Int32
	release := make(chan struct{})
	download := func(ctx context.Context, w io.Writer) error {
		calls.Add(1)
		<-release
		_, err := io.WriteString(w, "media")
		return err
	}

	var wg sync.WaitGroup
	paths := make([]string, 4)
	for i := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := c.Fetch(context.Background(), "a.mp4", download)
			assert.NoError(t, err)
			paths[i] = p
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, p := range paths {
		assert.Equal(t, paths[0], p)
	}
}

func TestCacheEvictsOldest(t *testing.T) {
	c, err := NewCache(t.TempDir(), 2)
	require.NoError(t, err)

	ctx := context.Background()
	a, err := c.Fetch(ctx, "a.mp4", writeString("a"))
	require.NoError(t, err)
	b, err := c.Fetch(ctx, "b.mp4", writeString("b"))
	require.NoError(t, err)
	_, err = c.Fetch(ctx, "c.mp4", writeString("c"))
	require.NoError(t, err)

	assert.Equal(t, 2, c.Len())
	assert.NoFileExists(t, a)
	assert.FileExists(t, b)
}

func TestCacheFailedDownloadLeavesNothing(t *testing.T) {
	c, err := NewCache(t.TempDir(), 2)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = c.Fetch(context.Background(), "a.mp4", func(ctx context.Context, w io.Writer) error {
		io.WriteString(w, "partial")
		return boom
	})
	require.ErrorIs(t, err, boom)

	entries, err := os.ReadDir(c.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 0, c.Len())

	// a later fetch retries
	p, err := c.Fetch(context.Background(), "a.mp4", writeString("a"))
	require.NoError(t, err)
	assert.FileExists(t, p)
}

func TestCacheFetchWaitHonorsContext(t *testing.T) {
	c, err := NewCache(t.TempDir(), 2)
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		c.Fetch(context.Background(), "a.mp4", func(ctx context.Context, w io.Writer) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Fetch(ctx, "a.mp4", writeString("a"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-finished
}
