package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/njyeung/avplayer/player"
)

// PagePrefix marks a playlist entry as a web page whose media should be
// resolved in the browser
const PagePrefix = "page:"

// Entry is a resolved playlist entry
type Entry struct {
	// Name is the entry as given
	Name string

	URL     string
	Headers string

	// FD is an open descriptor to play from, -1 when URL is used
	FD     int
	Offset int64
	Length int64
}

// Apply sets the entry as the session's data source
func (e Entry) Apply(s *player.Session) error {
	if e.FD >= 0 {
		return s.SetDataSourceFD(uintptr(e.FD), e.Offset, e.Length)
	}
	return s.SetDataSource(e.URL, e.Headers)
}

// Resolver turns playlist entries into playable data sources. Remote
// objects are downloaded into the cache first.
type Resolver struct {
	log     *slog.Logger
	cache   *Cache
	s3      *S3
	browser *Browser

	// Headers are sent with network URLs
	Headers string
}

// NewResolver creates a resolver. s3 and browser may be nil, in which case
// entries needing them fail to resolve.
func NewResolver(cache *Cache, s3 *S3, browser *Browser, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		log:     log.With("component", "resolver"),
		cache:   cache,
		s3:      s3,
		browser: browser,
	}
}

// Resolve resolves one playlist entry. Recognized forms are local paths,
// file:// URLs, fd:N[:offset[:length]], s3://bucket/key, page:<url> and any
// other URL the demuxer understands.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Entry, error) {
	e := Entry{Name: raw, FD: -1}

	switch {
	case strings.HasPrefix(raw, "fd:"):
		return parseFD(raw)

	case strings.HasPrefix(raw, "s3://"):
		bucket, key, err := ParseS3URL(raw)
		if err != nil {
			return e, err
		}
		if r.s3 == nil || r.cache == nil {
			return e, fmt.Errorf("s3 is not configured")
		}
		e.URL, err = r.cache.Fetch(ctx, cacheName(bucket, key), func(ctx context.Context, w io.Writer) error {
			return r.s3.Download(ctx, bucket, key, w)
		})
		return e, err

	case strings.HasPrefix(raw, PagePrefix):
		return r.resolvePage(ctx, e, strings.TrimPrefix(raw, PagePrefix))

	case strings.HasPrefix(raw, "file://"):
		return r.resolveFile(e, strings.TrimPrefix(raw, "file://"))

	case strings.Contains(raw, "://"):
		e.URL = raw
		e.Headers = r.Headers
		return e, nil
	}

	return r.resolveFile(e, raw)
}

func (r *Resolver) resolvePage(ctx context.Context, e Entry, pageURL string) (Entry, error) {
	if r.browser == nil || r.cache == nil {
		return e, fmt.Errorf("browser is not configured")
	}

	mediaURL, err := r.browser.Resolve(ctx, pageURL)
	if err != nil {
		return e, err
	}
	r.log.Debug("page resolved", "page", pageURL, "media", mediaURL)

	name := path.Base(strings.SplitN(mediaURL, "?", 2)[0])
	e.URL, err = r.cache.Fetch(ctx, name, func(ctx context.Context, w io.Writer) error {
		return r.browser.Download(ctx, mediaURL, w)
	})
	return e, err
}

func (r *Resolver) resolveFile(e Entry, p string) (Entry, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return e, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return e, err
	}
	if info.IsDir() {
		return e, fmt.Errorf("%s is a directory", p)
	}
	e.URL = abs
	return e, nil
}

// parseFD parses fd:N[:offset[:length]]
func parseFD(raw string) (Entry, error) {
	e := Entry{Name: raw, FD: -1}

	parts := strings.Split(strings.TrimPrefix(raw, "fd:"), ":")
	if len(parts) > 3 {
		return e, fmt.Errorf("invalid descriptor entry: %s", raw)
	}

	fd, err := strconv.Atoi(parts[0])
	if err != nil || fd < 0 {
		return e, fmt.Errorf("invalid descriptor: %s", raw)
	}
	e.FD = fd

	if len(parts) > 1 {
		if e.Offset, err = strconv.ParseInt(parts[1], 10, 64); err != nil || e.Offset < 0 {
			return e, fmt.Errorf("invalid offset: %s", raw)
		}
	}
	if len(parts) > 2 {
		if e.Length, err = strconv.ParseInt(parts[2], 10, 64); err != nil || e.Length < 0 {
			return e, fmt.Errorf("invalid length: %s", raw)
		}
	}
	return e, nil
}
