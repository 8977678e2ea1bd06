package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// pageLoadWait is how long a page gets to start its media after navigation
const pageLoadWait = 2 * time.Second

// Browser resolves web pages to the media they play, using a Chrome
// instance with a persistent profile so logged in pages work
type Browser struct {
	log         *slog.Logger
	userDataDir string
	headless    bool

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	// media responses seen on the current page
	mediaMu sync.Mutex
	media   []string
}

// NewBrowser creates a browser resolver. Chrome starts on first use.
func NewBrowser(userDataDir string, headless bool, log *slog.Logger) *Browser {
	if log == nil {
		log = slog.Default()
	}
	return &Browser{
		log:         log.With("component", "browser"),
		userDataDir: userDataDir,
		headless:    headless,
	}
}

// start launches Chrome if it is not running
func (b *Browser) start() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx != nil {
		return b.ctx, nil
	}

	// Create user data directory for persistent sessions
	if err := os.MkdirAll(b.userDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create user data dir: %w", err)
	}

	// Chrome options
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(b.userDataDir),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("headless", b.headless),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		b.log.Debug(fmt.Sprintf(format, args...))
	}))

	// network events for capturing media responses
	if err := chromedp.Run(ctx, network.Enable()); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to enable network: %w", err)
	}
	chromedp.ListenTarget(ctx, b.handleNetworkEvent)

	b.ctx, b.cancel, b.allocCancel = ctx, cancel, allocCancel
	return ctx, nil
}

// handleNetworkEvent records responses that carry audio or video
func (b *Browser) handleNetworkEvent(ev any) {
	e, ok := ev.(*network.EventResponseReceived)
	if !ok || e.Response == nil {
		return
	}
	if isMediaType(e.Response.MimeType) {
		b.mediaMu.Lock()
		b.media = append(b.media, e.Response.URL)
		b.mediaMu.Unlock()
	}
}

func isMediaType(mime string) bool {
	return strings.HasPrefix(mime, "video/") || strings.HasPrefix(mime, "audio/")
}

// Resolve navigates to a page and returns the URL of the media it plays
func (b *Browser) Resolve(ctx context.Context, pageURL string) (string, error) {
	bctx, err := b.start()
	if err != nil {
		return "", err
	}

	b.mediaMu.Lock()
	b.media = nil
	b.mediaMu.Unlock()

	var src string
	err = b.run(ctx, bctx,
		chromedp.Navigate(pageURL),
		chromedp.Sleep(pageLoadWait), // sleep to let page load
		chromedp.Evaluate(`
			(() => {
				for (const v of document.querySelectorAll('video, audio')) {
					const src = v.currentSrc || v.src;
					if (src && !src.startsWith('blob:')) return src;
				}
				return "";
			})()
		`, &src),
	)
	if err != nil {
		return "", fmt.Errorf("failed to load %s: %w", pageURL, err)
	}
	if src != "" {
		return src, nil
	}

	// media element is backed by a blob, fall back to what went over the wire
	b.mediaMu.Lock()
	defer b.mediaMu.Unlock()
	if len(b.media) > 0 {
		return b.media[0], nil
	}
	return "", fmt.Errorf("no media found on %s", pageURL)
}

// Download fetches mediaURL from inside the page, so the page's cookies
// apply, and writes it to w
func (b *Browser) Download(ctx context.Context, mediaURL string, w io.Writer) error {
	bctx, err := b.start()
	if err != nil {
		return err
	}

	js := fmt.Sprintf(`
		(async () => {
			const r = await fetch(%q);
			if (!r.ok) throw new Error("HTTP " + r.status);
			const bytes = new Uint8Array(await r.arrayBuffer());
			let bin = "";
			for (let i = 0; i < bytes.length; i += 0x8000) {
				bin += String.fromCharCode.apply(null, bytes.subarray(i, i + 0x8000));
			}
			return btoa(bin);
		})()
	`, mediaURL)

	var encoded string
	err = b.run(ctx, bctx, chromedp.Evaluate(js, &encoded, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", mediaURL, err)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", mediaURL, err)
	}
	_, err = w.Write(data)
	return err
}

// run runs actions on the browser tab, aborting when ctx is done
func (b *Browser) run(ctx, bctx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(bctx, actions...)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the browser down
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		b.cancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.ctx, b.cancel, b.allocCancel = nil, nil, nil
}
