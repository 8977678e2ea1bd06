// Command test plays entries without the interface, logging playlist
// events to stderr. Video is decoded but not shown.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/njyeung/avplayer/app"
	"github.com/njyeung/avplayer/config"
	"github.com/njyeung/avplayer/playlist"
	"golang.org/x/sync/errgroup"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <entry>...\n", os.Args[0])
		os.Exit(2)
	}

	configDir := app.ConfigDir()
	settings, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// frames go nowhere, so shared memory segments would never be collected
	settings.UseShm = false

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: settings.LogLevel()}))

	a, err := app.New(settings, configDir, io.Discard, os.Args[1:], log)
	if err != nil {
		log.Error("setup failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, finish := context.WithCancel(ctx)
	defer finish()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer finish()
		return watch(ctx, a.Playlist, log)
	})
	g.Go(func() error {
		<-ctx.Done()
		a.Close()
		return nil
	})

	a.Playlist.Play(0)
	if err := g.Wait(); err != nil {
		log.Error("playback failed", "error", err)
		os.Exit(1)
	}
}

// watch logs events until the playlist finishes
func watch(ctx context.Context, p *playlist.Player, log *slog.Logger) error {
	failed := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-p.Events():
			if !ok {
				return nil
			}
			switch e.Type {
			case playlist.EventError:
				failed++
				log.Warn("entry failed", "index", e.Index, "name", e.Name, "error", e.Err)
			case playlist.EventBuffering:
				log.Debug("buffering", "index", e.Index, "percent", e.Percent)
			case playlist.EventFinished:
				log.Info("finished", "entries", p.Len(), "failed", failed)
				if failed >= p.Len() {
					return fmt.Errorf("no entry could be played")
				}
				return nil
			default:
				log.Info(e.Type.String(), "index", e.Index, "name", e.Name, "status", p.Status())
			}
		}
	}
}
