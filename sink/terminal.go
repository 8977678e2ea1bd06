//go:build unix

package sink

import (
	"os"

	"golang.org/x/sys/unix"
)

// TerminalSize returns terminal dimensions (cols, rows, widthPx, heightPx)
func TerminalSize() (cols, rows, widthPx, heightPx int, err error) {
	ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return int(ws.Col), int(ws.Row), int(ws.Xpixel), int(ws.Ypixel), nil
}

// FitTerminal updates the renderer with the current terminal geometry
func (r *KittyRenderer) FitTerminal() error {
	cols, rows, w, h, err := TerminalSize()
	if err != nil {
		return err
	}
	r.SetTerminalSize(cols, rows, w, h)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastW > 0 {
		r.centerVideo(r.lastW, r.lastH)
	}
	return nil
}
