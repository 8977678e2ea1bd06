package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// maxBarWidth caps the progress bar on wide terminals
const maxBarWidth = 80

func (m Model) viewPlaying() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	barWidth := min(m.width-4, maxBarWidth)
	startCol := max((m.width-barWidth)/2, 0)
	padding := strings.Repeat(" ", startCol)

	var bottom []string

	// Separator line
	bottom = append(bottom, padding+strings.Repeat("─", barWidth))

	// entry name and position in the playlist
	cur := m.current
	title := fmt.Sprintf("%d/%d  %s", cur.Index+1, m.playlist.Len(), cur.Name)
	bottom = append(bottom, padding+nameStyle.Render(runewidth.Truncate(title, barWidth, "...")))

	// Status line - play/pause, volume, progress
	playPauseIcon := "▶ "
	if cur.Paused {
		playPauseIcon = "❚❚"
	}
	volume := fmt.Sprintf("vol %3d%%", int(cur.Volume*100+0.5))
	if cur.Volume == 0 {
		volume = "muted   "
	}
	clock := formatDuration(cur.Position) + " / " + formatDuration(cur.Duration)

	statusContent := playPauseIcon + "  " + clock + "  " + volume
	if m.status != "" {
		statusContent += "  " + m.spinner.View() + " " + m.status
	}
	bottom = append(bottom, padding+statusStyle.Render(runewidth.Truncate(statusContent, barWidth, "...")))
	bottom = append(bottom, padding+progressStyle.Render(progressBar(barWidth, cur.Position, cur.Duration)))

	// navbar
	if m.showNavbar {
		bottom = append(bottom, "")
		bottom = append(bottom, padding+navStyle.Render("p: prev  n: next  ←/→: seek 10s"))
		bottom = append(bottom, padding+navStyle.Render("space: pause  +/-: volume  m: mute"))
		bottom = append(bottom, padding+navStyle.Render("c: hide navbar  q: quit"))
	}

	var b strings.Builder
	b.WriteString(strings.Repeat("\n", max(m.height-len(bottom), 0)))
	b.WriteString(strings.Join(bottom, "\n"))
	return b.String()
}

// progressBar renders a bar of width cells filled in proportion to pos/dur
func progressBar(width int, pos, dur time.Duration) string {
	if width <= 0 {
		return ""
	}
	filled := 0
	if dur > 0 {
		filled = int(int64(width) * int64(min(max(pos, 0), dur)) / int64(dur))
	}
	return strings.Repeat("━", filled) + strings.Repeat("─", width-filled)
}

// formatDuration formats d as m:ss, or h:mm:ss past an hour
func formatDuration(d time.Duration) string {
	d = max(d, 0).Round(time.Second)
	h := int(d / time.Hour)
	mins := int(d/time.Minute) % 60
	secs := int(d/time.Second) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mins, secs)
	}
	return fmt.Sprintf("%d:%02d", mins, secs)
}
