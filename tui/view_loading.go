package tui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
)

func (m Model) viewLoading() string {
	if m.width == 0 || m.height == 0 {
		return fmt.Sprintf("\n\n   %s %s\n\n", m.spinner.View(), m.status)
	}

	return renderLoadingScreen(m.width, m.height)
}

func renderLoadingScreen(width, height int) string {
	logo := []string{
		"▄▀█ █░█ █▀█ █░░ ▄▀█ █▄█ █▀▀ █▀█",
		"█▀█ ▀▄▀ █▀▀ █▄▄ █▀█ ░█░ ██▄ █▀▄",
	}

	blockHeight := len(logo)
	startRow := (height - blockHeight) / 2

	var b strings.Builder
	for y := range height {
		var line string
		switch {
		case y >= startRow && y < startRow+len(logo):
			text := logo[y-startRow]
			pad := width - runewidth.StringWidth(text)
			if pad < 0 {
				pad = 0
				text = runewidth.Truncate(text, width, "")
			}
			left := pad / 2
			right := pad - left
			line = strings.Repeat(" ", left) + titleStyle.Render(text) + strings.Repeat(" ", right)
		default:
			line = strings.Repeat(" ", width)
		}
		b.WriteString(line)
		if y < height-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
