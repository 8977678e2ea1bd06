package tui

import "fmt"

func (m Model) viewError() string {
	return fmt.Sprintf("\n\n   %s\n\n   Press q to quit.\n", errorStyle.Render(m.err.Error()))
}

func (m Model) viewFinished() string {
	msg := fmt.Sprintf("Played %d entries.", m.playlist.Len())
	if m.status != "" {
		msg += " " + m.status
	}
	return fmt.Sprintf("\n\n   %s\n\n   Press q to quit.\n", statusStyle.Render(msg))
}
