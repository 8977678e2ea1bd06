package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/njyeung/avplayer/app"
	"github.com/njyeung/avplayer/config"
	"github.com/njyeung/avplayer/tui"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <file|url|s3://bucket/key|page:url|fd:N>...\n", os.Args[0])
		os.Exit(2)
	}

	configDir := app.ConfigDir()
	settings, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log, logFile, err := app.OpenLog(configDir, settings.LogLevel())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	a, err := app.New(settings, configDir, os.Stdout, os.Args[1:], log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	p := tea.NewProgram(tui.NewModel(a.Playlist, a.Video), tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
