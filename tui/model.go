package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/njyeung/avplayer/playlist"
)

const (
	seekStep   = 10 * time.Second
	volumeStep = 0.1
	tickEvery  = 250 * time.Millisecond
)

// Playlist is the playback the model drives
type Playlist interface {
	Events() <-chan playlist.Event
	Len() int
	Play(index int)
	Next()
	Prev()
	TogglePause()
	Seek(delta time.Duration)
	SetVolume(v float64)
	Status() playlist.Status
	Close()
}

// Fitter tracks the terminal geometry for the video output
type Fitter interface {
	FitTerminal() error
}

// Messages
type (
	playlistEventMsg playlist.Event
	playlistDoneMsg  struct{}
	tickMsg          time.Time
)

// State represents the app state
type state int

const (
	stateLoading state = iota
	statePlaying
	stateFinished
	stateError
)

// Model is the Bubble Tea model
type Model struct {
	state    state
	playlist Playlist
	video    Fitter
	current  playlist.Status

	width   int
	height  int
	spinner spinner.Model
	err     error
	status  string

	// volume to restore when unmuting
	unmuted float64

	showNavbar bool
}

// NewModel creates a new TUI model. video may be nil when no terminal
// graphics are used.
func NewModel(pl Playlist, video Fitter) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return Model{
		state:      stateLoading,
		playlist:   pl,
		video:      video,
		spinner:    s,
		status:     "Loading",
		showNavbar: true,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.start,
		m.listenForEvents,
		tick(),
	)
}

func (m Model) start() tea.Msg {
	if m.playlist.Len() == 0 {
		return playlistEventMsg{Type: playlist.EventFinished}
	}
	m.playlist.Play(0)
	return nil
}

func (m Model) listenForEvents() tea.Msg {
	event, ok := <-m.playlist.Events()
	if !ok {
		return playlistDoneMsg{}
	}
	return playlistEventMsg(event)
}

func tick() tea.Cmd {
	return tea.Tick(tickEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.playlist.Close()
			return m, tea.Quit
		}

		if m.state == statePlaying {
			return m.updatePlaying(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.video != nil {
			if err := m.video.FitTerminal(); err != nil {
				m.status = fmt.Sprintf("Terminal size unavailable: %v", err)
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		m.current = m.playlist.Status()
		return m, tick()

	case playlistEventMsg:
		m.handleEvent(playlist.Event(msg))
		return m, m.listenForEvents

	case playlistDoneMsg:
		return m, nil
	}

	return m, nil
}

func (m *Model) handleEvent(e playlist.Event) {
	switch e.Type {
	case playlist.EventLoading:
		m.state = statePlaying
		m.status = "Loading"
	case playlist.EventPrepared, playlist.EventAdvanced, playlist.EventSeekComplete:
		m.state = statePlaying
		m.status = ""
	case playlist.EventBuffering:
		if e.Percent < 100 {
			m.status = fmt.Sprintf("Buffering %d%%", e.Percent)
		} else {
			m.status = ""
		}
	case playlist.EventError:
		m.status = fmt.Sprintf("Skipped %s: %v", e.Name, e.Err)
		if m.playlist.Len() == 1 {
			m.state = stateError
			m.err = e.Err
		}
	case playlist.EventFinished:
		if m.state != stateError {
			m.state = stateFinished
		}
	}
	m.current = m.playlist.Status()
}

func (m Model) updatePlaying(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case " ":
		m.playlist.TogglePause()
	case "right", "l":
		m.playlist.Seek(seekStep)
	case "left", "h":
		m.playlist.Seek(-seekStep)
	case "n", "j", "down":
		m.playlist.Next()
	case "p", "k", "up":
		m.playlist.Prev()
	case "+", "=":
		m.playlist.SetVolume(m.current.Volume + volumeStep)
	case "-":
		m.playlist.SetVolume(m.current.Volume - volumeStep)
	case "m":
		if m.current.Volume > 0 {
			m.unmuted = m.current.Volume
			m.playlist.SetVolume(0)
		} else {
			m.playlist.SetVolume(max(m.unmuted, volumeStep))
		}
	case "c":
		m.showNavbar = !m.showNavbar
	}
	m.current = m.playlist.Status()
	return m, nil
}

// View renders the UI
func (m Model) View() string {
	switch m.state {
	case stateLoading:
		return m.viewLoading()
	case stateError:
		return m.viewError()
	case stateFinished:
		return m.viewFinished()
	default:
		return m.viewPlaying()
	}
}
