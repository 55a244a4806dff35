// Package tui is the optional full-screen dashboard: a supervisor status
// header above a filterable view of the worker's output.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/charliek/minerd/internal/domain"
)

// Mode represents the current TUI mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeSearch
	ModeStringFilter
	ModeHelp
)

// maxLogEntries is the maximum number of log entries kept by the dashboard
const maxLogEntries = 1000

// refreshInterval is how often the status header is refreshed
const refreshInterval = 500 * time.Millisecond

// StatusSource provides supervisor snapshots
type StatusSource interface {
	Status() domain.Status
}

// Model is the bubbletea model for the dashboard
type Model struct {
	source StatusSource
	onQuit func()

	status     domain.Status
	logEntries []domain.LogEntry

	viewport  viewport.Model
	textInput textinput.Model
	mode      Mode

	// Filtering
	hidden        map[domain.Stream]bool
	currentRun    bool   // only lines of the current run
	searchPattern string // substring or regex, see searchRegex
	searchRegex   bool
	filterErr     error

	followMode bool

	width  int
	height int
	ready  bool
}

// NewModel creates a dashboard model. onQuit is called once when the user
// quits; it should start the supervisor's shutdown.
func NewModel(source StatusSource, onQuit func()) Model {
	ti := textinput.New()
	ti.Placeholder = "Type to filter..."
	ti.CharLimit = 100
	ti.Width = 40

	return Model{
		source:     source,
		onQuit:     onQuit,
		status:     source.Status(),
		logEntries: make([]domain.LogEntry, 0),
		textInput:  ti,
		mode:       ModeNormal,
		hidden:     make(map[domain.Stream]bool),
		followMode: true,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// LogEntryMsg is sent when a new log entry arrives
type LogEntryMsg domain.LogEntry

// TickMsg is sent periodically
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
