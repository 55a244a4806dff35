package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/charliek/minerd/internal/domain"
	"github.com/charliek/minerd/internal/logs"
)

// nearBottomThreshold is the scroll percentage (0.0-1.0) at which we consider
// the viewport to be "near" the bottom for auto-follow purposes.
const nearBottomThreshold = 0.98

// streamKeys maps the number keys to the stream they toggle
var streamKeys = map[string]domain.Stream{
	"1": domain.StreamStdout,
	"2": domain.StreamStderr,
	"3": domain.StreamSystem,
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.handleWindowSize(msg)
		m.updateViewport()

	case LogEntryMsg:
		m.handleLogEntry(domain.LogEntry(msg))

	case TickMsg:
		prevRun := m.currentRunID()
		m.status = m.source.Status()
		if m.currentRun && m.currentRunID() != prevRun {
			m.updateViewport()
		}
		cmds = append(cmds, tickCmd())
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleKey processes keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case ModeSearch, ModeStringFilter:
		cmd := m.handleFilterKey(msg)
		return m, cmd
	case ModeHelp:
		m.mode = ModeNormal
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		if m.onQuit != nil {
			m.onQuit()
		}
		return m, tea.Quit
	}

	m.handleNavigationKey(msg)
	return m, nil
}

// handleFilterKey handles keys while a filter pattern is being typed
func (m *Model) handleFilterKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.mode = ModeNormal
		m.textInput.Blur()
		m.searchPattern = ""
		m.updateViewport()
		return nil

	case "enter":
		m.searchPattern = m.textInput.Value()
		m.mode = ModeNormal
		m.textInput.Blur()
		m.updateViewport()
		return nil
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	// Substring filters update live, regexes only on enter
	if m.mode == ModeStringFilter {
		m.searchPattern = m.textInput.Value()
		m.updateViewport()
	}
	return cmd
}

// handleNavigationKey handles normal-mode keys. Returns true if the key was handled
func (m *Model) handleNavigationKey(msg tea.KeyMsg) bool {
	key := msg.String()
	if stream, ok := streamKeys[key]; ok {
		m.hidden[stream] = !m.hidden[stream]
		m.updateViewport()
		return true
	}

	switch key {
	case "?":
		m.mode = ModeHelp

	case "/":
		m.startFilter(ModeSearch, true)

	case "s":
		m.startFilter(ModeStringFilter, false)

	case "c":
		m.currentRun = !m.currentRun
		m.updateViewport()

	case "esc":
		m.hidden = make(map[domain.Stream]bool)
		m.currentRun = false
		m.searchPattern = ""
		m.updateViewport()

	case "up", "k":
		m.viewport.LineUp(1)
		m.followMode = false

	case "down", "j":
		m.viewport.LineDown(1)

	case "pgup":
		m.viewport.HalfViewUp()
		m.followMode = false

	case "pgdown":
		m.viewport.HalfViewDown()

	case "home", "g":
		m.viewport.GotoTop()
		m.followMode = false

	case "end", "G":
		m.viewport.GotoBottom()
		m.followMode = true

	case "F":
		m.followMode = !m.followMode
		if m.followMode {
			m.viewport.GotoBottom()
		}

	default:
		return false
	}
	return true
}

func (m *Model) startFilter(mode Mode, regex bool) {
	m.mode = mode
	m.searchRegex = regex
	m.textInput.SetValue("")
	m.textInput.Focus()
}

// handleWindowSize handles window resize messages
func (m *Model) handleWindowSize(msg tea.WindowSizeMsg) {
	m.width = msg.Width
	m.height = msg.Height

	headerHeight := 4 // status panel
	footerHeight := 2 // status bar

	viewportHeight := msg.Height - headerHeight - footerHeight
	if viewportHeight < 1 {
		viewportHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(msg.Width, viewportHeight)
		m.viewport.YPosition = headerHeight
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
	}
}

// handleLogEntry appends an entry and keeps the view at the bottom when following
func (m *Model) handleLogEntry(entry domain.LogEntry) {
	wasNearBottom := m.isNearBottom()

	m.logEntries = append(m.logEntries, entry)
	// Copy so the old backing array can be released
	if len(m.logEntries) > maxLogEntries {
		newEntries := make([]domain.LogEntry, maxLogEntries)
		copy(newEntries, m.logEntries[len(m.logEntries)-maxLogEntries:])
		m.logEntries = newEntries
	}
	m.updateViewport()

	if wasNearBottom {
		m.followMode = true
	}
	if m.followMode {
		m.viewport.GotoBottom()
	}
}

func (m *Model) isNearBottom() bool {
	if !m.ready {
		return false
	}
	if m.viewport.AtBottom() {
		return true
	}
	return m.viewport.ScrollPercent() >= nearBottomThreshold
}

func (m *Model) currentRunID() string {
	if m.status.Current == nil {
		return ""
	}
	return m.status.Current.ID
}

// logFilter builds the active filter
func (m *Model) logFilter() domain.LogFilter {
	f := domain.LogFilter{Pattern: m.searchPattern, IsRegex: m.searchRegex}
	if m.currentRun {
		// An idle supervisor has no current run; match nothing rather than everything
		f.RunID = m.currentRunID()
		if f.RunID == "" {
			f.RunID = "-"
		}
	}
	if len(m.hidden) > 0 {
		for _, s := range []domain.Stream{domain.StreamStdout, domain.StreamStderr, domain.StreamSystem} {
			if !m.hidden[s] {
				f.Streams = append(f.Streams, s)
			}
		}
		if len(f.Streams) == 0 {
			f.Streams = []domain.Stream{"-"}
		}
	}
	return f
}

// filteredEntries returns the entries that pass the active filter. An invalid
// pattern is reported in filterErr and ignored.
func (m *Model) filteredEntries() []domain.LogEntry {
	filter := m.logFilter()
	entries, _, err := logs.FilterEntries(m.logEntries, filter, 0)
	m.filterErr = err
	if err != nil {
		filter.Pattern = ""
		entries, _, _ = logs.FilterEntries(m.logEntries, filter, 0)
	}
	return entries
}

// updateViewport re-renders the viewport content
func (m *Model) updateViewport() {
	entries := m.filteredEntries()
	if !m.ready {
		return
	}
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, formatLogEntry(entry))
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
}
