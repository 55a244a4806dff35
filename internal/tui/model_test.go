package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charliek/minerd/internal/domain"
)

type staticStatus struct {
	status domain.Status
}

func (s *staticStatus) Status() domain.Status { return s.status }

func runningStatus(runID string) domain.Status {
	return domain.Status{
		State:     domain.StateRunning,
		StartedAt: time.Now().Add(-time.Hour),
		Launches:  3,
		Restarts:  2,
		Current:   &domain.RunInfo{ID: runID, PID: 4242, StartedAt: time.Now().Add(-90 * time.Second)},
		Health:    domain.HealthStatusHealthy,
	}
}

// newTestModel creates a Model with a static status source.
func newTestModel() Model {
	return NewModel(&staticStatus{status: runningStatus("run-b")}, nil)
}

func key(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func sampleEntries() []domain.LogEntry {
	return []domain.LogEntry{
		{RunID: "run-a", Stream: domain.StreamStdout, Line: "block 1 mined"},
		{RunID: "run-a", Stream: domain.StreamStderr, Line: "peer timeout"},
		{RunID: "run-a", Stream: domain.StreamSystem, Line: "worker exited"},
		{RunID: "run-b", Stream: domain.StreamStdout, Line: "block 2 mined"},
		{RunID: "run-b", Stream: domain.StreamStderr, Line: "peer reset"},
	}
}

func TestNewModel(t *testing.T) {
	model := newTestModel()

	assert.Equal(t, ModeNormal, model.mode)
	assert.False(t, model.ready)
	assert.True(t, model.followMode)
	assert.Empty(t, model.logEntries)
	assert.Equal(t, domain.StateRunning, model.status.State)
}

func TestModel_Quit(t *testing.T) {
	t.Run("q stops the supervisor", func(t *testing.T) {
		quits := 0
		model := NewModel(&staticStatus{}, func() { quits++ })

		_, cmd := model.Update(key('q'))
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
		assert.Equal(t, 1, quits)
	})

	t.Run("ctrl+c", func(t *testing.T) {
		quits := 0
		model := NewModel(&staticStatus{}, func() { quits++ })

		_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
		require.NotNil(t, cmd)
		assert.Equal(t, 1, quits)
	})

	t.Run("q while typing a filter", func(t *testing.T) {
		quits := 0
		model := NewModel(&staticStatus{}, func() { quits++ })
		model = update(t, model, key('s'))
		model = update(t, model, key('q'))

		assert.Equal(t, 0, quits)
		assert.Equal(t, "q", model.searchPattern)
	})
}

func TestModel_ModeSwitch(t *testing.T) {
	tests := []struct {
		key   rune
		mode  Mode
		regex bool
	}{
		{'?', ModeHelp, false},
		{'/', ModeSearch, true},
		{'s', ModeStringFilter, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			m := update(t, newTestModel(), key(tt.key))
			assert.Equal(t, tt.mode, m.mode)
			if tt.mode != ModeHelp {
				assert.Equal(t, tt.regex, m.searchRegex)
			}
		})
	}

	t.Run("any key closes help", func(t *testing.T) {
		m := update(t, newTestModel(), key('?'))
		m = update(t, m, key('x'))
		assert.Equal(t, ModeNormal, m.mode)
	})
}

func TestModel_LogEntryMsg(t *testing.T) {
	model := update(t, newTestModel(), tea.WindowSizeMsg{Width: 120, Height: 40})

	entry := domain.LogEntry{Timestamp: time.Now(), RunID: "run-b", Stream: domain.StreamStdout, Line: "block 3 mined"}
	model = update(t, model, LogEntryMsg(entry))

	require.Len(t, model.logEntries, 1)
	assert.Equal(t, "block 3 mined", model.logEntries[0].Line)
	assert.Contains(t, model.View(), "block 3 mined")
}

func TestModel_LogEntryLimit(t *testing.T) {
	model := newTestModel()
	for i := 0; i < maxLogEntries+5; i++ {
		model = update(t, model, LogEntryMsg(domain.LogEntry{Stream: domain.StreamStdout, Line: "line"}))
	}
	assert.Len(t, model.logEntries, maxLogEntries)
}

func TestFilteredEntries(t *testing.T) {
	lines := func(entries []domain.LogEntry) []string {
		out := make([]string, len(entries))
		for i, e := range entries {
			out[i] = e.Line
		}
		return out
	}

	t.Run("no filter", func(t *testing.T) {
		model := newTestModel()
		model.logEntries = sampleEntries()
		assert.Len(t, model.filteredEntries(), 5)
	})

	t.Run("stream toggles", func(t *testing.T) {
		model := newTestModel()
		model.logEntries = sampleEntries()

		model = update(t, model, key('2'))
		assert.Equal(t, []string{"block 1 mined", "worker exited", "block 2 mined"}, lines(model.filteredEntries()))

		model = update(t, model, key('3'))
		assert.Equal(t, []string{"block 1 mined", "block 2 mined"}, lines(model.filteredEntries()))

		model = update(t, model, key('2'))
		assert.Equal(t, []string{"block 1 mined", "peer timeout", "block 2 mined", "peer reset"}, lines(model.filteredEntries()))
	})

	t.Run("all streams hidden", func(t *testing.T) {
		model := newTestModel()
		model.logEntries = sampleEntries()
		for _, k := range []rune{'1', '2', '3'} {
			model = update(t, model, key(k))
		}
		assert.Empty(t, model.filteredEntries())
	})

	t.Run("current run", func(t *testing.T) {
		model := newTestModel()
		model.logEntries = sampleEntries()
		model = update(t, model, key('c'))
		assert.Equal(t, []string{"block 2 mined", "peer reset"}, lines(model.filteredEntries()))
	})

	t.Run("current run while idle", func(t *testing.T) {
		model := NewModel(&staticStatus{status: domain.Status{State: domain.StateIdle}}, nil)
		model.logEntries = sampleEntries()
		model = update(t, model, key('c'))
		assert.Empty(t, model.filteredEntries())
	})

	t.Run("substring", func(t *testing.T) {
		model := newTestModel()
		model.logEntries = sampleEntries()
		model.searchPattern = "peer"
		assert.Equal(t, []string{"peer timeout", "peer reset"}, lines(model.filteredEntries()))
	})

	t.Run("regex", func(t *testing.T) {
		model := newTestModel()
		model.logEntries = sampleEntries()
		model.searchPattern = `^block \d`
		model.searchRegex = true
		assert.Equal(t, []string{"block 1 mined", "block 2 mined"}, lines(model.filteredEntries()))
	})

	t.Run("invalid regex is ignored", func(t *testing.T) {
		model := newTestModel()
		model.logEntries = sampleEntries()
		model.searchPattern = `block (`
		model.searchRegex = true

		assert.Len(t, model.filteredEntries(), 5)
		assert.True(t, errors.Is(model.filterErr, domain.ErrInvalidPattern))
	})
}

func TestModel_StringFilterTyping(t *testing.T) {
	model := newTestModel()
	model.logEntries = sampleEntries()

	model = update(t, model, key('s'))
	for _, r := range "reset" {
		model = update(t, model, key(r))
	}
	assert.Equal(t, "reset", model.searchPattern)

	model = update(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, ModeNormal, model.mode)
	assert.Len(t, model.filteredEntries(), 1)
}

func TestModel_RegexAppliedOnEnter(t *testing.T) {
	model := newTestModel()
	model.logEntries = sampleEntries()

	model = update(t, model, key('/'))
	for _, r := range "mined$" {
		model = update(t, model, key(r))
	}
	assert.Empty(t, model.searchPattern)

	model = update(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "mined$", model.searchPattern)
	assert.Len(t, model.filteredEntries(), 2)
}

func TestModel_EscClearsFilters(t *testing.T) {
	model := newTestModel()
	model.logEntries = sampleEntries()
	model.searchPattern = "peer"
	model.currentRun = true
	model.hidden[domain.StreamStderr] = true

	model = update(t, model, tea.KeyMsg{Type: tea.KeyEscape})

	assert.Empty(t, model.searchPattern)
	assert.False(t, model.currentRun)
	assert.Empty(t, model.hidden)
	assert.Len(t, model.filteredEntries(), 5)
}

func TestModel_TickRefreshesStatus(t *testing.T) {
	source := &staticStatus{status: domain.Status{State: domain.StateLaunching}}
	model := NewModel(source, nil)

	source.status = runningStatus("run-c")
	next, cmd := model.Update(TickMsg(time.Now()))
	model = next.(Model)

	assert.Equal(t, domain.StateRunning, model.status.State)
	assert.NotNil(t, cmd)
}

func TestFollowModeDisabledOnScrollUp(t *testing.T) {
	tests := []struct {
		name string
		key  tea.KeyMsg
	}{
		{"k key", key('k')},
		{"up arrow", tea.KeyMsg{Type: tea.KeyUp}},
		{"g key", key('g')},
		{"home key", tea.KeyMsg{Type: tea.KeyHome}},
		{"pgup key", tea.KeyMsg{Type: tea.KeyPgUp}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := update(t, newTestModel(), tt.key)
			assert.False(t, m.followMode, "followMode should be false after %s", tt.name)
		})
	}
}

func TestFollowModeEnabledOnGoToBottom(t *testing.T) {
	for _, k := range []tea.KeyMsg{key('G'), {Type: tea.KeyEnd}} {
		t.Run(k.String(), func(t *testing.T) {
			model := newTestModel()
			model.followMode = false
			m := update(t, model, k)
			assert.True(t, m.followMode)
		})
	}
}

func TestFollowModeToggle(t *testing.T) {
	model := newTestModel()

	m := update(t, model, key('F'))
	assert.False(t, m.followMode)

	m = update(t, m, key('F'))
	assert.True(t, m.followMode)
}

func TestView(t *testing.T) {
	t.Run("before size is known", func(t *testing.T) {
		assert.Equal(t, "Initializing...", newTestModel().View())
	})

	t.Run("status panel", func(t *testing.T) {
		model := update(t, newTestModel(), tea.WindowSizeMsg{Width: 160, Height: 30})
		view := model.View()

		assert.Contains(t, view, "RUNNING")
		assert.Contains(t, view, "pid 4242")
		assert.Contains(t, view, "launches 3")
		assert.Contains(t, view, "restarts 2")
		assert.Contains(t, view, "[FOLLOW]")
	})

	t.Run("last exit when idle", func(t *testing.T) {
		source := &staticStatus{status: domain.Status{
			State: domain.StateIdle,
			Last:  &domain.RunInfo{ID: "run-a", ExitCode: 137, ExitReason: domain.ExitReasonMaxRuntime},
		}}
		model := update(t, NewModel(source, nil), tea.WindowSizeMsg{Width: 160, Height: 30})
		assert.Contains(t, model.View(), "last exit 137 (max_runtime)")
	})

	t.Run("help", func(t *testing.T) {
		model := update(t, newTestModel(), tea.WindowSizeMsg{Width: 160, Height: 30})
		model = update(t, model, key('?'))
		assert.Contains(t, model.View(), "Current run only")
	})
}

func TestFormatLogEntry(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 30, 45, 0, time.UTC)

	out := formatLogEntry(domain.LogEntry{Timestamp: ts, RunID: "0123456789", Stream: domain.StreamStderr, Line: "boom"})
	assert.Contains(t, out, "12:30:45")
	assert.Contains(t, out, "01234567")
	assert.NotContains(t, out, "0123456789")
	assert.Contains(t, out, "ERR")
	assert.True(t, strings.HasSuffix(out, "boom"))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0m00s"},
		{90 * time.Second, "1m30s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h02m03s"},
		{1500 * time.Millisecond, "0m02s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.d))
	}
}

func TestTruncateError(t *testing.T) {
	assert.Equal(t, "", truncateError(nil, 10))
	assert.Equal(t, "short", truncateError(errors.New("short"), 10))
	assert.Equal(t, "abcdefg...", truncateError(errors.New("abcdefghijklmnop"), 10))
}
