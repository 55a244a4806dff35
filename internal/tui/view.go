package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/charliek/minerd/internal/domain"
)

// maxErrorDisplayLen is the maximum length of error messages in the status bar
const maxErrorDisplayLen = 60

// View renders the TUI
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.mode == ModeHelp {
		return helpView()
	}

	var sb strings.Builder
	sb.WriteString(m.statusPanel())
	sb.WriteString("\n")
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")
	sb.WriteString(m.statusBar())
	return sb.String()
}

// stateStyle returns the style for a supervisor state
func stateStyle(state domain.State) lipgloss.Style {
	switch state {
	case domain.StateRunning:
		return runningStyle
	case domain.StateCheckingUpdate, domain.StateLaunching:
		return launchingStyle
	case domain.StateTerminating:
		return terminatingStyle
	case domain.StateStopped:
		return stoppedStyle
	default:
		return idleStyle
	}
}

// statusPanel renders the supervisor header
func (m Model) statusPanel() string {
	st := m.status
	items := []string{stateStyle(st.State).Render(strings.ToUpper(st.State.String()))}

	if run := st.Current; run != nil {
		items = append(items,
			"run "+runStyle.Render(shortID(run.ID)),
			fmt.Sprintf("pid %d", run.PID),
			"up "+formatDuration(run.Duration()),
		)
	} else if last := st.Last; last != nil {
		items = append(items, dimStyle.Render(fmt.Sprintf("last exit %d (%s)", last.ExitCode, last.ExitReason)))
	}

	items = append(items, fmt.Sprintf("launches %d", st.Launches), fmt.Sprintf("restarts %d", st.Restarts))
	if st.SpawnFailures > 0 {
		items = append(items, errorStyle.Render(fmt.Sprintf(" spawn failures %d ", st.SpawnFailures)))
	}
	switch st.Health {
	case domain.HealthStatusHealthy:
		items = append(items, runningStyle.Render("healthy"))
	case domain.HealthStatusUnhealthy:
		items = append(items, errorStyle.Render(" unhealthy "))
	}
	if u := st.LastUpdate; u != nil && u.Error != "" {
		items = append(items, errorStyle.Render(" update failed "))
	}

	return headerStyle.Render(strings.Join(items, "  "))
}

// statusBar renders the bottom status bar
func (m Model) statusBar() string {
	var left string
	switch m.mode {
	case ModeSearch:
		left = "Regex: " + m.textInput.View()
	case ModeStringFilter:
		left = "Filter: " + m.textInput.View()
	default:
		var active []string
		for _, key := range []string{"1", "2", "3"} {
			if m.hidden[streamKeys[key]] {
				active = append(active, "-"+streamKeys[key].String())
			}
		}
		if m.currentRun {
			active = append(active, "current run")
		}
		if m.searchPattern != "" {
			active = append(active, fmt.Sprintf("%q", m.searchPattern))
		}
		if len(active) == 0 {
			left = "? for help"
		} else {
			left = "Showing: " + strings.Join(active, " ") + " (ESC to clear)"
		}
		if m.filterErr != nil {
			left += " | " + truncateError(m.filterErr, maxErrorDisplayLen)
		}
	}

	followIndicator := "[FOLLOW]"
	if !m.followMode {
		followIndicator = "[PAUSED]"
	}
	right := fmt.Sprintf("%s %d/%d lines", followIndicator, len(m.filteredEntries()), len(m.logEntries))

	leftWidth := m.width - len(right) - 4
	if leftWidth < 0 {
		leftWidth = 0
	}

	return lipgloss.JoinHorizontal(lipgloss.Top,
		statusStyle.Width(leftWidth).Render(left), "  ", statusStyle.Render(right))
}

// formatLogEntry formats a single log entry for display
func formatLogEntry(entry domain.LogEntry) string {
	ts := dimStyle.Render(entry.Timestamp.Format("15:04:05"))
	run := runStyle.Render(shortID(entry.RunID))

	switch entry.Stream {
	case domain.StreamStderr:
		return fmt.Sprintf("%s %s%s %s", ts, run, errorStyle.Render(" ERR "), entry.Line)
	case domain.StreamSystem:
		return fmt.Sprintf("%s %s %s", ts, run, systemStyle.Render(entry.Line))
	default:
		return fmt.Sprintf("%s %s %s", ts, run, entry.Line)
	}
}

func helpView() string {
	return helpStyle.Render(`
minerd

Navigation:
  j/↓        Scroll down
  k/↑        Scroll up (pauses auto-follow)
  g/Home     Go to top (pauses auto-follow)
  G/End      Go to bottom (resumes auto-follow)
  PgUp/PgDn  Page up/down
  F          Toggle auto-follow mode

Filtering:
  1/2/3      Toggle stdout/stderr/system lines
  c          Current run only (toggle)
  /          Pattern filter (regex)
  s          String filter (substring)
  ESC        Clear filters

Other:
  ?          Toggle help
  q/Ctrl+C   Stop the node and quit

Press any key to close help...
`)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return fmt.Sprintf("%-8s", id)
}

// formatDuration renders d rounded to the second, e.g. 12m03s
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	mins := d / time.Minute
	secs := (d - mins*time.Minute) / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, mins, secs)
	}
	return fmt.Sprintf("%dm%02ds", mins, secs)
}

// truncateError truncates an error message to maxLen characters
func truncateError(err error, maxLen int) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxLen {
		return msg[:maxLen-3] + "..."
	}
	return msg
}
