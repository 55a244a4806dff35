package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/charliek/minerd/internal/domain"
)

var (
	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	runStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	stderrStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	systemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Italic(true)
)

// LogPrinter writes worker output to a terminal
type LogPrinter struct {
	out io.Writer
}

// NewLogPrinter creates a new LogPrinter
func NewLogPrinter(out io.Writer) *LogPrinter {
	return &LogPrinter{out: out}
}

// PrintEntry prints one line prefixed with its time and short run ID
func (lp *LogPrinter) PrintEntry(entry domain.LogEntry) {
	line := entry.Line
	switch entry.Stream {
	case domain.StreamStderr:
		line = stderrStyle.Render(line)
	case domain.StreamSystem:
		line = systemStyle.Render(line)
	}
	fmt.Fprintf(lp.out, "%s %s | %s\n",
		timestampStyle.Render(entry.Timestamp.Format("15:04:05")),
		runStyle.Render(shortRunID(entry.RunID)),
		line)
}

// Follow prints entries from a log subscription until ctx is done or the
// channel closes. Entries already queued when ctx ends are still printed.
func (lp *LogPrinter) Follow(ctx context.Context, ch <-chan domain.LogEntry) {
	for {
		select {
		case <-ctx.Done():
			lp.drain(ch)
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			lp.PrintEntry(entry)
		}
	}
}

func (lp *LogPrinter) drain(ch <-chan domain.LogEntry) {
	for {
		select {
		case entry, ok := <-ch:
			if !ok {
				return
			}
			lp.PrintEntry(entry)
		default:
			return
		}
	}
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return fmt.Sprintf("%-8s", id)
}
