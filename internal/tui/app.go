package tui

import (
	"context"
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/charliek/minerd/internal/domain"
)

// Options configures Run
type Options struct {
	Input  io.Reader
	Output io.Writer
	// OnQuit is called when the user quits the dashboard
	OnQuit func()
}

// Run shows the dashboard until the user quits or ctx is done. Entries are
// read from ch, which the caller keeps subscribed; entries still queued when
// Run returns are left for the caller.
func Run(ctx context.Context, source StatusSource, ch <-chan domain.LogEntry, opts Options) error {
	model := NewModel(source, opts.OnQuit)

	progOpts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
	if opts.Input != nil {
		progOpts = append(progOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		progOpts = append(progOpts, tea.WithOutput(opts.Output))
	}
	p := tea.NewProgram(model, progOpts...)

	fwdCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go forwardLogs(fwdCtx, p, ch)

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// forwardLogs forwards log entries from the subscription channel to the TUI program.
// It exits when the context is cancelled or the channel is closed.
func forwardLogs(ctx context.Context, p *tea.Program, ch <-chan domain.LogEntry) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			p.Send(LogEntryMsg(entry))
		}
	}
}
