// Package prompt asks for the miner address before the supervisor starts.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/charliek/minerd/internal/domain"
)

// Options configures Ask
type Options struct {
	Title   string
	Default string
	// Validate rejects input before it is accepted; nil accepts anything
	Validate func(string) error
	Input    io.Reader
	Output   io.Writer
}

// Result is the accepted answer
type Result struct {
	Value string
	// Defaulted is set when the answer came from Options.Default
	Defaulted bool
	// Interactive is false when stdin was not a terminal
	Interactive bool
}

// Ask shows the prompt and returns the answer. Empty input yields the
// default. Esc, Ctrl+C or a cancelled ctx return domain.ErrPromptAborted.
// When the input is not a terminal, the first line is read instead.
func Ask(ctx context.Context, opts Options) (Result, error) {
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	if !IsTerminal(opts.Input) {
		return readLine(opts)
	}

	p := tea.NewProgram(newModel(opts),
		tea.WithInput(opts.Input),
		tea.WithOutput(opts.Output),
		tea.WithContext(ctx),
	)
	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) || ctx.Err() != nil {
			return Result{}, domain.ErrPromptAborted
		}
		return Result{}, fmt.Errorf("running prompt: %w", err)
	}

	m := final.(model)
	if m.aborted {
		return Result{}, domain.ErrPromptAborted
	}
	return Result{Value: m.value, Defaulted: m.defaulted, Interactive: true}, nil
}

func readLine(opts Options) (Result, error) {
	line, err := bufio.NewReader(opts.Input).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return Result{}, fmt.Errorf("reading answer: %w", err)
	}
	value, defaulted := resolve(line, opts.Default)
	if opts.Validate != nil {
		if err := opts.Validate(value); err != nil {
			return Result{}, err
		}
	}
	return Result{Value: value, Defaulted: defaulted}, nil
}

func resolve(input, def string) (string, bool) {
	v := strings.TrimSpace(input)
	if v == "" {
		return def, true
	}
	return v, false
}

// IsTerminal reports whether r is a terminal
func IsTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd())
}

type model struct {
	opts  Options
	input textinput.Model

	value     string
	defaulted bool
	aborted   bool
	err       error
}

func newModel(opts Options) model {
	ti := textinput.New()
	ti.Placeholder = opts.Default
	ti.CharLimit = 128
	ti.Width = 70
	ti.Focus()

	return model{opts: opts, input: ti}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.aborted = true
			return m, tea.Quit
		case tea.KeyEnter:
			value, defaulted := resolve(m.input.Value(), m.opts.Default)
			if m.opts.Validate != nil {
				if err := m.opts.Validate(value); err != nil {
					m.err = err
					return m, nil
				}
			}
			m.value, m.defaulted = value, defaulted
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.err = nil
	return m, cmd
}

func (m model) View() string {
	if m.aborted {
		return ""
	}
	if m.value != "" {
		return fmt.Sprintf("%s %s\n", titleStyle.Render(m.opts.Title), m.value)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.opts.Title))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()))
	} else {
		b.WriteString(hintStyle.Render("enter to accept, empty for the default, esc to quit"))
	}
	b.WriteString("\n")
	return b.String()
}
