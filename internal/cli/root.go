package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/charliek/minerd/internal/domain"
)

// Version is set during build
var Version = "dev"

// Exit codes
const (
	ExitOK      = 0
	ExitFailure = 1
	// ExitAborted follows the shell convention for SIGINT
	ExitAborted = 130
)

// NewRootCommand builds the minerd command. It takes no flags and no
// subcommands; every argument is appended to the node's argument list.
func NewRootCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "minerd [node args...]",
		Short: "Keep a mining node running, updated and periodically restarted",
		Long: `minerd asks for a miner address, then supervises the mining node:
  - pulls updates before every launch
  - restarts the node after a maximum runtime
  - stops it cleanly on Ctrl+C`,
		Version:            Version,
		Args:               cobra.ArbitraryArgs,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd.Context(), workerArgs(args))
		},
	}
}

// workerArgs drops a leading "--" separator
func workerArgs(args []string) []string {
	if len(args) > 0 && args[0] == "--" {
		return args[1:]
	}
	return args
}

// Execute runs minerd in the current directory and returns the exit code
func Execute() int {
	app, err := NewApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitFailure
	}
	if err := NewRootCommand(app).ExecuteContext(context.Background()); err != nil {
		code := ExitCode(err)
		if code != ExitAborted {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return code
	}
	return ExitOK
}

// ExitCode maps a Run error to the process exit code
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, domain.ErrPromptAborted):
		return ExitAborted
	default:
		return ExitFailure
	}
}
