// Package update checks for a newer build of the node before each launch.
package update

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/charliek/minerd/internal/domain"
)

// Checker reports whether the node's source changed since the last check.
type Checker interface {
	Check(ctx context.Context) (updated bool, err error)
}

// CheckerFunc adapts a function to Checker
type CheckerFunc func(ctx context.Context) (bool, error)

// Check calls f(ctx)
func (f CheckerFunc) Check(ctx context.Context) (bool, error) {
	return f(ctx)
}

// Noop is the checker used when no update source is configured
type Noop struct{}

// Check always reports no update
func (Noop) Check(context.Context) (bool, error) {
	return false, nil
}

type hookChecker struct {
	Checker
	command string
	dir     string
}

// WithHook runs command through sh in dir whenever checker reports an update,
// e.g. "cargo clean" so the next launch rebuilds from the pulled source.
func WithHook(checker Checker, command, dir string) Checker {
	if command == "" {
		return checker
	}
	return &hookChecker{Checker: checker, command: command, dir: dir}
}

func (h *hookChecker) Check(ctx context.Context) (bool, error) {
	updated, err := h.Checker.Check(ctx)
	if err != nil || !updated {
		return updated, err
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", h.command)
	cmd.Dir = h.dir
	if out, err := cmd.CombinedOutput(); err != nil {
		msg := strings.TrimSpace(string(out))
		if len(msg) > 500 {
			msg = msg[:500] + "..."
		}
		return true, &domain.UpdateCheckError{
			Source: "hook",
			Err:    fmt.Errorf("%s: %w: %s", h.command, err, msg),
		}
	}
	return true, nil
}
