// Package daemon owns the per-directory runtime files of a minerd instance:
// the PID lock, the state file and recovery of workers left behind by a
// previous instance that died without cleaning up.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/charliek/minerd/internal/domain"
	"github.com/charliek/minerd/internal/supervisor"
)

// Instance holds the PID lock for a directory and keeps the state file in
// sync with the supervisor. It implements supervisor.Observer.
type Instance struct {
	supervisor.NopObserver

	dir    string
	pid    *PIDFile
	logger *zap.Logger

	mu       sync.Mutex
	state    State
	previous *State
	closed   bool
}

// Acquire takes the PID lock in dir and writes a fresh state file. A state
// file left by a dead instance is returned by Previous so its worker can be
// reaped. Returns an error wrapping domain.ErrAlreadyRunning when another
// live instance owns the directory.
func Acquire(dir, configFile string, logger *zap.Logger) (*Instance, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := EnsureStateDir(dir); err != nil {
		return nil, err
	}

	pid := NewPIDFile(PIDPath(dir))
	if err := pid.Create(); err != nil {
		return nil, err
	}

	inst := &Instance{
		dir:    dir,
		pid:    pid,
		logger: logger,
		state: State{
			PID:        os.Getpid(),
			StartedAt:  time.Now(),
			ConfigFile: configFile,
		},
	}

	prev, err := LoadState(dir)
	switch {
	case err == nil:
		if prev.PID != os.Getpid() {
			inst.previous = prev
		}
	case errors.Is(err, ErrStateNotFound):
	default:
		logger.Warn("ignoring unreadable state file", zap.Error(err))
	}

	if err := inst.state.Write(dir); err != nil {
		_ = pid.Release()
		return nil, err
	}
	return inst, nil
}

// Dir returns the directory the instance owns
func (i *Instance) Dir() string {
	return i.dir
}

// Previous returns the state left by a dead instance, or nil
func (i *Instance) Previous() *State {
	return i.previous
}

// State returns a copy of the current state record
func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// SetAPIAddr records the address of the status API
func (i *Instance) SetAPIAddr(addr string) {
	i.update(func(s *State) { s.APIAddr = addr })
}

// WorkerStarted records the new worker so a successor can reap it.
func (i *Instance) WorkerStarted(run domain.RunInfo) {
	i.update(func(s *State) {
		s.WorkerPID = run.PID
		s.WorkerStartedAt = run.StartedAt
		s.RunID = run.ID
	})
}

// WorkerExited clears the worker fields.
func (i *Instance) WorkerExited(domain.RunInfo) {
	i.update(func(s *State) {
		s.WorkerPID = 0
		s.WorkerStartedAt = time.Time{}
		s.RunID = ""
	})
}

func (i *Instance) update(fn func(*State)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	fn(&i.state)
	if err := i.state.Write(i.dir); err != nil {
		i.logger.Warn("writing state file", zap.Error(err))
	}
}

// Close removes the state file and releases the PID lock. Safe to call twice.
func (i *Instance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true

	var result *multierror.Error
	if err := RemoveState(i.dir); err != nil {
		result = multierror.Append(result, err)
	}
	if err := i.pid.Release(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("releasing instance: %w", err)
	}
	return nil
}
