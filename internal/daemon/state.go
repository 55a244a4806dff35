package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// StateDirName is the name of the directory storing runtime state
	StateDirName = ".minerd"
	// StateFileName is the name of the state file
	StateFileName = "minerd.state"
	// PIDFileName is the name of the PID file
	PIDFileName = "minerd.pid"
)

// State is the on-disk record of a running supervisor and its current worker.
// WorkerPID is zero between runs.
type State struct {
	PID             int       `json:"pid"`
	StartedAt       time.Time `json:"started_at"`
	ConfigFile      string    `json:"config_file,omitempty"`
	APIAddr         string    `json:"api_addr,omitempty"`
	WorkerPID       int       `json:"worker_pid,omitempty"`
	WorkerStartedAt time.Time `json:"worker_started_at,omitempty"`
	RunID           string    `json:"run_id,omitempty"`
}

// Write writes the state to the state file in the given directory.
// The file is replaced atomically.
func (s *State) Write(dir string) error {
	if s.PID <= 0 {
		return fmt.Errorf("invalid PID: %d", s.PID)
	}
	if s.WorkerPID < 0 {
		return fmt.Errorf("invalid worker PID: %d", s.WorkerPID)
	}

	if err := EnsureStateDir(dir); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	statePath := StatePath(dir)
	tmp := statePath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening state file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing state file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing state file: %w", err)
	}

	if err := os.Rename(tmp, statePath); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

// LoadState reads the state from the state file in the given directory
func LoadState(dir string) (*State, error) {
	data, err := os.ReadFile(StatePath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshaling state: %w", err)
	}

	return &state, nil
}

// StateDir returns the path to the .minerd directory in the given directory.
// If dir is empty, uses the current working directory.
func StateDir(dir string) string {
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return StateDirName
		}
	}
	return filepath.Join(dir, StateDirName)
}

// StatePath returns the full path to the state file
func StatePath(dir string) string {
	return filepath.Join(StateDir(dir), StateFileName)
}

// PIDPath returns the full path to the PID file
func PIDPath(dir string) string {
	return filepath.Join(StateDir(dir), PIDFileName)
}

// EnsureStateDir creates the .minerd directory if it doesn't exist
func EnsureStateDir(dir string) error {
	if err := os.MkdirAll(StateDir(dir), 0700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}

// RemoveState removes the state file from the given directory
func RemoveState(dir string) error {
	if err := os.Remove(StatePath(dir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing state file: %w", err)
	}
	return nil
}
