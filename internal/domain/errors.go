package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors
var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrConfigNotFound   = errors.New("config file not found")
	ErrAlreadyRunning   = errors.New("minerd is already running in this directory")
	ErrWorkerNotRunning = errors.New("worker not running")
	ErrInvalidPattern   = errors.New("invalid filter pattern")
	ErrPromptAborted    = errors.New("prompt aborted")
)

// ConfigError reports a configuration that cannot be supervised.
// It is fatal: the supervisor never enters its loop.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError wraps err as a ConfigError. A nil err yields nil.
func NewConfigError(err error) error {
	if err == nil {
		return nil
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return err
	}
	return &ConfigError{Err: err}
}

// UpdateCheckError is a failed update check. Logged and ignored.
type UpdateCheckError struct {
	Source string
	Err    error
}

func (e *UpdateCheckError) Error() string {
	return fmt.Sprintf("update check (%s): %v", e.Source, e.Err)
}

func (e *UpdateCheckError) Unwrap() error {
	return e.Err
}

// SpawnError is a failed worker launch. The loop backs off and retries.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawning %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// TerminationTimeoutError means the worker ignored the stop signal for the
// whole grace period and had to be force-killed.
type TerminationTimeoutError struct {
	PID   int
	Grace time.Duration
}

func (e *TerminationTimeoutError) Error() string {
	return fmt.Sprintf("worker pid %d did not exit within %s, force-killed", e.PID, e.Grace)
}

// Error codes for API responses
const (
	ErrCodeWorkerNotRunning = "WORKER_NOT_RUNNING"
	ErrCodeInvalidPattern   = "INVALID_PATTERN"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
)

// ErrorCode returns the API error code for a domain error
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrWorkerNotRunning):
		return ErrCodeWorkerNotRunning
	case errors.Is(err, ErrInvalidPattern):
		return ErrCodeInvalidPattern
	default:
		return "INTERNAL_ERROR"
	}
}
