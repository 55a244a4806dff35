package domain

import "time"

// State is a phase of the supervisor loop.
//
//	Idle -> CheckingUpdate -> Launching -> Running -> Terminating -> (Idle | Stopped)
//
// Stopped is terminal and only reached after a shutdown signal.
type State string

const (
	// StateIdle is the gap between two runs of the worker
	StateIdle State = "idle"
	// StateCheckingUpdate means the update source is being queried
	StateCheckingUpdate State = "checking_update"
	// StateLaunching means the worker is being spawned (including spawn backoff)
	StateLaunching State = "launching"
	// StateRunning means a worker is alive and being waited on
	StateRunning State = "running"
	// StateTerminating means a stop signal was sent and the worker has not exited yet
	StateTerminating State = "terminating"
	// StateStopped is terminal
	StateStopped State = "stopped"
)

// AllStates lists every state in loop order.
var AllStates = []State{
	StateIdle,
	StateCheckingUpdate,
	StateLaunching,
	StateRunning,
	StateTerminating,
	StateStopped,
}

// String returns the string representation of State
func (s State) String() string {
	return string(s)
}

// IsTerminal returns true for Stopped
func (s State) IsTerminal() bool {
	return s == StateStopped
}

// HasWorker returns true for the states in which a child process may exist
func (s State) HasWorker() bool {
	return s == StateRunning || s == StateTerminating
}

// ExitReason records why a worker run ended.
type ExitReason string

const (
	// ExitReasonExited means the worker exited on its own (crash or completion)
	ExitReasonExited ExitReason = "exited"
	// ExitReasonMaxRuntime means the supervisor stopped it at the maximum runtime
	ExitReasonMaxRuntime ExitReason = "max_runtime"
	// ExitReasonUnhealthy means the health probe failed too many times
	ExitReasonUnhealthy ExitReason = "unhealthy"
	// ExitReasonShutdown means a shutdown signal stopped it
	ExitReasonShutdown ExitReason = "shutdown"
)

// String returns the string representation of ExitReason
func (r ExitReason) String() string {
	return string(r)
}

// RunInfo describes one launch of the worker.
type RunInfo struct {
	ID         string     `json:"id"`
	PID        int        `json:"pid"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    time.Time  `json:"ended_at,omitempty"`
	ExitCode   int        `json:"exit_code"`
	ExitReason ExitReason `json:"exit_reason,omitempty"`
	ForceKill  bool       `json:"force_killed"`
}

// Duration returns how long the run lasted, or has lasted so far.
func (r RunInfo) Duration() time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	if r.EndedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// UpdateResult is the outcome of the most recent update check.
type UpdateResult struct {
	CheckedAt time.Time `json:"checked_at"`
	Updated   bool      `json:"updated"`
	Error     string    `json:"error,omitempty"`
}

// Status is a point-in-time snapshot of the supervisor.
type Status struct {
	State         State         `json:"state"`
	StartedAt     time.Time     `json:"started_at"`
	Launches      int           `json:"launches"`
	Restarts      int           `json:"restarts"`
	SpawnFailures int           `json:"spawn_failures"`
	Current       *RunInfo      `json:"current,omitempty"`
	Last          *RunInfo      `json:"last,omitempty"`
	LastUpdate    *UpdateResult `json:"last_update,omitempty"`
	Health        HealthStatus  `json:"health"`
}

// UptimeSeconds returns the number of seconds the supervisor has been running
func (s Status) UptimeSeconds() int64 {
	if s.StartedAt.IsZero() {
		return 0
	}
	return int64(time.Since(s.StartedAt).Seconds())
}
