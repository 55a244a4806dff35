package api

import (
	"time"

	"github.com/charliek/minerd/internal/domain"
)

// StatusResponse represents the response for GET /status
type StatusResponse struct {
	State         string              `json:"state"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	ConfigFile    string              `json:"config_file,omitempty"`
	APIVersion    string              `json:"api_version"`
	Launches      int                 `json:"launches"`
	Restarts      int                 `json:"restarts"`
	SpawnFailures int                 `json:"spawn_failures"`
	Health        string              `json:"health"`
	Worker        *RunResponse        `json:"worker,omitempty"`
	LastRun       *RunResponse        `json:"last_run,omitempty"`
	LastUpdate    *UpdateCheckSummary `json:"last_update,omitempty"`
}

// RunResponse describes one worker run
type RunResponse struct {
	ID              string `json:"id"`
	PID             int    `json:"pid"`
	StartedAt       string `json:"started_at"`
	EndedAt         string `json:"ended_at,omitempty"`
	DurationSeconds int64  `json:"duration_seconds"`
	ExitCode        *int   `json:"exit_code,omitempty"`
	ExitReason      string `json:"exit_reason,omitempty"`
	ForceKilled     bool   `json:"force_killed,omitempty"`
}

// UpdateCheckSummary is the most recent update check
type UpdateCheckSummary struct {
	CheckedAt string `json:"checked_at"`
	Updated   bool   `json:"updated"`
	Error     string `json:"error,omitempty"`
}

// LogsResponse represents the response for GET /logs
type LogsResponse struct {
	Logs          []LogEntryResponse `json:"logs"`
	FilteredCount int                `json:"filtered_count"`
	TotalCount    int                `json:"total_count"`
}

// LogEntryResponse represents a single log entry
type LogEntryResponse struct {
	Timestamp string `json:"timestamp"`
	RunID     string `json:"run_id"`
	Stream    string `json:"stream"`
	Line      string `json:"line"`
}

// SuccessResponse represents a simple success response
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ToStatusResponse converts a supervisor snapshot
func ToStatusResponse(st domain.Status, configFile string) StatusResponse {
	resp := StatusResponse{
		State:         st.State.String(),
		UptimeSeconds: st.UptimeSeconds(),
		ConfigFile:    configFile,
		APIVersion:    "v1",
		Launches:      st.Launches,
		Restarts:      st.Restarts,
		SpawnFailures: st.SpawnFailures,
		Health:        st.Health.String(),
	}
	if st.Current != nil {
		r := toRunResponse(*st.Current, false)
		resp.Worker = &r
	}
	if st.Last != nil {
		r := toRunResponse(*st.Last, true)
		resp.LastRun = &r
	}
	if u := st.LastUpdate; u != nil {
		resp.LastUpdate = &UpdateCheckSummary{
			CheckedAt: u.CheckedAt.Format(time.RFC3339),
			Updated:   u.Updated,
			Error:     u.Error,
		}
	}
	return resp
}

func toRunResponse(run domain.RunInfo, finished bool) RunResponse {
	r := RunResponse{
		ID:              run.ID,
		PID:             run.PID,
		StartedAt:       run.StartedAt.Format(time.RFC3339),
		DurationSeconds: int64(run.Duration().Seconds()),
		ExitReason:      run.ExitReason.String(),
		ForceKilled:     run.ForceKill,
	}
	if finished {
		code := run.ExitCode
		r.ExitCode = &code
		if !run.EndedAt.IsZero() {
			r.EndedAt = run.EndedAt.Format(time.RFC3339)
		}
	}
	return r
}

// ToLogEntryResponse converts domain.LogEntry to LogEntryResponse
func ToLogEntryResponse(entry domain.LogEntry) LogEntryResponse {
	return LogEntryResponse{
		Timestamp: entry.Timestamp.Format(time.RFC3339Nano),
		RunID:     entry.RunID,
		Stream:    string(entry.Stream),
		Line:      entry.Line,
	}
}
