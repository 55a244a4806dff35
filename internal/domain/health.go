package domain

import "time"

// HealthStatus represents the probed health of the worker
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusUnknown   HealthStatus = "unknown"
	HealthStatusDisabled  HealthStatus = "disabled"
)

// String returns the string representation of HealthStatus
func (s HealthStatus) String() string {
	return string(s)
}

// HealthConfig configures the JSON-RPC probe of the worker node.
// An empty URL disables probing.
type HealthConfig struct {
	URL         string
	Method      string
	Interval    time.Duration
	Timeout     time.Duration
	Retries     int
	StartPeriod time.Duration
}

// Enabled returns true when a probe URL is configured
func (c HealthConfig) Enabled() bool {
	return c.URL != ""
}

// WithDefaults returns a copy of the config with default values applied
func (c HealthConfig) WithDefaults() HealthConfig {
	result := c
	if result.Method == "" {
		result.Method = "latestblockheight"
	}
	if result.Interval == 0 {
		result.Interval = 30 * time.Second
	}
	if result.Timeout == 0 {
		result.Timeout = 5 * time.Second
	}
	if result.Retries == 0 {
		result.Retries = 3
	}
	if result.StartPeriod == 0 {
		result.StartPeriod = 2 * time.Minute
	}
	return result
}

// HealthState represents the current health probe state
type HealthState struct {
	Status              HealthStatus `json:"status"`
	LastCheck           time.Time    `json:"last_check,omitempty"`
	LastHeight          uint64       `json:"last_height,omitempty"`
	LastError           string       `json:"last_error,omitempty"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
}
