package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/charliek/minerd/internal/domain"
	"github.com/charliek/minerd/internal/logging"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors. Every problem is reported,
// not just the first.
func Validate(config *Config) error {
	var result *multierror.Error
	add := func(field, format string, args ...any) {
		result = multierror.Append(result, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(config.Command) == "" {
		add("command", "command is required")
	}

	if config.Address != "" {
		if err := ValidateAddress(config.Address); err != nil {
			result = multierror.Append(result, err)
		}
	}

	checkDuration := func(field, value string, allowZero bool) {
		d, err := time.ParseDuration(value)
		switch {
		case err != nil:
			add(field, "invalid duration %q", value)
		case d < 0 || (d == 0 && !allowZero):
			add(field, "must be positive, got %s", value)
		}
	}
	checkDuration("max_runtime", config.MaxRuntime, false)
	checkDuration("grace_period", config.GracePeriod, false)
	checkDuration("restart_interval", config.RestartInterval, true)

	if _, err := ParseSignal(config.StopSignal); err != nil {
		add("stop_signal", "%v", err)
	}

	if _, err := logging.ParseLevel(config.Log.Level); err != nil {
		add("log.level", "%v", err)
	}

	if config.API.Port < 0 || config.API.Port > 65535 {
		add("api.port", "must be between 0 and 65535, got %d", config.API.Port)
	}

	if g := config.Update.Git; g != nil && strings.TrimSpace(g.Path) == "" {
		add("update.git.path", "path is required")
	}
	if config.Update.Hook != "" && config.Update.Git == nil {
		add("update.hook", "requires update.git")
	}

	if h := config.Health; h != nil {
		u, err := url.Parse(h.URL)
		if h.URL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("health.url", "must be an http(s) URL, got %q", h.URL)
		}
		if h.Interval != "" {
			checkDuration("health.interval", h.Interval, false)
		}
		if h.Timeout != "" {
			checkDuration("health.timeout", h.Timeout, false)
		}
		if h.StartPeriod != "" {
			checkDuration("health.start_period", h.StartPeriod, true)
		}
		if h.Retries < 0 {
			add("health.retries", "must be non-negative")
		}
	}

	if result == nil {
		return nil
	}
	result.ErrorFormat = func(errs []error) string {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return strings.Join(msgs, "; ")
	}
	return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, result)
}

// ValidateAddress checks that a miner address is usable as a single argument
func ValidateAddress(address string) error {
	if address == "" {
		return &ValidationError{Field: "address", Message: "address cannot be empty"}
	}
	if strings.ContainsAny(address, " \t\n") {
		return &ValidationError{Field: "address", Message: "address cannot contain whitespace"}
	}
	return nil
}
