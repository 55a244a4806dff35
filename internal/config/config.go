package config

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"

	"github.com/charliek/minerd/internal/constants"
	"github.com/charliek/minerd/internal/domain"
)

// Config represents the top-level minerd configuration
type Config struct {
	Address         string            `yaml:"address"`
	Command         string            `yaml:"command"`
	Args            []string          `yaml:"args"`
	Dir             string            `yaml:"dir"`
	EnvFile         string            `yaml:"env_file"`
	Env             map[string]string `yaml:"env"`
	MaxRuntime      string            `yaml:"max_runtime"`
	GracePeriod     string            `yaml:"grace_period"`
	RestartInterval string            `yaml:"restart_interval"`
	StopSignal      string            `yaml:"stop_signal"`
	Update          UpdateConfig      `yaml:"update"`
	Health          *HealthConfig     `yaml:"health,omitempty"`
	Log             LogConfig         `yaml:"log"`
	API             APIConfig         `yaml:"api"`
	// Dashboard shows the full-screen status view instead of plain output
	// when running in a terminal
	Dashboard bool `yaml:"dashboard"`
}

// UpdateConfig selects the update source checked before every launch.
// With no git section the check is a no-op.
type UpdateConfig struct {
	Git  *GitConfig `yaml:"git,omitempty"`
	Hook string     `yaml:"hook"`
}

// GitConfig points at the working tree the node is built from
type GitConfig struct {
	Path   string `yaml:"path"`
	Remote string `yaml:"remote"`
	Branch string `yaml:"branch"`
}

// HealthConfig defines the node's JSON-RPC probe in YAML
type HealthConfig struct {
	URL         string `yaml:"url"`
	Method      string `yaml:"method"`
	Interval    string `yaml:"interval"`
	Timeout     string `yaml:"timeout"`
	Retries     int    `yaml:"retries"`
	StartPeriod string `yaml:"start_period"`
}

// LogConfig controls the supervisor's own logging
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
	JSON  bool   `yaml:"json"`
}

// APIConfig defines the optional status API
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	// Token enables bearer authentication on /api/v1 when set
	Token string `yaml:"token"`
}

// Default returns the configuration used when no config file exists.
// It launches the node the same way the stock run-miner script does.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses a configuration file
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("checking config file: %w", err)
	}

	if err := CheckFilePermissions(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes
func Parse(data []byte) (*Config, error) {
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: parsing yaml: %v", domain.ErrInvalidConfig, err)
	}

	applyDefaults(config)

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

func applyDefaults(c *Config) {
	if c.Command == "" {
		c.Command = constants.DefaultCommand
		if len(c.Args) == 0 {
			c.Args = append([]string(nil), constants.DefaultArgs...)
		}
	}
	if c.Dir == "" {
		c.Dir = "."
	}
	if c.MaxRuntime == "" {
		c.MaxRuntime = constants.DefaultMaxRuntime.String()
	}
	if c.GracePeriod == "" {
		c.GracePeriod = constants.DefaultGracePeriod.String()
	}
	if c.RestartInterval == "" {
		c.RestartInterval = constants.DefaultRestartInterval.String()
	}
	if c.StopSignal == "" {
		c.StopSignal = constants.DefaultStopSignal
	}
	if c.Log.Level == "" {
		c.Log.Level = constants.DefaultLogLevel
	}
	if c.API.Port == 0 {
		c.API.Port = constants.DefaultAPIPort
	}
	if c.API.Host == "" {
		c.API.Host = constants.DefaultAPIHost
	}
	if g := c.Update.Git; g != nil {
		if g.Path == "" {
			g.Path = "."
		}
		if g.Remote == "" {
			g.Remote = "origin"
		}
	}
}

// ExpandArgs returns the worker arguments with the address placeholder
// substituted and extra appended.
func (c *Config) ExpandArgs(address string, extra ...string) []string {
	args := make([]string, 0, len(c.Args)+len(extra))
	for _, a := range c.Args {
		args = append(args, strings.ReplaceAll(a, constants.AddressPlaceholder, address))
	}
	return append(args, extra...)
}

// NeedsAddress reports whether any argument references the miner address
func (c *Config) NeedsAddress() bool {
	for _, a := range c.Args {
		if strings.Contains(a, constants.AddressPlaceholder) {
			return true
		}
	}
	return false
}

// MaxRuntimeDuration returns the parsed max_runtime
func (c *Config) MaxRuntimeDuration() time.Duration {
	return durationOr(c.MaxRuntime, constants.DefaultMaxRuntime)
}

// GracePeriodDuration returns the parsed grace_period
func (c *Config) GracePeriodDuration() time.Duration {
	return durationOr(c.GracePeriod, constants.DefaultGracePeriod)
}

// RestartIntervalDuration returns the parsed restart_interval
func (c *Config) RestartIntervalDuration() time.Duration {
	return durationOr(c.RestartInterval, constants.DefaultRestartInterval)
}

// Signal returns the configured stop signal, falling back to SIGINT
func (c *Config) Signal() syscall.Signal {
	if sig, err := ParseSignal(c.StopSignal); err == nil {
		return sig
	}
	return syscall.SIGINT
}

// ParseSignal accepts "SIGINT", "INT" or "int"
func ParseSignal(name string) (syscall.Signal, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(n, "SIG") {
		n = "SIG" + n
	}
	sig := unix.SignalNum(n)
	if sig == 0 {
		return 0, fmt.Errorf("unknown signal %q", name)
	}
	return sig, nil
}

// ToDomainHealth converts the health section. A nil section disables probing.
func (c *Config) ToDomainHealth() domain.HealthConfig {
	if c.Health == nil {
		return domain.HealthConfig{}
	}
	hc := domain.HealthConfig{
		URL:         c.Health.URL,
		Method:      c.Health.Method,
		Retries:     c.Health.Retries,
		Interval:    durationOr(c.Health.Interval, 0),
		Timeout:     durationOr(c.Health.Timeout, 0),
		StartPeriod: durationOr(c.Health.StartPeriod, 0),
	}
	return hc.WithDefaults()
}

func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
