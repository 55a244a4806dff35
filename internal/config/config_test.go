package config

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charliek/minerd/internal/constants"
	"github.com/charliek/minerd/internal/domain"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, constants.DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, Validate(cfg))
	assert.Equal(t, "cargo", cfg.Command)
	assert.Equal(t, constants.DefaultArgs, cfg.Args)
	assert.Equal(t, 30*time.Minute, cfg.MaxRuntimeDuration())
	assert.Equal(t, 2*time.Second, cfg.RestartIntervalDuration())
	assert.Equal(t, syscall.SIGINT, cfg.Signal())
	assert.True(t, cfg.NeedsAddress())
	assert.Nil(t, cfg.Update.Git)
	assert.False(t, cfg.API.Enabled)
}

func TestLoad_FullForm(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
address: aleo1example
command: ./target/release/snarkos
args: [--miner, "{{address}}", --trial]
dir: node
env_file: .env
env:
  RUST_LOG: info
max_runtime: 45m
grace_period: 20s
restart_interval: 5s
stop_signal: TERM
update:
  git:
    path: node
    branch: testnet2
  hook: cargo clean
health:
  url: http://127.0.0.1:3032
  interval: 15s
  retries: 5
log:
  level: debug
  json: true
api:
  enabled: true
  port: 9191
dashboard: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "aleo1example", cfg.Address)
	assert.Equal(t, "./target/release/snarkos", cfg.Command)
	assert.Equal(t, []string{"--miner", "aleo1example", "--trial", "--verbosity", "3"},
		cfg.ExpandArgs(cfg.Address, "--verbosity", "3"))
	assert.Equal(t, "info", cfg.Env["RUST_LOG"])
	assert.Equal(t, 45*time.Minute, cfg.MaxRuntimeDuration())
	assert.Equal(t, 20*time.Second, cfg.GracePeriodDuration())
	assert.Equal(t, 5*time.Second, cfg.RestartIntervalDuration())
	assert.Equal(t, syscall.SIGTERM, cfg.Signal())

	require.NotNil(t, cfg.Update.Git)
	assert.Equal(t, "origin", cfg.Update.Git.Remote)
	assert.Equal(t, "testnet2", cfg.Update.Git.Branch)
	assert.Equal(t, "cargo clean", cfg.Update.Hook)

	health := cfg.ToDomainHealth()
	assert.True(t, health.Enabled())
	assert.Equal(t, 15*time.Second, health.Interval)
	assert.Equal(t, 5*time.Second, health.Timeout)
	assert.Equal(t, 5, health.Retries)
	assert.Equal(t, "latestblockheight", health.Method)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, "127.0.0.1", cfg.API.Host)
	assert.Equal(t, 9191, cfg.API.Port)
	assert.True(t, cfg.Dashboard)
}

func TestLoad_CustomCommandKeepsArgs(t *testing.T) {
	cfg, err := Parse([]byte("command: sleep\n"))
	require.NoError(t, err)

	assert.Equal(t, "sleep", cfg.Command)
	assert.Empty(t, cfg.Args)
	assert.False(t, cfg.NeedsAddress())
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigNotFound)
}

func TestLoad_WorldWritable(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "command: sleep\n")
	require.NoError(t, os.Chmod(path, 0666))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "world-writable")
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("invalid: yaml: content:"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "parsing yaml")
}

func TestParseSignal(t *testing.T) {
	tests := []struct {
		in   string
		want syscall.Signal
	}{
		{"SIGINT", syscall.SIGINT},
		{"TERM", syscall.SIGTERM},
		{"hup", syscall.SIGHUP},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSignal(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, err := ParseSignal("SIGNOPE")
		assert.Error(t, err)
	})
}

func TestToDomainHealth_Disabled(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.ToDomainHealth().Enabled())
}
