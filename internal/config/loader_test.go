package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charliek/minerd/internal/domain"
)

func TestLoadEnvFile(t *testing.T) {
	t.Run("empty path returns nil", func(t *testing.T) {
		env, err := LoadEnvFile("")
		assert.NoError(t, err)
		assert.Nil(t, env)
	})

	t.Run("loads env file", func(t *testing.T) {
		dir := t.TempDir()
		envPath := filepath.Join(dir, ".env")
		require.NoError(t, os.WriteFile(envPath, []byte("FOO=bar\nBAZ=qux"), 0644))

		env, err := LoadEnvFile(envPath)
		require.NoError(t, err)
		assert.Equal(t, "bar", env["FOO"])
		assert.Equal(t, "qux", env["BAZ"])
	})

	t.Run("file not found", func(t *testing.T) {
		_, err := LoadEnvFile("nonexistent.env")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestMergeEnv(t *testing.T) {
	t.Run("merges multiple maps", func(t *testing.T) {
		result := MergeEnv(
			map[string]string{"A": "1", "B": "2"},
			map[string]string{"B": "3", "C": "4"},
			map[string]string{"C": "5"},
		)
		assert.Equal(t, map[string]string{"A": "1", "B": "3", "C": "5"}, result)
	})

	t.Run("handles nil maps", func(t *testing.T) {
		result := MergeEnv(nil, map[string]string{"A": "1"}, nil)
		assert.Equal(t, "1", result["A"])
	})
}

func TestConfig_WorkerEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RUST_LOG=warn\nPEERS=1.2.3.4"), 0644))

	t.Run("inline env overrides file", func(t *testing.T) {
		cfg := &Config{EnvFile: ".env", Env: map[string]string{"RUST_LOG": "debug"}}

		env, err := cfg.WorkerEnv(dir)
		require.NoError(t, err)
		assert.Equal(t, "debug", env["RUST_LOG"])
		assert.Equal(t, "1.2.3.4", env["PEERS"])
	})

	t.Run("missing env file", func(t *testing.T) {
		cfg := &Config{EnvFile: "missing.env"}

		_, err := cfg.WorkerEnv(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "loading env file")
	})
}

func TestConfig_Paths(t *testing.T) {
	cfg := &Config{Dir: "node", Update: UpdateConfig{Git: &GitConfig{Path: "/src/snarkos"}}}

	assert.Equal(t, filepath.Join("/etc/minerd", "node"), cfg.WorkDir("/etc/minerd"))
	assert.Equal(t, "/src/snarkos", cfg.GitPath("/etc/minerd"))
	assert.Empty(t, (&Config{}).GitPath("/etc/minerd"))
}

func TestFindConfigFile(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		_, err := FindConfigFile(t.TempDir())
		assert.ErrorIs(t, err, domain.ErrConfigNotFound)
	})

	t.Run("dotfile", func(t *testing.T) {
		dir := t.TempDir()
		want := filepath.Join(dir, ".minerd.yml")
		require.NoError(t, os.WriteFile(want, []byte("command: sleep\n"), 0644))

		got, err := FindConfigFile(dir)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})
}

func TestLoadFromDir(t *testing.T) {
	t.Run("defaults when no file", func(t *testing.T) {
		cfg, path, err := LoadFromDir(t.TempDir())
		require.NoError(t, err)
		assert.Empty(t, path)
		assert.Equal(t, "cargo", cfg.Command)
	})

	t.Run("file with env override", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "command: sleep\nmax_runtime: 1h\n")
		t.Setenv("MINERD_MAX_RUNTIME", "90s")
		t.Setenv("MINERD_ADDRESS", "aleo1fromenv")
		t.Setenv("MINERD_LOG_LEVEL", "warn")

		cfg, path, err := LoadFromDir(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "minerd.yaml"), path)
		assert.Equal(t, 90*time.Second, cfg.MaxRuntimeDuration())
		assert.Equal(t, "aleo1fromenv", cfg.Address)
		assert.Equal(t, "warn", cfg.Log.Level)
		assert.Equal(t, "sleep", cfg.Command)
	})

	t.Run("invalid env override", func(t *testing.T) {
		t.Setenv("MINERD_MAX_RUNTIME", "soon")

		_, _, err := LoadFromDir(t.TempDir())
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidConfig)
		assert.Contains(t, err.Error(), "max_runtime")
	})
}

func TestCheckFilePermissions(t *testing.T) {
	dir := t.TempDir()

	t.Run("secure file", func(t *testing.T) {
		path := filepath.Join(dir, "secure.yaml")
		require.NoError(t, os.WriteFile(path, []byte("test"), 0644))
		assert.NoError(t, CheckFilePermissions(path))
	})

	t.Run("world-writable file", func(t *testing.T) {
		path := filepath.Join(dir, "insecure.yaml")
		require.NoError(t, os.WriteFile(path, []byte("test"), 0644))
		require.NoError(t, os.Chmod(path, 0666))

		err := CheckFilePermissions(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "world-writable")
	})
}
