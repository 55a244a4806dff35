package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/charliek/minerd/internal/constants"
	"github.com/charliek/minerd/internal/domain"
)

// LoadEnvFile reads a .env file and returns the variables as a map
func LoadEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("env file not found: %s", path)
	}

	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}

	return env, nil
}

// MergeEnv merges multiple environment maps in order, with later maps taking precedence
func MergeEnv(envMaps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, env := range envMaps {
		for k, v := range env {
			result[k] = v
		}
	}
	return result
}

// WorkerEnv loads the extra environment for the worker.
// Priority (lowest to highest):
// 1. env_file
// 2. env
func (c *Config) WorkerEnv(configDir string) (map[string]string, error) {
	var fileEnv map[string]string
	if c.EnvFile != "" {
		var err error
		fileEnv, err = LoadEnvFile(resolvePath(c.EnvFile, configDir))
		if err != nil {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	}
	return MergeEnv(fileEnv, c.Env), nil
}

// WorkDir returns the worker's working directory resolved against configDir
func (c *Config) WorkDir(configDir string) string {
	return resolvePath(c.Dir, configDir)
}

// GitPath returns the update repository path resolved against configDir
func (c *Config) GitPath(configDir string) string {
	if c.Update.Git == nil {
		return ""
	}
	return resolvePath(c.Update.Git.Path, configDir)
}

// resolvePath resolves a potentially relative path against a base directory
func resolvePath(path, baseDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

// configCandidates are searched in order
var configCandidates = []string{
	constants.DefaultConfigFile,
	"minerd.yml",
	".minerd.yaml",
	".minerd.yml",
}

// FindConfigFile searches dir for a config file
func FindConfigFile(dir string) (string, error) {
	for _, name := range configCandidates {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w (tried: %v)", domain.ErrConfigNotFound, configCandidates)
}

// LoadFromDir loads the config file found in dir, or the defaults when there
// is none. Environment overrides are applied in both cases. The returned path
// is empty when defaults are used.
func LoadFromDir(dir string) (*Config, string, error) {
	var cfg *Config
	path, err := FindConfigFile(dir)
	switch {
	case err == nil:
		cfg, err = Load(path)
		if err != nil {
			return nil, path, err
		}
	case errors.Is(err, domain.ErrConfigNotFound):
		cfg, path = Default(), ""
	default:
		return nil, "", err
	}

	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// ApplyEnvOverrides applies MINERD_* environment variables on top of cfg
// and revalidates it.
func ApplyEnvOverrides(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if s := v.GetString("address"); s != "" {
		cfg.Address = s
	}
	if s := v.GetString("command"); s != "" {
		cfg.Command = s
	}
	if s := v.GetString("max_runtime"); s != "" {
		cfg.MaxRuntime = s
	}
	if s := v.GetString("log.level"); s != "" {
		cfg.Log.Level = s
	}
	if s := v.GetString("api.token"); s != "" {
		cfg.API.Token = s
	}

	return Validate(cfg)
}

// CheckFilePermissions checks if a file has secure permissions.
// On Unix-like systems, it verifies the file is not world-writable.
func CheckFilePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("checking file permissions: %w", err)
	}

	// others have write (0002)
	if info.Mode().Perm()&0002 != 0 {
		return fmt.Errorf("%w: config file %s is world-writable; run: chmod o-w %s", domain.ErrInvalidConfig, path, path)
	}

	return nil
}
