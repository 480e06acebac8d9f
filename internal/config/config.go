// Package config handles configuration loading and management for Gantry.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Gantry.
type Config struct {
	Review   ReviewConfig   `mapstructure:"review"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Debug    DebugConfig    `mapstructure:"debug"`
	Hooks    HooksConfig    `mapstructure:"hooks"`
}

// HooksConfig holds the shell commands run for each specialist phase.
// Empty hooks degrade gracefully: implement echoes the task, verify passes,
// review ships.
type HooksConfig struct {
	// Implement produces the candidate; it receives the task as env vars
	// and its stdout becomes the candidate summary.
	Implement string `mapstructure:"implement"`
	// Verify runs self-checks; a non-zero exit is a fixable failure.
	Verify string `mapstructure:"verify"`
	// Review emits a verdict (SHIP, NEEDS_WORK with ISSUE: lines, or
	// MAJOR_RETHINK with RATIONALE:) on stdout.
	Review string `mapstructure:"review"`
}

// ReviewConfig holds review loop settings.
type ReviewConfig struct {
	// MaxIterations caps the number of NEEDS_WORK cycles before escalation.
	MaxIterations int `mapstructure:"max_iterations"`
	// Timeout bounds a single review pass.
	Timeout time.Duration `mapstructure:"timeout"`
}

// DispatchConfig holds dispatcher concurrency settings.
type DispatchConfig struct {
	// MaxPerDomain caps concurrently executing tasks per domain.
	MaxPerDomain int `mapstructure:"max_per_domain"`
}

// MemoryConfig holds memory capture settings.
type MemoryConfig struct {
	// Enabled toggles memory capture at task completion.
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig holds debug logging settings.
type DebugConfig struct {
	// Enabled toggles the file-backed debug log.
	Enabled bool `mapstructure:"enabled"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (GANTRY_*)
// 2. Project config (.gantry.yaml in current directory or parent)
// 3. User config (~/.config/gantry/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Project config takes precedence over the user config.
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("GANTRY")
	v.AutomaticEnv()
	v.BindEnv("review.max_iterations", "GANTRY_REVIEW_MAX_ITERATIONS")
	v.BindEnv("dispatch.max_per_domain", "GANTRY_DISPATCH_MAX_PER_DOMAIN")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("review.max_iterations", cfg.Review.MaxIterations)
	v.Set("review.timeout", cfg.Review.Timeout.String())
	v.Set("dispatch.max_per_domain", cfg.Dispatch.MaxPerDomain)
	v.Set("memory.enabled", cfg.Memory.Enabled)
	v.Set("debug.enabled", cfg.Debug.Enabled)
	v.Set("hooks.implement", cfg.Hooks.Implement)
	v.Set("hooks.verify", cfg.Hooks.Verify)
	v.Set("hooks.review", cfg.Hooks.Review)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("review.max_iterations", 3)
	v.SetDefault("review.timeout", "10m")
	v.SetDefault("dispatch.max_per_domain", 3)
	v.SetDefault("memory.enabled", true)
	v.SetDefault("debug.enabled", false)
	v.SetDefault("hooks.implement", "")
	v.SetDefault("hooks.verify", "")
	v.SetDefault("hooks.review", "")
}

// getUserConfigDir returns the XDG config directory for Gantry.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "gantry")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "gantry")
	}
	return filepath.Join(home, ".config", "gantry")
}

// findProjectConfig searches for .gantry.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".gantry.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Review: ReviewConfig{
			MaxIterations: 3,
			Timeout:       10 * time.Minute,
		},
		Dispatch: DispatchConfig{
			MaxPerDomain: 3,
		},
		Memory: MemoryConfig{
			Enabled: true,
		},
		Debug: DebugConfig{
			Enabled: false,
		},
	}
}
