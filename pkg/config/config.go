// Package config loads the tool-level configuration: everything that
// belongs to the user's environment rather than to one repository.
// Repository-scoped settings (chunking, compression) live in
// .forge/config.toml and are handled by pkg/forge.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the tool configuration.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (FORGE_*)
//  2. Configuration file
//  3. Default values
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Author  AuthorConfig  `mapstructure:"author"`
	Mirror  MirrorConfig  `mapstructure:"mirror"`
}

// LoggingConfig controls the CLI's log output.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR"`
}

// AuthorConfig identifies the commit author.
type AuthorConfig struct {
	Name  string `mapstructure:"name"`
	Email string `mapstructure:"email" validate:"omitempty,email"`
}

// MirrorConfig controls replication behavior.
type MirrorConfig struct {
	// Policy is the success policy: "all", "any" or "quorum:<n>".
	Policy string `mapstructure:"policy"`

	// Timeout bounds each backend's upload.
	Timeout time.Duration `mapstructure:"timeout"`

	// Backends selects which backends a plain `forge mirror` uses.
	// Empty means every backend with stored credentials.
	Backends []string `mapstructure:"backends"`

	// Options carries per-backend overrides, decoded by the backend
	// factories. Example: {"r2": {"endpoint": "..."}}.
	Options map[string]map[string]any `mapstructure:"options"`
}

// Load loads configuration from file, environment and defaults. An
// empty configPath uses the default location.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	// Example: FORGE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("FORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(configDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// configDir follows XDG, falling back to ~/.config.
func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "forge")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "forge")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}
