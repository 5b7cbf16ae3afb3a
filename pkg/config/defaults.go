package config

import (
	"strings"
	"time"
)

// ApplyDefaults fills unset fields with sensible defaults. Explicit
// values are preserved; zero values are replaced.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)

	if cfg.Mirror.Policy == "" {
		cfg.Mirror.Policy = "any"
	}
	if cfg.Mirror.Timeout == 0 {
		cfg.Mirror.Timeout = 5 * time.Minute
	}
}
