package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/dxforge/forge/pkg/mirror"
	"github.com/dxforge/forge/pkg/mirror/backends"
)

var validate = validator.New()

// Validate checks the configuration with struct tags plus the rules
// tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if _, err := mirror.ParsePolicy(cfg.Mirror.Policy); err != nil {
		return fmt.Errorf("mirror.policy: %w", err)
	}
	if cfg.Mirror.Timeout < 0 {
		return fmt.Errorf("mirror.timeout: must not be negative")
	}
	for _, name := range cfg.Mirror.Backends {
		if !slices.Contains(backends.Names, name) {
			return fmt.Errorf("mirror.backends: unknown backend %q", name)
		}
	}
	for name := range cfg.Mirror.Options {
		if !slices.Contains(backends.Names, name) {
			return fmt.Errorf("mirror.options: unknown backend %q", name)
		}
	}
	return nil
}

// formatValidationError turns validator's error list into one readable
// message naming the offending fields.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	for _, fe := range verrs {
		return fmt.Errorf("%s: failed %q validation (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
	}
	return err
}
