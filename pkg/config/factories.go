package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/dxforge/forge/pkg/mirror"
	"github.com/dxforge/forge/pkg/mirror/backends"
)

// backendOptions are the per-backend overrides a config file may set
// under mirror.options.<name>. Only fields a backend understands take
// effect; HTTP-based backends accept a base URL override.
type backendOptions struct {
	BaseURL string `mapstructure:"base_url"`
}

func decodeBackendOptions(raw map[string]any) (backendOptions, error) {
	var opts backendOptions
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &opts,
		ErrorUnused: true,
	})
	if err != nil {
		return opts, err
	}
	if err := decoder.Decode(raw); err != nil {
		return opts, err
	}
	return opts, nil
}

// BuildRegistry constructs the backend registry from the mirror
// configuration, applying any per-backend option overrides.
func BuildRegistry(creds backends.CredentialSource, cfg MirrorConfig) (*mirror.Registry, error) {
	opts := make(map[string]backendOptions, len(cfg.Options))
	for name, raw := range cfg.Options {
		decoded, err := decodeBackendOptions(raw)
		if err != nil {
			return nil, fmt.Errorf("mirror.options.%s: %w", name, err)
		}
		opts[name] = decoded
	}

	reg := mirror.NewRegistry()
	all := []mirror.Backend{
		&backends.Dropbox{Creds: creds, BaseURL: opts["dropbox"].BaseURL},
		&backends.GDrive{Creds: creds, BaseURL: opts["gdrive"].BaseURL},
		&backends.GitHub{Creds: creds, BaseURL: opts["github"].BaseURL},
		&backends.Mega{Creds: creds, APIURL: opts["mega"].BaseURL},
		&backends.Pinterest{Creds: creds, BaseURL: opts["pinterest"].BaseURL},
		&backends.R2{Creds: creds},
		&backends.Sketchfab{Creds: creds, BaseURL: opts["sketchfab"].BaseURL},
		&backends.SoundCloud{Creds: creds, BaseURL: opts["soundcloud"].BaseURL},
		&backends.YouTube{Creds: creds, BaseURL: opts["youtube"].BaseURL},
	}
	for _, b := range all {
		if err := reg.Register(b); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// BuildOrchestrator constructs the fan-out orchestrator from the
// mirror configuration.
func BuildOrchestrator(cfg MirrorConfig, journal *mirror.Journal) (*mirror.Orchestrator, mirror.Policy, error) {
	policy, err := mirror.ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, mirror.Policy{}, err
	}
	timeout := cfg.Timeout
	if timeout < 0 {
		timeout = 0
	}
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &mirror.Orchestrator{Timeout: timeout, Journal: journal}, policy, nil
}
