package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dxforge/forge/pkg/auth"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "INFO", cfg.Logging.Level)
	require.Equal(t, "any", cfg.Mirror.Policy)
	require.Equal(t, 5*time.Minute, cfg.Mirror.Timeout)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
logging:
  level: debug
author:
  name: Dev
  email: dev@example.com
mirror:
  policy: quorum:2
  timeout: 30s
  backends: [r2, mega]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "DEBUG", cfg.Logging.Level)
	require.Equal(t, "dev@example.com", cfg.Author.Email)
	require.Equal(t, "quorum:2", cfg.Mirror.Policy)
	require.Equal(t, 30*time.Second, cfg.Mirror.Timeout)
	require.Equal(t, []string{"r2", "mega"}, cfg.Mirror.Backends)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "logging:\n  level: warn\n")
	t.Setenv("FORGE_LOGGING_LEVEL", "ERROR")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "ERROR", cfg.Logging.Level)
}

func TestValidationRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"bad level":   "logging:\n  level: noisy\n",
		"bad email":   "author:\n  email: not-an-email\n",
		"bad policy":  "mirror:\n  policy: most\n",
		"bad backend": "mirror:\n  backends: [ftp]\n",
		"bad option":  "mirror:\n  options:\n    ftp:\n      base_url: x\n",
	}
	for name, content := range cases {
		_, err := Load(writeConfigFile(t, content))
		require.Error(t, err, name)
	}
}

func TestBuildRegistryAppliesOptions(t *testing.T) {
	store, err := auth.OpenStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	defer store.Close()

	reg, err := BuildRegistry(store, MirrorConfig{
		Options: map[string]map[string]any{
			"mega": {"base_url": "http://localhost:9999"},
		},
	})
	require.NoError(t, err)
	require.Len(t, reg.Names(), 9)

	_, err = BuildRegistry(store, MirrorConfig{
		Options: map[string]map[string]any{
			"mega": {"unknown_knob": true},
		},
	})
	require.Error(t, err)
}

func TestBuildOrchestrator(t *testing.T) {
	orch, policy, err := BuildOrchestrator(MirrorConfig{Policy: "all", Timeout: time.Minute}, nil)
	require.NoError(t, err)
	require.Equal(t, time.Minute, orch.Timeout)
	require.Equal(t, "all", policy.String())

	_, _, err = BuildOrchestrator(MirrorConfig{Policy: "sometimes"}, nil)
	require.Error(t, err)
}
