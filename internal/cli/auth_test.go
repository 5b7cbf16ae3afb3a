package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dxforge/forge/pkg/auth"
	"github.com/dxforge/forge/pkg/forge"
)

func newTestWorkdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := forge.Init(dir)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	return dir
}

func TestAuthTokenFlag(t *testing.T) {
	dir := newTestWorkdir(t)

	rootCmd.SetArgs([]string{"auth", "github", "--token", "ghp_abc123"})
	require.NoError(t, rootCmd.Execute())

	store, err := auth.OpenStore(filepath.Join(dir, ".forge", "auth.db"))
	require.NoError(t, err)
	defer store.Close()

	bundle, err := store.Load("github")
	require.NoError(t, err)
	require.Equal(t, "ghp_abc123", bundle.AccessToken)
	require.Nil(t, bundle.RefreshToken)
	require.Empty(t, bundle.Extra)
}

func TestAuthTokenFlagUnknownBackend(t *testing.T) {
	newTestWorkdir(t)

	rootCmd.SetArgs([]string{"auth", "nope", "--token", "x"})
	require.Error(t, rootCmd.Execute())
}
