package prompt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMegaBundleShape(t *testing.T) {
	bundle := megaBundle("user@example.com", "hunter2")

	require.Equal(t, "user@example.com", bundle.AccessToken)
	require.NotNil(t, bundle.RefreshToken)
	require.Equal(t, "hunter2", *bundle.RefreshToken)
	require.Empty(t, bundle.Extra)
}

func TestS3BundleShape(t *testing.T) {
	bundle, err := s3Bundle("AKIA123", "s3cr3t", "assets", "https://acc.r2.cloudflarestorage.com")
	require.NoError(t, err)

	require.Equal(t, "AKIA123", bundle.AccessToken)

	var extra map[string]string
	require.NoError(t, json.Unmarshal(bundle.Extra, &extra))
	require.Equal(t, map[string]string{
		"access_key_id":     "AKIA123",
		"secret_access_key": "s3cr3t",
		"bucket":            "assets",
		"endpoint":          "https://acc.r2.cloudflarestorage.com",
	}, extra)
}
