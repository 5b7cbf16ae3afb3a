// Package mirrortest provides a reusable contract test suite for
// mirror.Backend implementations. It tests the interface contract, not
// implementation details, so every adapter runs the same checks.
package mirrortest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dxforge/forge/pkg/mirror"
)

// BackendTestSuite exercises the parts of the Backend contract that
// hold for every adapter regardless of its wire protocol.
//
// Usage:
//
//	func TestDropboxContract(t *testing.T) {
//	    suite := &mirrortest.BackendTestSuite{
//	        Name: "dropbox",
//	        NewBackend: func(t *testing.T) mirror.Backend {
//	            return &backends.Dropbox{Creds: emptyCreds()}
//	        },
//	    }
//	    suite.Run(t)
//	}
type BackendTestSuite struct {
	// Name is the expected registry name.
	Name string

	// NewBackend builds a fresh backend whose credential source holds
	// no credentials. Each subtest gets its own instance.
	NewBackend func(t *testing.T) mirror.Backend

	// Accepts and Rejects are media types CanHandle must allow and
	// refuse. Leave Rejects empty for general-purpose backends.
	Accepts []string
	Rejects []string
}

// Run executes all contract tests.
func (suite *BackendTestSuite) Run(t *testing.T) {
	t.Run("Identity", suite.runIdentityTests)
	t.Run("MediaTypes", suite.runMediaTypeTests)
	t.Run("MissingCredentials", suite.runMissingCredentialTests)
}

func (suite *BackendTestSuite) runIdentityTests(t *testing.T) {
	backend := suite.NewBackend(t)
	require.Equal(t, suite.Name, backend.Name())
	// The name doubles as a registry key and a journal prefix.
	require.NotContains(t, backend.Name(), ":")
}

func (suite *BackendTestSuite) runMediaTypeTests(t *testing.T) {
	backend := suite.NewBackend(t)
	for _, mt := range suite.Accepts {
		require.True(t, backend.CanHandle(mt), "must accept %s", mt)
	}
	for _, mt := range suite.Rejects {
		require.False(t, backend.CanHandle(mt), "must reject %s", mt)
	}
}

// runMissingCredentialTests verifies that an upload without stored
// credentials fails with ErrAuthMissing before any network traffic.
func (suite *BackendTestSuite) runMissingCredentialTests(t *testing.T) {
	backend := suite.NewBackend(t)

	mediaType := "application/octet-stream"
	if len(suite.Accepts) > 0 {
		mediaType = suite.Accepts[0]
	}

	_, err := backend.Upload(context.Background(), strings.NewReader("payload"), mirror.Metadata{
		Filename:  "contract-check.bin",
		MediaType: mediaType,
		Size:      7,
	})
	require.ErrorIs(t, err, mirror.ErrAuthMissing)
}
