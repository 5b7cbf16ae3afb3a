// Package backends contains one mirror.Backend adapter per remote
// service. Adapters share no base type; each speaks its service's
// protocol directly and exposes an injectable HTTP client and base URL
// so its wire behavior can be exercised against httptest servers.
package backends

import (
	"errors"
	"fmt"

	"github.com/dxforge/forge/pkg/auth"
	"github.com/dxforge/forge/pkg/mirror"
)

// CredentialSource supplies stored credentials per backend name.
// *auth.Store satisfies it.
type CredentialSource interface {
	Load(backend string) (auth.TokenBundle, error)
}

// loadBundle fetches a backend's credentials, mapping a missing bundle
// to mirror.ErrAuthMissing.
func loadBundle(creds CredentialSource, backend string) (auth.TokenBundle, error) {
	bundle, err := creds.Load(backend)
	if err != nil {
		if errors.Is(err, auth.ErrMissing) {
			return auth.TokenBundle{}, fmt.Errorf("%w: %s", mirror.ErrAuthMissing, backend)
		}
		return auth.TokenBundle{}, fmt.Errorf("load credentials for %s: %w", backend, err)
	}
	return bundle, nil
}
