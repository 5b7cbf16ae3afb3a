// Package auth persists per-backend mirror credentials in a small
// embedded database at .forge/auth.db.
//
// Every backend, whatever its authentication scheme, stores exactly one
// TokenBundle. Scheme-specific material (API keys, S3 credential pairs,
// session identifiers) travels in the bundle's Extra blob, so adding a
// backend never changes the database schema.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrMissing is returned when no credentials are stored for a backend.
var ErrMissing = errors.New("auth: no stored credentials")

// TokenBundle is the uniform credential record for one backend.
type TokenBundle struct {
	// AccessToken is the primary secret: an OAuth2 access token, a
	// personal access token, or a session id, depending on backend.
	AccessToken string `json:"access_token"`

	// RefreshToken is set only for OAuth2 backends that issue one.
	RefreshToken *string `json:"refresh_token,omitempty"`

	// ExpiresAt is set when the access token has a known lifetime.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// Extra carries backend-specific fields as raw JSON, for example
	// the bucket and endpoint of an S3-compatible backend.
	Extra json.RawMessage `json:"extra,omitempty"`
}

// Expired reports whether the bundle has a known expiry in the past.
// Bundles without an expiry never expire.
func (b TokenBundle) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && now.After(*b.ExpiresAt)
}

var bucketTokens = []byte("tokens")

// Store is the credential database. It is safe for concurrent use.
type Store struct {
	db *bolt.DB
}

// OpenStore opens or creates the credential database at path.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open auth db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTokens)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init auth db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores the bundle for a backend, replacing any previous one.
func (s *Store) Save(backend string, bundle TokenBundle) error {
	raw, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("encode credentials for %s: %w", backend, err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTokens).Put([]byte(backend), raw)
	})
	if err != nil {
		return fmt.Errorf("save credentials for %s: %w", backend, err)
	}
	return nil
}

// Load returns the stored bundle for a backend, or ErrMissing.
func (s *Store) Load(backend string) (TokenBundle, error) {
	var bundle TokenBundle
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketTokens).Get([]byte(backend))
		if raw == nil {
			return fmt.Errorf("%w: %s", ErrMissing, backend)
		}
		return json.Unmarshal(raw, &bundle)
	})
	if err != nil {
		return TokenBundle{}, err
	}
	return bundle, nil
}

// Delete removes a backend's credentials. Deleting absent credentials
// is not an error.
func (s *Store) Delete(backend string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTokens).Delete([]byte(backend))
	})
}

// List returns the names of backends with stored credentials, sorted.
func (s *Store) List() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTokens).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
