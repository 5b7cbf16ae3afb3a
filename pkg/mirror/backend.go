// Package mirror replicates repository content to remote services.
//
// Every remote, from an S3 bucket to a video platform, sits behind the
// same small Backend interface. The orchestrator fans an upload out to
// any number of backends concurrently and judges the combined outcome
// against a configurable success policy, so one slow or broken remote
// never decides the fate of the whole push.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Metadata describes the payload being uploaded.
type Metadata struct {
	// ID is the stable identifier the payload is journaled under,
	// typically a manifest id. Falls back to Filename when empty.
	ID string

	// Filename is the name the remote should show for the payload.
	Filename string

	// MediaType is the MIME type used both for transfer headers and
	// for backend CanHandle filtering.
	MediaType string

	// Size is the payload length in bytes. Backends whose protocols
	// need the length up front (Mega, S3) rely on it.
	Size int64
}

// Target locates an uploaded payload on a remote.
type Target struct {
	// Backend is the name of the backend that produced this target.
	Backend string `json:"backend"`

	// Key is the backend-native identifier: an object key, a node
	// handle, a file id.
	Key string `json:"key"`

	// URL is a human-usable link when the backend provides one.
	URL string `json:"url,omitempty"`

	// Raw preserves the backend's full response for debugging.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Backend is one remote service adapter. Implementations must be safe
// for concurrent Upload calls and must honor context cancellation
// between protocol steps.
type Backend interface {
	// Name returns the stable registry name, e.g. "mega" or "r2".
	Name() string

	// CanHandle reports whether the backend accepts payloads of the
	// given media type. General-purpose stores accept everything;
	// media platforms filter.
	CanHandle(mediaType string) bool

	// Upload pushes the payload and returns its remote location.
	Upload(ctx context.Context, data io.Reader, meta Metadata) (*Target, error)
}

// ErrAuthMissing wraps auth.ErrMissing at this layer so callers can
// test for "not logged in to this backend" without importing the auth
// package's internals.
var ErrAuthMissing = errors.New("mirror: backend credentials missing")

// UploadError reports a failure at a specific step of a backend's
// upload protocol.
type UploadError struct {
	Backend string
	Step    string
	Err     error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("mirror: %s: %s: %v", e.Backend, e.Step, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// uploadErr is the constructor adapters use at every failure site.
func uploadErr(backend, step string, err error) *UploadError {
	return &UploadError{Backend: backend, Step: step, Err: err}
}
