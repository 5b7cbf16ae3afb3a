package object

import "errors"

// Standard object store errors. Callers should match with errors.Is;
// implementations wrap them with the offending hash for context.
var (
	// ErrNotFound indicates no object exists for the requested hash.
	ErrNotFound = errors.New("object not found")

	// ErrCorrupt indicates an object's bytes no longer hash to the
	// identity implied by its storage path. This is storage
	// corruption and is never silently accepted: a read that detects
	// it fails rather than returning the damaged bytes.
	ErrCorrupt = errors.New("object corrupt: content hash mismatch")
)
