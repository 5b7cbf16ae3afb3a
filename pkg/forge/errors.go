package forge

import "errors"

// Standard repository errors. Callers match with errors.Is; all
// operations wrap these with path or identifier context.
var (
	// ErrNotARepository indicates discovery walked to the filesystem
	// root without finding a .forge directory.
	ErrNotARepository = errors.New("not a forge repository")

	// ErrAlreadyExists indicates Init was called on a path that
	// already contains a repository.
	ErrAlreadyExists = errors.New("repository already exists")

	// ErrMalformedHead indicates the HEAD file contents are neither
	// a symbolic ref nor a valid commit id.
	ErrMalformedHead = errors.New("malformed HEAD")

	// ErrMissingRefTarget indicates a named ref does not exist.
	ErrMissingRefTarget = errors.New("ref does not exist")

	// ErrBadCommitID indicates a commit identifier failed strict hex
	// decoding (wrong length or non-hex characters).
	ErrBadCommitID = errors.New("invalid commit id encoding")

	// ErrConfigParse indicates .forge/config.toml failed the strict
	// schema parse. Config errors are fatal; there is no defaulting
	// merge for a corrupt or mistyped config.
	ErrConfigParse = errors.New("config parse error")

	// ErrUnknownRevision indicates checkout was given a name that is
	// neither an existing branch nor a known commit id.
	ErrUnknownRevision = errors.New("unknown revision")
)
