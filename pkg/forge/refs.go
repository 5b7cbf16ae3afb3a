package forge

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dxforge/forge/pkg/chunk"
)

// Ref is a named pointer to a commit.
type Ref struct {
	Name   string
	Commit chunk.Hash
}

// ReadRef reads the tip of a local branch. A missing ref file returns
// ErrMissingRefTarget so callers can distinguish "unborn" from
// corruption.
func (r *Repository) ReadRef(branch string) (chunk.Hash, error) {
	raw, err := os.ReadFile(filepath.Join(r.Root, headsDir, branch))
	if err != nil {
		if os.IsNotExist(err) {
			return chunk.Hash{}, fmt.Errorf("%w: %s", ErrMissingRefTarget, branch)
		}
		return chunk.Hash{}, err
	}
	content := strings.TrimSpace(string(raw))
	if content == "" {
		return chunk.Hash{}, nil
	}
	id, err := chunk.ParseHash(content)
	if err != nil {
		return chunk.Hash{}, fmt.Errorf("%w: ref %s holds %q", ErrBadCommitID, branch, content)
	}
	return id, nil
}

// WriteRef atomically points a local branch at a commit.
func (r *Repository) WriteRef(branch string, id chunk.Hash) error {
	if branch == "" || strings.ContainsAny(branch, "/\\ \t") {
		return fmt.Errorf("%w: bad branch name %q", ErrMalformedHead, branch)
	}
	return writeFileAtomic(filepath.Join(r.Root, headsDir, branch), []byte(id.String()+"\n"))
}

// DeleteRef removes a local branch ref. Deleting a missing ref is not
// an error.
func (r *Repository) DeleteRef(branch string) error {
	err := os.Remove(filepath.Join(r.Root, headsDir, branch))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete ref %s: %w", branch, err)
	}
	return nil
}

// ListRefs returns all local branch refs sorted by name.
func (r *Repository) ListRefs() ([]Ref, error) {
	entries, err := os.ReadDir(filepath.Join(r.Root, headsDir))
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}

	refs := make([]Ref, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		id, err := r.ReadRef(entry.Name())
		if err != nil {
			return nil, err
		}
		if id.IsZero() {
			continue
		}
		refs = append(refs, Ref{Name: entry.Name(), Commit: id})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}
