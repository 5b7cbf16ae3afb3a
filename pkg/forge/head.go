package forge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dxforge/forge/pkg/chunk"
)

// HeadKind describes what HEAD currently resolves to.
type HeadKind int

const (
	// HeadUnborn means HEAD names a branch that has no commits yet.
	HeadUnborn HeadKind = iota
	// HeadAttached means HEAD names a branch with at least one commit.
	HeadAttached
	// HeadDetached means HEAD holds a commit id directly.
	HeadDetached
)

// Head is the decoded state of the HEAD file.
type Head struct {
	Kind   HeadKind
	Branch string     // set for HeadUnborn and HeadAttached
	Commit chunk.Hash // set for HeadAttached and HeadDetached
}

const refPrefix = "ref: refs/heads/"

// ReadHead decodes the HEAD file and, for symbolic refs, resolves the
// branch to its tip. A branch ref that is missing or empty yields
// HeadUnborn rather than an error; any other shape of HEAD is
// ErrMalformedHead, and a detached HEAD whose payload is not a valid
// commit id is ErrBadCommitID.
func (r *Repository) ReadHead() (Head, error) {
	raw, err := os.ReadFile(filepath.Join(r.Root, headFile))
	if err != nil {
		return Head{}, fmt.Errorf("%w: %v", ErrMalformedHead, err)
	}
	content := strings.TrimRight(string(raw), "\n")

	if branch, ok := strings.CutPrefix(content, refPrefix); ok {
		if branch == "" || strings.ContainsAny(branch, "/\\ \t") {
			return Head{}, fmt.Errorf("%w: bad branch name %q", ErrMalformedHead, branch)
		}
		tip, err := r.ReadRef(branch)
		if err != nil {
			if errors.Is(err, ErrMissingRefTarget) {
				return Head{Kind: HeadUnborn, Branch: branch}, nil
			}
			return Head{}, err
		}
		if tip.IsZero() {
			return Head{Kind: HeadUnborn, Branch: branch}, nil
		}
		return Head{Kind: HeadAttached, Branch: branch, Commit: tip}, nil
	}

	if content == "" {
		return Head{}, fmt.Errorf("%w: empty HEAD", ErrMalformedHead)
	}

	id, err := chunk.ParseHash(content)
	if err != nil {
		return Head{}, fmt.Errorf("%w: %q", ErrBadCommitID, content)
	}
	return Head{Kind: HeadDetached, Commit: id}, nil
}

// SetHeadBranch attaches HEAD to the named branch without touching the
// branch ref itself. The branch does not need to exist yet.
func (r *Repository) SetHeadBranch(branch string) error {
	if branch == "" || strings.ContainsAny(branch, "/\\ \t") {
		return fmt.Errorf("%w: bad branch name %q", ErrMalformedHead, branch)
	}
	return writeFileAtomic(filepath.Join(r.Root, headFile), []byte(refPrefix+branch+"\n"))
}

// DetachHead points HEAD directly at a commit id.
func (r *Repository) DetachHead(id chunk.Hash) error {
	return writeFileAtomic(filepath.Join(r.Root, headFile), []byte(id.String()+"\n"))
}

// UpdateHead advances whatever HEAD resolves to so that it names id.
// On a branch (born or unborn) the branch ref moves and HEAD itself is
// untouched; detached, HEAD is rewritten in place.
func (r *Repository) UpdateHead(id chunk.Hash) error {
	head, err := r.ReadHead()
	if err != nil {
		return err
	}
	switch head.Kind {
	case HeadUnborn, HeadAttached:
		return r.WriteRef(head.Branch, id)
	case HeadDetached:
		return r.DetachHead(id)
	default:
		return fmt.Errorf("%w: unknown head kind %d", ErrMalformedHead, head.Kind)
	}
}
