package forge

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dxforge/forge/pkg/chunk"
	"github.com/dxforge/forge/pkg/metadb"
)

// Commit records a manifest on the current HEAD. Its parent is the
// commit HEAD resolves to, or none on an unborn branch. The commit id
// is the hash of the record's canonical encoding; after the record is
// stored, HEAD (or its branch) advances to the new commit.
func (r *Repository) Commit(manifest chunk.Hash, message, author string) (chunk.Hash, error) {
	head, err := r.ReadHead()
	if err != nil {
		return chunk.Hash{}, err
	}

	record := metadb.CommitRecord{
		Manifest: manifest,
		Author:   author,
		Time:     time.Now().UTC().Truncate(time.Second),
		Message:  message,
	}
	if head.Kind != HeadUnborn {
		record.Parents = []chunk.Hash{head.Commit}
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return chunk.Hash{}, fmt.Errorf("encode commit: %w", err)
	}
	id := chunk.Sum(raw)

	err = r.meta.Update(func(tx *metadb.Tx) error {
		return tx.PutCommit(id, record)
	})
	if err != nil {
		return chunk.Hash{}, fmt.Errorf("store commit: %w", err)
	}

	if err := r.UpdateHead(id); err != nil {
		return chunk.Hash{}, err
	}
	return id, nil
}

// ReadCommit loads a commit record, mapping absence to
// ErrUnknownRevision.
func (r *Repository) ReadCommit(id chunk.Hash) (metadb.CommitRecord, error) {
	var record metadb.CommitRecord
	err := r.meta.View(func(tx *metadb.Tx) error {
		var err error
		record, err = tx.GetCommit(id)
		return err
	})
	if errors.Is(err, metadb.ErrNotFound) {
		return metadb.CommitRecord{}, fmt.Errorf("%w: commit %s", ErrUnknownRevision, id)
	}
	if err != nil {
		return metadb.CommitRecord{}, err
	}
	return record, nil
}

// Log walks first parents from HEAD and returns commits newest first.
// An unborn HEAD yields an empty log.
func (r *Repository) Log() ([]LogEntry, error) {
	head, err := r.ReadHead()
	if err != nil {
		return nil, err
	}
	if head.Kind == HeadUnborn {
		return nil, nil
	}

	var entries []LogEntry
	id := head.Commit
	for {
		record, err := r.ReadCommit(id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, LogEntry{ID: id, Record: record})
		if len(record.Parents) == 0 {
			return entries, nil
		}
		id = record.Parents[0]
	}
}

// LogEntry pairs a commit id with its record.
type LogEntry struct {
	ID     chunk.Hash
	Record metadb.CommitRecord
}

// Checkout moves HEAD to a revision. A 64-hex argument naming a known
// commit detaches HEAD at that commit; otherwise the argument is taken
// as a branch name, which must have at least one commit. Anything else
// is ErrUnknownRevision.
func (r *Repository) Checkout(rev string) (Head, error) {
	if id, err := chunk.ParseHash(rev); err == nil {
		if _, err := r.ReadCommit(id); err != nil {
			return Head{}, err
		}
		if err := r.DetachHead(id); err != nil {
			return Head{}, err
		}
		return Head{Kind: HeadDetached, Commit: id}, nil
	}

	tip, err := r.ReadRef(rev)
	if err != nil || tip.IsZero() {
		return Head{}, fmt.Errorf("%w: %q", ErrUnknownRevision, rev)
	}
	if err := r.SetHeadBranch(rev); err != nil {
		return Head{}, err
	}
	return Head{Kind: HeadAttached, Branch: rev, Commit: tip}, nil
}
