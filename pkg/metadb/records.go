package metadb

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dxforge/forge/pkg/chunk"
)

// ChunkRecord is the index entry for one stored chunk.
type ChunkRecord struct {
	// RefCount is the number of manifest entries referencing this
	// chunk. A chunk with zero references is a GC candidate.
	RefCount uint64 `json:"ref_count"`

	// CompressedSize is the on-disk size of the stored object.
	CompressedSize int64 `json:"compressed_size"`

	// Pack names the consolidated pack file holding this chunk, or
	// is empty for loose objects under objects/chunks.
	Pack string `json:"pack,omitempty"`
}

// CommitRecord is the index entry for one commit.
type CommitRecord struct {
	Parents  []chunk.Hash `json:"parents"`
	Manifest chunk.Hash   `json:"manifest"`
	Author   string       `json:"author"`
	Time     time.Time    `json:"time"`
	Message  string       `json:"message"`
}

// PutChunk stores or replaces the record for h.
func (t *Tx) PutChunk(h chunk.Hash, record ChunkRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode chunk record: %w", err)
	}
	return t.tx.Bucket(bucketChunks).Put(h[:], raw)
}

// GetChunk returns the record for h, or ErrNotFound.
func (t *Tx) GetChunk(h chunk.Hash) (ChunkRecord, error) {
	var record ChunkRecord
	raw := t.tx.Bucket(bucketChunks).Get(h[:])
	if raw == nil {
		return record, fmt.Errorf("chunk %s: %w", h, ErrNotFound)
	}
	if err := json.Unmarshal(raw, &record); err != nil {
		return record, fmt.Errorf("decode chunk record %s: %w", h, err)
	}
	return record, nil
}

// DeleteChunk removes the record for h. Deleting an absent record is
// a no-op, matching the object store's Delete semantics.
func (t *Tx) DeleteChunk(h chunk.Hash) error {
	return t.tx.Bucket(bucketChunks).Delete(h[:])
}

// IncChunkRef increments the refcount for h, creating the record with
// the given compressed size if it does not exist yet. Returns the new
// refcount.
func (t *Tx) IncChunkRef(h chunk.Hash, compressedSize int64) (uint64, error) {
	record, err := t.GetChunk(h)
	if err != nil {
		if !isNotFound(err) {
			return 0, err
		}
		record = ChunkRecord{CompressedSize: compressedSize}
	}
	record.RefCount++
	if err := t.PutChunk(h, record); err != nil {
		return 0, err
	}
	return record.RefCount, nil
}

// DecChunkRef decrements the refcount for h. The record is kept at
// zero references (GC enumerates and removes it later). Decrementing
// below zero is a bookkeeping bug and fails the transaction.
func (t *Tx) DecChunkRef(h chunk.Hash) (uint64, error) {
	record, err := t.GetChunk(h)
	if err != nil {
		return 0, err
	}
	if record.RefCount == 0 {
		return 0, fmt.Errorf("chunk %s: refcount underflow", h)
	}
	record.RefCount--
	if err := t.PutChunk(h, record); err != nil {
		return 0, err
	}
	return record.RefCount, nil
}

// PutManifest records the ordered chunk list for a manifest id.
func (t *Tx) PutManifest(id chunk.Hash, chunks []chunk.Hash) error {
	hexes := make([]string, len(chunks))
	for i, h := range chunks {
		hexes[i] = h.String()
	}
	raw, err := json.Marshal(hexes)
	if err != nil {
		return fmt.Errorf("encode manifest chunk list: %w", err)
	}
	return t.tx.Bucket(bucketManifests).Put(id[:], raw)
}

// ChunksForManifest returns the ordered chunk list recorded for a
// manifest id, or ErrNotFound.
func (t *Tx) ChunksForManifest(id chunk.Hash) ([]chunk.Hash, error) {
	raw := t.tx.Bucket(bucketManifests).Get(id[:])
	if raw == nil {
		return nil, fmt.Errorf("manifest %s: %w", id, ErrNotFound)
	}
	var hexes []string
	if err := json.Unmarshal(raw, &hexes); err != nil {
		return nil, fmt.Errorf("decode manifest chunk list %s: %w", id, err)
	}
	chunks := make([]chunk.Hash, len(hexes))
	for i, s := range hexes {
		h, err := chunk.ParseHash(s)
		if err != nil {
			return nil, fmt.Errorf("manifest %s entry %d: %w", id, i, err)
		}
		chunks[i] = h
	}
	return chunks, nil
}

// PutCommit stores the record for a commit id.
func (t *Tx) PutCommit(id chunk.Hash, record CommitRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode commit record: %w", err)
	}
	return t.tx.Bucket(bucketCommits).Put(id[:], raw)
}

// GetCommit returns the record for a commit id, or ErrNotFound.
func (t *Tx) GetCommit(id chunk.Hash) (CommitRecord, error) {
	var record CommitRecord
	raw := t.tx.Bucket(bucketCommits).Get(id[:])
	if raw == nil {
		return record, fmt.Errorf("commit %s: %w", id, ErrNotFound)
	}
	if err := json.Unmarshal(raw, &record); err != nil {
		return record, fmt.Errorf("decode commit record %s: %w", id, err)
	}
	return record, nil
}

// ZeroRefChunks enumerates chunks whose refcount has dropped to zero,
// the GC candidate set.
func (t *Tx) ZeroRefChunks() ([]chunk.Hash, error) {
	var zero []chunk.Hash
	cursor := t.tx.Bucket(bucketChunks).Cursor()
	for key, value := cursor.First(); key != nil; key, value = cursor.Next() {
		var record ChunkRecord
		if err := json.Unmarshal(value, &record); err != nil {
			return nil, fmt.Errorf("decode chunk record %x: %w", key, err)
		}
		if record.RefCount == 0 {
			var h chunk.Hash
			copy(h[:], key)
			zero = append(zero, h)
		}
	}
	return zero, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
