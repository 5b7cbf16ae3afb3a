package forge

import (
	"fmt"

	"github.com/dxforge/forge/pkg/chunk"
	"github.com/dxforge/forge/pkg/metadb"
)

// GCResult summarizes a garbage collection pass.
type GCResult struct {
	RemovedChunks  int
	ReclaimedBytes int64
}

// CollectGarbage removes chunks whose reference count has dropped to
// zero, deleting both the object file and the index record. The scan,
// the object deletes and the record drops share one write transaction,
// so a concurrent ingest cannot dedup against a chunk mid-deletion. A
// failed pass rolls the records back and leaves at worst zero-ref
// records whose objects are already gone; the next pass clears those
// because object deletes tolerate missing files.
func (r *Repository) CollectGarbage() (*GCResult, error) {
	result := &GCResult{}
	err := r.meta.Update(func(tx *metadb.Tx) error {
		dead, err := tx.ZeroRefChunks()
		if err != nil {
			return fmt.Errorf("scan zero-ref chunks: %w", err)
		}
		for _, h := range dead {
			record, err := tx.GetChunk(h)
			if err != nil {
				return fmt.Errorf("gc chunk %s: %w", h, err)
			}
			if err := r.objects.Delete(h); err != nil {
				return fmt.Errorf("gc chunk %s: %w", h, err)
			}
			if err := tx.DeleteChunk(h); err != nil {
				return err
			}
			result.RemovedChunks++
			result.ReclaimedBytes += record.CompressedSize
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReleaseManifest decrements the reference count of every chunk a
// manifest references. Chunks reaching zero stay on disk until the
// next CollectGarbage pass.
func (r *Repository) ReleaseManifest(id chunk.Hash) error {
	return r.meta.Update(func(tx *metadb.Tx) error {
		chunks, err := tx.ChunksForManifest(id)
		if err != nil {
			return fmt.Errorf("release manifest %s: %w", id, err)
		}
		for _, h := range chunks {
			if _, err := tx.DecChunkRef(h); err != nil {
				return err
			}
		}
		return nil
	})
}
