package forge

import (
	"fmt"
	"io"
	"os"

	"github.com/dxforge/forge/pkg/chunk"
	"github.com/dxforge/forge/pkg/metadb"
)

// IngestResult summarizes one ingestion.
type IngestResult struct {
	ManifestID chunk.Hash
	Manifest   *Manifest

	// NewChunks counts chunks written for the first time;
	// DedupChunks counts chunks that were already stored.
	NewChunks   int
	DedupChunks int

	// StoredBytes is the compressed size of newly written chunks.
	StoredBytes int64
}

// Ingest splits the stream into content-defined chunks, stores each
// chunk exactly once, records reference counts and the manifest chunk
// list in a single metadata transaction, and persists the manifest.
//
// Chunk data is written to the object store before the metadata
// transaction commits. A crash in between leaves orphaned objects but
// never a manifest that references missing chunks; CollectGarbage
// reclaims the orphans.
func (r *Repository) Ingest(src io.Reader, name string) (*IngestResult, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	chunker, err := chunk.New(data, r.cfg.ChunkParams())
	if err != nil {
		return nil, err
	}

	manifest := &Manifest{Path: name, Entries: []ManifestEntry{}}
	result := &IngestResult{Manifest: manifest}

	for c := chunker.Next(); c != nil; c = chunker.Next() {
		written, compressed, err := r.objects.Store(c.Hash, c.Data)
		if err != nil {
			return nil, fmt.Errorf("store chunk %s: %w", c.Hash, err)
		}
		if written {
			result.NewChunks++
			result.StoredBytes += compressed
		} else {
			result.DedupChunks++
		}

		manifest.Size += int64(len(c.Data))
		manifest.Entries = append(manifest.Entries, ManifestEntry{
			Hash:           c.Hash,
			Size:           int64(len(c.Data)),
			CompressedSize: compressed,
		})
	}

	id, err := manifest.ID()
	if err != nil {
		return nil, err
	}
	result.ManifestID = id

	err = r.meta.Update(func(tx *metadb.Tx) error {
		// Re-ingesting known content must not inflate refcounts: the
		// chunks are referenced once per manifest, not once per call.
		if _, err := tx.ChunksForManifest(id); err == nil {
			return nil
		}
		for _, e := range manifest.Entries {
			if _, err := tx.IncChunkRef(e.Hash, e.CompressedSize); err != nil {
				return err
			}
		}
		return tx.PutManifest(id, manifest.Chunks())
	})
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", name, err)
	}

	if _, err := r.WriteManifest(manifest); err != nil {
		return nil, err
	}
	return result, nil
}

// IngestFile ingests a file from the working tree.
func (r *Repository) IngestFile(path string) (*IngestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return r.Ingest(f, path)
}

// Restore streams the file a manifest describes to dst, loading and
// verifying every chunk in order.
func (r *Repository) Restore(id chunk.Hash, dst io.Writer) error {
	manifest, err := r.ReadManifest(id)
	if err != nil {
		return err
	}
	for _, e := range manifest.Entries {
		data, err := r.objects.Load(e.Hash)
		if err != nil {
			return fmt.Errorf("restore %s: chunk %s: %w", id, e.Hash, err)
		}
		if _, err := dst.Write(data); err != nil {
			return fmt.Errorf("restore %s: %w", id, err)
		}
	}
	return nil
}
