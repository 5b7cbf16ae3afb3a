package forge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dxforge/forge/pkg/chunk"
)

// ManifestEntry records one chunk of an ingested file in order.
type ManifestEntry struct {
	Hash           chunk.Hash `json:"hash"`
	Size           int64      `json:"size"`
	CompressedSize int64      `json:"compressed_size"`
}

// Manifest is the ordered chunk list describing one ingested file.
// Its identity is the hash of its canonical JSON encoding, so two
// files with identical content produce the same manifest id.
type Manifest struct {
	Path    string          `json:"path"`
	Size    int64           `json:"size"`
	Entries []ManifestEntry `json:"entries"`
}

// encode returns the canonical byte encoding used for both the
// manifest id and the on-disk file.
func (m *Manifest) encode() ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return raw, nil
}

// ID returns the manifest's content hash.
func (m *Manifest) ID() (chunk.Hash, error) {
	raw, err := m.encode()
	if err != nil {
		return chunk.Hash{}, err
	}
	return chunk.Sum(raw), nil
}

// Chunks returns the manifest's chunk hashes in order.
func (m *Manifest) Chunks() []chunk.Hash {
	hashes := make([]chunk.Hash, len(m.Entries))
	for i, e := range m.Entries {
		hashes[i] = e.Hash
	}
	return hashes
}

// WriteManifest persists a manifest under .forge/manifests keyed by its
// id and returns that id. Writing an already stored manifest is a
// no-op.
func (r *Repository) WriteManifest(m *Manifest) (chunk.Hash, error) {
	raw, err := m.encode()
	if err != nil {
		return chunk.Hash{}, err
	}
	id := chunk.Sum(raw)

	path := filepath.Join(r.Root, manifestsDir, id.String())
	if _, err := os.Stat(path); err == nil {
		return id, nil
	}
	if err := writeFileAtomic(path, raw); err != nil {
		return chunk.Hash{}, fmt.Errorf("write manifest: %w", err)
	}
	return id, nil
}

// ReadManifest loads a manifest by id and verifies its content hash.
func (r *Repository) ReadManifest(id chunk.Hash) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(r.Root, manifestsDir, id.String()))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: manifest %s", ErrUnknownRevision, id)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if chunk.Sum(raw) != id {
		return nil, fmt.Errorf("manifest %s failed hash verification", id)
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", id, err)
	}
	return &m, nil
}
