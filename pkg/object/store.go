// Package object implements content-addressed persistence of chunks
// on the local filesystem.
//
// Objects are stored compressed under a two-level fan-out derived
// from their hash: the first two hex characters name a directory and
// the remaining sixty-two name the file. The path is a pure function
// of the hash, so any object can be located without consulting an
// index, and a flat directory never grows pathologically large.
//
// Writes are atomic (temp file + rename) and idempotent: storing a
// chunk that already exists is a successful no-op, which is what
// makes concurrent content-keyed writes safe without locking.
package object

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/dxforge/forge/pkg/chunk"
)

// Store is a content-addressed chunk store rooted at a single
// directory (normally .forge/objects/chunks).
//
// Thread Safety: safe for concurrent use. Two writers racing on the
// same hash either both succeed (one becomes a dedup no-op) or race
// benignly to the same final rename target.
type Store struct {
	root    string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Options configures compression for a Store.
type Options struct {
	// Level is the zstd compression level (1-22, default 8).
	Level int

	// Dictionary is an optional dictionary (zstd dictionary format,
	// as produced by `zstd --train`) shared by all chunks in the
	// repository. Small chunks of similar content compress
	// substantially better with one. Invalid dictionary bytes are
	// rejected when the store is opened.
	Dictionary []byte
}

// NewStore opens (creating if necessary) a chunk store rooted at dir.
func NewStore(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create object store root: %w", err)
	}

	level := opts.Level
	if level == 0 {
		level = 8
	}

	encOpts := []zstd.EOption{zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level))}
	decOpts := []zstd.DOption{}
	if len(opts.Dictionary) > 0 {
		encOpts = append(encOpts, zstd.WithEncoderDict(opts.Dictionary))
		decOpts = append(decOpts, zstd.WithDecoderDicts(opts.Dictionary))
	}

	encoder, err := zstd.NewWriter(nil, encOpts...)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, decOpts...)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Store{root: dir, encoder: encoder, decoder: decoder}, nil
}

// PathFor returns the storage path for a hash under root. Pure
// function, no I/O: first two hex characters fan out into a
// directory, the remaining sixty-two are the filename.
func PathFor(root string, h chunk.Hash) string {
	hex := h.String()
	return filepath.Join(root, hex[:2], hex[2:])
}

// Path returns the on-disk path this store would use for h.
func (s *Store) Path(h chunk.Hash) string {
	return PathFor(s.root, h)
}

// Has reports whether an object for h exists on disk.
func (s *Store) Has(h chunk.Hash) (bool, error) {
	_, err := os.Stat(s.Path(h))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat object %s: %w", h, err)
}

// Store writes a chunk, deduplicating by hash.
//
// If an object already exists at the chunk's path the write is a
// success with zero bytes written. Otherwise the data is compressed
// and written to a temp file in the same directory, then renamed into
// place, so a crash can never leave a half-written object at a valid
// path.
//
// Returns whether a new object was written and its compressed size
// on disk (also for pre-existing objects, read from the file).
func (s *Store) Store(h chunk.Hash, data []byte) (written bool, compressedSize int64, err error) {
	path := s.Path(h)

	if info, statErr := os.Stat(path); statErr == nil {
		return false, info.Size(), nil
	} else if !os.IsNotExist(statErr) {
		return false, 0, fmt.Errorf("stat object %s: %w", h, statErr)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, 0, fmt.Errorf("create fan-out dir for %s: %w", h, err)
	}

	compressed := s.encoder.EncodeAll(data, nil)

	// Temp file in the destination directory so the rename stays on
	// one filesystem and therefore atomic.
	tmp := filepath.Join(dir, ".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return false, 0, fmt.Errorf("write object %s: %w", h, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return false, 0, fmt.Errorf("finalize object %s: %w", h, err)
	}

	return true, int64(len(compressed)), nil
}

// Load reads an object back and verifies its content against the
// hash implied by its path. A mismatch is ErrCorrupt, never silently
// accepted.
func (s *Store) Load(h chunk.Hash) ([]byte, error) {
	compressed, err := os.ReadFile(s.Path(h))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object %s: %w", h, ErrNotFound)
		}
		return nil, fmt.Errorf("read object %s: %w", h, err)
	}

	data, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("object %s: decompress: %w (%v)", h, ErrCorrupt, err)
	}
	if chunk.Sum(data) != h {
		return nil, fmt.Errorf("object %s: %w", h, ErrCorrupt)
	}
	return data, nil
}

// Delete removes an object. Missing objects are not an error: the
// caller (GC) only cares that the object is gone afterwards.
func (s *Store) Delete(h chunk.Hash) error {
	if err := os.Remove(s.Path(h)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object %s: %w", h, err)
	}
	return nil
}

// Walk calls fn for every object hash in the store. Used by GC and
// integrity checks. Files that do not parse as a hash (stray temp
// files) are skipped.
func (s *Store) Walk(fn func(chunk.Hash) error) error {
	return filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		dir, file := filepath.Split(rel)
		hex := filepath.Clean(dir) + file
		h, err := chunk.ParseHash(hex)
		if err != nil {
			return nil // not an object file
		}
		return fn(h)
	})
}

// Close releases the compression codecs.
func (s *Store) Close() {
	_ = s.encoder.Close()
	s.decoder.Close()
}
