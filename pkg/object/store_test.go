package object

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dxforge/forge/pkg/chunk"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "chunks"), Options{})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

// Content addressing: write bytes, read them back through the path
// derived from their hash, get exactly the same bytes.
func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)

	data := []byte("some chunk content that will be compressed and stored")
	h := chunk.Sum(data)

	written, size, err := store.Store(h, data)
	require.NoError(t, err)
	require.True(t, written)
	require.Greater(t, size, int64(0))

	got, err := store.Load(h)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

// Dedup idempotence: storing the same chunk twice yields exactly one
// on-disk object and reports the second write as a no-op.
func TestStoreDedup(t *testing.T) {
	store := newTestStore(t)

	data := []byte("identical content")
	h := chunk.Sum(data)

	written, _, err := store.Store(h, data)
	require.NoError(t, err)
	require.True(t, written)

	written, size, err := store.Store(h, data)
	require.NoError(t, err)
	require.False(t, written)
	require.Greater(t, size, int64(0))

	// Exactly one object file under the fan-out directory.
	count := 0
	require.NoError(t, store.Walk(func(chunk.Hash) error {
		count++
		return nil
	}))
	require.Equal(t, 1, count)
}

func TestStorePathFanOut(t *testing.T) {
	h := chunk.Sum([]byte("fan out"))
	hex := h.String()

	path := PathFor("/repo/.forge/objects/chunks", h)
	require.Equal(t, filepath.Join("/repo/.forge/objects/chunks", hex[:2], hex[2:]), path)
}

func TestStoreLoadMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Load(chunk.Sum([]byte("never stored")))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreDetectsCorruption(t *testing.T) {
	store := newTestStore(t)

	data := []byte("bytes that will be tampered with")
	h := chunk.Sum(data)
	_, _, err := store.Store(h, data)
	require.NoError(t, err)

	// Overwrite the object with a valid compressed blob of different
	// content. The path-implied hash no longer matches.
	other := []byte("entirely different content")
	otherHash := chunk.Sum(other)
	_, _, err = store.Store(otherHash, other)
	require.NoError(t, err)
	blob, err := os.ReadFile(store.Path(otherHash))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path(h), blob, 0o644))

	_, err = store.Load(h)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore(t)

	data := []byte("short lived")
	h := chunk.Sum(data)
	_, _, err := store.Store(h, data)
	require.NoError(t, err)

	require.NoError(t, store.Delete(h))
	ok, err := store.Has(h)
	require.NoError(t, err)
	require.False(t, ok)

	// Deleting again is not an error.
	require.NoError(t, store.Delete(h))
}

func TestStoreRejectsInvalidDictionary(t *testing.T) {
	// Dictionaries must be in zstd dictionary format; arbitrary bytes
	// are rejected at open time rather than corrupting writes later.
	_, err := NewStore(filepath.Join(t.TempDir(), "chunks"), Options{
		Level:      8,
		Dictionary: []byte("not a zstd dictionary"),
	})
	require.Error(t, err)
}
