package metadb

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dxforge/forge/pkg/chunk"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Create(filepath.Join(t.TempDir(), "metadata.redb"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCreateThenOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.redb")

	db, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestCreateRefusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.redb")
	db, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Create(path)
	require.Error(t, err)
}

func TestOpenRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.redb")
	require.NoError(t, os.WriteFile(path, []byte("this is not a database"), 0o600))

	_, err := Open(path)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrSchema)
}

func TestChunkRecordLifecycle(t *testing.T) {
	db := newTestDB(t)
	h := chunk.Sum([]byte("a chunk"))

	err := db.Update(func(tx *Tx) error {
		count, err := tx.IncChunkRef(h, 512)
		require.NoError(t, err)
		require.Equal(t, uint64(1), count)

		count, err = tx.IncChunkRef(h, 512)
		require.NoError(t, err)
		require.Equal(t, uint64(2), count)
		return nil
	})
	require.NoError(t, err)

	err = db.View(func(tx *Tx) error {
		record, err := tx.GetChunk(h)
		require.NoError(t, err)
		require.Equal(t, uint64(2), record.RefCount)
		require.Equal(t, int64(512), record.CompressedSize)
		return nil
	})
	require.NoError(t, err)

	err = db.Update(func(tx *Tx) error {
		count, err := tx.DecChunkRef(h)
		require.NoError(t, err)
		require.Equal(t, uint64(1), count)

		count, err = tx.DecChunkRef(h)
		require.NoError(t, err)
		require.Equal(t, uint64(0), count)

		// Underflow is a bookkeeping bug and fails the transaction.
		_, err = tx.DecChunkRef(h)
		return err
	})
	require.Error(t, err)
}

func TestGetChunkMissing(t *testing.T) {
	db := newTestDB(t)
	err := db.View(func(tx *Tx) error {
		_, err := tx.GetChunk(chunk.Sum([]byte("missing")))
		return err
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestManifestChunkList(t *testing.T) {
	db := newTestDB(t)
	id := chunk.Sum([]byte("manifest"))
	chunks := []chunk.Hash{
		chunk.Sum([]byte("one")),
		chunk.Sum([]byte("two")),
		chunk.Sum([]byte("three")),
	}

	require.NoError(t, db.Update(func(tx *Tx) error {
		return tx.PutManifest(id, chunks)
	}))

	require.NoError(t, db.View(func(tx *Tx) error {
		got, err := tx.ChunksForManifest(id)
		require.NoError(t, err)
		require.Equal(t, chunks, got)
		return nil
	}))
}

func TestCommitRecordRoundTrip(t *testing.T) {
	db := newTestDB(t)
	id := chunk.Sum([]byte("commit"))
	record := CommitRecord{
		Parents:  []chunk.Hash{chunk.Sum([]byte("parent"))},
		Manifest: chunk.Sum([]byte("manifest")),
		Author:   "dev@example.com",
		Message:  "initial import",
	}

	require.NoError(t, db.Update(func(tx *Tx) error {
		return tx.PutCommit(id, record)
	}))

	require.NoError(t, db.View(func(tx *Tx) error {
		got, err := tx.GetCommit(id)
		require.NoError(t, err)
		require.Equal(t, record.Manifest, got.Manifest)
		require.Equal(t, record.Parents, got.Parents)
		require.Equal(t, record.Author, got.Author)
		require.Equal(t, record.Message, got.Message)
		return nil
	}))
}

func TestZeroRefChunks(t *testing.T) {
	db := newTestDB(t)
	live := chunk.Sum([]byte("live"))
	dead := chunk.Sum([]byte("dead"))

	require.NoError(t, db.Update(func(tx *Tx) error {
		if _, err := tx.IncChunkRef(live, 10); err != nil {
			return err
		}
		if _, err := tx.IncChunkRef(dead, 20); err != nil {
			return err
		}
		_, err := tx.DecChunkRef(dead)
		return err
	}))

	require.NoError(t, db.View(func(tx *Tx) error {
		zero, err := tx.ZeroRefChunks()
		require.NoError(t, err)
		require.Equal(t, []chunk.Hash{dead}, zero)
		return nil
	}))
}

// A failed transaction must leave no trace of its writes.
func TestUpdateRollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	h := chunk.Sum([]byte("rolled back"))

	err := db.Update(func(tx *Tx) error {
		if _, err := tx.IncChunkRef(h, 99); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	require.NoError(t, db.View(func(tx *Tx) error {
		_, err := tx.GetChunk(h)
		require.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}
