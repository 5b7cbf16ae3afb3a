// Package metadb implements the repository's transactional metadata
// index on top of bbolt, a single-file embedded B+tree database.
//
// The index is the one component allowed to know where everything is:
// it maps chunk hashes to refcounts and storage details, manifest ids
// to ordered chunk lists, and commit ids to commit records. All
// mutation happens inside bbolt write transactions, so a crash
// mid-update can never desynchronize refcounts from the object store:
// either the whole transaction is visible or none of it is.
//
// Bucket layout:
//
//	meta      "schema" -> schema version (uint64, big endian)
//	chunks    <32-byte hash> -> ChunkRecord (JSON)
//	manifests <32-byte id>   -> []hash hex (JSON)
//	commits   <32-byte id>   -> CommitRecord (JSON)
//
// JSON values keep the database inspectable with `bbolt keys/get`;
// binary keys keep range scans ordered by hash.
package metadb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

// schemaVersion is bumped when the bucket layout or record encoding
// changes incompatibly. Opening a database with a different version
// fails with ErrSchema rather than misreading records.
const schemaVersion uint64 = 1

var (
	bucketMeta      = []byte("meta")
	bucketChunks    = []byte("chunks")
	bucketManifests = []byte("manifests")
	bucketCommits   = []byte("commits")

	keySchema = []byte("schema")
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("metadata record not found")

	// ErrSchema indicates the file is not a metadata database of
	// this format (wrong file type or incompatible schema version).
	ErrSchema = errors.New("incompatible metadata database")
)

// DB is the repository metadata index. Safe for concurrent use;
// bbolt serializes writers and gives readers snapshot isolation.
type DB struct {
	bolt *bolt.DB
}

// Create initializes a new metadata database at path, creating the
// schema. Fails if the file already exists.
func Create(path string) (*DB, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("metadata database %s already exists", path)
	}
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	err = db.bolt.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketChunks, bucketManifests, bucketCommits} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		version := make([]byte, 8)
		binary.BigEndian.PutUint64(version, schemaVersion)
		return tx.Bucket(bucketMeta).Put(keySchema, version)
	})
	if err != nil {
		db.bolt.Close()
		return nil, err
	}
	return db, nil
}

// Open opens an existing metadata database, verifying it carries this
// package's schema. A file that is not a bbolt database, or one
// missing the schema marker, fails with ErrSchema.
func Open(path string) (*DB, error) {
	db, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	err = db.bolt.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil {
			return fmt.Errorf("%w: missing schema bucket", ErrSchema)
		}
		raw := meta.Get(keySchema)
		if len(raw) != 8 {
			return fmt.Errorf("%w: missing schema version", ErrSchema)
		}
		if v := binary.BigEndian.Uint64(raw); v != schemaVersion {
			return fmt.Errorf("%w: schema version %d (want %d)", ErrSchema, v, schemaVersion)
		}
		return nil
	})
	if err != nil {
		db.bolt.Close()
		return nil, err
	}
	return db, nil
}

func open(path string) (*DB, error) {
	b, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open metadata database %s: %w", path, err)
	}
	return &DB{bolt: b}, nil
}

// Close releases the database file lock.
func (db *DB) Close() error {
	return db.bolt.Close()
}

// Tx is a metadata transaction. All typed operations on a Tx belong
// to one atomic unit: if the function passed to Update returns an
// error or panics, every mutation in the transaction is rolled back.
type Tx struct {
	tx *bolt.Tx
}

// Update runs fn inside a single read-write transaction. This is the
// sole serialization point for index mutation.
func (db *DB) Update(fn func(*Tx) error) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

// View runs fn inside a read-only snapshot transaction.
func (db *DB) View(fn func(*Tx) error) error {
	return db.bolt.View(func(tx *bolt.Tx) error {
		return fn(&Tx{tx: tx})
	})
}
