package mirror

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Journal Key Namespace
// =====================
//
// The replication journal is a BadgerDB key-value store with prefixed
// keys:
//
//	Data Type        Prefix  Key Format                 Value
//	------------------------------------------------------------------
//	Replicated item  "m:"    m:<backend>:<item>         Target (JSON)
//	Backend stats    "s:"    s:<backend>                upload count (uint64 BE)
//
// Point lookups answer "has this backend already got this manifest";
// a prefix scan over m:<backend>: lists everything a backend holds.

const (
	journalItemPrefix  = "m:"
	journalStatsPrefix = "s:"
)

// Journal durably records which items each backend already holds, so
// repeated pushes skip work and coverage can be reported per backend.
type Journal struct {
	db *badger.DB
}

// OpenJournal opens or creates the journal database at dir.
func OpenJournal(dir string) (*Journal, error) {
	opts := badger.DefaultOptions(dir)
	opts = opts.WithLoggingLevel(badger.WARNING)
	// Journal values are tiny JSON blobs; compression is not worth it.
	opts = opts.WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open mirror journal at %s: %w", dir, err)
	}
	return &Journal{db: db}, nil
}

// Close releases the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func itemKey(backend, item string) []byte {
	return []byte(journalItemPrefix + backend + ":" + item)
}

func statsKey(backend string) []byte {
	return []byte(journalStatsPrefix + backend)
}

// Record stores the target an upload produced and bumps the backend's
// upload counter in the same transaction.
func (j *Journal) Record(backend, item string, target *Target) error {
	raw, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("encode target: %w", err)
	}
	return j.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(itemKey(backend, item), raw); err != nil {
			return err
		}

		count := uint64(0)
		entry, err := txn.Get(statsKey(backend))
		if err == nil {
			err = entry.Value(func(val []byte) error {
				if len(val) == 8 {
					count = binary.BigEndian.Uint64(val)
				}
				return nil
			})
		}
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, count+1)
		return txn.Set(statsKey(backend), buf)
	})
}

// Lookup returns the recorded target for an item on a backend, or
// (nil, false) when the backend does not hold it.
func (j *Journal) Lookup(backend, item string) (*Target, bool, error) {
	var target Target
	err := j.db.View(func(txn *badger.Txn) error {
		entry, err := txn.Get(itemKey(backend, item))
		if err != nil {
			return err
		}
		return entry.Value(func(val []byte) error {
			return json.Unmarshal(val, &target)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("journal lookup %s/%s: %w", backend, item, err)
	}
	return &target, true, nil
}

// Items lists the items a backend holds, via a prefix scan.
func (j *Journal) Items(backend string) ([]string, error) {
	prefix := []byte(journalItemPrefix + backend + ":")
	var items []string
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			items = append(items, string(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal scan %s: %w", backend, err)
	}
	return items, nil
}

// Uploads returns the backend's lifetime upload counter.
func (j *Journal) Uploads(backend string) (uint64, error) {
	var count uint64
	err := j.db.View(func(txn *badger.Txn) error {
		entry, err := txn.Get(statsKey(backend))
		if err != nil {
			return err
		}
		return entry.Value(func(val []byte) error {
			if len(val) == 8 {
				count = binary.BigEndian.Uint64(val)
			}
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("journal stats %s: %w", backend, err)
	}
	return count, nil
}
