// Package journal persists a record of in-flight remote uploads.
//
// A multi-part upload that dies with its process leaves invisible parts
// accumulating charges in the bucket until someone aborts it. The journal
// closes that gap: every upload is recorded before the first byte moves
// and struck out when it commits or aborts, so after a crash the journal
// holds exactly the uploads nobody finished. A reconciliation pass reads
// them back and aborts them remotely.
package journal

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// keyPrefix namespaces upload entries. The journal database carries no
// other key types today; the prefix keeps room for them.
const keyPrefix = "u:"

// Entry describes one begun upload in enough detail to abort it later.
type Entry struct {
	// Bucket is the destination bucket of the upload.
	Bucket string `json:"bucket"`

	// Key is the object key being uploaded.
	Key string `json:"key"`

	// UploadID is the remote upload identity, unique per bucket.
	UploadID string `json:"upload_id"`

	// StartedAt is when the upload was begun.
	StartedAt time.Time `json:"started_at"`
}

// Journal is a persistent set of in-flight uploads backed by an embedded
// BadgerDB. It is safe for concurrent use.
type Journal struct {
	db *badger.DB
}

// Open opens (or creates) a journal database at the given directory.
//
// Parameters:
//   - path: Directory for the database files
//
// Returns:
//   - *Journal: Open journal
//   - error: Database initialization error
func Open(path string) (*Journal, error) {
	opts := badger.DefaultOptions(path)
	opts = opts.WithLoggingLevel(badger.WARNING) // Reduce log noise
	opts = opts.WithCompression(options.None)    // Entries are tiny, compression overhead not worth it

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal at %s: %w", path, err)
	}
	return &Journal{db: db}, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Begin records an upload before any data moves. The entry must be
// durable before the first part is sent, otherwise a crash window exists
// in which the upload is invisible to reconciliation.
func (j *Journal) Begin(entry Entry) error {
	if entry.UploadID == "" {
		return fmt.Errorf("journal entry has no upload ID")
	}
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now()
	}

	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode journal entry: %w", err)
	}

	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(entry.UploadID), value)
	})
	if err != nil {
		return fmt.Errorf("failed to record upload %s: %w", entry.UploadID, err)
	}
	return nil
}

// End strikes an upload out after it reached a terminal state, committed
// or aborted alike. Ending an unknown upload is a no-op, so End is safe
// to call from cleanup paths that do not know whether Begin succeeded.
func (j *Journal) End(uploadID string) error {
	err := j.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entryKey(uploadID))
	})
	if err != nil {
		return fmt.Errorf("failed to clear upload %s: %w", uploadID, err)
	}
	return nil
}

// Abandoned returns the recorded uploads older than the given age, oldest
// first. An age of zero returns everything still recorded. Entries that
// no longer decode are skipped rather than blocking the sweep.
func (j *Journal) Abandoned(olderThan time.Duration) ([]Entry, error) {
	cutoff := time.Now().Add(-olderThan)

	var entries []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var entry Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				continue
			}
			if entry.StartedAt.After(cutoff) {
				continue
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan journal: %w", err)
	}

	sort.Slice(entries, func(i, k int) bool {
		return entries[i].StartedAt.Before(entries[k].StartedAt)
	})
	return entries, nil
}

// entryKey builds the database key for an upload.
func entryKey(uploadID string) []byte {
	return []byte(keyPrefix + uploadID)
}
