package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const snapshotBucket = "snapshots"

// Bolt is a durable Store backed by a single-file bbolt database.
type Bolt struct {
	db *bolt.DB
}

// NewBolt opens (or creates) the database at path. The parent directory is
// created if missing.
func NewBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating checkpoint directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(snapshotBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating snapshot bucket: %w", err)
	}

	return &Bolt{db: db}, nil
}

// Get implements Store.
func (s *Bolt) Get(ctx context.Context, threadID string) ([]byte, error) {
	var snapshot []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(snapshotBucket)).Get([]byte(threadID))
		if v == nil {
			return fmt.Errorf("%w: thread %q", ErrNotFound, threadID)
		}
		// bbolt values are only valid inside the transaction.
		snapshot = make([]byte, len(v))
		copy(snapshot, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Put implements Store.
func (s *Bolt) Put(ctx context.Context, threadID string, snapshot []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(snapshotBucket)).Put([]byte(threadID), snapshot)
	})
	if err != nil {
		return fmt.Errorf("storing snapshot for thread %q: %w", threadID, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Bolt) Close() error {
	return s.db.Close()
}
