// Package checkpoint persists conversation snapshots keyed by thread id.
//
// A snapshot is an opaque byte payload; the workflow package owns its
// encoding. Stores keep the latest snapshot per thread, last write wins.
package checkpoint

import (
	"context"
	"errors"
)

// ErrNotFound indicates no snapshot exists for the thread.
var ErrNotFound = errors.New("checkpoint not found")

// Store is the snapshot persistence contract. Implementations must be safe
// for concurrent use.
type Store interface {
	// Get returns the latest snapshot for the thread, or ErrNotFound.
	Get(ctx context.Context, threadID string) ([]byte, error)

	// Put stores the snapshot for the thread, replacing any previous one.
	Put(ctx context.Context, threadID string, snapshot []byte) error
}
