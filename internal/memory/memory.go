// Package memory provides long-term user memory backed by a vector index.
//
// The Store layers a degradation policy over the raw Index: the backing
// index has a known fault where listing can return malformed rows, and the
// assistant must keep answering when that happens. Reads degrade to empty
// results, writes to no-ops, and a full listing falls back to a battery of
// broad searches.
package memory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates the record does not exist for this owner.
	ErrNotFound = errors.New("memory not found")

	// ErrMalformedIndexResult indicates the backing index returned a row
	// that cannot be attributed to a record (a known index fault).
	// Callers treat it as recoverable.
	ErrMalformedIndexResult = errors.New("malformed index result")
)

// MaxContentLength bounds stored memory content.
const MaxContentLength = 8192

// Record is one stored memory.
type Record struct {
	ID        uuid.UUID         `json:"id"`
	UserID    string            `json:"user_id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Score     float64           `json:"score,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Index is the raw vector index contract. PGIndex implements it on
// PostgreSQL + pgvector; tests substitute fakes.
type Index interface {
	// Insert stores a record with its embedding, deduplicating against
	// near-identical existing content.
	Insert(ctx context.Context, rec Record, vec []float32) error

	// Search returns the owner's records nearest to vec, best first,
	// with Score populated.
	Search(ctx context.Context, userID string, vec []float32, topK int) ([]Record, error)

	// List returns up to limit of the owner's records, most recently
	// updated first.
	List(ctx context.Context, userID string, limit int) ([]Record, error)

	// Update replaces a record's content and embedding. ErrNotFound when
	// the record does not exist for this owner.
	Update(ctx context.Context, id uuid.UUID, userID, content string, vec []float32) error

	// Delete removes a record. ErrNotFound when the record does not exist
	// for this owner.
	Delete(ctx context.Context, id uuid.UUID, userID string) error
}

// Embedder turns text into a vector. The llm gateway provides the
// production implementation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
