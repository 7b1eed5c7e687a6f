package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/loomlabs/loom/internal/log"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// recordCols is the standard SELECT column list for scanRecords.
const recordCols = `id, owner_id, content, metadata, created_at, updated_at`

// dedupThreshold: cosine similarity at or above which an insert updates the
// existing row instead of creating a near-duplicate.
const dedupThreshold = 0.95

// PGIndex implements Index on PostgreSQL + pgvector.
//
// PGIndex is safe for concurrent use by multiple goroutines.
type PGIndex struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewPGIndex creates a PGIndex.
func NewPGIndex(pool *pgxpool.Pool, logger log.Logger) (*PGIndex, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PGIndex{pool: pool, logger: logger}, nil
}

// Insert implements Index. Near-duplicates (similarity >= 0.95) update the
// existing row in place instead of inserting.
//
// The transaction plus per-owner advisory lock prevents TOCTOU races where
// concurrent inserts for the same owner find the same nearest neighbor and
// produce a lost update.
func (x *PGIndex) Insert(ctx context.Context, rec Record, vec []float32) error {
	if rec.UserID == "" {
		return fmt.Errorf("owner ID is required")
	}
	if rec.Content == "" {
		return fmt.Errorf("content is required")
	}
	if len(rec.Content) > MaxContentLength {
		return fmt.Errorf("content length %d exceeds maximum %d", len(rec.Content), MaxContentLength)
	}

	pgvec := pgvector.NewVector(vec)
	return withRetry(ctx, x.logger, "insert", func(ctx context.Context) error {
		return x.insertOnce(ctx, rec, pgvec)
	})
}

func (x *PGIndex) insertOnce(ctx context.Context, rec Record, pgvec pgvector.Vector) error {
	tx, err := x.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			x.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	// pg_advisory_xact_lock releases automatically at commit/rollback.
	if _, lockErr := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, rec.UserID); lockErr != nil {
		return fmt.Errorf("acquiring advisory lock: %w", lockErr)
	}

	nearestID, similarity, found, err := x.findNearest(ctx, tx, pgvec, rec.UserID)
	if err != nil {
		return err
	}

	if found && similarity >= dedupThreshold {
		_, err = tx.Exec(ctx,
			`UPDATE memories
			 SET content = $1, embedding = $2, metadata = $3, updated_at = now(), active = true
			 WHERE id = $4`,
			rec.Content, pgvec, rec.Metadata, nearestID,
		)
		if err != nil {
			return fmt.Errorf("updating duplicate memory: %w", err)
		}
		x.logger.Debug("merged near-duplicate memory", "id", nearestID, "similarity", similarity)
	} else {
		_, err = tx.Exec(ctx,
			`INSERT INTO memories (owner_id, content, embedding, metadata)
			 VALUES ($1, $2, $3, $4)`,
			rec.UserID, rec.Content, pgvec, rec.Metadata,
		)
		if err != nil {
			return fmt.Errorf("inserting memory: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing memory transaction: %w", err)
	}
	return nil
}

// findNearest finds the nearest active neighbor for dedup.
// Returns found=false when the owner has no memories.
func (x *PGIndex) findNearest(ctx context.Context, q querier, vec pgvector.Vector, userID string) (id uuid.UUID, similarity float64, found bool, err error) {
	var scannedID *uuid.UUID
	queryErr := q.QueryRow(ctx,
		`SELECT id, 1 - (embedding <=> $1) AS similarity
		 FROM memories
		 WHERE owner_id = $2 AND active = true
		 ORDER BY embedding <=> $1
		 LIMIT 1`,
		vec, userID,
	).Scan(&scannedID, &similarity)

	switch {
	case errors.Is(queryErr, pgx.ErrNoRows):
		return uuid.Nil, 0, false, nil
	case queryErr != nil:
		return uuid.Nil, 0, false, fmt.Errorf("querying nearest neighbor: %w", queryErr)
	case scannedID == nil:
		return uuid.Nil, 0, false, fmt.Errorf("%w: nearest neighbor row has no id", ErrMalformedIndexResult)
	default:
		return *scannedID, similarity, true, nil
	}
}

// Search implements Index.
func (x *PGIndex) Search(ctx context.Context, userID string, vec []float32, topK int) ([]Record, error) {
	if userID == "" {
		return []Record{}, nil
	}
	if topK <= 0 {
		topK = 5
	}

	pgvec := pgvector.NewVector(vec)
	var records []Record
	err := withRetry(ctx, x.logger, "search", func(ctx context.Context) error {
		rows, err := x.pool.Query(ctx,
			`SELECT `+recordCols+`, 1 - (embedding <=> $2) AS score
			 FROM memories
			 WHERE owner_id = $1 AND active = true
			 ORDER BY embedding <=> $2
			 LIMIT $3`,
			userID, pgvec, topK,
		)
		if err != nil {
			return fmt.Errorf("searching memories: %w", err)
		}
		defer rows.Close()

		records, err = scanRecords(rows, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// List implements Index.
func (x *PGIndex) List(ctx context.Context, userID string, limit int) ([]Record, error) {
	if userID == "" || limit <= 0 {
		return []Record{}, nil
	}

	var records []Record
	err := withRetry(ctx, x.logger, "list", func(ctx context.Context) error {
		rows, err := x.pool.Query(ctx,
			`SELECT `+recordCols+`
			 FROM memories
			 WHERE owner_id = $1 AND active = true
			 ORDER BY updated_at DESC
			 LIMIT $2`,
			userID, limit,
		)
		if err != nil {
			return fmt.Errorf("listing memories: %w", err)
		}
		defer rows.Close()

		records, err = scanRecords(rows, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Update implements Index. Owner scoping is enforced in the WHERE clause so
// a mismatched owner looks identical to a missing record.
func (x *PGIndex) Update(ctx context.Context, id uuid.UUID, userID, content string, vec []float32) error {
	if len(content) > MaxContentLength {
		return fmt.Errorf("content length %d exceeds maximum %d", len(content), MaxContentLength)
	}

	return withRetry(ctx, x.logger, "update", func(ctx context.Context) error {
		tag, err := x.pool.Exec(ctx,
			`UPDATE memories
			 SET content = $1, embedding = $2, updated_at = now()
			 WHERE id = $3 AND owner_id = $4 AND active = true`,
			content, pgvector.NewVector(vec), id, userID,
		)
		if err != nil {
			return fmt.Errorf("updating memory %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil
	})
}

// Delete implements Index. Soft delete; the row stays for audit but leaves
// every read path.
func (x *PGIndex) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	return withRetry(ctx, x.logger, "delete", func(ctx context.Context) error {
		tag, err := x.pool.Exec(ctx,
			`UPDATE memories SET active = false, updated_at = now()
			 WHERE id = $1 AND owner_id = $2 AND active = true`,
			id, userID,
		)
		if err != nil {
			return fmt.Errorf("deleting memory %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil
	})
}

// scanRecords reads Records from pgx.Rows. A row whose id scans as NULL is
// the known index fault; it surfaces as ErrMalformedIndexResult for the
// Store's degradation policy to absorb.
func scanRecords(rows pgx.Rows, withScore bool) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var rec Record
		var id *uuid.UUID
		dest := []any{&id, &rec.UserID, &rec.Content, &rec.Metadata, &rec.CreatedAt, &rec.UpdatedAt}
		if withScore {
			dest = append(dest, &rec.Score)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		if id == nil {
			return nil, fmt.Errorf("%w: row has no id", ErrMalformedIndexResult)
		}
		rec.ID = *id
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memories: %w", err)
	}
	return records, nil
}
