package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loomlabs/loom/internal/llm"
	"github.com/loomlabs/loom/internal/log"
)

// EmbedTimeout bounds a single embedding call.
const EmbedTimeout = 15 * time.Second

// DefaultListLimit caps a full listing when the caller does not choose one.
const DefaultListLimit = 10

// fallbackQueries is the battery of broad searches used when the index
// cannot produce a full listing. Deliberately generic so their neighborhoods
// cover most of a user's memories between them.
var fallbackQueries = []string{
	"user information preferences",
	"conversation history",
	"user details",
	"personal information",
	"user context",
}

// Store is the assistant-facing memory API. All operations are scoped by
// user id.
//
// Degradation policy: the backing index has a known fault where result rows
// lose their id (ErrMalformedIndexResult). The assistant must never fail a
// turn because of it, so Search degrades to empty results, Add to a no-op,
// and ListAll to a deduplicated battery of broad searches.
type Store struct {
	index    Index
	embedder Embedder
	logger   log.Logger
	topK     int
}

// NewStore creates a Store. topK bounds search results; zero means 5.
func NewStore(index Index, embedder Embedder, topK int, logger log.Logger) (*Store, error) {
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if topK <= 0 {
		topK = 5
	}
	return &Store{index: index, embedder: embedder, logger: logger, topK: topK}, nil
}

func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()
	return s.embedder.Embed(embedCtx, text)
}

// Add stores a new memory. A degraded index makes Add a silent no-op.
func (s *Store) Add(ctx context.Context, userID, content string, metadata map[string]string) error {
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("content is required")
	}

	vec, err := s.embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embedding content: %w", err)
	}

	err = s.index.Insert(ctx, Record{UserID: userID, Content: content, Metadata: metadata}, vec)
	if errors.Is(err, ErrMalformedIndexResult) {
		s.logger.Warn("memory index degraded, skipping add", "user_id", userID, "error", err)
		return nil
	}
	return err
}

// Search returns the user's memories most relevant to query. A degraded
// index yields empty results.
func (s *Store) Search(ctx context.Context, userID, query string) ([]Record, error) {
	if userID == "" || strings.TrimSpace(query) == "" {
		return []Record{}, nil
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	records, err := s.index.Search(ctx, userID, vec, s.topK)
	if errors.Is(err, ErrMalformedIndexResult) {
		s.logger.Warn("memory index degraded, returning empty search results",
			"user_id", userID, "error", err)
		return []Record{}, nil
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ListAll returns up to limit records known about the user, most recently
// updated first; limit <= 0 means DefaultListLimit. When the index cannot
// list directly, it falls back to the broad-search battery, deduplicated by
// record id and capped at limit; individual fallback searches that fail are
// skipped.
func (s *Store) ListAll(ctx context.Context, userID string, limit int) ([]Record, error) {
	if userID == "" {
		return []Record{}, nil
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	records, err := s.index.List(ctx, userID, limit)
	if err == nil {
		return records, nil
	}
	if !errors.Is(err, ErrMalformedIndexResult) {
		return nil, err
	}

	s.logger.Warn("memory index cannot list, falling back to broad searches",
		"user_id", userID, "error", err)
	return s.listViaSearchFallback(ctx, userID, limit), nil
}

func (s *Store) listViaSearchFallback(ctx context.Context, userID string, limit int) []Record {
	seen := make(map[uuid.UUID]struct{})
	var records []Record

	for _, query := range fallbackQueries {
		vec, err := s.embed(ctx, query)
		if err != nil {
			s.logger.Warn("fallback embedding failed", "query", query, "error", err)
			continue
		}
		found, err := s.index.Search(ctx, userID, vec, s.topK)
		if err != nil {
			s.logger.Warn("fallback search failed", "query", query, "error", err)
			continue
		}
		for _, rec := range found {
			if _, dup := seen[rec.ID]; dup {
				continue
			}
			seen[rec.ID] = struct{}{}
			records = append(records, rec)
		}
	}

	if len(records) > limit {
		records = records[:limit]
	}
	s.logger.Info("memory fallback listing complete",
		"user_id", userID, "records", len(records))
	return records
}

// Update replaces a memory's content. Owner-scoped: a record belonging to a
// different user reports ErrNotFound.
func (s *Store) Update(ctx context.Context, userID string, id uuid.UUID, content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("content is required")
	}
	vec, err := s.embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embedding content: %w", err)
	}
	return s.index.Update(ctx, id, userID, content, vec)
}

// Delete removes a memory. Owner-scoped like Update.
func (s *Store) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	return s.index.Delete(ctx, id, userID)
}

// Context renders the user's memories relevant to query into a prompt-ready
// block. Failures degrade to an empty string; memory context is best-effort.
func (s *Store) Context(ctx context.Context, userID, query string) string {
	records, err := s.Search(ctx, userID, query)
	if err != nil {
		s.logger.Warn("memory context lookup failed", "user_id", userID, "error", err)
		return ""
	}
	return FormatRecords(records)
}

// FormatRecords renders records as a bulleted block for prompt injection.
func FormatRecords(records []Record) string {
	if len(records) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("What I remember about this user:\n")
	for _, rec := range records {
		b.WriteString("- ")
		b.WriteString(sanitizeContent(rec.Content))
		b.WriteByte('\n')
	}
	return b.String()
}

// sanitizeContent prevents prompt injection when memory content is injected
// into the live prompt: strip tag-forming characters and collapse newlines.
func sanitizeContent(s string) string {
	return strings.NewReplacer(
		"<", "",
		">", "",
		"`", "",
		"\n", " ",
		"\r", " ",
	).Replace(s)
}

// GatewayEmbedder adapts the llm gateway to the Embedder interface for a
// fixed embedding model.
type GatewayEmbedder struct {
	Gateway *llm.Gateway
	Model   string
}

// Embed implements Embedder.
func (e *GatewayEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Gateway.Embed(ctx, e.Model, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return vecs[0], nil
}
