package driven

import (
	"context"

	"github.com/custodia-labs/quarry/internal/core/domain"
)

// DocumentStore persists indexed documents and serves the two
// retrieval channels of hybrid search. Backed by SQLite.
type DocumentStore interface {
	// Upsert stores a document keyed by (source, sourceID). The write
	// is content-hash-guarded: re-indexing an unchanged document is a
	// no-op. Idempotent and safe under concurrent callers.
	Upsert(ctx context.Context, doc *domain.Document) error

	// GetContentHashes returns sourceID -> contentHash for the given
	// ids in one round-trip. Unknown ids are absent from the map.
	GetContentHashes(ctx context.Context, source domain.SourceType, ids []string) (map[string]string, error)

	// GetDocument retrieves a document by source identity.
	GetDocument(ctx context.Context, source domain.SourceType, sourceID string) (*domain.Document, error)

	// CountBySource returns the number of indexed documents per source.
	CountBySource(ctx context.Context) (map[domain.SourceType]int64, error)

	// DeleteSource removes every document for a source. Explicit
	// operator action only; sync never deletes.
	DeleteSource(ctx context.Context, source domain.SourceType) error

	// SemanticSearch ranks documents with a non-nil embedding by cosine
	// similarity to the query vector, best first, at most k results.
	SemanticSearch(ctx context.Context, embedding []float32, k int, filter domain.SearchFilter) ([]SemanticHit, error)

	// KeywordSearch runs ranked full-text search over title+content.
	KeywordSearch(ctx context.Context, query string, k int, filter domain.SearchFilter) ([]KeywordHit, error)

	// SubstringSearch is the fallback for queries the full-text
	// tokenizer cannot handle: a LIKE match over content, title and a
	// fixed set of metadata fields, ordered by recency.
	SubstringSearch(ctx context.Context, query string, k int, filter domain.SearchFilter) ([]KeywordHit, error)
}

// SemanticHit is a vector-channel retrieval result.
type SemanticHit struct {
	Document domain.Document

	// Similarity is the cosine similarity in [0, 1].
	Similarity float64
}

// KeywordHit is a lexical-channel retrieval result.
type KeywordHit struct {
	Document domain.Document

	// Rank is the engine's relevance score (e.g. bm25). Only the
	// ordering matters to RRF fusion.
	Rank float64
}

// CursorStore persists per-source sync cursors.
type CursorStore interface {
	// Get retrieves a cursor row by key (source type or pagination
	// key). Returns domain.ErrNotFound if the source never synced.
	Get(ctx context.Context, key string) (*domain.SyncCursor, error)

	// Set stores or updates a cursor row.
	Set(ctx context.Context, cursor domain.SyncCursor) error

	// SetStatus updates only the status column for a source, creating
	// the row if needed. Used at sync start/end and on failure, before
	// any error is rethrown.
	SetStatus(ctx context.Context, source domain.SourceType, status domain.SyncStatus) error

	// Delete removes a cursor row (e.g. a spent pagination cursor).
	Delete(ctx context.Context, key string) error
}
