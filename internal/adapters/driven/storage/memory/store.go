// Package memory provides in-memory implementations of the storage
// ports, used in tests and as a reference implementation of the store
// contracts.
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
)

// DocStore is an in-memory driven.DocumentStore.
type DocStore struct {
	mu   sync.RWMutex
	docs map[string]domain.Document // key: source "/" sourceID

	// Upserts counts writes that actually mutated a row, so tests can
	// assert the content-hash guard.
	Upserts int

	// FailUpsertFor makes Upsert fail for the listed source IDs, so
	// tests can drive the write-error paths.
	FailUpsertFor map[string]error
}

var _ driven.DocumentStore = (*DocStore)(nil)

// NewDocStore creates an empty in-memory document store.
func NewDocStore() *DocStore {
	return &DocStore{docs: make(map[string]domain.Document)}
}

func docKey(source domain.SourceType, sourceID string) string {
	return string(source) + "/" + sourceID
}

// Upsert stores a document with the same content-hash guard as the
// SQLite store.
func (s *DocStore) Upsert(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.FailUpsertFor[doc.SourceID]; ok {
		return err
	}
	key := docKey(doc.Source, doc.SourceID)
	if existing, ok := s.docs[key]; ok && existing.ContentHash == doc.ContentHash {
		return nil
	}
	s.docs[key] = *doc
	s.Upserts++
	return nil
}

// GetContentHashes returns sourceID -> contentHash for known ids.
func (s *DocStore) GetContentHashes(
	_ context.Context, source domain.SourceType, ids []string,
) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hashes := make(map[string]string, len(ids))
	for _, id := range ids {
		if doc, ok := s.docs[docKey(source, id)]; ok {
			hashes[id] = doc.ContentHash
		}
	}
	return hashes, nil
}

// GetDocument retrieves a document by source identity.
func (s *DocStore) GetDocument(
	_ context.Context, source domain.SourceType, sourceID string,
) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if doc, ok := s.docs[docKey(source, sourceID)]; ok {
		return &doc, nil
	}
	return nil, domain.ErrNotFound
}

// CountBySource returns indexed document counts per source.
func (s *DocStore) CountBySource(_ context.Context) (map[domain.SourceType]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.SourceType]int64)
	for _, doc := range s.docs {
		counts[doc.Source]++
	}
	return counts, nil
}

// DeleteSource removes every document for a source.
func (s *DocStore) DeleteSource(_ context.Context, source domain.SourceType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, doc := range s.docs {
		if doc.Source == source {
			delete(s.docs, key)
		}
	}
	return nil
}

// SemanticSearch ranks embedded documents by cosine similarity.
func (s *DocStore) SemanticSearch(
	_ context.Context, embedding []float32, k int, filter domain.SearchFilter,
) ([]driven.SemanticHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []driven.SemanticHit
	for _, doc := range s.docs {
		if len(doc.Embedding) == 0 || !s.allowed(doc, filter) {
			continue
		}
		sim, ok := cosine(embedding, doc.Embedding)
		if !ok {
			continue
		}
		hits = append(hits, driven.SemanticHit{Document: doc, Similarity: sim})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// KeywordSearch matches documents containing every whitespace-separated
// query term, ranked by total occurrences.
func (s *DocStore) KeywordSearch(
	_ context.Context, query string, k int, filter domain.SearchFilter,
) ([]driven.KeywordHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	var hits []driven.KeywordHit
	for _, doc := range s.docs {
		if !s.allowed(doc, filter) {
			continue
		}
		text := strings.ToLower(doc.Title + " " + doc.Content)
		score := 0
		matched := true
		for _, term := range terms {
			n := strings.Count(text, term)
			if n == 0 {
				matched = false
				break
			}
			score += n
		}
		if matched {
			hits = append(hits, driven.KeywordHit{Document: doc, Rank: float64(score)})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Rank > hits[j].Rank })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// SubstringSearch matches a raw substring over content, title and the
// url/channel/assignee metadata fields, ordered by recency.
func (s *DocStore) SubstringSearch(
	_ context.Context, query string, k int, filter domain.SearchFilter,
) ([]driven.KeywordHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)
	if needle == "" {
		return nil, nil
	}

	var hits []driven.KeywordHit
	for _, doc := range s.docs {
		if !s.allowed(doc, filter) {
			continue
		}
		haystack := strings.ToLower(strings.Join([]string{
			doc.Content, doc.Title,
			doc.MetaString("url"), doc.MetaString("channel"), doc.MetaString("assignee"),
		}, "\n"))
		if strings.Contains(haystack, needle) {
			hits = append(hits, driven.KeywordHit{Document: doc})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Document.SourceUpdatedAt.After(hits[j].Document.SourceUpdatedAt)
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	for i := range hits {
		hits[i].Rank = float64(len(hits) - i)
	}
	return hits, nil
}

func (s *DocStore) allowed(doc domain.Document, filter domain.SearchFilter) bool {
	if !filter.AllowsSource(doc.Source) {
		return false
	}
	if doc.Source == domain.SourceMessages &&
		!filter.Channels.IncludesChannel(doc.MetaString("channel")) {
		return false
	}
	return true
}

func cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return (dot/(math.Sqrt(na)*math.Sqrt(nb)) + 1) / 2, true
}

// CursorStore is an in-memory driven.CursorStore.
type CursorStore struct {
	mu      sync.RWMutex
	cursors map[string]domain.SyncCursor
}

var _ driven.CursorStore = (*CursorStore)(nil)

// NewCursorStore creates an empty in-memory cursor store.
func NewCursorStore() *CursorStore {
	return &CursorStore{cursors: make(map[string]domain.SyncCursor)}
}

// Get retrieves a cursor row by key.
func (s *CursorStore) Get(_ context.Context, key string) (*domain.SyncCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.cursors[key]; ok {
		return &c, nil
	}
	return nil, domain.ErrNotFound
}

// Set stores or updates a cursor row.
func (s *CursorStore) Set(_ context.Context, cursor domain.SyncCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[cursor.Key] = cursor
	return nil
}

// SetStatus updates only the status, creating the row if needed.
func (s *CursorStore) SetStatus(
	_ context.Context, source domain.SourceType, status domain.SyncStatus,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.cursors[string(source)]
	c.Key = string(source)
	c.Status = status
	s.cursors[string(source)] = c
	return nil
}

// Delete removes a cursor row.
func (s *CursorStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cursors, key)
	return nil
}
