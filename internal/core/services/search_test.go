package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/quarry/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
)

// stubEmbedder returns one fixed vector for every query.
type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return s.vector, s.err
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = s.vector
	}
	return out, s.err
}

func (s *stubEmbedder) Dimensions() int   { return len(s.vector) }
func (s *stubEmbedder) ModelName() string { return "stub" }

func seedDoc(t *testing.T, docs *memory.DocStore, id, sourceID, content string, emb []float32, updated time.Time) {
	t.Helper()
	require.NoError(t, docs.Upsert(context.Background(), &domain.Document{
		ID:              id,
		Source:          domain.SourceNotes,
		SourceID:        sourceID,
		Title:           "Doc " + sourceID,
		Content:         content,
		ContentHash:     "hash-" + sourceID,
		Embedding:       emb,
		Metadata:        map[string]any{"url": "https://notes.example.com/" + sourceID},
		SourceUpdatedAt: updated,
	}))
}

func newEngine(docs *memory.DocStore, embedder driven.EmbeddingService, reranker driven.Reranker) *SearchEngine {
	e := NewSearchEngine(docs, embedder, reranker, domain.ChannelPolicy{}, DefaultSearchConfig())
	e.now = func() time.Time { return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC) }
	return e
}

func TestSearchEmptyQueryReturnsNothing(t *testing.T) {
	engine := newEngine(memory.NewDocStore(), &stubEmbedder{vector: []float32{1, 0}}, nil)

	assert.Empty(t, engine.Search(context.Background(), "   ", 5, domain.SearchFilter{}))
}

func TestSearchUninitialisedStoreReturnsNothing(t *testing.T) {
	engine := NewSearchEngine(nil, &stubEmbedder{vector: []float32{1, 0}}, nil, domain.ChannelPolicy{}, DefaultSearchConfig())

	assert.Empty(t, engine.Search(context.Background(), "deployment", 5, domain.SearchFilter{}))
}

func TestSearchDefaultsLimit(t *testing.T) {
	docs := memory.NewDocStore()
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		seedDoc(t, docs, id, id, "shared deployment notes "+id, []float32{1, 0}, old)
	}
	engine := newEngine(docs, &stubEmbedder{vector: []float32{1, 0}}, nil)

	results := engine.Search(context.Background(), "deployment", 0, domain.SearchFilter{})

	assert.Len(t, results, DefaultLimit)
}

func TestSearchBothChannelsOutrankSingleChannel(t *testing.T) {
	docs := memory.NewDocStore()
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// "both" matches the keyword channel and sits closest to the query
	// vector; "semonly" is semantic-only, "kwonly" keyword-only.
	seedDoc(t, docs, "both", "both", "rollout checklist for deployment", []float32{1, 0.1}, old)
	seedDoc(t, docs, "semonly", "semonly", "unrelated words entirely", []float32{1, 0.2}, old)
	seedDoc(t, docs, "kwonly", "kwonly", "deployment window agreed", []float32{0, 1}, old)
	engine := newEngine(docs, &stubEmbedder{vector: []float32{1, 0}}, nil)

	results := engine.Search(context.Background(), "deployment", 5, domain.SearchFilter{})

	require.NotEmpty(t, results)
	assert.Equal(t, "both", results[0].ID)
}

func TestSearchKeywordOnlyBaselineSimilarity(t *testing.T) {
	docs := memory.NewDocStore()
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDoc(t, docs, "kw", "kw", "quarterly planning doc", nil, old)
	engine := newEngine(docs, &stubEmbedder{err: errors.New("embeddings down")}, nil)

	results := engine.Search(context.Background(), "planning", 5, domain.SearchFilter{})

	require.Len(t, results, 1)
	assert.Equal(t, "kw", results[0].ID)
	assert.Equal(t, DefaultKeywordBaseline, results[0].Similarity)
}

func TestSearchShortQueryUsesSubstringMatching(t *testing.T) {
	docs := memory.NewDocStore()
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDoc(t, docs, "d1", "d1", "migrate the CI pipeline", nil, old)
	engine := newEngine(docs, &stubEmbedder{err: errors.New("embeddings down")}, nil)

	results := engine.Search(context.Background(), "CI", 5, domain.SearchFilter{})

	require.Len(t, results, 1)
	assert.Equal(t, "d1", results[0].ID)
}

func TestSearchRerankReordersHead(t *testing.T) {
	docs := memory.NewDocStore()
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDoc(t, docs, "close", "close", "deployment checklist", []float32{1, 0.05}, old)
	seedDoc(t, docs, "far", "far", "deployment retro", []float32{0.5, 1}, old)
	reranker := &fakeReranker{scores: []driven.RerankScore{
		{ID: "far", Relevance: 0.9},
		{ID: "close", Relevance: 0.2},
	}}
	engine := newEngine(docs, &stubEmbedder{vector: []float32{1, 0}}, reranker)

	results := engine.Search(context.Background(), "deployment", 5, domain.SearchFilter{})

	require.Len(t, results, 2)
	assert.Equal(t, "far", results[0].ID)
	assert.Equal(t, 1, reranker.calls)
}

func TestSearchRerankFailureKeepsFusionOrder(t *testing.T) {
	docs := memory.NewDocStore()
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDoc(t, docs, "close", "close", "deployment checklist", []float32{1, 0.05}, old)
	seedDoc(t, docs, "far", "far", "deployment retro", []float32{0.5, 1}, old)
	reranker := &fakeReranker{err: errors.New("rerank api down")}
	engine := newEngine(docs, &stubEmbedder{vector: []float32{1, 0}}, reranker)

	results := engine.Search(context.Background(), "deployment", 5, domain.SearchFilter{})

	require.Len(t, results, 2)
	assert.Equal(t, "close", results[0].ID)
}

func TestSearchRecentDocumentOutranksEqualOlderOne(t *testing.T) {
	docs := memory.NewDocStore()
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	seedDoc(t, docs, "fresh", "fresh", "incident postmortem draft", nil, now.Add(-48*time.Hour))
	seedDoc(t, docs, "stale", "stale", "incident postmortem draft", nil, now.AddDate(-1, 0, 0))
	engine := newEngine(docs, &stubEmbedder{err: errors.New("embeddings down")}, nil)

	results := engine.Search(context.Background(), "postmortem", 5, domain.SearchFilter{})

	require.Len(t, results, 2)
	assert.Equal(t, "fresh", results[0].ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSearchFilterExcludesMessagingWhenSelectionEmpty(t *testing.T) {
	docs := memory.NewDocStore()
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, docs.Upsert(context.Background(), &domain.Document{
		ID: "msg", Source: domain.SourceMessages, SourceID: "C1:1",
		Content: "deployment chatter", ContentHash: "h1",
		Metadata:        map[string]any{"channel": "C1"},
		SourceUpdatedAt: old,
	}))
	seedDoc(t, docs, "note", "note", "deployment notes", nil, old)
	engine := newEngine(docs, &stubEmbedder{err: errors.New("embeddings down")}, nil)
	filter := domain.SearchFilter{Channels: domain.ChannelPolicy{Configured: true}}

	results := engine.Search(context.Background(), "deployment", 5, filter)

	require.Len(t, results, 1)
	assert.Equal(t, "note", results[0].ID)
}

func seedMessage(t *testing.T, docs *memory.DocStore, id, channel, content string, updated time.Time) {
	t.Helper()
	require.NoError(t, docs.Upsert(context.Background(), &domain.Document{
		ID: id, Source: domain.SourceMessages, SourceID: id,
		Content: content, ContentHash: "h-" + id,
		Metadata:        map[string]any{"channel": channel},
		SourceUpdatedAt: updated,
	}))
}

func TestSearchConfiguredChannelPolicyIsDefaultFilter(t *testing.T) {
	docs := memory.NewDocStore()
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedMessage(t, docs, "C1:1", "C1", "deployment chatter allowed", old)
	seedMessage(t, docs, "C2:1", "C2", "deployment chatter excluded", old)
	policy := domain.ChannelPolicy{Configured: true, Channels: []string{"C1"}}
	engine := NewSearchEngine(docs, &stubEmbedder{err: errors.New("embeddings down")}, nil, policy, DefaultSearchConfig())

	// No per-query channel filter: the configured allow-list applies.
	results := engine.Search(context.Background(), "deployment", 5, domain.SearchFilter{})

	require.Len(t, results, 1)
	assert.Equal(t, "C1:1", results[0].ID)

	// An explicit per-query filter overrides the configured one.
	override := domain.SearchFilter{Channels: domain.ChannelPolicy{Configured: true, Channels: []string{"C2"}}}
	results = engine.Search(context.Background(), "deployment", 5, override)

	require.Len(t, results, 1)
	assert.Equal(t, "C2:1", results[0].ID)
}

func TestSearchResultCarriesDocumentFields(t *testing.T) {
	docs := memory.NewDocStore()
	updated := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	seedDoc(t, docs, "d1", "d1", "release checklist contents", []float32{1, 0}, updated)
	engine := newEngine(docs, &stubEmbedder{vector: []float32{1, 0}}, nil)

	results := engine.Search(context.Background(), "release checklist", 5, domain.SearchFilter{})

	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, "Doc d1", r.Title)
	assert.Equal(t, "https://notes.example.com/d1", r.URL)
	assert.Equal(t, updated, r.Timestamp)
	assert.InDelta(t, 1.0, r.Similarity, 0.01)
}
