package services

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
	"github.com/custodia-labs/quarry/internal/core/ports/driving"
	"github.com/custodia-labs/quarry/internal/logger"
	"github.com/custodia-labs/quarry/internal/preprocess"
)

var _ driving.SearchService = (*SearchEngine)(nil)

// Search tuning defaults.
const (
	// DefaultRRFConstant is the k in 1/(k+rank) reciprocal rank fusion.
	DefaultRRFConstant = 60

	// DefaultKeywordBaseline is the similarity shown for hits that only
	// the keyword channel found.
	DefaultKeywordBaseline = 0.3

	// DefaultSemanticCandidates is the vector-channel retrieval depth.
	DefaultSemanticCandidates = 100

	// DefaultRerankCandidates is how many fused results go to the
	// reranker.
	DefaultRerankCandidates = 30

	// DefaultRerankDocLength is the character budget per rerank
	// candidate.
	DefaultRerankDocLength = 1000

	// DefaultLimit is the result count when the caller passes none.
	DefaultLimit = 5

	// substringQueryRunes is the query length at or below which the
	// full-text tokenizer is bypassed in favour of substring matching.
	substringQueryRunes = 3
)

// SearchConfig tunes the hybrid pipeline.
type SearchConfig struct {
	RRFConstant        int
	KeywordBaseline    float64
	SemanticCandidates int
	RerankCandidates   int
	RerankDocLength    int
}

// DefaultSearchConfig returns the standard tuning.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		RRFConstant:        DefaultRRFConstant,
		KeywordBaseline:    DefaultKeywordBaseline,
		SemanticCandidates: DefaultSemanticCandidates,
		RerankCandidates:   DefaultRerankCandidates,
		RerankDocLength:    DefaultRerankDocLength,
	}
}

// SearchEngine answers queries by fusing vector and keyword retrieval,
// reranking the fused head and boosting recent documents. Every
// internal failure degrades to fewer (or zero) results, never an
// error: search sits on the interactive path.
type SearchEngine struct {
	docs     driven.DocumentStore
	embedder driven.EmbeddingService
	reranker driven.Reranker
	policy   domain.ChannelPolicy
	cfg      SearchConfig
	now      func() time.Time
}

// NewSearchEngine builds the engine. reranker may be nil. policy is the
// configured channel allow-list; it applies to every query that does
// not carry its own channel filter.
func NewSearchEngine(
	docs driven.DocumentStore, embedder driven.EmbeddingService,
	reranker driven.Reranker, policy domain.ChannelPolicy, cfg SearchConfig,
) *SearchEngine {
	if cfg.RRFConstant <= 0 {
		cfg = DefaultSearchConfig()
	}
	return &SearchEngine{
		docs:     docs,
		embedder: embedder,
		reranker: reranker,
		policy:   policy,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// fused is a result accumulating evidence from both channels.
type fused struct {
	doc        domain.Document
	score      float64
	similarity float64
	semantic   bool
}

// Search runs the hybrid pipeline for one query.
func (e *SearchEngine) Search(
	ctx context.Context, query string, limit int, filter domain.SearchFilter,
) []domain.RankedResult {
	if e.docs == nil {
		logger.Info("search: %v", domain.ErrStoreUninitialised)
		return nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	cleaned := preprocess.Clean(query)
	if cleaned == "" {
		return nil
	}
	if !filter.Channels.Configured {
		filter.Channels = e.policy
	}

	semHits := e.semanticChannel(ctx, cleaned, filter)
	kwHits := e.keywordChannel(ctx, cleaned, filter)
	if len(semHits) == 0 && len(kwHits) == 0 {
		return nil
	}

	results := e.fuse(semHits, kwHits)
	results = e.rerank(ctx, cleaned, results)
	e.boostRecent(results)

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > limit {
		results = results[:limit]
	}

	out := make([]domain.RankedResult, 0, len(results))
	for _, r := range results {
		out = append(out, domain.RankedResult{
			ID:         r.doc.ID,
			Source:     r.doc.Source,
			Title:      r.doc.Title,
			Content:    r.doc.Content,
			URL:        r.doc.MetaString("url"),
			Timestamp:  r.doc.SourceUpdatedAt,
			Similarity: r.similarity,
			Score:      r.score,
		})
	}
	return out
}

// semanticChannel embeds the query and retrieves by cosine similarity.
// Embedding degradation turns the search keyword-only.
func (e *SearchEngine) semanticChannel(
	ctx context.Context, query string, filter domain.SearchFilter,
) []driven.SemanticHit {
	vector, err := e.embedder.Embed(ctx, query)
	if err != nil || len(vector) == 0 {
		logger.Info("search: embedding unavailable, keyword-only retrieval")
		return nil
	}
	hits, err := e.docs.SemanticSearch(ctx, vector, e.cfg.SemanticCandidates, filter)
	if err != nil {
		logger.Warn("search: semantic channel failed: %v", err)
		return nil
	}
	return hits
}

// keywordChannel runs full-text retrieval, falling back to substring
// matching for short queries, tokenizer errors and empty result sets.
func (e *SearchEngine) keywordChannel(
	ctx context.Context, query string, filter domain.SearchFilter,
) []driven.KeywordHit {
	k := e.cfg.SemanticCandidates
	if utf8.RuneCountInString(query) <= substringQueryRunes {
		return e.substringChannel(ctx, query, k, filter)
	}
	hits, err := e.docs.KeywordSearch(ctx, query, k, filter)
	if err != nil {
		logger.Info("search: full-text query failed, trying substring: %v", err)
		return e.substringChannel(ctx, query, k, filter)
	}
	if len(hits) == 0 {
		return e.substringChannel(ctx, query, k, filter)
	}
	return hits
}

func (e *SearchEngine) substringChannel(
	ctx context.Context, query string, k int, filter domain.SearchFilter,
) []driven.KeywordHit {
	hits, err := e.docs.SubstringSearch(ctx, query, k, filter)
	if err != nil {
		logger.Warn("search: substring channel failed: %v", err)
		return nil
	}
	return hits
}

// fuse combines both channels with reciprocal rank fusion: each list
// contributes 1/(k+rank) with 1-indexed ranks, summed per document.
func (e *SearchEngine) fuse(semHits []driven.SemanticHit, kwHits []driven.KeywordHit) []*fused {
	k := float64(e.cfg.RRFConstant)
	byID := make(map[string]*fused)
	var order []*fused

	add := func(doc domain.Document, rank int) *fused {
		f, ok := byID[doc.ID]
		if !ok {
			f = &fused{doc: doc}
			byID[doc.ID] = f
			order = append(order, f)
		}
		f.score += 1 / (k + float64(rank))
		return f
	}
	for i, hit := range semHits {
		f := add(hit.Document, i+1)
		f.similarity = hit.Similarity
		f.semantic = true
	}
	for i, hit := range kwHits {
		f := add(hit.Document, i+1)
		if !f.semantic {
			f.similarity = e.cfg.KeywordBaseline
		}
	}

	sort.SliceStable(order, func(i, j int) bool { return order[i].score > order[j].score })
	return order
}

// rerank sends the fused head to the external reranker. On success the
// returned relevance replaces the fusion score for the scored subset;
// on any failure the fusion ordering stands.
func (e *SearchEngine) rerank(ctx context.Context, query string, results []*fused) []*fused {
	if e.reranker == nil || len(results) == 0 {
		return results
	}
	head := results
	if len(head) > e.cfg.RerankCandidates {
		head = head[:e.cfg.RerankCandidates]
	}

	docs := make([]driven.RerankDocument, 0, len(head))
	for _, r := range head {
		text := r.doc.Content
		if r.doc.Title != "" {
			text = r.doc.Title + "\n" + text
		}
		docs = append(docs, driven.RerankDocument{
			ID:   r.doc.ID,
			Text: preprocess.Truncate(text, e.cfg.RerankDocLength),
		})
	}

	scores, err := e.reranker.Rerank(ctx, query, docs, len(docs))
	if err != nil {
		logger.Warn("search: rerank failed, keeping fusion order: %v", err)
		return results
	}

	relevance := make(map[string]float64, len(scores))
	for _, s := range scores {
		relevance[s.ID] = s.Relevance
	}
	for _, r := range head {
		if rel, ok := relevance[r.doc.ID]; ok {
			r.score = rel
		}
	}
	return results
}

// boostRecent applies a stepped multiplier on the source-updated time:
// documents touched in the last week, month and quarter rank ahead of
// equally scored older ones.
func (e *SearchEngine) boostRecent(results []*fused) {
	now := e.now()
	for _, r := range results {
		if r.doc.SourceUpdatedAt.IsZero() {
			continue
		}
		age := now.Sub(r.doc.SourceUpdatedAt)
		switch {
		case age <= 7*24*time.Hour:
			r.score *= 1.2
		case age <= 30*24*time.Hour:
			r.score *= 1.1
		case age <= 90*24*time.Hour:
			r.score *= 1.05
		}
	}
}
