package driven

import "context"

// EmbeddingService turns text into fixed-dimension vectors.
//
// Degradation contract: when the remote service is unreachable after
// retries, EmbedBatch returns zero-length vectors for the affected
// batch instead of an error. Callers must treat a zero-length vector
// as "embedding unavailable" and skip indexing that item; a sync run
// never crashes because embeddings are down.
type EmbeddingService interface {
	// Embed generates a vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts. The result has
	// the same length and order as the input. An empty input returns
	// an empty result without a network call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g. 1536).
	Dimensions() int

	// ModelName returns the embedding model in use.
	ModelName() string
}

// Reranker reorders candidate documents by relevance to a query.
// This is an optional external collaborator: on failure the search
// engine keeps its prior fusion scores.
type Reranker interface {
	// Rerank scores docs against the query and returns at most topN
	// scores, best first.
	Rerank(ctx context.Context, query string, docs []RerankDocument, topN int) ([]RerankScore, error)
}

// RerankDocument is one rerank candidate.
type RerankDocument struct {
	// ID correlates the score back to the fused result.
	ID string

	// Text is the document content, truncated by the caller.
	Text string
}

// RerankScore is the reranker's judgement for one document.
type RerankScore struct {
	ID        string
	Relevance float64
}
