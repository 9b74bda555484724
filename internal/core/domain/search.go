package domain

import "time"

// ChannelPolicy is the three-state channel allow-list for the
// messaging source: no configuration includes every channel, a
// non-empty selection includes only those channels, and an explicit
// empty selection excludes the whole source.
type ChannelPolicy struct {
	// Configured is true once the user has made any channel selection.
	Configured bool

	// Channels are the allowed channel IDs when Configured.
	Channels []string
}

// IncludesSource reports whether the messaging source participates in
// search at all under this policy.
func (p ChannelPolicy) IncludesSource() bool {
	return !p.Configured || len(p.Channels) > 0
}

// IncludesChannel reports whether a specific channel participates.
func (p ChannelPolicy) IncludesChannel(id string) bool {
	if !p.Configured {
		return true
	}
	for _, c := range p.Channels {
		if c == id {
			return true
		}
	}
	return false
}

// SearchFilter narrows a search to specific sources and channels.
type SearchFilter struct {
	// Sources limits results to these source types. Empty means all.
	Sources []SourceType

	// Channels is the messaging-source channel policy.
	Channels ChannelPolicy
}

// AllowsSource reports whether a source passes the filter.
func (f SearchFilter) AllowsSource(s SourceType) bool {
	if s == SourceMessages && !f.Channels.IncludesSource() {
		return false
	}
	if len(f.Sources) == 0 {
		return true
	}
	for _, allowed := range f.Sources {
		if allowed == s {
			return true
		}
	}
	return false
}

// RankedResult is a single hybrid-search hit after fusion, reranking
// and recency adjustment.
type RankedResult struct {
	// ID is the document row identifier.
	ID string

	// Source identifies the upstream system.
	Source SourceType

	// Title and Content are taken from the matched document.
	Title   string
	Content string

	// URL is the document's web location, from metadata.
	URL string

	// Timestamp is the document's source-updated time.
	Timestamp time.Time

	// Similarity is the cosine similarity for display. Keyword-only
	// hits carry a fixed baseline instead of a true cosine score.
	Similarity float64

	// Score is the final ranking score (RRF, then rerank, then
	// recency boost).
	Score float64
}
