package driving

import (
	"context"

	"github.com/custodia-labs/quarry/internal/core/domain"
)

// SearchService answers free-text queries against the local store.
// This call sits on the interactive path: it returns an empty result
// list on any internal failure rather than an error.
type SearchService interface {
	Search(ctx context.Context, query string, limit int, filter domain.SearchFilter) []domain.RankedResult
}
