package driving

import (
	"context"

	"github.com/custodia-labs/quarry/internal/core/domain"
)

// SyncService coordinates document synchronisation across sources.
// Sync is triggered externally; no background scheduler drives it.
type SyncService interface {
	// SyncSource runs an incremental sync (or a first full sync) for
	// one source, streaming progress events to onProgress.
	SyncSource(ctx context.Context, source domain.SourceType, onProgress domain.ProgressFunc) (*domain.SyncReport, error)

	// SyncSourceFull forces a full re-walk of one source. Unchanged
	// items are still skipped by the content hash guard.
	SyncSourceFull(ctx context.Context, source domain.SourceType, onProgress domain.ProgressFunc) (*domain.SyncReport, error)

	// SyncAll syncs every source concurrently. One source's failure is
	// isolated: it is logged and reported, never propagated to others.
	SyncAll(ctx context.Context) map[domain.SourceType]*domain.SyncReport

	// Status returns a per-source status snapshot, served from a
	// time-boxed cache that is invalidated after every sync.
	Status(ctx context.Context) ([]domain.SourceStatus, error)

	// ResetSource deletes a source's documents and cursors so the next
	// sync starts from scratch. This is the only path that deletes
	// indexed documents.
	ResetSource(ctx context.Context, source domain.SourceType) error
}
