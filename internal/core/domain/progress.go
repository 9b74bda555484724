package domain

import "time"

// SyncPhase is the vocabulary of sync progress events.
type SyncPhase string

const (
	// PhaseDiscovering means the adapter is enumerating changed items.
	PhaseDiscovering SyncPhase = "discovering"

	// PhaseSyncing means pages/channels are being processed.
	PhaseSyncing SyncPhase = "syncing"

	// PhaseEmbedding means changed items are being embedded.
	PhaseEmbedding SyncPhase = "embedding"

	// PhaseComplete means the run finished.
	PhaseComplete SyncPhase = "complete"
)

// Progress is a sync progress event delivered to subscribers.
type Progress struct {
	// Source identifies the syncing source.
	Source SourceType

	// Phase is the current stage of the run.
	Phase SyncPhase

	// Current and Total describe per-page/per-channel progress while
	// Phase is PhaseSyncing. Total is 0 when unknown.
	Current int
	Total   int
}

// ProgressFunc receives progress events. May be nil.
type ProgressFunc func(Progress)

// Emit calls f if it is non-nil.
func (f ProgressFunc) Emit(p Progress) {
	if f != nil {
		f(p)
	}
}

// SyncReport is the outcome of one sync run. A run with per-item
// failures still reports Success: only a run-level failure (connector
// error, cursor write failure) makes Success false.
type SyncReport struct {
	// Source identifies the synced source.
	Source SourceType

	// Success is the adapter-level outcome.
	Success bool

	// ItemsSynced counts documents written this run.
	ItemsSynced int

	// ItemsSkipped counts items whose content hash was unchanged.
	ItemsSkipped int

	// ItemsFailed counts items that failed individually.
	ItemsFailed int

	// Errors holds the per-item failures.
	Errors []ItemError

	// LastCursor is the cursor value persisted at run end.
	LastCursor string

	// Duration is the wall-clock run time.
	Duration time.Duration
}

// SourceStatus is a point-in-time view of one source's sync state,
// served from the orchestrator's status cache.
type SourceStatus struct {
	Source       SourceType
	Status       SyncStatus
	LastSyncedAt time.Time
	ItemsSynced  int64
	Documents    int64
}
