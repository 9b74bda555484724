package domain

import "time"

// CursorType describes the encoding of a cursor value.
type CursorType string

const (
	// CursorTimestamp means Value is an RFC 3339 timestamp. Timestamp
	// cursors are monotonically non-decreasing across successful syncs.
	CursorTimestamp CursorType = "timestamp"

	// CursorPaginationToken means Value is an opaque pagination token.
	CursorPaginationToken CursorType = "paginationToken"
)

// SyncStatus is the per-source sync state machine.
type SyncStatus string

const (
	// StatusIdle means no sync is running and the last one succeeded.
	StatusIdle SyncStatus = "idle"

	// StatusSyncing means a sync run is in progress.
	StatusSyncing SyncStatus = "syncing"

	// StatusError means the last sync run failed. The status is written
	// before the failure is rethrown so operators can observe it.
	StatusError SyncStatus = "error"
)

// SyncCursor records how far a source has been synced. One row per
// source, plus an optional secondary row (see PaginationKey) that
// persists mid-run pagination position for resumable full syncs.
type SyncCursor struct {
	// Key is the cursor row key: the source type, or a pagination key.
	Key string

	// Value is the opaque cursor (timestamp or pagination token).
	Value string

	// Type describes how Value is encoded.
	Type CursorType

	// LastSyncedAt is when the owning source last finished a sync.
	LastSyncedAt time.Time

	// ItemsSynced is the cumulative count of items written.
	ItemsSynced int64

	// Status is the current sync state for the source.
	Status SyncStatus
}

// PaginationKey returns the secondary cursor key under which a source
// persists its mid-run pagination position, so an interrupted full sync
// resumes from the last completed page instead of page 1.
func PaginationKey(source SourceType) string {
	return string(source) + "_pagination"
}

// Timestamp parses a timestamp-typed cursor value. Returns the zero
// time for empty or non-timestamp cursors.
func (c *SyncCursor) Timestamp() time.Time {
	if c == nil || c.Type != CursorTimestamp || c.Value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, c.Value)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FormatCursorTime encodes a timestamp for storage in a cursor value.
func FormatCursorTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
