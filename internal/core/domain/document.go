package domain

import "time"

// SourceType identifies which upstream system a document came from.
// Each source owns a disjoint partition of the document table and a
// disjoint cursor row, so sources can sync concurrently without locking.
type SourceType string

const (
	// SourceNotes is the workspace-notes service (Notion-like pages).
	SourceNotes SourceType = "notes"

	// SourceMessages is the messaging service (Slack-like channels/threads).
	SourceMessages SourceType = "messages"

	// SourceMail is the email service.
	SourceMail SourceType = "mail"

	// SourceTracker is the issue tracker.
	SourceTracker SourceType = "tracker"
)

// AllSources lists every supported source type.
func AllSources() []SourceType {
	return []SourceType{SourceNotes, SourceMessages, SourceMail, SourceTracker}
}

// ParseSourceType converts a string into a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(s) {
	case SourceNotes, SourceMessages, SourceMail, SourceTracker:
		return SourceType(s), nil
	default:
		return "", ErrUnsupportedSource
	}
}

// Document is a unit of indexed content. Identity is the
// (SourceType, SourceID) pair; rows are created and updated by the
// sync adapters and are read-only to the search engine.
type Document struct {
	// ID is the internal row identifier.
	ID string

	// Source identifies the upstream system.
	Source SourceType

	// SourceID is the upstream identifier (message ts, page id, ...).
	// Unique within a source.
	SourceID string

	// ParentID links replies/children to their top-level document.
	ParentID *string

	// Title is the human-readable title, if the source has one.
	Title string

	// Content is the preprocessed text that was (or will be) embedded.
	Content string

	// ContentHash is the sha256 of Content. An upsert whose hash matches
	// the stored row is a no-op; this is what makes re-syncs idempotent.
	ContentHash string

	// Embedding is the vector representation. Either nil (not yet
	// embedded) or exactly the configured model dimension.
	Embedding []float32

	// Metadata holds open key/value pairs (url, channel, assignee, ...).
	Metadata map[string]any

	// SourceCreatedAt is the creation time reported by the source.
	SourceCreatedAt time.Time

	// SourceUpdatedAt is the last-modified time reported by the source.
	// The sync cursor advances to the maximum value observed in a run.
	SourceUpdatedAt time.Time

	// IndexedAt is when this row was last written.
	IndexedAt time.Time
}

// MetaString returns a string metadata value, or "" if absent.
func (d *Document) MetaString(key string) string {
	if d.Metadata == nil {
		return ""
	}
	if v, ok := d.Metadata[key].(string); ok {
		return v
	}
	return ""
}
