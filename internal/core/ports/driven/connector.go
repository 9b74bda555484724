package driven

import (
	"context"
	"time"
)

// Per-source connector contracts. Connectors are thin reads over the
// upstream APIs; pagination, windowing and auth tokens live behind
// these interfaces. OAuth/connection flows are external to the core.

// Channel is a messaging-service channel the engine may index.
type Channel struct {
	ID   string
	Name string
}

// Message is one messaging item. Thread replies reference their
// parent via ThreadID and are indexed as child documents.
type Message struct {
	ID         string
	ChannelID  string
	ThreadID   string
	User       string
	Text       string
	Timestamp  time.Time
	ReplyCount int
	Permalink  string
}

// MessagePage is one page of channel history.
type MessagePage struct {
	Messages   []Message
	HasMore    bool
	NextCursor string
}

// MessageSource reads a Slack-like messaging service.
type MessageSource interface {
	// ListChannels enumerates channels visible to the integration.
	ListChannels(ctx context.Context) ([]Channel, error)

	// FetchMessages pages through a channel's history. oldest bounds
	// the window for incremental sync (zero means from the beginning).
	FetchMessages(ctx context.Context, channelID string, oldest time.Time, cursor string) (*MessagePage, error)

	// FetchReplies returns the reply set of a thread, excluding the
	// parent message itself.
	FetchReplies(ctx context.Context, channelID, threadID string) ([]Message, error)
}

// Page is one workspace-notes page, flattened to text.
type Page struct {
	ID        string
	ParentID  string
	Title     string
	Text      string
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PageBatch is one page of the notes listing.
type PageBatch struct {
	Pages      []Page
	HasMore    bool
	NextCursor string
}

// PageSource reads a Notion-like notes service. Batches are returned
// most-recently-edited first, which lets incremental sync stop as soon
// as it sees an item at or before its cursor.
type PageSource interface {
	FetchPages(ctx context.Context, cursor string) (*PageBatch, error)
}

// MailMessage is one email, flattened to text.
type MailMessage struct {
	ID       string
	ThreadID string
	Subject  string
	From     string
	Body     string
	URL      string
	Date     time.Time
}

// MailWindow is a half-open [After, Before) time range.
type MailWindow struct {
	After  time.Time
	Before time.Time
}

// MailPage is one page of a window query.
type MailPage struct {
	Messages      []MailMessage
	NextPageToken string
}

// MailSource reads an email service by sliding time windows.
type MailSource interface {
	FetchWindow(ctx context.Context, w MailWindow, pageToken string, max int) (*MailPage, error)
}

// Issue is one tracker item with its comment text folded in.
type Issue struct {
	ID        string
	Key       string
	Title     string
	Body      string
	URL       string
	Assignee  string
	State     string
	Comments  []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IssuePage is one page of the issue listing.
type IssuePage struct {
	Issues   []Issue
	HasMore  bool
	NextPage int
}

// IssueSource reads an issue tracker with a server-side
// "updated after" filter.
type IssueSource interface {
	FetchIssues(ctx context.Context, updatedAfter time.Time, page int) (*IssuePage, error)
}
