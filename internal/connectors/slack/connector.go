// Package slack implements the MessageSource port over the Slack Web
// API: channel listing, paginated history and thread replies.
package slack

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/custodia-labs/quarry/internal/core/ports/driven"
)

// Ensure Connector implements the interface.
var _ driven.MessageSource = (*Connector)(nil)

// Default configuration values.
const (
	DefaultTimeout  = 30 * time.Second
	DefaultPageSize = 100
)

// Config holds configuration for the Slack connector.
type Config struct {
	// Token is a bot token with channels:history/channels:read scopes.
	Token string

	// BaseURL overrides the API root (tests).
	BaseURL string

	// Timeout is the per-request timeout (default: 30s).
	Timeout time.Duration

	// PageSize is the history page size (default: 100, max 200).
	PageSize int
}

// Connector reads channels, messages and thread replies.
type Connector struct {
	client   *client
	pageSize int
}

// New creates a Slack connector.
func New(cfg Config) *Connector {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	return &Connector{
		client:   newClient(cfg.Token, cfg.BaseURL, cfg.Timeout),
		pageSize: cfg.PageSize,
	}
}

type channelsResponse struct {
	responseEnvelope
	Channels []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"channels"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

// ListChannels enumerates public channels the integration can read.
func (c *Connector) ListChannels(ctx context.Context) ([]driven.Channel, error) {
	var channels []driven.Channel
	cursor := ""
	for {
		params := url.Values{
			"limit":            {strconv.Itoa(c.pageSize)},
			"exclude_archived": {"true"},
			"types":            {"public_channel"},
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var resp channelsResponse
		if err := c.client.call(ctx, "conversations.list", params, &resp); err != nil {
			return nil, err
		}
		for _, ch := range resp.Channels {
			channels = append(channels, driven.Channel{ID: ch.ID, Name: ch.Name})
		}

		cursor = resp.ResponseMetadata.NextCursor
		if cursor == "" {
			return channels, nil
		}
	}
}

type historyResponse struct {
	responseEnvelope
	Messages         []apiMessage `json:"messages"`
	HasMore          bool         `json:"has_more"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

// FetchMessages pages through a channel's history, oldest-bounded for
// incremental sync.
func (c *Connector) FetchMessages(
	ctx context.Context, channelID string, oldest time.Time, cursor string,
) (*driven.MessagePage, error) {
	params := url.Values{
		"channel": {channelID},
		"limit":   {strconv.Itoa(c.pageSize)},
	}
	if !oldest.IsZero() {
		params.Set("oldest", formatTS(oldest))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var resp historyResponse
	if err := c.client.call(ctx, "conversations.history", params, &resp); err != nil {
		return nil, err
	}

	page := &driven.MessagePage{
		HasMore:    resp.HasMore,
		NextCursor: resp.ResponseMetadata.NextCursor,
	}
	for _, m := range resp.Messages {
		if msg, ok := toMessage(m, channelID); ok {
			page.Messages = append(page.Messages, msg)
		}
	}
	return page, nil
}

// FetchReplies returns a thread's replies, excluding the parent.
func (c *Connector) FetchReplies(
	ctx context.Context, channelID, threadID string,
) ([]driven.Message, error) {
	var replies []driven.Message
	cursor := ""
	for {
		params := url.Values{
			"channel": {channelID},
			"ts":      {threadID},
			"limit":   {strconv.Itoa(c.pageSize)},
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var resp historyResponse
		if err := c.client.call(ctx, "conversations.replies", params, &resp); err != nil {
			return nil, err
		}
		for _, m := range resp.Messages {
			if m.TS == threadID {
				continue
			}
			if msg, ok := toMessage(m, channelID); ok {
				replies = append(replies, msg)
			}
		}

		if !resp.HasMore || resp.ResponseMetadata.NextCursor == "" {
			return replies, nil
		}
		cursor = resp.ResponseMetadata.NextCursor
	}
}

// toMessage converts a wire message, dropping system subtypes and
// empty bodies.
func toMessage(m apiMessage, channelID string) (driven.Message, bool) {
	if m.Type != "message" || m.Subtype != "" || m.Text == "" {
		return driven.Message{}, false
	}
	threadID := ""
	if m.ThreadTS != "" && m.ThreadTS != m.TS {
		threadID = m.ThreadTS
	}
	return driven.Message{
		ID:         m.TS,
		ChannelID:  channelID,
		ThreadID:   threadID,
		User:       m.User,
		Text:       m.Text,
		Timestamp:  parseTS(m.TS),
		ReplyCount: m.ReplyCount,
	}, true
}
