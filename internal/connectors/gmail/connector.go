// Package gmail implements the MailSource port using the Gmail API.
// Messages are fetched inside explicit [after, before) windows so the
// sync service can walk the mailbox backwards in bounded slices.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
)

var _ driven.MailSource = (*Connector)(nil)

const userID = "me"

// Config holds configuration for the Gmail connector.
type Config struct {
	// AccessToken is a pre-issued OAuth access token with
	// gmail.readonly scope.
	AccessToken string

	// Endpoint overrides the API root (tests).
	Endpoint string
}

// Connector reads a mailbox through windowed queries.
type Connector struct {
	svc *gmail.Service
}

// New creates a Gmail connector.
func New(ctx context.Context, cfg Config) (*Connector, error) {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})
	opts := []option.ClientOption{option.WithTokenSource(source)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &Connector{svc: svc}, nil
}

// FetchWindow lists messages inside the window and resolves each to a
// full message. Gmail's after/before operators take unix seconds and
// bound the window as [after, before).
func (c *Connector) FetchWindow(
	ctx context.Context, window driven.MailWindow, pageToken string, max int,
) (*driven.MailPage, error) {
	query := fmt.Sprintf("after:%d before:%d", window.After.Unix(), window.Before.Unix())
	call := c.svc.Users.Messages.List(userID).
		Q(query).
		MaxResults(int64(max)).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	listing, err := call.Do()
	if err != nil {
		return nil, mapError(err)
	}

	page := &driven.MailPage{NextPageToken: listing.NextPageToken}
	for _, ref := range listing.Messages {
		msg, err := c.fetchMessage(ctx, ref.Id)
		if err != nil {
			return nil, fmt.Errorf("fetch message %s: %w", ref.Id, err)
		}
		page.Messages = append(page.Messages, msg)
	}
	return page, nil
}

func (c *Connector) fetchMessage(ctx context.Context, id string) (driven.MailMessage, error) {
	full, err := c.svc.Users.Messages.Get(userID, id).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return driven.MailMessage{}, mapError(err)
	}

	msg := driven.MailMessage{
		ID:       full.Id,
		ThreadID: full.ThreadId,
		URL:      "https://mail.google.com/mail/#all/" + full.Id,
		Date:     time.UnixMilli(full.InternalDate).UTC(),
	}
	if full.Payload != nil {
		for _, header := range full.Payload.Headers {
			switch header.Name {
			case "Subject":
				msg.Subject = header.Value
			case "From":
				msg.From = header.Value
			}
		}
		msg.Body = extractBody(full.Payload)
	}
	if msg.Body == "" {
		msg.Body = full.Snippet
	}
	return msg, nil
}

// extractBody finds the first text/plain part, descending through
// multipart containers.
func extractBody(part *gmail.MessagePart) string {
	if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(part.Body.Data, "="))
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(decoded))
	}
	for _, child := range part.Parts {
		if body := extractBody(child); body != "" {
			return body
		}
	}
	return ""
}

// mapError classifies Gmail API errors into domain errors.
func mapError(err error) error {
	apiErr, ok := err.(*googleapi.Error)
	if !ok {
		return err
	}
	switch apiErr.Code {
	case 401, 403:
		return fmt.Errorf("gmail: %s: %w", apiErr.Message, domain.ErrAuthFailed)
	case 429:
		return fmt.Errorf("gmail: %s: %w", apiErr.Message, domain.ErrRateLimited)
	}
	return err
}
