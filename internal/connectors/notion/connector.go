// Package notion implements the PageSource port on top of the Notion
// API. Pages are discovered through the search endpoint, most recently
// edited first, and page bodies are assembled from block children.
package notion

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"

	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
)

var _ driven.PageSource = (*Connector)(nil)

// DefaultPageSize is the search page size.
const DefaultPageSize = 100

// Config holds configuration for the Notion connector.
type Config struct {
	// Token is an internal integration token.
	Token string

	// PageSize is the search page size (default: 100).
	PageSize int
}

// searchClient is the slice of the Notion client the connector uses.
type searchClient interface {
	Do(ctx context.Context, req *notionapi.SearchRequest) (*notionapi.SearchResponse, error)
}

type blockClient interface {
	GetChildren(ctx context.Context, id notionapi.BlockID, pagination *notionapi.Pagination) (*notionapi.GetChildrenResponse, error)
}

// Connector reads pages shared with the integration.
type Connector struct {
	search   searchClient
	blocks   blockClient
	pageSize int
}

// New creates a Notion connector.
func New(cfg Config) *Connector {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	client := notionapi.NewClient(notionapi.Token(cfg.Token))
	return &Connector{
		search:   client.Search,
		blocks:   client.Block,
		pageSize: cfg.PageSize,
	}
}

// FetchPages returns one batch of pages, most recently edited first.
func (c *Connector) FetchPages(ctx context.Context, cursor string) (*driven.PageBatch, error) {
	req := &notionapi.SearchRequest{
		Sort: &notionapi.SortObject{
			Direction: notionapi.SortOrderDESC,
			Timestamp: notionapi.TimestampLastEdited,
		},
		Filter: notionapi.SearchFilter{
			Value:    "page",
			Property: "object",
		},
		PageSize: c.pageSize,
	}
	if cursor != "" {
		req.StartCursor = notionapi.Cursor(cursor)
	}

	resp, err := c.search.Do(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}

	batch := &driven.PageBatch{
		HasMore:    resp.HasMore,
		NextCursor: string(resp.NextCursor),
	}
	for _, obj := range resp.Results {
		page, ok := obj.(*notionapi.Page)
		if !ok {
			continue
		}
		body, err := c.pageBody(ctx, page.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch page %s body: %w", page.ID, err)
		}
		batch.Pages = append(batch.Pages, driven.Page{
			ID:        string(page.ID),
			Title:     pageTitle(page),
			Text:      body,
			URL:       page.URL,
			CreatedAt: page.CreatedTime,
			UpdatedAt: page.LastEditedTime,
		})
	}
	return batch, nil
}

// pageBody walks the page's top-level blocks and joins their text.
func (c *Connector) pageBody(ctx context.Context, pageID notionapi.ObjectID) (string, error) {
	var parts []string
	pagination := &notionapi.Pagination{PageSize: DefaultPageSize}
	for {
		resp, err := c.blocks.GetChildren(ctx, notionapi.BlockID(pageID), pagination)
		if err != nil {
			return "", mapError(err)
		}
		for _, block := range resp.Results {
			if text := blockText(block); text != "" {
				parts = append(parts, text)
			}
		}
		if !resp.HasMore || resp.NextCursor == "" {
			return strings.Join(parts, "\n"), nil
		}
		pagination.StartCursor = notionapi.Cursor(resp.NextCursor)
	}
}

// pageTitle extracts the title property, which Notion names "title"
// for plain pages but may rename inside databases.
func pageTitle(page *notionapi.Page) string {
	for _, prop := range page.Properties {
		title, ok := prop.(*notionapi.TitleProperty)
		if !ok {
			continue
		}
		if text := richText(title.Title); text != "" {
			return text
		}
	}
	return ""
}

// blockText flattens a block's rich text. Unsupported block kinds
// contribute nothing.
func blockText(block notionapi.Block) string {
	switch b := block.(type) {
	case *notionapi.ParagraphBlock:
		return richText(b.Paragraph.RichText)
	case *notionapi.Heading1Block:
		return richText(b.Heading1.RichText)
	case *notionapi.Heading2Block:
		return richText(b.Heading2.RichText)
	case *notionapi.Heading3Block:
		return richText(b.Heading3.RichText)
	case *notionapi.BulletedListItemBlock:
		return richText(b.BulletedListItem.RichText)
	case *notionapi.NumberedListItemBlock:
		return richText(b.NumberedListItem.RichText)
	case *notionapi.ToDoBlock:
		return richText(b.ToDo.RichText)
	case *notionapi.QuoteBlock:
		return richText(b.Quote.RichText)
	case *notionapi.CalloutBlock:
		return richText(b.Callout.RichText)
	case *notionapi.CodeBlock:
		return richText(b.Code.RichText)
	default:
		return ""
	}
}

func richText(spans []notionapi.RichText) string {
	var sb strings.Builder
	for _, span := range spans {
		sb.WriteString(span.PlainText)
	}
	return strings.TrimSpace(sb.String())
}

// mapError classifies Notion API errors into domain errors.
func mapError(err error) error {
	apiErr, ok := err.(*notionapi.Error)
	if !ok {
		return err
	}
	switch apiErr.Status {
	case 401, 403:
		return fmt.Errorf("%s: %w", apiErr.Message, domain.ErrAuthFailed)
	case 429:
		return fmt.Errorf("%s: %w", apiErr.Message, domain.ErrRateLimited)
	}
	return err
}
