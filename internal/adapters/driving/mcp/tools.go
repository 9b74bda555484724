package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/quarry/internal/core/domain"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query    string   `json:"query" jsonschema:"the search query to find documents"`
	Limit    int      `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 5)"`
	Sources  []string `json:"sources,omitempty" jsonschema:"restrict to these sources: notes, messages, mail, tracker"`
	Channels []string `json:"channels,omitempty" jsonschema:"restrict messaging results to these channel IDs"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	DocumentID string  `json:"document_id"`
	Source     string  `json:"source"`
	Title      string  `json:"title"`
	URL        string  `json:"url,omitempty"`
	Timestamp  string  `json:"timestamp,omitempty"`
	Similarity float64 `json:"similarity"`
	Score      float64 `json:"score"`
	Content    string  `json:"content,omitempty"`
}

// SyncInput is the input schema for the sync tool.
type SyncInput struct {
	Source string `json:"source,omitempty" jsonschema:"source to sync (notes, messages, mail, tracker); empty syncs all"`
}

// SyncOutput is the output schema for the sync tool.
type SyncOutput struct {
	Reports []SyncReportOutput `json:"reports"`
}

// SyncReportOutput summarises one source's sync run.
type SyncReportOutput struct {
	Source       string `json:"source"`
	Success      bool   `json:"success"`
	ItemsSynced  int    `json:"items_synced"`
	ItemsSkipped int    `json:"items_skipped"`
	ItemsFailed  int    `json:"items_failed"`
}

// StatusInput is the input schema for the status tool.
type StatusInput struct{}

// StatusOutput is the output schema for the status tool.
type StatusOutput struct {
	Sources []SourceStatusOutput `json:"sources"`
}

// SourceStatusOutput is one source's sync state.
type SourceStatusOutput struct {
	Source       string `json:"source"`
	Status       string `json:"status"`
	LastSyncedAt string `json:"last_synced_at,omitempty"`
	Documents    int64  `json:"documents"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Search the local index of notes, messages, mail and tracker issues",
	}, s.handleSearch)

	if s.ports.Sync != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "sync",
			Description: "Synchronise documents from the configured sources",
		}, s.handleSync)
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "sync_status",
			Description: "Report per-source sync status and document counts",
		}, s.handleStatus)
	}
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	filter := domain.SearchFilter{}
	for _, raw := range input.Sources {
		source, err := domain.ParseSourceType(raw)
		if err != nil {
			return nil, SearchOutput{}, fmt.Errorf("source %q: %w", raw, err)
		}
		filter.Sources = append(filter.Sources, source)
	}
	if input.Channels != nil {
		filter.Channels = domain.ChannelPolicy{Configured: true, Channels: input.Channels}
	}

	results := s.ports.Search.Search(ctx, input.Query, input.Limit, filter)

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(results)),
		Count:   len(results),
	}
	for i := range results {
		out := SearchResultOutput{
			DocumentID: results[i].ID,
			Source:     string(results[i].Source),
			Title:      results[i].Title,
			URL:        results[i].URL,
			Similarity: results[i].Similarity,
			Score:      results[i].Score,
			Content:    results[i].Content,
		}
		if !results[i].Timestamp.IsZero() {
			out.Timestamp = results[i].Timestamp.UTC().Format(time.RFC3339)
		}
		output.Results[i] = out
	}

	return nil, output, nil
}

// handleSync handles the sync tool invocation.
func (s *Server) handleSync(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SyncInput,
) (*mcp.CallToolResult, SyncOutput, error) {
	if input.Source != "" {
		source, err := domain.ParseSourceType(input.Source)
		if err != nil {
			return nil, SyncOutput{}, fmt.Errorf("source %q: %w", input.Source, err)
		}
		report, err := s.ports.Sync.SyncSource(ctx, source, nil)
		if err != nil {
			return nil, SyncOutput{}, err
		}
		return nil, SyncOutput{Reports: []SyncReportOutput{toReportOutput(report)}}, nil
	}

	reports := s.ports.Sync.SyncAll(ctx)
	output := SyncOutput{}
	for _, source := range domain.AllSources() {
		if report, ok := reports[source]; ok {
			output.Reports = append(output.Reports, toReportOutput(report))
		}
	}
	return nil, output, nil
}

// handleStatus handles the sync_status tool invocation.
func (s *Server) handleStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	statuses, err := s.ports.Sync.Status(ctx)
	if err != nil {
		return nil, StatusOutput{}, err
	}

	output := StatusOutput{Sources: make([]SourceStatusOutput, len(statuses))}
	for i, status := range statuses {
		out := SourceStatusOutput{
			Source:    string(status.Source),
			Status:    string(status.Status),
			Documents: status.Documents,
		}
		if !status.LastSyncedAt.IsZero() {
			out.LastSyncedAt = status.LastSyncedAt.UTC().Format(time.RFC3339)
		}
		output.Sources[i] = out
	}
	return nil, output, nil
}

func toReportOutput(report *domain.SyncReport) SyncReportOutput {
	return SyncReportOutput{
		Source:       string(report.Source),
		Success:      report.Success,
		ItemsSynced:  report.ItemsSynced,
		ItemsSkipped: report.ItemsSkipped,
		ItemsFailed:  report.ItemsFailed,
	}
}
