package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
)

// trackerAdapter syncs the issue tracker. The upstream filters
// server-side by "updated after", so both full and incremental runs are
// the same sequential page walk with a different lower bound.
type trackerAdapter struct {
	runner
	source driven.IssueSource
}

func newTrackerAdapter(r runner, source driven.IssueSource) *trackerAdapter {
	return &trackerAdapter{runner: r, source: source}
}

// Sync re-fetches every issue regardless of the cursor.
func (a *trackerAdapter) Sync(ctx context.Context, onProgress domain.ProgressFunc) (*domain.SyncReport, error) {
	return a.run(ctx, onProgress, true)
}

// SyncIncremental fetches only issues updated after the cursor.
func (a *trackerAdapter) SyncIncremental(ctx context.Context, onProgress domain.ProgressFunc) (*domain.SyncReport, error) {
	return a.run(ctx, onProgress, false)
}

func (a *trackerAdapter) run(ctx context.Context, onProgress domain.ProgressFunc, full bool) (*domain.SyncReport, error) {
	const src = domain.SourceTracker
	started := time.Now()
	report := &domain.SyncReport{Source: src}

	cursor, err := a.begin(ctx, src)
	if err != nil {
		return report, a.fail(ctx, src, err)
	}
	var since time.Time
	if !full {
		since = cursor.Timestamp()
	}
	onProgress.Emit(domain.Progress{Source: src, Phase: domain.PhaseDiscovering})

	var maxTS time.Time
	page := 1
	for {
		onProgress.Emit(domain.Progress{Source: src, Phase: domain.PhaseSyncing, Current: page})

		issues, err := a.source.FetchIssues(ctx, since, page)
		if err != nil {
			return report, a.fail(ctx, src, fmt.Errorf("fetch issues page %d: %w", page, err))
		}

		ts, err := a.processBatch(ctx, src, issuesToItems(issues.Issues), report, onProgress)
		if err != nil {
			return report, a.fail(ctx, src, err)
		}
		maxTS = laterOf(maxTS, ts)

		if !issues.HasMore || issues.NextPage == 0 {
			break
		}
		page = issues.NextPage
		if err := a.pause(ctx); err != nil {
			return report, a.fail(ctx, src, err)
		}
	}

	if err := a.finish(ctx, src, cursor, maxTS, report); err != nil {
		return report, a.fail(ctx, src, err)
	}
	report.Success = true
	report.Duration = time.Since(started)
	onProgress.Emit(domain.Progress{Source: src, Phase: domain.PhaseComplete})
	return report, nil
}

func issuesToItems(issues []driven.Issue) []item {
	items := make([]item, 0, len(issues))
	for _, issue := range issues {
		text := issue.Body
		if len(issue.Comments) > 0 {
			text = strings.Join(append([]string{text}, issue.Comments...), "\n\n")
		}
		meta := map[string]any{
			"key":   issue.Key,
			"state": issue.State,
		}
		if issue.URL != "" {
			meta["url"] = issue.URL
		}
		if issue.Assignee != "" {
			meta["assignee"] = issue.Assignee
		}
		items = append(items, item{
			sourceID:  issue.ID,
			title:     issue.Title,
			text:      text,
			metadata:  meta,
			createdAt: issue.CreatedAt,
			updatedAt: issue.UpdatedAt,
		})
	}
	return items
}
