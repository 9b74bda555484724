package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
	"github.com/custodia-labs/quarry/internal/logger"
)

// notesAdapter syncs the workspace-notes source. Full syncs walk the
// listing page by page and persist a secondary pagination cursor after
// every completed page, so an interrupted run resumes mid-listing.
// Incremental syncs exploit the most-recently-edited-first ordering:
// the run stops at the first page item at or before the cursor.
type notesAdapter struct {
	runner
	source driven.PageSource
}

func newNotesAdapter(r runner, source driven.PageSource) *notesAdapter {
	return &notesAdapter{runner: r, source: source}
}

// Sync walks the whole listing regardless of the timestamp cursor.
func (a *notesAdapter) Sync(ctx context.Context, onProgress domain.ProgressFunc) (*domain.SyncReport, error) {
	return a.run(ctx, onProgress, true)
}

// SyncIncremental fetches only pages edited since the cursor. With no
// cursor yet it degrades to a full sync.
func (a *notesAdapter) SyncIncremental(ctx context.Context, onProgress domain.ProgressFunc) (*domain.SyncReport, error) {
	return a.run(ctx, onProgress, false)
}

func (a *notesAdapter) run(ctx context.Context, onProgress domain.ProgressFunc, full bool) (*domain.SyncReport, error) {
	const src = domain.SourceNotes
	started := time.Now()
	report := &domain.SyncReport{Source: src}

	cursor, err := a.begin(ctx, src)
	if err != nil {
		return report, a.fail(ctx, src, err)
	}
	since := cursor.Timestamp()
	onProgress.Emit(domain.Progress{Source: src, Phase: domain.PhaseDiscovering})

	var maxTS time.Time
	if full || since.IsZero() {
		maxTS, err = a.fullSync(ctx, report, onProgress)
	} else {
		maxTS, err = a.incrementalSync(ctx, since, report, onProgress)
	}
	if err != nil {
		return report, a.fail(ctx, src, err)
	}

	if err := a.finish(ctx, src, cursor, maxTS, report); err != nil {
		return report, a.fail(ctx, src, err)
	}
	report.Success = true
	report.Duration = time.Since(started)
	onProgress.Emit(domain.Progress{Source: src, Phase: domain.PhaseComplete})
	return report, nil
}

// fullSync pages through the whole listing, resuming from a persisted
// pagination token if a previous run was interrupted.
func (a *notesAdapter) fullSync(
	ctx context.Context, report *domain.SyncReport, onProgress domain.ProgressFunc,
) (time.Time, error) {
	const src = domain.SourceNotes
	pagKey := domain.PaginationKey(src)

	pageCursor := ""
	if resume, err := a.cursors.Get(ctx, pagKey); err == nil {
		pageCursor = resume.Value
		logger.Info("notes: resuming full sync from saved pagination cursor")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return time.Time{}, fmt.Errorf("load notes pagination cursor: %w", err)
	}

	var maxTS time.Time
	page := 0
	for {
		page++
		onProgress.Emit(domain.Progress{Source: src, Phase: domain.PhaseSyncing, Current: page})

		batch, err := a.source.FetchPages(ctx, pageCursor)
		if err != nil {
			return maxTS, fmt.Errorf("fetch notes page: %w", err)
		}

		ts, err := a.processBatch(ctx, src, pagesToItems(batch.Pages), report, onProgress)
		if err != nil {
			return maxTS, err
		}
		maxTS = laterOf(maxTS, ts)

		if !batch.HasMore || batch.NextCursor == "" {
			break
		}
		pageCursor = batch.NextCursor
		save := domain.SyncCursor{
			Key:   pagKey,
			Value: pageCursor,
			Type:  domain.CursorPaginationToken,
		}
		if err := a.cursors.Set(ctx, save); err != nil {
			return maxTS, fmt.Errorf("persist notes pagination cursor: %w", err)
		}
		if err := a.pause(ctx); err != nil {
			return maxTS, err
		}
	}

	if err := a.cursors.Delete(ctx, pagKey); err != nil && !errors.Is(err, domain.ErrNotFound) {
		logger.Warn("notes: drop spent pagination cursor: %v", err)
	}
	return maxTS, nil
}

// incrementalSync reads newest-first batches until it meets an item at
// or before the cursor, then stops without paging further.
func (a *notesAdapter) incrementalSync(
	ctx context.Context, since time.Time,
	report *domain.SyncReport, onProgress domain.ProgressFunc,
) (time.Time, error) {
	const src = domain.SourceNotes

	var maxTS time.Time
	pageCursor := ""
	page := 0
	for {
		page++
		onProgress.Emit(domain.Progress{Source: src, Phase: domain.PhaseSyncing, Current: page})

		batch, err := a.source.FetchPages(ctx, pageCursor)
		if err != nil {
			return maxTS, fmt.Errorf("fetch notes page: %w", err)
		}

		var fresh []driven.Page
		done := false
		for _, p := range batch.Pages {
			if !p.UpdatedAt.After(since) {
				done = true
				break
			}
			fresh = append(fresh, p)
		}

		ts, err := a.processBatch(ctx, src, pagesToItems(fresh), report, onProgress)
		if err != nil {
			return maxTS, err
		}
		maxTS = laterOf(maxTS, ts)

		if done || !batch.HasMore || batch.NextCursor == "" {
			return maxTS, nil
		}
		pageCursor = batch.NextCursor
		if err := a.pause(ctx); err != nil {
			return maxTS, err
		}
	}
}

func pagesToItems(pages []driven.Page) []item {
	items := make([]item, 0, len(pages))
	for _, p := range pages {
		meta := map[string]any{}
		if p.URL != "" {
			meta["url"] = p.URL
		}
		items = append(items, item{
			sourceID:  p.ID,
			parentID:  p.ParentID,
			title:     p.Title,
			text:      p.Text,
			metadata:  meta,
			createdAt: p.CreatedAt,
			updatedAt: p.UpdatedAt,
		})
	}
	return items
}
