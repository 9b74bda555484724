package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
	"github.com/custodia-labs/quarry/internal/core/ports/driving"
	"github.com/custodia-labs/quarry/internal/logger"
)

var _ driving.SyncService = (*Orchestrator)(nil)

// statusCacheTTL bounds how stale a status snapshot may be.
const statusCacheTTL = 30 * time.Second

// syncAdapter is one source's pair of sync entry points.
type syncAdapter interface {
	Sync(ctx context.Context, onProgress domain.ProgressFunc) (*domain.SyncReport, error)
	SyncIncremental(ctx context.Context, onProgress domain.ProgressFunc) (*domain.SyncReport, error)
}

// Sources wires the configured connectors into the orchestrator.
// A nil entry means the source is not configured and is skipped.
type Sources struct {
	Notes    driven.PageSource
	Messages driven.MessageSource
	Mail     driven.MailSource
	Tracker  driven.IssueSource
}

// Orchestrator coordinates sync runs across sources and serves status
// snapshots from a short-lived cache.
type Orchestrator struct {
	docs     driven.DocumentStore
	cursors  driven.CursorStore
	adapters map[domain.SourceType]syncAdapter

	mu       sync.Mutex
	cached   []domain.SourceStatus
	cachedAt time.Time
}

// NewOrchestrator builds the orchestrator for the configured sources.
func NewOrchestrator(
	docs driven.DocumentStore, cursors driven.CursorStore,
	embedder driven.EmbeddingService,
	sources Sources, policy domain.ChannelPolicy, mailCfg MailConfig,
) *Orchestrator {
	r := runner{docs: docs, cursors: cursors, embedder: embedder}
	adapters := make(map[domain.SourceType]syncAdapter)
	if sources.Notes != nil {
		adapters[domain.SourceNotes] = newNotesAdapter(r, sources.Notes)
	}
	if sources.Messages != nil {
		adapters[domain.SourceMessages] = newMessagesAdapter(r, sources.Messages, policy)
	}
	if sources.Mail != nil {
		adapters[domain.SourceMail] = newMailAdapter(r, sources.Mail, mailCfg)
	}
	if sources.Tracker != nil {
		adapters[domain.SourceTracker] = newTrackerAdapter(r, sources.Tracker)
	}
	return &Orchestrator{docs: docs, cursors: cursors, adapters: adapters}
}

// SyncSource runs one source's incremental sync (a first full sync
// when no cursor exists yet) and invalidates the status cache.
func (o *Orchestrator) SyncSource(
	ctx context.Context, source domain.SourceType, onProgress domain.ProgressFunc,
) (*domain.SyncReport, error) {
	return o.syncOne(ctx, source, onProgress, false)
}

// SyncSourceFull forces a full re-walk of the source, re-checking every
// upstream item against its stored content hash.
func (o *Orchestrator) SyncSourceFull(
	ctx context.Context, source domain.SourceType, onProgress domain.ProgressFunc,
) (*domain.SyncReport, error) {
	return o.syncOne(ctx, source, onProgress, true)
}

func (o *Orchestrator) syncOne(
	ctx context.Context, source domain.SourceType, onProgress domain.ProgressFunc, full bool,
) (*domain.SyncReport, error) {
	adapter, ok := o.adapters[source]
	if !ok {
		return nil, fmt.Errorf("sync %s: %w", source, domain.ErrUnsupportedSource)
	}
	var report *domain.SyncReport
	var err error
	if full {
		report, err = adapter.Sync(ctx, onProgress)
	} else {
		report, err = adapter.SyncIncremental(ctx, onProgress)
	}
	o.invalidateStatus()
	if err != nil {
		return report, fmt.Errorf("sync %s: %w", source, err)
	}
	logger.Info("sync %s: %d synced, %d skipped, %d failed",
		source, report.ItemsSynced, report.ItemsSkipped, report.ItemsFailed)
	return report, nil
}

// SyncAll runs every configured source concurrently. A failing source
// contributes a failed report; it never aborts its siblings.
func (o *Orchestrator) SyncAll(ctx context.Context) map[domain.SourceType]*domain.SyncReport {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		reports = make(map[domain.SourceType]*domain.SyncReport, len(o.adapters))
	)
	for source, adapter := range o.adapters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := adapter.SyncIncremental(ctx, nil)
			if err != nil {
				logger.Error("sync %s: %v", source, err)
				if report == nil {
					report = &domain.SyncReport{Source: source}
				}
				report.Success = false
			}
			mu.Lock()
			reports[source] = report
			mu.Unlock()
		}()
	}
	wg.Wait()
	o.invalidateStatus()
	return reports
}

// ResetSource drops a source's documents and both its cursor rows.
// The next sync for the source runs as a first full sync.
func (o *Orchestrator) ResetSource(ctx context.Context, source domain.SourceType) error {
	if _, err := domain.ParseSourceType(string(source)); err != nil {
		return fmt.Errorf("reset %s: %w", source, err)
	}
	if err := o.docs.DeleteSource(ctx, source); err != nil {
		return fmt.Errorf("reset %s documents: %w", source, err)
	}
	for _, key := range []string{string(source), domain.PaginationKey(source)} {
		if err := o.cursors.Delete(ctx, key); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("reset %s cursor %s: %w", source, key, err)
		}
	}
	o.invalidateStatus()
	logger.Info("reset %s: documents and cursors cleared", source)
	return nil
}

// Status returns a per-source snapshot, cached for a short interval.
func (o *Orchestrator) Status(ctx context.Context) ([]domain.SourceStatus, error) {
	o.mu.Lock()
	if o.cached != nil && time.Since(o.cachedAt) < statusCacheTTL {
		snapshot := o.cached
		o.mu.Unlock()
		return snapshot, nil
	}
	o.mu.Unlock()

	counts, err := o.docs.CountBySource(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}

	statuses := make([]domain.SourceStatus, 0, len(domain.AllSources()))
	for _, source := range domain.AllSources() {
		status := domain.SourceStatus{
			Source:    source,
			Status:    domain.StatusIdle,
			Documents: counts[source],
		}
		cursor, err := o.cursors.Get(ctx, string(source))
		switch {
		case err == nil:
			status.Status = cursor.Status
			status.LastSyncedAt = cursor.LastSyncedAt
			status.ItemsSynced = cursor.ItemsSynced
		case !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("load %s cursor: %w", source, err)
		}
		statuses = append(statuses, status)
	}

	o.mu.Lock()
	o.cached = statuses
	o.cachedAt = time.Now()
	o.mu.Unlock()
	return statuses, nil
}

func (o *Orchestrator) invalidateStatus() {
	o.mu.Lock()
	o.cached = nil
	o.mu.Unlock()
}
