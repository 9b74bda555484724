package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
	"github.com/custodia-labs/quarry/internal/logger"
	"github.com/custodia-labs/quarry/internal/preprocess"
)

// maxEmbedBatch bounds how many texts one embedding request may carry,
// regardless of the client's own batch splitting.
const maxEmbedBatch = 300

// pageFetchDelay spaces consecutive page fetches against one upstream.
const pageFetchDelay = 50 * time.Millisecond

// item is one unit of upstream content on its way into the store. The
// per-source adapters map their wire types onto this and hand batches
// to the shared runner.
type item struct {
	sourceID  string
	parentID  string
	title     string
	text      string
	metadata  map[string]any
	createdAt time.Time
	updatedAt time.Time
}

// runner is the pipeline shared by all sync adapters: content hashing,
// change detection, batched embedding and hash-guarded upserts.
type runner struct {
	docs     driven.DocumentStore
	cursors  driven.CursorStore
	embedder driven.EmbeddingService
}

// begin marks the source as syncing and loads its primary cursor.
// A source that never synced yields a nil cursor.
func (r *runner) begin(ctx context.Context, source domain.SourceType) (*domain.SyncCursor, error) {
	if err := r.cursors.SetStatus(ctx, source, domain.StatusSyncing); err != nil {
		return nil, fmt.Errorf("mark %s syncing: %w", source, err)
	}
	cursor, err := r.cursors.Get(ctx, string(source))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load %s cursor: %w", source, err)
	}
	return cursor, nil
}

// fail records the error status before the failure is rethrown, so a
// crashed run is visible in the status output.
func (r *runner) fail(ctx context.Context, source domain.SourceType, err error) error {
	if statusErr := r.cursors.SetStatus(ctx, source, domain.StatusError); statusErr != nil {
		logger.Error("record %s error status: %v", source, statusErr)
	}
	return err
}

// finish persists the advanced cursor and flips the source back to
// idle. The cursor value only moves forward: when a run saw nothing
// newer, the previous value is kept.
func (r *runner) finish(
	ctx context.Context, source domain.SourceType,
	prev *domain.SyncCursor, maxTS time.Time, report *domain.SyncReport,
) error {
	value := ""
	var itemsTotal int64
	if prev != nil {
		value = prev.Value
		itemsTotal = prev.ItemsSynced
	}
	if !maxTS.IsZero() && maxTS.After(prev.Timestamp()) {
		value = domain.FormatCursorTime(maxTS)
	}
	itemsTotal += int64(report.ItemsSynced)

	cursor := domain.SyncCursor{
		Key:          string(source),
		Value:        value,
		Type:         domain.CursorTimestamp,
		LastSyncedAt: time.Now().UTC(),
		ItemsSynced:  itemsTotal,
		Status:       domain.StatusIdle,
	}
	if err := r.cursors.Set(ctx, cursor); err != nil {
		return fmt.Errorf("persist %s cursor: %w", source, err)
	}
	report.LastCursor = value
	return nil
}

// processBatch runs a batch of items through the pipeline: one
// round-trip hash lookup, skip unchanged, embed the rest, upsert.
// It returns the maximum source-updated time over the items that were
// skipped or written; failed items do not advance the cursor, so they
// are retried by the next incremental run.
func (r *runner) processBatch(
	ctx context.Context, source domain.SourceType,
	items []item, report *domain.SyncReport, onProgress domain.ProgressFunc,
) (time.Time, error) {
	var maxTS time.Time
	if len(items) == 0 {
		return maxTS, nil
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.sourceID
	}
	stored, err := r.docs.GetContentHashes(ctx, source, ids)
	if err != nil {
		return maxTS, fmt.Errorf("load %s content hashes: %w", source, err)
	}

	type pending struct {
		item    item
		content string
		hash    string
	}
	var changed []pending
	for _, it := range items {
		content := preprocess.Truncate(preprocess.Clean(it.text), preprocess.MaxContentLength)
		hash := preprocess.Hash(content)
		if stored[it.sourceID] == hash {
			report.ItemsSkipped++
			maxTS = laterOf(maxTS, it.updatedAt)
			continue
		}
		changed = append(changed, pending{item: it, content: content, hash: hash})
	}
	if len(changed) == 0 {
		return maxTS, nil
	}

	onProgress.Emit(domain.Progress{Source: source, Phase: domain.PhaseEmbedding, Total: len(changed)})

	vectors := make([][]float32, 0, len(changed))
	for start := 0; start < len(changed); start += maxEmbedBatch {
		end := min(start+maxEmbedBatch, len(changed))
		texts := make([]string, 0, end-start)
		for _, p := range changed[start:end] {
			texts = append(texts, p.content)
		}
		batch, err := r.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return maxTS, fmt.Errorf("embed %s batch: %w", source, err)
		}
		vectors = append(vectors, batch...)
	}

	// Writes fan out; a single item's failure is recorded and must not
	// fail the batch. Hash-guarded upserts keyed by (source, sourceID)
	// make the concurrent writes safe.
	now := time.Now().UTC()
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for i, p := range changed {
		if len(vectors[i]) == 0 {
			report.ItemsFailed++
			report.Errors = append(report.Errors, domain.ItemError{
				SourceID: p.item.sourceID,
				Err:      domain.ErrEmbeddingUnavailable,
			})
			continue
		}
		doc := &domain.Document{
			ID:              uuid.NewString(),
			Source:          source,
			SourceID:        p.item.sourceID,
			Title:           p.item.title,
			Content:         p.content,
			ContentHash:     p.hash,
			Embedding:       vectors[i],
			Metadata:        p.item.metadata,
			SourceCreatedAt: p.item.createdAt,
			SourceUpdatedAt: p.item.updatedAt,
			IndexedAt:       now,
		}
		if p.item.parentID != "" {
			parent := p.item.parentID
			doc.ParentID = &parent
		}
		wg.Add(1)
		go func(it item) {
			defer wg.Done()
			err := r.docs.Upsert(ctx, doc)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.ItemsFailed++
				report.Errors = append(report.Errors, domain.ItemError{SourceID: it.sourceID, Err: err})
				logger.Warn("upsert %s/%s: %v", source, it.sourceID, err)
				return
			}
			report.ItemsSynced++
			maxTS = laterOf(maxTS, it.updatedAt)
		}(p.item)
	}
	wg.Wait()
	return maxTS, nil
}

// pause waits the inter-page delay unless the context ends first.
func (r *runner) pause(ctx context.Context) error {
	return sleepCtx(ctx, pageFetchDelay)
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
