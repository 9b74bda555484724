package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
	"github.com/custodia-labs/quarry/internal/logger"
)

// maxConcurrentChannels bounds channel fan-out during a messages sync.
const maxConcurrentChannels = 3

// messagesAdapter syncs the messaging source channel by channel.
// Channels run concurrently with a bounded fan-out; one channel's
// failure is recorded and does not abort the others. Thread replies
// are indexed as child documents of their parent message.
type messagesAdapter struct {
	runner
	source driven.MessageSource
	policy domain.ChannelPolicy
}

func newMessagesAdapter(r runner, source driven.MessageSource, policy domain.ChannelPolicy) *messagesAdapter {
	return &messagesAdapter{runner: r, source: source, policy: policy}
}

// Sync re-walks every selected channel's full history.
func (a *messagesAdapter) Sync(ctx context.Context, onProgress domain.ProgressFunc) (*domain.SyncReport, error) {
	return a.run(ctx, onProgress, true)
}

// SyncIncremental fetches only messages newer than the cursor.
func (a *messagesAdapter) SyncIncremental(ctx context.Context, onProgress domain.ProgressFunc) (*domain.SyncReport, error) {
	return a.run(ctx, onProgress, false)
}

func (a *messagesAdapter) run(ctx context.Context, onProgress domain.ProgressFunc, full bool) (*domain.SyncReport, error) {
	const src = domain.SourceMessages
	started := time.Now()
	report := &domain.SyncReport{Source: src}

	if !a.policy.IncludesSource() {
		logger.Info("messages: channel selection empty, skipping source")
		report.Success = true
		return report, nil
	}

	cursor, err := a.begin(ctx, src)
	if err != nil {
		return report, a.fail(ctx, src, err)
	}
	var since time.Time
	if !full {
		since = cursor.Timestamp()
	}

	onProgress.Emit(domain.Progress{Source: src, Phase: domain.PhaseDiscovering})
	channels, err := a.source.ListChannels(ctx)
	if err != nil {
		return report, a.fail(ctx, src, fmt.Errorf("list channels: %w", err))
	}
	var selected []driven.Channel
	for _, ch := range channels {
		if a.policy.IncludesChannel(ch.ID) {
			selected = append(selected, ch)
		}
	}

	var (
		mu    sync.Mutex
		maxTS time.Time
		done  int
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentChannels)
	for _, ch := range selected {
		group.Go(func() error {
			chReport := &domain.SyncReport{Source: src}
			ts, err := a.syncChannel(groupCtx, ch, since, chReport)

			mu.Lock()
			defer mu.Unlock()
			report.ItemsSynced += chReport.ItemsSynced
			report.ItemsSkipped += chReport.ItemsSkipped
			report.ItemsFailed += chReport.ItemsFailed
			report.Errors = append(report.Errors, chReport.Errors...)
			maxTS = laterOf(maxTS, ts)
			done++
			onProgress.Emit(domain.Progress{
				Source: src, Phase: domain.PhaseSyncing,
				Current: done, Total: len(selected),
			})
			if err != nil {
				// Channel failures are isolated; the cursor does not
				// advance past them because their items never landed.
				logger.Warn("messages: channel %s failed: %v", ch.Name, err)
				report.Errors = append(report.Errors, domain.ItemError{SourceID: ch.ID, Err: err})
			}
			return nil
		})
	}
	_ = group.Wait()

	if err := a.finish(ctx, src, cursor, maxTS, report); err != nil {
		return report, a.fail(ctx, src, err)
	}
	report.Success = true
	report.Duration = time.Since(started)
	onProgress.Emit(domain.Progress{Source: src, Phase: domain.PhaseComplete})
	return report, nil
}

// syncChannel pages through one channel's history since the cursor and
// indexes messages plus their thread replies.
func (a *messagesAdapter) syncChannel(
	ctx context.Context, ch driven.Channel, since time.Time, report *domain.SyncReport,
) (time.Time, error) {
	var maxTS time.Time
	pageCursor := ""
	for {
		page, err := a.source.FetchMessages(ctx, ch.ID, since, pageCursor)
		if err != nil {
			return maxTS, fmt.Errorf("fetch history for %s: %w", ch.Name, err)
		}

		var items []item
		for _, msg := range page.Messages {
			items = append(items, messageToItem(msg, ch))
			if msg.ReplyCount > 0 && msg.ThreadID == "" {
				replies, err := a.source.FetchReplies(ctx, ch.ID, msg.ID)
				if err != nil {
					report.ItemsFailed++
					report.Errors = append(report.Errors, domain.ItemError{
						SourceID: messageSourceID(ch.ID, msg.ID),
						Err:      fmt.Errorf("fetch replies: %w", err),
					})
					continue
				}
				for _, reply := range replies {
					items = append(items, messageToItem(reply, ch))
				}
			}
		}

		ts, err := a.processBatch(ctx, domain.SourceMessages, items, report, nil)
		if err != nil {
			return maxTS, err
		}
		maxTS = laterOf(maxTS, ts)

		if !page.HasMore || page.NextCursor == "" {
			return maxTS, nil
		}
		pageCursor = page.NextCursor
		if err := a.pause(ctx); err != nil {
			return maxTS, err
		}
	}
}

// messageSourceID namespaces a message timestamp by its channel, since
// timestamps are only unique per channel.
func messageSourceID(channelID, messageID string) string {
	return channelID + ":" + messageID
}

func messageToItem(msg driven.Message, ch driven.Channel) item {
	meta := map[string]any{
		"channel":      ch.ID,
		"channel_name": ch.Name,
		"user":         msg.User,
	}
	if msg.Permalink != "" {
		meta["url"] = msg.Permalink
	}
	it := item{
		sourceID:  messageSourceID(ch.ID, msg.ID),
		text:      msg.Text,
		metadata:  meta,
		createdAt: msg.Timestamp,
		updatedAt: msg.Timestamp,
	}
	if msg.ThreadID != "" {
		it.parentID = messageSourceID(ch.ID, msg.ThreadID)
	}
	return it
}
