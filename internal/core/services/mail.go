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

// Mail sync defaults.
const (
	// DefaultMailWindowDays is the width of one backfill window.
	DefaultMailWindowDays = 7

	// DefaultMailHistoryDays is how far back a first full sync reaches.
	DefaultMailHistoryDays = 90

	// DefaultMailPageSize is the per-window listing page size.
	DefaultMailPageSize = 50

	mailRetryAttempts  = 3
	mailRetryBaseDelay = time.Second
)

// MailConfig tunes the mail adapter's windowing.
type MailConfig struct {
	WindowDays  int
	HistoryDays int
	PageSize    int
}

func (c MailConfig) withDefaults() MailConfig {
	if c.WindowDays <= 0 {
		c.WindowDays = DefaultMailWindowDays
	}
	if c.HistoryDays <= 0 {
		c.HistoryDays = DefaultMailHistoryDays
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultMailPageSize
	}
	return c
}

// mailAdapter syncs the email source by sliding a fixed-width
// [after, before) window backwards through the mailbox. Incremental
// runs cover a single window from the cursor to now.
type mailAdapter struct {
	runner
	source driven.MailSource
	cfg    MailConfig
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
}

func newMailAdapter(r runner, source driven.MailSource, cfg MailConfig) *mailAdapter {
	return &mailAdapter{
		runner: r,
		source: source,
		cfg:    cfg.withDefaults(),
		now:    func() time.Time { return time.Now().UTC() },
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Sync backfills the whole configured history window by window.
func (a *mailAdapter) Sync(ctx context.Context, onProgress domain.ProgressFunc) (*domain.SyncReport, error) {
	return a.run(ctx, onProgress, true)
}

// SyncIncremental covers only the span from the cursor to now.
func (a *mailAdapter) SyncIncremental(ctx context.Context, onProgress domain.ProgressFunc) (*domain.SyncReport, error) {
	return a.run(ctx, onProgress, false)
}

func (a *mailAdapter) run(ctx context.Context, onProgress domain.ProgressFunc, full bool) (*domain.SyncReport, error) {
	const src = domain.SourceMail
	started := time.Now()
	report := &domain.SyncReport{Source: src}

	cursor, err := a.begin(ctx, src)
	if err != nil {
		return report, a.fail(ctx, src, err)
	}
	since := cursor.Timestamp()
	onProgress.Emit(domain.Progress{Source: src, Phase: domain.PhaseDiscovering})

	now := a.now()
	horizon := now.AddDate(0, 0, -a.cfg.HistoryDays)
	if !full && !since.IsZero() && since.After(horizon) {
		horizon = since
	}

	maxTS, err := a.syncWindows(ctx, horizon, now, report, onProgress)
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

// syncWindows walks windows backwards from `until` until it passes
// `horizon`. A window whose boundary fails to move forces itself back
// one day so a bad boundary can never loop forever.
func (a *mailAdapter) syncWindows(
	ctx context.Context, horizon, until time.Time,
	report *domain.SyncReport, onProgress domain.ProgressFunc,
) (time.Time, error) {
	const src = domain.SourceMail
	window := time.Duration(a.cfg.WindowDays) * 24 * time.Hour

	var maxTS time.Time
	before := until
	count := 0
	for before.After(horizon) {
		count++
		after := before.Add(-window)
		if after.Before(horizon) {
			after = horizon
		}
		onProgress.Emit(domain.Progress{Source: src, Phase: domain.PhaseSyncing, Current: count})

		ts, err := a.syncOneWindow(ctx, driven.MailWindow{After: after, Before: before}, report)
		if err != nil {
			return maxTS, err
		}
		maxTS = laterOf(maxTS, ts)

		if !after.Before(before) {
			after = before.Add(-24 * time.Hour)
			logger.Warn("mail: window stuck at %s, forcing back one day", before.Format(time.RFC3339))
		}
		before = after
	}
	return maxTS, nil
}

// syncOneWindow drains every page of one window.
func (a *mailAdapter) syncOneWindow(
	ctx context.Context, window driven.MailWindow, report *domain.SyncReport,
) (time.Time, error) {
	var maxTS time.Time
	pageToken := ""
	for {
		page, err := a.fetchWindowWithRetry(ctx, window, pageToken)
		if err != nil {
			return maxTS, err
		}

		items := make([]item, 0, len(page.Messages))
		for _, msg := range page.Messages {
			items = append(items, mailToItem(msg))
		}
		ts, err := a.processBatch(ctx, domain.SourceMail, items, report, nil)
		if err != nil {
			return maxTS, err
		}
		maxTS = laterOf(maxTS, ts)

		if page.NextPageToken == "" {
			return maxTS, nil
		}
		pageToken = page.NextPageToken
	}
}

// fetchWindowWithRetry classifies connector failures: auth errors are
// final on the first attempt, transient errors retry with exponential
// backoff, and spending the attempt budget surfaces as a
// RetryExhaustedError.
func (a *mailAdapter) fetchWindowWithRetry(
	ctx context.Context, window driven.MailWindow, pageToken string,
) (*driven.MailPage, error) {
	var lastErr error
	for attempt := 0; attempt < mailRetryAttempts; attempt++ {
		if attempt > 0 {
			delay := mailRetryBaseDelay * time.Duration(1<<(attempt-1))
			if err := a.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		page, err := a.source.FetchWindow(ctx, window, pageToken, a.cfg.PageSize)
		if err == nil {
			return page, nil
		}
		if errors.Is(err, domain.ErrAuthFailed) {
			return nil, fmt.Errorf("fetch mail window: %w", err)
		}
		lastErr = err
		logger.Warn("mail: fetch window attempt %d failed: %v", attempt+1, err)
	}
	return nil, &domain.RetryExhaustedError{
		Op:               "mail.fetchWindow",
		RetryCount:       mailRetryAttempts,
		ExhaustedRetries: true,
		Err:              lastErr,
	}
}

func mailToItem(msg driven.MailMessage) item {
	meta := map[string]any{
		"from":   msg.From,
		"thread": msg.ThreadID,
	}
	if msg.URL != "" {
		meta["url"] = msg.URL
	}
	return item{
		sourceID:  msg.ID,
		title:     msg.Subject,
		text:      msg.Body,
		metadata:  meta,
		createdAt: msg.Date,
		updatedAt: msg.Date,
	}
}
