package mcp

import (
	"context"

	"github.com/custodia-labs/quarry/internal/core/domain"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	results    []domain.RankedResult
	lastQuery  string
	lastLimit  int
	lastFilter domain.SearchFilter
}

func (m *mockSearchService) Search(
	_ context.Context, query string, limit int, filter domain.SearchFilter,
) []domain.RankedResult {
	m.lastQuery = query
	m.lastLimit = limit
	m.lastFilter = filter
	return m.results
}

// mockSyncService is a mock implementation of driving.SyncService.
type mockSyncService struct {
	report     *domain.SyncReport
	reports    map[domain.SourceType]*domain.SyncReport
	statuses   []domain.SourceStatus
	err        error
	lastSource domain.SourceType
}

func (m *mockSyncService) SyncSource(
	_ context.Context, source domain.SourceType, _ domain.ProgressFunc,
) (*domain.SyncReport, error) {
	m.lastSource = source
	return m.report, m.err
}

func (m *mockSyncService) SyncSourceFull(
	ctx context.Context, source domain.SourceType, onProgress domain.ProgressFunc,
) (*domain.SyncReport, error) {
	return m.SyncSource(ctx, source, onProgress)
}

func (m *mockSyncService) SyncAll(_ context.Context) map[domain.SourceType]*domain.SyncReport {
	return m.reports
}

func (m *mockSyncService) Status(_ context.Context) ([]domain.SourceStatus, error) {
	return m.statuses, m.err
}

func (m *mockSyncService) ResetSource(_ context.Context, source domain.SourceType) error {
	m.lastSource = source
	return m.err
}
