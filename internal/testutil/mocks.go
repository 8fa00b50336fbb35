// Package testutil provides shared mock implementations of domain interfaces
// and fixtures for use in tests across the codebase. This follows the Go
// convention of a shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"sync"
	"time"

	"mdl-rewrite/internal/domain"
)

// === Query Log Repository Mock ===

// MockQueryLogRepo implements domain.QueryLogRepository for testing.
type MockQueryLogRepo struct {
	InsertFn func(ctx context.Context, e *domain.QueryLogEntry) error
	ListFn   func(ctx context.Context, limit int) ([]domain.QueryLogEntry, error)

	mu      sync.Mutex
	Entries []*domain.QueryLogEntry // collected entries for assertions
}

// Insert implements the interface method for testing.
func (m *MockQueryLogRepo) Insert(ctx context.Context, e *domain.QueryLogEntry) error {
	if m.InsertFn != nil {
		if err := m.InsertFn(ctx, e); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.Entries) + 1)
	m.Entries = append(m.Entries, e)
	return nil
}

// List implements the interface method for testing.
func (m *MockQueryLogRepo) List(ctx context.Context, limit int) ([]domain.QueryLogEntry, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.QueryLogEntry
	for i := len(m.Entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, *m.Entries[i])
	}
	return out, nil
}

// LastEntry returns the last collected entry, or nil if none.
func (m *MockQueryLogRepo) LastEntry() *domain.QueryLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Entries) == 0 {
		return nil
	}
	return m.Entries[len(m.Entries)-1]
}

// === Refresh Run Repository Mock ===

// MockRefreshRunRepo implements domain.RefreshRunRepository in memory. It
// is safe for concurrent use because the refresher runs jobs on cron
// goroutines.
type MockRefreshRunRepo struct {
	StartFn func(ctx context.Context, run *domain.RefreshRun) error

	mu   sync.Mutex
	Runs []domain.RefreshRun
}

// Start implements the interface method for testing.
func (m *MockRefreshRunRepo) Start(ctx context.Context, run *domain.RefreshRun) error {
	if m.StartFn != nil {
		if err := m.StartFn(ctx, run); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.ID = int64(len(m.Runs) + 1)
	m.Runs = append(m.Runs, *run)
	return nil
}

// Finish implements the interface method for testing.
func (m *MockRefreshRunRepo) Finish(_ context.Context, run *domain.RefreshRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Runs {
		if m.Runs[i].ID == run.ID {
			if run.FinishedAt == nil {
				now := time.Now()
				run.FinishedAt = &now
			}
			m.Runs[i] = *run
			return nil
		}
	}
	return domain.ErrNotFound("refresh run %d not found", run.ID)
}

// ListForMetric implements the interface method for testing.
func (m *MockRefreshRunRepo) ListForMetric(_ context.Context, metric string, limit int) ([]domain.RefreshRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RefreshRun
	for i := len(m.Runs) - 1; i >= 0; i-- {
		if m.Runs[i].Metric != metric {
			continue
		}
		out = append(out, m.Runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Latest implements the interface method for testing.
func (m *MockRefreshRunRepo) Latest(_ context.Context) ([]domain.RefreshRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var out []domain.RefreshRun
	for i := len(m.Runs) - 1; i >= 0; i-- {
		if seen[m.Runs[i].Metric] {
			continue
		}
		seen[m.Runs[i].Metric] = true
		out = append(out, m.Runs[i])
	}
	return out, nil
}

// Snapshot returns a copy of the recorded runs.
func (m *MockRefreshRunRepo) Snapshot() []domain.RefreshRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.RefreshRun(nil), m.Runs...)
}
