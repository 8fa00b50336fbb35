package domain

import (
	"context"
	"time"
)

// Statuses of logged queries and refresh runs.
const (
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

// QueryLogEntry records one query run through the rewriter and executor.
type QueryLogEntry struct {
	ID           int64
	Principal    string
	OriginalSQL  string
	RewrittenSQL *string
	Status       string
	ErrorCode    *string
	ErrorMessage *string
	DurationMs   int64
	RowsReturned *int64
	CreatedAt    time.Time
}

// RefreshRun records one materialization of a cached metric.
type RefreshRun struct {
	ID           int64
	Metric       string
	Table        string
	Trigger      string // "scheduled" or "manual"
	Status       string
	ErrorMessage *string
	RowCount     *int64
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// Refresh triggers.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// QueryLogRepository persists query log entries.
type QueryLogRepository interface {
	Insert(ctx context.Context, e *QueryLogEntry) error
	List(ctx context.Context, limit int) ([]QueryLogEntry, error)
}

// RefreshRunRepository persists cached metric refresh runs.
type RefreshRunRepository interface {
	Start(ctx context.Context, run *RefreshRun) error
	Finish(ctx context.Context, run *RefreshRun) error
	ListForMetric(ctx context.Context, metric string, limit int) ([]RefreshRun, error)
	Latest(ctx context.Context) ([]RefreshRun, error)
}
