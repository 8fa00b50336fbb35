package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "mdl-rewrite/internal/db"
	"mdl-rewrite/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	store, err := internaldb.OpenStore(context.Background(), filepath.Join(t.TempDir(), "history.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store.Write
}

func ptrStr(s string) *string { return &s }
func ptrInt64(i int64) *int64 { return &i }

func TestQueryLogRepo_InsertAndList(t *testing.T) {
	repo := NewQueryLogRepo(openTestDB(t))
	ctx := context.Background()

	ok := &domain.QueryLogEntry{
		Principal:    "alice",
		OriginalSQL:  "SELECT * FROM Orders",
		RewrittenSQL: ptrStr(`WITH "Orders" AS (SELECT 1) SELECT * FROM "Orders"`),
		Status:       domain.StatusSucceeded,
		DurationMs:   12,
		RowsReturned: ptrInt64(3),
	}
	require.NoError(t, repo.Insert(ctx, ok))
	assert.NotZero(t, ok.ID)
	assert.False(t, ok.CreatedAt.IsZero())

	failed := &domain.QueryLogEntry{
		Principal:    "bob",
		OriginalSQL:  "SELECT * FROM roll_up(x, y, z)",
		Status:       domain.StatusFailed,
		ErrorCode:    ptrStr("NOT_FOUND"),
		ErrorMessage: ptrStr("metric x does not exist"),
	}
	require.NoError(t, repo.Insert(ctx, failed))

	entries, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "bob", entries[0].Principal, "newest first")
	assert.Nil(t, entries[0].RewrittenSQL)
	assert.Nil(t, entries[0].RowsReturned)
	require.NotNil(t, entries[0].ErrorCode)
	assert.Equal(t, "NOT_FOUND", *entries[0].ErrorCode)

	assert.Equal(t, "alice", entries[1].Principal)
	require.NotNil(t, entries[1].RowsReturned)
	assert.Equal(t, int64(3), *entries[1].RowsReturned)
	assert.Equal(t, *ok.RewrittenSQL, *entries[1].RewrittenSQL)
	assert.WithinDuration(t, ok.CreatedAt, entries[1].CreatedAt, time.Millisecond)

	limited, err := repo.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRefreshRunRepo_Lifecycle(t *testing.T) {
	repo := NewRefreshRunRepo(openTestDB(t))
	ctx := context.Background()

	run := &domain.RefreshRun{
		Metric:  "Revenue",
		Table:   "mdl_cache.Revenue",
		Trigger: domain.TriggerScheduled,
		Status:  "RUNNING",
	}
	require.NoError(t, repo.Start(ctx, run))
	require.NotZero(t, run.ID)

	runs, err := repo.ListForMetric(ctx, "Revenue", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "RUNNING", runs[0].Status)
	assert.Nil(t, runs[0].FinishedAt)

	run.Status = domain.StatusSucceeded
	run.RowCount = ptrInt64(42)
	require.NoError(t, repo.Finish(ctx, run))

	runs, err = repo.ListForMetric(ctx, "Revenue", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.StatusSucceeded, runs[0].Status)
	require.NotNil(t, runs[0].RowCount)
	assert.Equal(t, int64(42), *runs[0].RowCount)
	require.NotNil(t, runs[0].FinishedAt)
	assert.Equal(t, domain.TriggerScheduled, runs[0].Trigger)
}

func TestRefreshRunRepo_FinishUnknown(t *testing.T) {
	repo := NewRefreshRunRepo(openTestDB(t))

	err := repo.Finish(context.Background(), &domain.RefreshRun{ID: 999, Status: domain.StatusFailed})
	require.Error(t, err)
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestRefreshRunRepo_Latest(t *testing.T) {
	repo := NewRefreshRunRepo(openTestDB(t))
	ctx := context.Background()

	for _, m := range []string{"b", "a", "b"} {
		run := &domain.RefreshRun{Metric: m, Table: "mdl_cache." + m, Trigger: domain.TriggerManual, Status: domain.StatusSucceeded}
		require.NoError(t, repo.Start(ctx, run))
	}
	failed := &domain.RefreshRun{Metric: "a", Table: "mdl_cache.a", Trigger: domain.TriggerManual, Status: "RUNNING"}
	require.NoError(t, repo.Start(ctx, failed))
	failed.Status = domain.StatusFailed
	failed.ErrorMessage = ptrStr("boom")
	require.NoError(t, repo.Finish(ctx, failed))

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "a", latest[0].Metric)
	assert.Equal(t, domain.StatusFailed, latest[0].Status)
	require.NotNil(t, latest[0].ErrorMessage)
	assert.Equal(t, "boom", *latest[0].ErrorMessage)
	assert.Equal(t, "b", latest[1].Metric)
	assert.Equal(t, int64(3), latest[1].ID)
}
