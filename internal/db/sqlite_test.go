package db

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	write := buildDSN("/tmp/test.sqlite", ModeWrite)
	assert.True(t, strings.HasPrefix(write, "/tmp/test.sqlite?"))
	for _, want := range []string{"_journal_mode=WAL", "_busy_timeout=5000", "_synchronous=NORMAL", "_foreign_keys=on", "_txlock=immediate"} {
		assert.Contains(t, write, want)
	}

	read := buildDSN("/tmp/test.sqlite", ModeRead)
	assert.Contains(t, read, "_journal_mode=WAL")
	assert.NotContains(t, read, "_txlock")
}

func TestOpenSQLite_InvalidMode(t *testing.T) {
	_, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"), Mode("both"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SQLite mode")
}

func TestOpenSQLite_Write(t *testing.T) {
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"), ModeWrite, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", strings.ToLower(journalMode))

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
}

func TestOpenSQLite_ReadDefaultMaxOpen(t *testing.T) {
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"), ModeRead, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	assert.Equal(t, defaultReadConns, db.Stats().MaxOpenConnections)
}

func TestOpenStore_Migrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.sqlite")
	store, err := OpenStore(context.Background(), path)
	require.NoError(t, err)

	for _, table := range []string{"query_log", "metric_refresh"} {
		var name string
		err := store.Read.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
	}
	require.NoError(t, store.Close())

	// Reopening an up-to-date database is a no-op.
	store, err = OpenStore(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
}

func TestStore_ConcurrentReads(t *testing.T) {
	store, err := OpenStore(context.Background(), filepath.Join(t.TempDir(), "history.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	for i := 0; i < 20; i++ {
		_, err := store.Write.Exec(
			"INSERT INTO query_log (principal, original_sql, status) VALUES (?, ?, ?)", "p", "SELECT 1", "SUCCEEDED")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	counts := make([]int, 8)
	for i := range errs {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = store.Read.QueryRow("SELECT count(*) FROM query_log").Scan(&counts[idx])
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i], "reader %d", i)
		assert.Equal(t, 20, counts[i])
	}
}
