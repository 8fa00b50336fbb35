package query

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdl-rewrite/internal/compute"
	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/semantic"
	"mdl-rewrite/internal/testutil"
)

func newTestService(t *testing.T, withExecutor bool) (*Service, *testutil.MockQueryLogRepo) {
	t.Helper()
	cat := testutil.LoadTPCH(t)
	var exec Executor
	if withExecutor {
		exec = compute.NewLocalExecutor(testutil.OpenTPCH(t))
	}
	repo := &testutil.MockQueryLogRepo{}
	svc := NewService(semantic.NewEngine(nil), func() domain.Catalog { return cat }, exec, repo, nil)
	return svc, repo
}

// === Rewrite ===

func TestService_Rewrite(t *testing.T) {
	svc, repo := newTestService(t, false)

	res, err := svc.Rewrite(context.Background(), Request{SQL: "SELECT custkey, buy_item_count FROM Customer WHERE custkey = 370"})
	require.NoError(t, err)
	assert.Equal(t, res.OriginalSQL, res.ExpandedSQL, "no templates to expand")
	assert.Contains(t, res.RewrittenSQL, "FROM (SELECT")
	assert.Contains(t, res.RewrittenSQL, `"lineitem"`)
	assert.Empty(t, repo.Entries, "rewrite alone is not logged")
}

func TestService_Rewrite_Errors(t *testing.T) {
	svc, _ := newTestService(t, false)

	tests := []struct {
		name     string
		sql      string
		wantCode domain.RewriteCode
	}{
		{name: "unknown_time_grain", sql: "SELECT * FROM roll_up(Revenue, missing, YEAR)", wantCode: domain.CodeNotFound},
		{name: "not_a_select", sql: "DELETE FROM Customer", wantCode: domain.CodeUnsupportedExpression},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Rewrite(context.Background(), Request{SQL: tt.sql})
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, domain.RewriteCodeOf(err))
		})
	}
}

func TestService_Rewrite_DefaultSession(t *testing.T) {
	svc, _ := newTestService(t, false)
	svc.SetDefaultSession("wren", "tpch")

	res, err := svc.Rewrite(context.Background(), Request{SQL: "SELECT custkey FROM wren.tpch.Customer"})
	require.NoError(t, err)
	assert.Contains(t, res.RewrittenSQL, "FROM (SELECT", "qualified with the default session")

	res, err = svc.Rewrite(context.Background(), Request{SQL: "SELECT custkey FROM memory.main.Customer"})
	require.NoError(t, err)
	assert.NotContains(t, res.RewrittenSQL, "FROM (SELECT", "the manifest session no longer applies")

	res, err = svc.Rewrite(context.Background(), Request{SQL: "SELECT custkey FROM memory.main.Customer", Catalog: "memory", Schema: "main"})
	require.NoError(t, err)
	assert.Contains(t, res.RewrittenSQL, "FROM (SELECT", "request session wins over the default")
}

func TestService_Rewrite_EmptySQL(t *testing.T) {
	svc, _ := newTestService(t, false)
	for _, q := range []string{"", "  \t\n "} {
		_, err := svc.Rewrite(context.Background(), Request{SQL: q})
		var valErr *domain.ValidationError
		require.ErrorAs(t, err, &valErr)
	}
}

// === Execute ===

func TestService_Execute(t *testing.T) {
	svc, repo := newTestService(t, true)

	res, err := svc.Execute(context.Background(), Request{
		SQL:       "SELECT custkey, buy_item_count FROM Customer WHERE custkey = 370",
		Principal: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"custkey", "buy_item_count"}, res.Columns)
	require.Equal(t, 1, res.RowCount)
	assert.EqualValues(t, 370, res.Rows[0][0])
	assert.EqualValues(t, 3, res.Rows[0][1])

	entry := repo.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "alice", entry.Principal)
	assert.Equal(t, domain.StatusSucceeded, entry.Status)
	require.NotNil(t, entry.RewrittenSQL)
	assert.Equal(t, res.RewrittenSQL, *entry.RewrittenSQL)
	require.NotNil(t, entry.RowsReturned)
	assert.Equal(t, int64(1), *entry.RowsReturned)
	assert.Nil(t, entry.ErrorCode)
}

func TestService_Execute_ExpandsMacros(t *testing.T) {
	svc, _ := newTestService(t, true)

	res, err := svc.Execute(context.Background(), Request{
		SQL: "SELECT {{ addOne(custkey) }} AS next_key FROM Customer WHERE custkey = 370",
	})
	require.NoError(t, err)
	assert.NotContains(t, res.ExpandedSQL, "{{")
	require.Equal(t, 1, res.RowCount)
	assert.EqualValues(t, 371, res.Rows[0][0])
}

func TestService_Execute_MaxRows(t *testing.T) {
	svc, _ := newTestService(t, true)

	res, err := svc.Execute(context.Background(), Request{SQL: "SELECT orderkey FROM Orders ORDER BY orderkey", MaxRows: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowCount)
	assert.True(t, res.Truncated)

	svc.SetMaxRows(1)
	res, err = svc.Execute(context.Background(), Request{SQL: "SELECT orderkey FROM Orders"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowCount)
}

func TestService_Execute_Failures(t *testing.T) {
	tests := []struct {
		name         string
		sql          string
		wantCode     string
		wantRewrite  bool
		checkErrType func(t *testing.T, err error)
	}{
		{
			name:     "rewrite_error",
			sql:      "SELECT * FROM roll_up(Revenue, missing, YEAR)",
			wantCode: "NOT_FOUND",
		},
		{
			name:        "execution_error",
			sql:         "SELECT * FROM no_such_table",
			wantCode:    "EXECUTION_ERROR",
			wantRewrite: true,
			checkErrType: func(t *testing.T, err error) {
				t.Helper()
				var valErr *domain.ValidationError
				assert.ErrorAs(t, err, &valErr)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestService(t, true)

			_, err := svc.Execute(context.Background(), Request{SQL: tt.sql})
			require.Error(t, err)
			if tt.checkErrType != nil {
				tt.checkErrType(t, err)
			}

			entry := repo.LastEntry()
			require.NotNil(t, entry)
			assert.Equal(t, domain.StatusFailed, entry.Status)
			assert.Equal(t, "anonymous", entry.Principal)
			require.NotNil(t, entry.ErrorCode)
			assert.Equal(t, tt.wantCode, *entry.ErrorCode)
			assert.Equal(t, tt.wantRewrite, entry.RewrittenSQL != nil)
		})
	}
}

func TestService_Execute_EmptySQLNotLogged(t *testing.T) {
	svc, repo := newTestService(t, true)
	_, err := svc.Execute(context.Background(), Request{SQL: " "})
	require.Error(t, err)
	assert.Empty(t, repo.Entries)
}

func TestService_Execute_NoExecutor(t *testing.T) {
	svc, _ := newTestService(t, false)
	_, err := svc.Execute(context.Background(), Request{SQL: "SELECT 1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no compute engine")
}

func TestService_Execute_LogFailureIgnored(t *testing.T) {
	svc, repo := newTestService(t, true)
	repo.InsertFn = func(_ context.Context, _ *domain.QueryLogEntry) error {
		return fmt.Errorf("disk full")
	}

	res, err := svc.Execute(context.Background(), Request{SQL: "SELECT 1 AS one"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowCount)
}

func TestService_History(t *testing.T) {
	svc, _ := newTestService(t, true)
	for _, q := range []string{"SELECT 1", "SELECT 2", "SELECT 3"} {
		_, err := svc.Execute(context.Background(), Request{SQL: q})
		require.NoError(t, err)
	}

	entries, err := svc.History(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "SELECT 3", entries[0].OriginalSQL)

	noLog := NewService(semantic.NewEngine(nil), nil, nil, nil, nil)
	entries, err = noLog.History(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"rewrite", domain.ErrRewrite(domain.CodeMalformedTemplate, "bad"), "MALFORMED_TEMPLATE"},
		{"timeout", fmt.Errorf("%w after 1s", ErrTimeout), "TIMEOUT"},
		{"canceled", context.Canceled, "CANCELED"},
		{"execution", domain.ErrValidation("query failed: x"), "EXECUTION_ERROR"},
		{"other", errors.New("boom"), "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorCode(tt.err))
		})
	}
}
