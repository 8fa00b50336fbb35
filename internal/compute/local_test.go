package compute

import (
	"context"
	"database/sql"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDuckDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDuckDB(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestLocalExecutor_QueryContext(t *testing.T) {
	exec := NewLocalExecutor(openTestDuckDB(t))

	t.Run("simple_select", func(t *testing.T) {
		rows, err := exec.QueryContext(context.Background(), "SELECT 42 AS answer")
		require.NoError(t, err)
		defer func() { _ = rows.Close() }()

		require.True(t, rows.Next())
		var answer int
		require.NoError(t, rows.Scan(&answer))
		assert.Equal(t, 42, answer)
		assert.False(t, rows.Next())
		require.NoError(t, rows.Err())
	})

	t.Run("invalid_sql", func(t *testing.T) {
		_, err := exec.QueryContext(context.Background(), "SELEKT invalid") //nolint:sqlclosecheck,rowserrcheck // error path, rows is nil
		require.Error(t, err)
	})
}

func TestLocalExecutor_Query(t *testing.T) {
	exec := NewLocalExecutor(openTestDuckDB(t))
	ctx := context.Background()

	t.Run("collects_rows", func(t *testing.T) {
		res, err := exec.Query(ctx, "SELECT * FROM (VALUES (1, 'a'), (2, 'b'), (3, 'c')) AS t(id, name) ORDER BY id", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "name"}, res.Columns)
		assert.Equal(t, 3, res.RowCount)
		assert.False(t, res.Truncated)
		assert.Equal(t, "c", res.Rows[2][1])
	})

	t.Run("truncates", func(t *testing.T) {
		res, err := exec.Query(ctx, "SELECT * FROM range(10)", 4)
		require.NoError(t, err)
		assert.Equal(t, 4, res.RowCount)
		assert.True(t, res.Truncated)
	})

	t.Run("exact_limit_not_truncated", func(t *testing.T) {
		res, err := exec.Query(ctx, "SELECT * FROM range(4)", 4)
		require.NoError(t, err)
		assert.Equal(t, 4, res.RowCount)
		assert.False(t, res.Truncated)
	})

	t.Run("empty_result", func(t *testing.T) {
		res, err := exec.Query(ctx, "SELECT 1 AS x WHERE false", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"x"}, res.Columns)
		assert.NotNil(t, res.Rows)
		assert.Equal(t, 0, res.RowCount)
	})

	t.Run("canceled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := exec.Query(cctx, "SELECT 1", 0)
		require.Error(t, err)
	})
}

func TestLocalExecutor_ExecContext(t *testing.T) {
	exec := NewLocalExecutor(openTestDuckDB(t))
	ctx := context.Background()

	require.NoError(t, exec.ExecContext(ctx, "CREATE TABLE t AS SELECT 1 AS x"))
	res, err := exec.Query(ctx, "SELECT count(*) FROM t", 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Rows[0][0])
}

type decimalLike struct{ f float64 }

func (d decimalLike) Float64() float64 { return d.f }

func TestNormalize(t *testing.T) {
	assert.Equal(t, "abc", normalize([]byte("abc")))
	assert.Equal(t, int64(7), normalize(big.NewInt(7)))
	huge, _ := new(big.Int).SetString("170141183460469231731687303715884105727", 10)
	assert.Equal(t, "170141183460469231731687303715884105727", normalize(huge))
	assert.InDelta(t, 1.5, normalize(decimalLike{1.5}), 0.0001)
	assert.Equal(t, int32(3), normalize(int32(3)))
	assert.Nil(t, normalize(nil))
}
