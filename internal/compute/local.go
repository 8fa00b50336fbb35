// Package compute runs rewritten SQL against a DuckDB database.
package compute

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the duckdb driver
)

// Result holds the structured output of a SQL query.
type Result struct {
	Columns   []string
	Rows      [][]interface{}
	RowCount  int
	Truncated bool // more rows existed than the row limit allowed
}

// LocalExecutor wraps a *sql.DB and runs queries against a local DuckDB.
type LocalExecutor struct {
	db *sql.DB
}

// NewLocalExecutor creates a LocalExecutor backed by the given database connection.
func NewLocalExecutor(db *sql.DB) *LocalExecutor {
	return &LocalExecutor{db: db}
}

// OpenDuckDB opens the DuckDB database at path, or an in-memory database
// when path is empty.
func OpenDuckDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return db, nil
}

// DB returns the underlying connection pool.
func (e *LocalExecutor) DB() *sql.DB { return e.db }

// QueryContext executes the query against the local database.
func (e *LocalExecutor) QueryContext(ctx context.Context, query string) (*sql.Rows, error) {
	return e.db.QueryContext(ctx, query)
}

// ExecContext executes a statement that returns no rows.
func (e *LocalExecutor) ExecContext(ctx context.Context, stmt string) error {
	_, err := e.db.ExecContext(ctx, stmt)
	return err
}

// Query runs query and collects at most maxRows rows; maxRows <= 0 means
// no limit.
func (e *LocalExecutor) Query(ctx context.Context, query string, maxRows int) (*Result, error) {
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck
	return scanRows(rows, maxRows)
}

func scanRows(rows *sql.Rows, maxRows int) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &Result{Columns: cols, Rows: [][]interface{}{}}
	for rows.Next() {
		if maxRows > 0 && len(res.Rows) == maxRows {
			res.Truncated = true
			break
		}
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			vals[i] = normalize(v)
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	res.RowCount = len(res.Rows)
	return res, nil
}

// normalize converts driver values into JSON friendly ones.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x
	case *big.Int:
		if x.IsInt64() {
			return x.Int64()
		}
		return x.String()
	case interface{ Float64() float64 }: // DECIMAL
		return x.Float64()
	}
	return v
}
