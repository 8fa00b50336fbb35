package repository

import (
	"context"
	"database/sql"
	"time"

	"mdl-rewrite/internal/domain"
)

var _ domain.QueryLogRepository = (*QueryLogRepo)(nil)

// QueryLogRepo stores rewritten and executed queries.
type QueryLogRepo struct {
	db *sql.DB
}

// NewQueryLogRepo returns a QueryLogRepo over db.
func NewQueryLogRepo(db *sql.DB) *QueryLogRepo {
	return &QueryLogRepo{db: db}
}

// Insert stores e and sets its ID. A zero CreatedAt is set to now.
func (r *QueryLogRepo) Insert(ctx context.Context, e *domain.QueryLogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO query_log
			(principal, original_sql, rewritten_sql, status, error_code, error_message, duration_ms, rows_returned, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Principal, e.OriginalSQL, nullString(e.RewrittenSQL), e.Status,
		nullString(e.ErrorCode), nullString(e.ErrorMessage), e.DurationMs, nullInt64(e.RowsReturned),
		formatTime(e.CreatedAt),
	)
	if err != nil {
		return mapDBError(err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

// List returns the newest entries first.
func (r *QueryLogRepo) List(ctx context.Context, limit int) ([]domain.QueryLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, principal, original_sql, rewritten_sql, status, error_code, error_message,
			duration_ms, rows_returned, created_at
		FROM query_log
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.QueryLogEntry
	for rows.Next() {
		var (
			e                    domain.QueryLogEntry
			rewritten, code, msg sql.NullString
			returned             sql.NullInt64
			created              string
		)
		if err := rows.Scan(&e.ID, &e.Principal, &e.OriginalSQL, &rewritten, &e.Status, &code, &msg,
			&e.DurationMs, &returned, &created); err != nil {
			return nil, err
		}
		e.RewrittenSQL = stringPtr(rewritten)
		e.ErrorCode = stringPtr(code)
		e.ErrorMessage = stringPtr(msg)
		e.RowsReturned = int64Ptr(returned)
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
