package repository

import (
	"context"
	"database/sql"
	"time"

	"mdl-rewrite/internal/domain"
)

var _ domain.RefreshRunRepository = (*RefreshRunRepo)(nil)

// RefreshRunRepo stores cached metric refresh runs.
type RefreshRunRepo struct {
	db *sql.DB
}

// NewRefreshRunRepo returns a RefreshRunRepo over db.
func NewRefreshRunRepo(db *sql.DB) *RefreshRunRepo {
	return &RefreshRunRepo{db: db}
}

const refreshRunColumns = `id, metric, table_name, trigger_type, status, error_message, row_count, started_at, finished_at`

// Start inserts a running refresh and sets its ID.
func (r *RefreshRunRepo) Start(ctx context.Context, run *domain.RefreshRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO metric_refresh (metric, table_name, trigger_type, status, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		run.Metric, run.Table, run.Trigger, run.Status, formatTime(run.StartedAt),
	)
	if err != nil {
		return mapDBError(err)
	}
	run.ID, err = res.LastInsertId()
	return err
}

// Finish records the outcome of a started run.
func (r *RefreshRunRepo) Finish(ctx context.Context, run *domain.RefreshRun) error {
	if run.FinishedAt == nil {
		now := time.Now()
		run.FinishedAt = &now
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE metric_refresh
		SET status = ?, error_message = ?, row_count = ?, finished_at = ?
		WHERE id = ?`,
		run.Status, nullString(run.ErrorMessage), nullInt64(run.RowCount), formatTime(*run.FinishedAt), run.ID,
	)
	if err != nil {
		return mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound("refresh run %d not found", run.ID)
	}
	return nil
}

// ListForMetric returns the newest runs of metric first.
func (r *RefreshRunRepo) ListForMetric(ctx context.Context, metric string, limit int) ([]domain.RefreshRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+refreshRunColumns+`
		FROM metric_refresh
		WHERE metric = ?
		ORDER BY id DESC
		LIMIT ?`, metric, limit)
	if err != nil {
		return nil, mapDBError(err)
	}
	return scanRefreshRuns(rows)
}

// Latest returns the newest run of every metric, ordered by metric name.
func (r *RefreshRunRepo) Latest(ctx context.Context) ([]domain.RefreshRun, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+refreshRunColumns+`
		FROM metric_refresh
		WHERE id IN (SELECT max(id) FROM metric_refresh GROUP BY metric)
		ORDER BY metric`)
	if err != nil {
		return nil, mapDBError(err)
	}
	return scanRefreshRuns(rows)
}

func scanRefreshRuns(rows *sql.Rows) ([]domain.RefreshRun, error) {
	defer rows.Close() //nolint:errcheck

	var out []domain.RefreshRun
	for rows.Next() {
		var (
			run      domain.RefreshRun
			msg      sql.NullString
			count    sql.NullInt64
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Metric, &run.Table, &run.Trigger, &run.Status,
			&msg, &count, &started, &finished); err != nil {
			return nil, err
		}
		run.ErrorMessage = stringPtr(msg)
		run.RowCount = int64Ptr(count)
		var err error
		if run.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if finished.Valid {
			t, err := parseTime(finished.String)
			if err != nil {
				return nil, err
			}
			run.FinishedAt = &t
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
