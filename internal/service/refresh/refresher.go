// Package refresh materializes cached metrics into DuckDB tables on their
// refresh schedule.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mdl-rewrite/internal/compute"
	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/duckdbsql"
	"mdl-rewrite/internal/manifest"
	"mdl-rewrite/internal/semantic"
)

// CacheSchema is the DuckDB schema holding materialized metrics.
const CacheSchema = "mdl_cache"

// CatalogSource returns the catalog in effect.
type CatalogSource func() *manifest.Catalog

// Executor runs statements against the database the cache lives in.
type Executor interface {
	ExecContext(ctx context.Context, stmt string) error
	Query(ctx context.Context, query string, maxRows int) (*compute.Result, error)
}

// ScheduledMetric is a cached metric with its next refresh time.
type ScheduledMetric struct {
	Metric string
	Table  string
	Next   time.Time
}

// Refresher runs cached metric refreshes on a cron scheduler.
type Refresher struct {
	cron    *cron.Cron
	engine  *semantic.Engine
	catalog CatalogSource
	exec    Executor
	runs    domain.RefreshRunRepository
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID // metric name → cron entry

	running sync.Map // lower-cased metric name → struct{}
}

// NewRefresher creates a Refresher. runs may be nil, in which case refresh
// runs are not recorded.
func NewRefresher(engine *semantic.Engine, catalog CatalogSource, exec Executor, runs domain.RefreshRunRepository, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		cron:    cron.New(),
		engine:  engine,
		catalog: catalog,
		exec:    exec,
		runs:    runs,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Start schedules every cached metric and starts the cron scheduler.
func (r *Refresher) Start(ctx context.Context) error {
	if err := r.Reload(ctx); err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info("metric refresher started")
	return nil
}

// Stop stops the scheduler and waits for running refreshes to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("metric refresher stopped")
}

// Reload clears all cron entries and schedules the cached metrics of the
// current catalog.
func (r *Refresher) Reload(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entryID := range r.entries {
		r.cron.Remove(entryID)
	}
	r.entries = make(map[string]cron.EntryID)

	cat := r.catalog()
	for _, mt := range cat.ListMetrics() {
		sched, ok := cat.RefreshSchedule(mt.Name)
		if !ok {
			continue
		}
		metric := mt.Name
		entryID := r.cron.Schedule(sched, cron.FuncJob(func() {
			if _, err := r.RefreshNow(context.Background(), metric, domain.TriggerScheduled); err != nil {
				r.logger.Warn("scheduled refresh failed", "metric", metric, "error", err)
			}
		}))
		r.entries[metric] = entryID
		r.logger.Info("scheduled metric refresh", "metric", metric, "refresh_time", mt.RefreshTime)
	}
	return nil
}

// Scheduled lists the scheduled metrics with their next run, sorted by
// metric name. Next is zero until the scheduler has started.
func (r *Refresher) Scheduled() []ScheduledMetric {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ScheduledMetric, 0, len(r.entries))
	for metric, id := range r.entries {
		out = append(out, ScheduledMetric{
			Metric: metric,
			Table:  TableName(metric),
			Next:   r.cron.Entry(id).Next,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	return out
}

// RefreshNow renders metric and replaces its cache table with the result.
// Concurrent refreshes of the same metric are rejected with a conflict.
func (r *Refresher) RefreshNow(ctx context.Context, metric, trigger string) (*domain.RefreshRun, error) {
	cat := r.catalog()
	mt, ok := cat.Metric(metric)
	if !ok {
		return nil, domain.ErrNotFound("metric %q not found", metric)
	}
	if !mt.Cached {
		return nil, domain.ErrValidation("metric %q is not cached", mt.Name)
	}

	key := strings.ToLower(mt.Name)
	if _, busy := r.running.LoadOrStore(key, struct{}{}); busy {
		return nil, domain.ErrConflict("metric %q is already being refreshed", mt.Name)
	}
	defer r.running.Delete(key)

	run := &domain.RefreshRun{
		Metric:  mt.Name,
		Table:   TableName(mt.Name),
		Trigger: trigger,
		Status:  domain.StatusRunning,
	}
	if r.runs != nil {
		if err := r.runs.Start(ctx, run); err != nil {
			return nil, fmt.Errorf("record refresh start: %w", err)
		}
	} else {
		run.StartedAt = time.Now()
	}

	count, err := r.materialize(ctx, cat, mt.Name, run.Table)
	finished := time.Now()
	run.FinishedAt = &finished
	if err != nil {
		msg := err.Error()
		run.Status = domain.StatusFailed
		run.ErrorMessage = &msg
	} else {
		run.Status = domain.StatusSucceeded
		run.RowCount = &count
	}

	if r.runs != nil {
		if ferr := r.runs.Finish(context.WithoutCancel(ctx), run); ferr != nil {
			r.logger.Warn("record refresh finish", "metric", mt.Name, "error", ferr)
		}
	}
	if err != nil {
		return run, err
	}
	r.logger.Info("metric refreshed", "metric", mt.Name, "table", run.Table, "rows", count,
		"trigger", trigger, "duration", finished.Sub(run.StartedAt))
	return run, nil
}

func (r *Refresher) materialize(ctx context.Context, cat domain.Catalog, metric, table string) (int64, error) {
	info, err := r.engine.RenderMetric(cat, metric)
	if err != nil {
		return 0, err
	}
	if err := r.exec.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+duckdbsql.QuoteIdent(CacheSchema)); err != nil {
		return 0, fmt.Errorf("create cache schema: %w", err)
	}
	if err := r.exec.ExecContext(ctx, "CREATE OR REPLACE TABLE "+table+" AS "+info.SQL); err != nil {
		return 0, fmt.Errorf("materialize %s: %w", metric, err)
	}
	res, err := r.exec.Query(ctx, "SELECT count(*) FROM "+table, 1)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return 0, fmt.Errorf("count %s: no result", table)
	}
	switch n := res.Rows[0][0].(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("count %s: unexpected type %T", table, n)
	}
}

// History returns the newest refresh runs of metric.
func (r *Refresher) History(ctx context.Context, metric string, limit int) ([]domain.RefreshRun, error) {
	if r.runs == nil {
		return []domain.RefreshRun{}, nil
	}
	return r.runs.ListForMetric(ctx, metric, limit)
}

// Latest returns the most recent run of every refreshed metric.
func (r *Refresher) Latest(ctx context.Context) ([]domain.RefreshRun, error) {
	if r.runs == nil {
		return []domain.RefreshRun{}, nil
	}
	return r.runs.Latest(ctx)
}

// TableName returns the quoted cache table of metric.
func TableName(metric string) string {
	return duckdbsql.QuoteIdent(CacheSchema) + "." + duckdbsql.QuoteIdent(metric)
}
