package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mdl-rewrite/internal/compute"
	"mdl-rewrite/internal/db"
	"mdl-rewrite/internal/db/repository"
	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/manifest"
	"mdl-rewrite/internal/semantic"
	"mdl-rewrite/internal/service/refresh"
)

// refreshRunJSON is the JSON form of a refresh run.
type refreshRunJSON struct {
	ID         int64   `json:"id"`
	Metric     string  `json:"metric"`
	Table      string  `json:"table"`
	Trigger    string  `json:"trigger"`
	Status     string  `json:"status"`
	Error      *string `json:"error,omitempty"`
	RowCount   *int64  `json:"row_count,omitempty"`
	StartedAt  string  `json:"started_at"`
	FinishedAt string  `json:"finished_at,omitempty"`
}

func toRefreshRunJSON(r domain.RefreshRun) refreshRunJSON {
	return refreshRunJSON{
		ID:         r.ID,
		Metric:     r.Metric,
		Table:      r.Table,
		Trigger:    r.Trigger,
		Status:     r.Status,
		Error:      r.ErrorMessage,
		RowCount:   r.RowCount,
		StartedAt:  formatTimePtr(&r.StartedAt),
		FinishedAt: formatTimePtr(r.FinishedAt),
	}
}

func newRefreshCmd(opts *rootOptions) *cobra.Command {
	var (
		metaDB  string
		history bool
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "refresh [metric]",
		Short: "Materialize a cached metric into DuckDB",
		Long: `Renders a cached metric and stores its result as a table in the ` + refresh.CacheSchema + `
schema of the DuckDB database given by --duckdb.

Without a metric the cached metrics and their next refresh times are listed.
With --history the recorded runs of the metric are shown instead; runs are
recorded when --meta-db is set.`,
		Example: `  mdl refresh --duckdb tpch.duckdb Revenue
  mdl refresh Revenue --history --meta-db mdl_meta.sqlite`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if history && len(args) == 0 {
				return fmt.Errorf("--history requires a metric")
			}
			if !cmd.Flags().Changed("meta-db") {
				metaDB = os.Getenv("META_DB_PATH")
			}
			ctx := cmd.Context()
			cat, err := opts.loadCatalog(ctx)
			if err != nil {
				return err
			}
			isJSON := getOutputFormat(cmd) == "json"
			out := cmd.OutOrStdout()

			var runs domain.RefreshRunRepository
			if metaDB != "" {
				store, err := db.OpenStore(ctx, metaDB)
				if err != nil {
					return err
				}
				defer store.Close() //nolint:errcheck
				runs = repository.NewRefreshRunRepo(store.Write)
			} else if history {
				return fmt.Errorf("--history requires --meta-db or META_DB_PATH")
			}

			duck, err := compute.OpenDuckDB(ctx, opts.duckdb)
			if err != nil {
				return err
			}
			defer duck.Close() //nolint:errcheck

			logger := opts.logger(cmd)
			refresher := refresh.NewRefresher(semantic.NewEngine(logger),
				func() *manifest.Catalog { return cat }, compute.NewLocalExecutor(duck), runs, logger)

			switch {
			case len(args) == 0:
				return printSchedule(out, cachedSchedule(cat, time.Now()), isJSON)

			case history:
				m, ok := cat.Metric(args[0])
				if !ok {
					return domain.ErrNotFound("metric %q not found", args[0])
				}
				list, err := refresher.History(ctx, m.Name, limit)
				if err != nil {
					return err
				}
				return printRuns(out, list, isJSON)
			}

			run, err := refresher.RefreshNow(ctx, args[0], domain.TriggerManual)
			if err != nil {
				return err
			}
			if isJSON {
				return printJSON(out, toRefreshRunJSON(*run))
			}
			_, _ = fmt.Fprintf(out, "Refreshed %s into %s (%d rows)\n", run.Metric, run.Table, deref(run.RowCount))
			return nil
		},
	}

	cmd.Flags().StringVar(&metaDB, "meta-db", "", "SQLite database recording refresh runs (env: META_DB_PATH)")
	cmd.Flags().BoolVar(&history, "history", false, "Show recorded runs of the metric")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs shown with --history")

	return cmd
}

// cachedSchedule lists the cached metrics of cat with their next refresh
// after now.
func cachedSchedule(cat *manifest.Catalog, now time.Time) []refresh.ScheduledMetric {
	var out []refresh.ScheduledMetric
	for _, m := range cat.ListMetrics() {
		next, ok := cat.NextRefresh(m.Name, now)
		if !ok {
			continue
		}
		out = append(out, refresh.ScheduledMetric{Metric: m.Name, Table: refresh.TableName(m.Name), Next: next})
	}
	return out
}

func printSchedule(w io.Writer, scheduled []refresh.ScheduledMetric, isJSON bool) error {
	if isJSON {
		items := make([]map[string]string, len(scheduled))
		for i, s := range scheduled {
			items[i] = map[string]string{
				"metric":       s.Metric,
				"table":        s.Table,
				"next_refresh": formatTimePtr(&s.Next),
			}
		}
		return printJSON(w, items)
	}
	rows := make([][]string, len(scheduled))
	for i, s := range scheduled {
		rows[i] = []string{s.Metric, s.Table, formatTimePtr(&s.Next)}
	}
	return printTable(w, []string{"METRIC", "TABLE", "NEXT REFRESH"}, rows)
}

func printRuns(w io.Writer, runs []domain.RefreshRun, isJSON bool) error {
	if isJSON {
		items := make([]refreshRunJSON, len(runs))
		for i, r := range runs {
			items[i] = toRefreshRunJSON(r)
		}
		return printJSON(w, items)
	}
	rows := make([][]string, len(runs))
	for i, r := range runs {
		count := ""
		if r.RowCount != nil {
			count = strconv.FormatInt(*r.RowCount, 10)
		}
		rows[i] = []string{strconv.FormatInt(r.ID, 10), r.Trigger, r.Status, count, formatTimePtr(&r.StartedAt), deref(r.ErrorMessage)}
	}
	return printTable(w, []string{"ID", "TRIGGER", "STATUS", "ROWS", "STARTED", "ERROR"}, rows)
}
