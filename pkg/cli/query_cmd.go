package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mdl-rewrite/internal/compute"
	"mdl-rewrite/internal/service/query"
)

func newQueryCmd(opts *rootOptions) *cobra.Command {
	var (
		maxRows int
		timeout time.Duration
		showSQL bool
	)

	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Rewrite a query and run it on DuckDB",
		Long: `Rewrites the query like "mdl rewrite" and runs the result against the DuckDB
database given by --duckdb. Pass "-" to read the query from stdin.`,
		Example: `  mdl query --duckdb tpch.duckdb "SELECT custkey, buy_item_count FROM Customer"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := readSQL(cmd, args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			cat, err := opts.loadCatalog(ctx)
			if err != nil {
				return err
			}
			db, err := compute.OpenDuckDB(ctx, opts.duckdb)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck

			svc := newQueryService(opts, cmd, cat, compute.NewLocalExecutor(db))
			svc.SetTimeout(timeout)
			res, err := svc.Execute(ctx, query.Request{
				SQL:       sql,
				Catalog:   opts.catalog,
				Schema:    opts.schema,
				Principal: "cli",
				MaxRows:   maxRows,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				return printJSON(out, map[string]interface{}{
					"rewritten_sql": res.RewrittenSQL,
					"columns":       res.Columns,
					"rows":          res.Rows,
					"row_count":     res.RowCount,
					"truncated":     res.Truncated,
					"duration_ms":   res.Duration.Milliseconds(),
				})
			}
			if showSQL {
				_, _ = fmt.Fprintf(out, "%s\n\n", res.RewrittenSQL)
			}
			rows := make([][]string, len(res.Rows))
			for i, row := range res.Rows {
				cells := make([]string, len(row))
				for j, v := range row {
					cells[j] = formatCell(v)
				}
				rows[i] = cells
			}
			if err := printTable(out, res.Columns, rows); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "(%d rows)\n", res.RowCount)
			if res.Truncated {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "result truncated to %d rows; raise --max-rows to see more\n", res.RowCount)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxRows, "max-rows", query.DefaultMaxRows, "Maximum number of rows to return")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Query timeout (0 means none)")
	cmd.Flags().BoolVar(&showSQL, "show-sql", false, "Print the rewritten SQL before the result")

	return cmd
}
