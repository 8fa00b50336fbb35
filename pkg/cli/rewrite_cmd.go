package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/manifest"
	"mdl-rewrite/internal/semantic"
	"mdl-rewrite/internal/service/query"
)

// newQueryService builds a query service over cat. exec may be nil for
// rewrite-only use.
func newQueryService(opts *rootOptions, cmd *cobra.Command, cat *manifest.Catalog, exec query.Executor) *query.Service {
	logger := opts.logger(cmd)
	return query.NewService(semantic.NewEngine(logger), func() domain.Catalog { return cat }, exec, nil, logger)
}

func newRewriteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rewrite <sql>",
		Short: "Rewrite a query over models and metrics into SQL over physical tables",
		Long: `Expands macros in the query, then replaces every model, metric and roll_up
reference with the SQL that computes it. Pass "-" to read the query from stdin.`,
		Example: `  mdl rewrite "SELECT custkey, count(*) FROM Orders GROUP BY 1"
  echo "SELECT * FROM Revenue" | mdl rewrite -`,
		Args: cobra.MinimumNArgs(1),
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
			svc := newQueryService(opts, cmd, cat, nil)
			res, err := svc.Rewrite(ctx, query.Request{SQL: sql, Catalog: opts.catalog, Schema: opts.schema})
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"original_sql":  res.OriginalSQL,
					"expanded_sql":  res.ExpandedSQL,
					"rewritten_sql": res.RewrittenSQL,
				})
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.RewrittenSQL)
			return nil
		},
	}
}
