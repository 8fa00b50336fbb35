package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"mdl-rewrite/internal/config"
	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/manifest"
	"mdl-rewrite/internal/semantic"
)

// validationIssue is one failure found by validate.
type validationIssue struct {
	Object  string `json:"object"`
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the manifest and render every model and metric",
		Long: `Checks the manifest for structural problems, then renders every model and
metric and reports the ones that fail. Exits non-zero when anything fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			fetcher := manifest.NewFetcher(config.StorageFromEnv())
			data, err := fetcher.Fetch(ctx, opts.manifest)
			if err != nil {
				return err
			}
			doc, err := manifest.Decode(data)
			if err != nil {
				return fmt.Errorf("parse %s: %w", opts.manifest, err)
			}

			var issues []validationIssue
			checked := 0
			if problems := manifest.Validate(doc); len(problems) > 0 {
				for _, p := range problems {
					issues = append(issues, validationIssue{Object: p.Path, Kind: "manifest", Message: p.Message})
				}
			} else {
				cat, err := manifest.NewCatalog(doc)
				if err != nil {
					return err
				}
				issues, checked = renderIssues(semantic.NewEngine(opts.logger(cmd)), cat)
			}

			if getOutputFormat(cmd) == "json" {
				if issues == nil {
					issues = []validationIssue{}
				}
				if err := printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"valid":   len(issues) == 0,
					"checked": checked,
					"issues":  issues,
				}); err != nil {
					return err
				}
			} else if len(issues) == 0 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Manifest is valid: %d models and metrics rendered.\n", checked)
			} else {
				rows := make([][]string, len(issues))
				for i, is := range issues {
					rows[i] = []string{is.Kind, is.Object, is.Code, is.Message}
				}
				if err := printTable(cmd.OutOrStdout(), []string{"KIND", "OBJECT", "CODE", "MESSAGE"}, rows); err != nil {
					return err
				}
			}
			if len(issues) > 0 {
				return fmt.Errorf("validation failed with %d issue(s)", len(issues))
			}
			return nil
		},
	}
}

// renderIssues renders each model and metric on its own so that one failure
// does not hide the others.
func renderIssues(engine *semantic.Engine, cat *manifest.Catalog) ([]validationIssue, int) {
	var issues []validationIssue
	checked := 0
	record := func(kind, name string, err error) {
		checked++
		if err == nil {
			return
		}
		is := validationIssue{Object: name, Kind: kind, Message: err.Error()}
		is.Code = string(domain.RewriteCodeOf(err))
		issues = append(issues, is)
	}
	for _, m := range cat.ListModels() {
		_, err := engine.RenderModel(cat, m.Name)
		record(string(semantic.KindModel), m.Name, err)
	}
	for _, m := range cat.ListMetrics() {
		_, err := engine.RenderMetric(cat, m.Name)
		record(string(semantic.KindMetric), m.Name, err)
	}
	return issues, checked
}
