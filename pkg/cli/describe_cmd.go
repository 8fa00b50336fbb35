package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/macro"
	"mdl-rewrite/internal/manifest"
)

type columnJSON struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Relationship string `json:"relationship,omitempty"`
	Expression   string `json:"expression,omitempty"`
	NotNull      bool   `json:"not_null,omitempty"`
	Description  string `json:"description,omitempty"`
}

func toColumnsJSON(cols []*domain.Column) []columnJSON {
	out := make([]columnJSON, len(cols))
	for i, c := range cols {
		out[i] = columnJSON{
			Name:         c.Name,
			Type:         c.Type,
			Relationship: c.Relationship,
			Expression:   c.Expression,
			NotNull:      c.NotNull,
			Description:  c.Description,
		}
	}
	return out
}

func newDescribeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe [name]",
		Short: "Describe the manifest or one of its objects",
		Long: `Progressive disclosure: without a name the manifest is summarised; with a name
the model, metric, relationship or macro of that name is shown in detail.

Models are looked up before metrics, then relationships and macros.`,
		Example: `  # Manifest overview
  mdl describe

  # Model detail with columns
  mdl describe Orders

  # Cached metric with its next refresh
  mdl describe Revenue --output json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := opts.loadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			isJSON := getOutputFormat(cmd) == "json"
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				return describeManifest(out, cat, isJSON)
			}

			name := args[0]
			if m, ok := cat.Model(name); ok {
				return describeModel(out, m, isJSON)
			}
			if m, ok := cat.Metric(name); ok {
				return describeMetric(out, cat, m, time.Now(), isJSON)
			}
			if r, ok := cat.Relationship(name); ok {
				return describeRelationship(out, r, isJSON)
			}
			if m, ok := cat.Macro(name); ok {
				return describeMacro(out, m, isJSON)
			}
			return domain.ErrNotFound("no model, metric, relationship or macro named %q", name)
		},
	}
}

// describeManifest lists every object of the manifest.
func describeManifest(w io.Writer, cat *manifest.Catalog, isJSON bool) error {
	type entry struct {
		Kind string `json:"kind"`
		Name string `json:"name"`
		Info string `json:"info"`
	}
	var entries []entry
	for _, m := range cat.ListModels() {
		entries = append(entries, entry{Kind: "model", Name: m.Name, Info: fmt.Sprintf("%d columns", len(m.Columns))})
	}
	for _, r := range cat.ListRelationships() {
		entries = append(entries, entry{Kind: "relationship", Name: r.Name, Info: fmt.Sprintf("%s %s", strings.Join(r.Models, " -> "), r.JoinType)})
	}
	for _, m := range cat.ListMetrics() {
		info := "base " + m.BaseObject
		if m.Cached {
			info += ", cached"
		}
		entries = append(entries, entry{Kind: "metric", Name: m.Name, Info: info})
	}
	for _, m := range cat.ListMacros() {
		entries = append(entries, entry{Kind: "macro", Name: m.Name, Info: fmt.Sprintf("%d parameters", len(m.Parameters))})
	}

	if isJSON {
		if entries == nil {
			entries = []entry{}
		}
		return printJSON(w, map[string]interface{}{
			"catalog": cat.CatalogName(),
			"schema":  cat.SchemaName(),
			"objects": entries,
		})
	}
	_, _ = fmt.Fprintf(w, "Catalog: %s  Schema: %s\n\n", cat.CatalogName(), cat.SchemaName())
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{e.Kind, e.Name, e.Info}
	}
	return printTable(w, []string{"KIND", "NAME", "INFO"}, rows)
}

func describeModel(w io.Writer, m *domain.Model, isJSON bool) error {
	if isJSON {
		return printJSON(w, map[string]interface{}{
			"kind":        "model",
			"name":        m.Name,
			"ref_sql":     m.RefSQL,
			"primary_key": m.PrimaryKey,
			"description": m.Description,
			"columns":     toColumnsJSON(m.Columns),
		})
	}
	if err := printDetail(w, [][2]string{
		{"Model", m.Name},
		{"Primary key", m.PrimaryKey},
		{"Description", m.Description},
		{"Ref SQL", m.RefSQL},
	}); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w)
	return printColumns(w, m.Columns)
}

func describeMetric(w io.Writer, cat *manifest.Catalog, m *domain.Metric, now time.Time, isJSON bool) error {
	var next *time.Time
	if t, ok := cat.NextRefresh(m.Name, now); ok {
		next = &t
	}
	if isJSON {
		grains := make([]map[string]interface{}, len(m.TimeGrains))
		for i, g := range m.TimeGrains {
			grains[i] = map[string]interface{}{
				"name":       g.Name,
				"ref_column": g.RefColumn,
				"date_parts": g.DateParts,
			}
		}
		return printJSON(w, map[string]interface{}{
			"kind":         "metric",
			"name":         m.Name,
			"base_object":  m.BaseObject,
			"description":  m.Description,
			"cached":       m.Cached,
			"refresh_time": m.RefreshTime,
			"next_refresh": next,
			"dimensions":   toColumnsJSON(m.Dimensions),
			"measures":     toColumnsJSON(m.Measures),
			"time_grains":  grains,
		})
	}

	pairs := [][2]string{
		{"Metric", m.Name},
		{"Base object", m.BaseObject},
		{"Description", m.Description},
		{"Cached", fmt.Sprintf("%t", m.Cached)},
	}
	if m.Cached {
		pairs = append(pairs, [2]string{"Refresh time", m.RefreshTime}, [2]string{"Next refresh", formatTimePtr(next)})
	}
	if err := printDetail(w, pairs); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, "\nDimensions:")
	if err := printColumns(w, m.Dimensions); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, "\nMeasures:")
	if err := printColumns(w, m.Measures); err != nil {
		return err
	}
	if len(m.TimeGrains) == 0 {
		return nil
	}
	_, _ = fmt.Fprintln(w, "\nTime grains:")
	rows := make([][]string, len(m.TimeGrains))
	for i, g := range m.TimeGrains {
		parts := make([]string, len(g.DateParts))
		for j, p := range g.DateParts {
			parts[j] = string(p)
		}
		rows[i] = []string{g.Name, g.RefColumn, strings.Join(parts, ", ")}
	}
	return printTable(w, []string{"NAME", "REF COLUMN", "DATE PARTS"}, rows)
}

func describeRelationship(w io.Writer, r *domain.Relationship, isJSON bool) error {
	if isJSON {
		return printJSON(w, map[string]interface{}{
			"kind":      "relationship",
			"name":      r.Name,
			"models":    r.Models,
			"join_type": r.JoinType,
			"condition": r.Condition,
		})
	}
	return printDetail(w, [][2]string{
		{"Relationship", r.Name},
		{"Models", strings.Join(r.Models, ", ")},
		{"Join type", string(r.JoinType)},
		{"Condition", r.Condition},
	})
}

func describeMacro(w io.Writer, m *domain.Macro, isJSON bool) error {
	definition := macro.FormatDefinition(m)
	if isJSON {
		params := make([]map[string]string, len(m.Parameters))
		for i, p := range m.Parameters {
			params[i] = map[string]string{"name": p.Name, "type": string(p.Type)}
		}
		return printJSON(w, map[string]interface{}{
			"kind":       "macro",
			"name":       m.Name,
			"parameters": params,
			"body":       m.Body,
			"definition": definition,
		})
	}
	return printDetail(w, [][2]string{
		{"Macro", m.Name},
		{"Definition", definition},
	})
}

func printColumns(w io.Writer, cols []*domain.Column) error {
	rows := make([][]string, len(cols))
	for i, c := range cols {
		detail := c.Expression
		if c.IsRelationship() {
			detail = "via " + c.Relationship
		}
		notNull := ""
		if c.NotNull {
			notNull = "yes"
		}
		rows[i] = []string{c.Name, c.Type, notNull, detail}
	}
	return printTable(w, []string{"COLUMN", "TYPE", "NOT NULL", "EXPRESSION"}, rows)
}
