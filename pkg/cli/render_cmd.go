package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"mdl-rewrite/internal/semantic"
)

// relationJSON is the JSON form of a rendered model or metric.
type relationJSON struct {
	Name            string   `json:"name"`
	Kind            string   `json:"kind"`
	SQL             string   `json:"sql"`
	DependsOn       []string `json:"depends_on"`
	RequiredObjects []string `json:"required_objects"`
}

func toRelationJSON(info *semantic.RelationInfo) relationJSON {
	out := relationJSON{
		Name:            info.Name,
		Kind:            string(info.Kind),
		SQL:             info.SQL,
		DependsOn:       info.DependsOn,
		RequiredObjects: info.RequiredObjects,
	}
	if out.DependsOn == nil {
		out.DependsOn = []string{}
	}
	if out.RequiredObjects == nil {
		out.RequiredObjects = []string{}
	}
	return out
}

// sortRelations orders rendered relations with models first, then by name.
func sortRelations(all map[string]*semantic.RelationInfo) []*semantic.RelationInfo {
	out := make([]*semantic.RelationInfo, 0, len(all))
	for _, info := range all {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind == semantic.KindModel
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func newRenderCmd(opts *rootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "render [name]",
		Short: "Render a model or metric to SQL over physical tables",
		Long: `Renders the SELECT statement that computes a model or metric.

With --all, or without a name, every model and metric of the manifest is rendered.`,
		Example: `  # Render one model
  mdl render Orders

  # Render everything as JSON
  mdl render --all --output json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return fmt.Errorf("--all cannot be combined with a name")
			}
			ctx := cmd.Context()
			cat, err := opts.loadCatalog(ctx)
			if err != nil {
				return err
			}
			engine := semantic.NewEngine(opts.logger(cmd))
			isJSON := getOutputFormat(cmd) == "json"
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				info, err := engine.Render(cat, args[0])
				if err != nil {
					return err
				}
				if isJSON {
					return printJSON(out, toRelationJSON(info))
				}
				_, _ = fmt.Fprintln(out, info.SQL)
				return nil
			}

			rendered, err := engine.RenderAll(ctx, cat)
			if err != nil {
				return err
			}
			relations := sortRelations(rendered)
			if isJSON {
				items := make([]relationJSON, len(relations))
				for i, info := range relations {
					items[i] = toRelationJSON(info)
				}
				return printJSON(out, items)
			}
			writeRelations(out, relations)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Render every model and metric")

	return cmd
}

func writeRelations(w io.Writer, relations []*semantic.RelationInfo) {
	for i, info := range relations {
		if i > 0 {
			_, _ = fmt.Fprintln(w)
		}
		_, _ = fmt.Fprintf(w, "-- %s (%s)\n%s\n", info.Name, info.Kind, info.SQL)
	}
}
