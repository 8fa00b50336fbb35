package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"mdl-rewrite/internal/macro"
)

func newMacroCmd(opts *rootOptions) *cobra.Command {
	var render bool

	cmd := &cobra.Command{
		Use:   "macro <template>",
		Short: "Expand the macro calls of a template",
		Long: `Processes the {{ ... }} spans of a template against the manifest's macros.

By default macro arguments are bound and the calls are kept; with --render the
macro bodies are inlined until no call remains. Pass "-" to read the template
from stdin.`,
		Example: `  mdl macro "SELECT {{ withTax(price) }} FROM Lineitem" --render`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readSQL(cmd, args)
			if err != nil {
				return err
			}
			cat, err := opts.loadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			expand := macro.Process
			if render {
				expand = macro.Render
			}
			out, err := expand(text, cat.ListMacros())
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"template": text,
					"result":   out,
				})
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&render, "render", false, "Inline macro bodies instead of only binding arguments")

	return cmd
}
