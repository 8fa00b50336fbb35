// Package cli implements the mdl command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mdl-rewrite/internal/config"
	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/manifest"
	"mdl-rewrite/internal/semantic"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			_ = printJSON(os.Stdout, errorObject(err))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// errorObject is the JSON form of a command failure.
func errorObject(err error) map[string]interface{} {
	errObj := map[string]interface{}{
		"error": err.Error(),
	}
	var rwErr *domain.RewriteError
	if errors.As(err, &rwErr) {
		errObj["code"] = string(rwErr.Code)
		if rwErr.Model != "" {
			errObj["model"] = rwErr.Model
		}
		if rwErr.Column != "" {
			errObj["column"] = rwErr.Column
		}
		if rwErr.Relationship != "" {
			errObj["relationship"] = rwErr.Relationship
		}
	}
	return errObj
}

// rootOptions holds the resolved global flags shared by every command.
type rootOptions struct {
	manifest string
	catalog  string
	schema   string
	duckdb   string
	output   string
	profile  string
	logLevel string
}

// session returns the session context for rewrites.
func (o *rootOptions) session() semantic.SessionContext {
	return semantic.SessionContext{Catalog: o.catalog, Schema: o.schema}
}

// logger writes text logs to stderr at the configured level.
func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	cfg := &config.Config{LogLevel: o.logLevel}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// loadCatalog fetches and validates the manifest.
func (o *rootOptions) loadCatalog(ctx context.Context) (*manifest.Catalog, error) {
	fetcher := manifest.NewFetcher(config.StorageFromEnv())
	return fetcher.LoadFrom(ctx, o.manifest)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "mdl",
		Short:         "MDL semantic layer",
		Long:          "Renders MDL models and metrics and rewrites SQL over them into SQL over physical tables.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.resolve(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.manifest, "manifest", "m", "mdl.yaml", "Manifest path or s3://, gs://, az:// URI")
	flags.StringVar(&opts.catalog, "catalog", "", "Session catalog (default: the manifest's)")
	flags.StringVar(&opts.schema, "schema", "", "Session schema (default: the manifest's)")
	flags.StringVar(&opts.duckdb, "duckdb", "", "DuckDB database file for query, refresh and serve (default: in-memory)")
	flags.StringVarP(&opts.output, "output", "o", "table", "Output format (table, json)")
	flags.StringVarP(&opts.profile, "profile", "p", "", "Config profile to use")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd())

	rootCmd.AddCommand(newRenderCmd(opts))
	rootCmd.AddCommand(newRewriteCmd(opts))
	rootCmd.AddCommand(newMacroCmd(opts))
	rootCmd.AddCommand(newValidateCmd(opts))
	rootCmd.AddCommand(newDescribeCmd(opts))

	rootCmd.AddCommand(newQueryCmd(opts))
	rootCmd.AddCommand(newRefreshCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))

	return rootCmd
}

// resolve applies the profile and the environment to every global flag not
// given on the command line and validates the result.
func (o *rootOptions) resolve(cmd *cobra.Command) error {
	// Load config from profile if flags/env not set
	cfg, err := LoadUserConfig()
	if err != nil {
		// Config file is optional
		cfg = &UserConfig{
			CurrentProfile: "default",
			Profiles:       map[string]Profile{},
		}
	}
	p, err := cfg.ActiveProfile(o.profile)
	if err != nil {
		return err
	}

	// Apply precedence: flag > env > profile > default
	resolve(cmd, "manifest", "MDL_MANIFEST", p.Manifest, &o.manifest)
	resolve(cmd, "catalog", "MDL_CATALOG", p.Catalog, &o.catalog)
	resolve(cmd, "schema", "MDL_SCHEMA", p.Schema, &o.schema)
	resolve(cmd, "duckdb", "DUCKDB_PATH", p.DuckDB, &o.duckdb)
	resolve(cmd, "output", "MDL_OUTPUT", p.Output, &o.output)
	resolve(cmd, "log-level", "LOG_LEVEL", "", &o.logLevel)

	return validateOutputFormat(o.output)
}

// resolve fills *dst from the environment or the profile when the flag was
// not given on the command line.
func resolve(cmd *cobra.Command, flag, envKey, profileVal string, dst *string) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if v := os.Getenv(envKey); v != "" {
		*dst = v
	} else if profileVal != "" {
		*dst = profileVal
	}
}

// readSQL returns the statement given as arguments, or read from stdin when
// the only argument is "-".
func readSQL(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	return strings.Join(args, " "), nil
}
