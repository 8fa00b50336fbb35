package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mdl-rewrite/internal/api"
	"mdl-rewrite/internal/compute"
	"mdl-rewrite/internal/config"
	"mdl-rewrite/internal/db"
	"mdl-rewrite/internal/db/repository"
	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/manifest"
	"mdl-rewrite/internal/middleware"
	"mdl-rewrite/internal/semantic"
	"mdl-rewrite/internal/service/query"
	"mdl-rewrite/internal/service/refresh"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		listen    string
		envFile   string
		noRefresh bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serves the rewrite, query, render, macro and refresh endpoints, the OpenAPI
document at /openapi.json and the catalog page at /ui.

Settings come from the environment (see .env); global flags override them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			// The .env file may set variables the global flags fall back to.
			if err := opts.resolve(cmd); err != nil {
				return err
			}
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			cfg.ManifestPath = opts.manifest
			cfg.Catalog = opts.catalog
			cfg.Schema = opts.schema
			cfg.DuckDBPath = opts.duckdb
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = listen
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = opts.logLevel
			}
			if noRefresh {
				cfg.RefreshEnabled = false
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer cancel()
			return runServer(ctx, cfg, slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()})))
		},
	}

	cmd.Flags().StringVar(&listen, "listen", ":8080", "HTTP listen address (env: LISTEN_ADDR)")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "File of KEY=VALUE pairs loaded into the environment")
	cmd.Flags().BoolVar(&noRefresh, "no-refresh", false, "Do not run the cached metric refresher")

	return cmd
}

// runServer wires the services behind the HTTP API and serves until ctx is
// cancelled.
func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	holder, err := manifest.NewHolder(ctx, manifest.NewFetcher(cfg.Storage), cfg.ManifestPath, logger)
	if err != nil {
		return err
	}
	engine := semantic.NewEngine(logger)

	duck, err := compute.OpenDuckDB(ctx, cfg.DuckDBPath)
	if err != nil {
		return err
	}
	defer duck.Close() //nolint:errcheck
	exec := compute.NewLocalExecutor(duck)

	store, err := db.OpenStore(ctx, cfg.MetaDBPath)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	queries := query.NewService(engine, func() domain.Catalog { return holder.Current() }, exec,
		repository.NewQueryLogRepo(store.Write), logger)
	queries.SetTimeout(cfg.QueryTimeout)
	queries.SetDefaultSession(cfg.Catalog, cfg.Schema)

	var refresher *refresh.Refresher
	if cfg.RefreshEnabled {
		refresher = refresh.NewRefresher(engine, holder.Current, exec, repository.NewRefreshRunRepo(store.Write), logger)
		if err := refresher.Start(ctx); err != nil {
			return err
		}
		defer refresher.Stop()
	}

	validator, err := middleware.NewValidator(ctx, cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	server, err := api.NewServer(ctx, holder, engine, queries, refresher, logger)
	if err != nil {
		return err
	}
	handler, err := server.Handler(ctx, api.Options{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		Authenticator: middleware.NewAuthenticator(validator, cfg.Auth, logger),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      cfg.QueryTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("mdl server listening", "addr", cfg.ListenAddr, "manifest", cfg.ManifestPath,
		"auth", cfg.Auth.Enabled(), "refresh", cfg.RefreshEnabled)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
