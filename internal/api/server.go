// Package api serves the semantic layer over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"mdl-rewrite/internal/config"
	"mdl-rewrite/internal/manifest"
	"mdl-rewrite/internal/middleware"
	"mdl-rewrite/internal/semantic"
	"mdl-rewrite/internal/service/query"
	"mdl-rewrite/internal/service/refresh"
	"mdl-rewrite/internal/ui"
)

// Options configures the middleware stack of the HTTP handler.
type Options struct {
	CORSAllowedOrigins []string
	RateLimit          middleware.RateLimitConfig // zero RequestsPerSecond disables rate limiting
	Authenticator      *middleware.Authenticator  // nil serves every request anonymously
}

// Server holds the services behind the HTTP API.
type Server struct {
	holder    *manifest.Holder
	engine    *semantic.Engine
	queries   *query.Service
	refresher *refresh.Refresher // nil when refresh is disabled
	logger    *slog.Logger

	spec     *openapi3.T
	specJSON []byte
}

// NewServer validates the embedded OpenAPI document and returns a Server.
func NewServer(ctx context.Context, holder *manifest.Holder, engine *semantic.Engine, queries *query.Service, refresher *refresh.Refresher, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	doc, err := LoadSpec(ctx)
	if err != nil {
		return nil, err
	}
	specJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal openapi spec: %w", err)
	}
	return &Server{
		holder:    holder,
		engine:    engine,
		queries:   queries,
		refresher: refresher,
		logger:    logger,
		spec:      doc,
		specJSON:  specJSON,
	}, nil
}

// Handler builds the router. ctx bounds background work of the middleware,
// such as the rate limiter's cleanup loop.
func (s *Server) Handler(ctx context.Context, opts Options) (http.Handler, error) {
	validate, err := s.requestValidator(s.spec)
	if err != nil {
		return nil, err
	}
	auth := opts.Authenticator
	if auth == nil {
		auth = middleware.NewAuthenticator(nil, config.AuthConfig{}, s.logger)
	}
	origins := opts.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.accessLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:         300,
	}))
	if opts.RateLimit.RequestsPerSecond > 0 {
		r.Use(middleware.RateLimiter(ctx, opts.RateLimit))
	}

	// Public endpoints
	r.Get("/healthz", s.handleHealth)
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware())

		r.Method(http.MethodGet, "/ui", ui.NewHandler(s.holder.Current, s.latestRuns))

		r.Route("/v1", func(r chi.Router) {
			r.Use(validate)
			r.Post("/rewrite", s.handleRewrite)
			r.Post("/query", s.handleQuery)
			r.Get("/query/history", s.handleQueryHistory)
			r.Get("/render", s.handleRenderAll)
			r.Get("/render/{name}", s.handleRender)
			r.Post("/macro", s.handleMacro)
			r.Get("/refresh", s.handleListRefreshes)
			r.Post("/refresh/{metric}", s.handleRefresh)
			r.Get("/refresh/{metric}/history", s.handleRefreshHistory)
			r.Post("/reload", s.handleReload)
		})
	})
	return r, nil
}

func (s *Server) requestLogger(r *http.Request) *slog.Logger {
	if id := middleware.RequestIDFromContext(r.Context()); id != "" {
		return s.logger.With("request_id", id)
	}
	return s.logger
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.requestLogger(r).Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(s.specJSON)
}
