// Package ui renders a read-only HTML browser for the loaded catalog.
package ui

import (
	"context"
	"log/slog"
	"net/http"

	"maragu.dev/gomponents"

	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/manifest"
	"mdl-rewrite/internal/middleware"
)

// Handler serves the catalog page.
type Handler struct {
	catalog func() *manifest.Catalog
	runs    func(ctx context.Context) ([]domain.RefreshRun, error)
}

// NewHandler returns a Handler reading the catalog in effect from catalog
// and the latest refresh runs from runs. runs may be nil.
func NewHandler(catalog func() *manifest.Catalog, runs func(ctx context.Context) ([]domain.RefreshRun, error)) *Handler {
	return &Handler{catalog: catalog, runs: runs}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var runs []domain.RefreshRun
	if h.runs != nil {
		var err error
		runs, err = h.runs(r.Context())
		if err != nil {
			slog.Default().Warn("load refresh runs for catalog page", "error", err)
		}
	}
	principal, _ := middleware.PrincipalFromContext(r.Context())
	renderHTML(w, http.StatusOK, catalogPage(principal.Name, buildCatalogData(h.catalog(), runs)))
}

func renderHTML(w http.ResponseWriter, status int, node gomponents.Node) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = node.Render(w)
}
