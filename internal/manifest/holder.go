package manifest

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// Holder keeps the current catalog for a manifest location and swaps it
// atomically on reload. Readers never see a partially built catalog.
type Holder struct {
	fetcher  *Fetcher
	location string
	logger   *slog.Logger

	current atomic.Pointer[Catalog]
}

// NewHolder fetches the manifest at location and returns a Holder serving it.
func NewHolder(ctx context.Context, fetcher *Fetcher, location string, logger *slog.Logger) (*Holder, error) {
	h := &Holder{fetcher: fetcher, location: location, logger: logger}
	if _, err := h.Reload(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// NewStaticHolder returns a Holder over an already built catalog. Reload
// fails on it.
func NewStaticHolder(cat *Catalog) *Holder {
	h := &Holder{logger: slog.Default()}
	h.current.Store(cat)
	return h
}

// Location returns the manifest location the holder reloads from.
func (h *Holder) Location() string { return h.location }

// Current returns the catalog in effect.
func (h *Holder) Current() *Catalog {
	return h.current.Load()
}

// Reload fetches and validates the manifest again. The previous catalog
// stays in effect when the new one fails to load.
func (h *Holder) Reload(ctx context.Context) (*Catalog, error) {
	if h.fetcher == nil {
		return nil, errors.New("manifest holder has no source to reload from")
	}
	cat, err := h.fetcher.LoadFrom(ctx, h.location)
	if err != nil {
		if h.current.Load() != nil {
			h.logger.Warn("manifest reload failed, keeping previous catalog", "location", h.location, "error", err)
		}
		return nil, err
	}
	h.current.Store(cat)
	h.logger.Info("manifest loaded", "location", h.location,
		"models", len(cat.ListModels()), "metrics", len(cat.ListMetrics()), "macros", len(cat.ListMacros()))
	return cat, nil
}
