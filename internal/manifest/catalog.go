package manifest

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"mdl-rewrite/internal/domain"
)

// Default catalog and schema used when the manifest names none.
const (
	DefaultCatalog = "memory"
	DefaultSchema  = "main"
)

// Catalog is an immutable, validated view of a manifest. It is safe for
// concurrent use.
type Catalog struct {
	catalog string
	schema  string

	models        index[domain.Model]
	relationships index[domain.Relationship]
	metrics       index[domain.Metric]
	macros        index[domain.Macro]

	refresh map[string]cron.Schedule // metric name -> refresh schedule
}

var _ domain.Catalog = (*Catalog)(nil)

// NewCatalog validates doc and builds a catalog from it. All problems are
// reported together in one *domain.ValidationError.
func NewCatalog(doc *Manifest) (*Catalog, error) {
	b := newBuilder(doc)
	b.build()
	if len(b.problems) > 0 {
		return nil, problemsError(b.problems)
	}
	return b.cat, nil
}

func (c *Catalog) CatalogName() string { return c.catalog }

func (c *Catalog) SchemaName() string { return c.schema }

func (c *Catalog) ListModels() []*domain.Model { return c.models.list() }

func (c *Catalog) Model(name string) (*domain.Model, bool) { return c.models.get(name) }

func (c *Catalog) ListRelationships() []*domain.Relationship { return c.relationships.list() }

func (c *Catalog) Relationship(name string) (*domain.Relationship, bool) {
	return c.relationships.get(name)
}

func (c *Catalog) ListMetrics() []*domain.Metric { return c.metrics.list() }

func (c *Catalog) Metric(name string) (*domain.Metric, bool) { return c.metrics.get(name) }

func (c *Catalog) ListMacros() []*domain.Macro { return c.macros.list() }

func (c *Catalog) Macro(name string) (*domain.Macro, bool) { return c.macros.get(name) }

// NextRefresh returns when a cached metric is next due for refresh after
// now. It reports false for unknown metrics and metrics that are not cached
// or have no refresh time.
func (c *Catalog) NextRefresh(metric string, now time.Time) (time.Time, bool) {
	m, ok := c.metrics.get(metric)
	if !ok || !m.Cached {
		return time.Time{}, false
	}
	sched, ok := c.RefreshSchedule(m.Name)
	if !ok {
		return time.Time{}, false
	}
	return sched.Next(now), true
}

// RefreshSchedule returns the parsed refresh time of a cached metric.
func (c *Catalog) RefreshSchedule(metric string) (cron.Schedule, bool) {
	m, ok := c.metrics.get(metric)
	if !ok || !m.Cached {
		return nil, false
	}
	sched, ok := c.refresh[m.Name]
	return sched, ok
}

// index keeps entries in declaration order with exact and case-insensitive
// lookup tables. The first declaration wins on a case-insensitive clash.
type index[T any] struct {
	order []*T
	exact map[string]*T
	fold  map[string]*T
}

func newIndex[T any]() index[T] {
	return index[T]{exact: make(map[string]*T), fold: make(map[string]*T)}
}

func (ix *index[T]) add(name string, v *T) {
	ix.order = append(ix.order, v)
	ix.exact[name] = v
	key := strings.ToLower(name)
	if _, ok := ix.fold[key]; !ok {
		ix.fold[key] = v
	}
}

func (ix *index[T]) get(name string) (*T, bool) {
	if v, ok := ix.exact[name]; ok {
		return v, true
	}
	v, ok := ix.fold[strings.ToLower(name)]
	return v, ok
}

func (ix *index[T]) list() []*T {
	out := make([]*T, len(ix.order))
	copy(out, ix.order)
	return out
}
