package semantic

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/duckdbsql"
)

// RelationKind tells rendered models and metrics apart.
type RelationKind string

// KindModel and KindMetric are the kinds of rendered relations.
const (
	KindModel  RelationKind = "model"
	KindMetric RelationKind = "metric"
)

// RelationInfo is a model or metric rendered to a single SELECT.
type RelationInfo struct {
	Name string
	Kind RelationKind
	SQL  string
	Stmt *duckdbsql.SelectStmt

	// DependsOn lists the models and metrics the relation reads, in join order.
	DependsOn []string
	// RequiredObjects lists the physical tables the SQL reads, sorted.
	RequiredObjects []string
}

// renderer renders relations over one catalog, memoizing each model and
// metric. It is not safe for concurrent use.
type renderer struct {
	cat    domain.Catalog
	memo   map[string]*RelationInfo
	active map[string]bool // metrics being rendered
}

func newRenderer(cat domain.Catalog) *renderer {
	return &renderer{
		cat:    cat,
		memo:   make(map[string]*RelationInfo),
		active: make(map[string]bool),
	}
}

func (r *renderer) model(name string) (*RelationInfo, error) {
	m, ok := r.cat.Model(name)
	if !ok {
		return nil, domain.ErrRewrite(domain.CodeNotFound, "model %s does not exist", name).WithModel(name)
	}
	key := string(KindModel) + ":" + m.Name
	if info, ok := r.memo[key]; ok {
		return info, nil
	}

	sql, deps, err := r.modelSQL(m)
	if err != nil {
		return nil, annotate(err, m.Name, "")
	}
	info, err := finish(m.Name, KindModel, sql, deps)
	if err != nil {
		return nil, err
	}
	r.memo[key] = info
	return info, nil
}

// field is a projected column of a model being rendered.
type field struct {
	col  *domain.Column
	expr duckdbsql.Expr
	info *CalculatedFieldRelationshipInfo
}

// aggGroup is one aggregation subquery: the aggregate calls that share a
// set of join paths.
type aggGroup struct {
	alias   string
	aliases []string
	items   []aggItem
}

type aggItem struct {
	name string
	expr duckdbsql.Expr
}

func (r *renderer) modelSQL(m *domain.Model) (string, []string, error) {
	x := newExpander(r.cat, m, m.Name, inlineColumns)

	var fields []*field
	for _, c := range m.Columns {
		if c.IsRelationship() {
			continue
		}
		e, err := x.expandField(c)
		if err != nil {
			return "", nil, annotate(err, m.Name, c.Name)
		}
		fields = append(fields, &field{
			col:  c,
			expr: e,
			info: &CalculatedFieldRelationshipInfo{Column: c, Dependencies: x.deps},
		})
	}
	if len(fields) == 0 {
		return "", nil, domain.ErrRewrite(domain.CodeUnsupportedExpression, "model %s has no columns to select", m.Name).
			WithModel(m.Name)
	}

	var (
		pk      duckdbsql.Expr
		groups  []*aggGroup
		bySig   = make(map[string]*aggGroup)
		placeAt = func(call aggregateCall) duckdbsql.Expr {
			g := bySig[call.signature]
			if g == nil {
				g = &aggGroup{alias: fmt.Sprintf("agg#%d", len(groups)+1), aliases: call.aliases}
				groups = append(groups, g)
				bySig[call.signature] = g
			}
			name := fmt.Sprintf("value#%d", len(g.items)+1)
			g.items = append(g.items, aggItem{name: name, expr: call.expr})
			return duckdbsql.NewColumnRef(g.alias, name)
		}
	)
	for _, f := range fields {
		if !f.info.IsAggregated() {
			if containsAggregate(f.expr) {
				return "", nil, domain.ErrRewrite(domain.CodeUnsupportedExpression,
					"calculated field %s aggregates without reading a to-many relationship", f.col.Name).
					WithModel(m.Name).WithColumn(f.col.Name)
			}
			continue
		}
		if pk == nil {
			var err error
			if pk, err = primaryKey(m, fields, f.col); err != nil {
				return "", nil, err
			}
		}
		_, outer, err := liftAggregates(x, f.expr, placeAt)
		if err != nil {
			return "", nil, annotate(err, m.Name, f.col.Name)
		}
		f.expr = outer
	}

	source := func(name string) (string, error) {
		target, ok := r.cat.Model(name)
		if !ok {
			return "", domain.ErrRewrite(domain.CodeNotFound, "model %s does not exist", name).WithModel(name)
		}
		return refSource(target), nil
	}
	base := "(" + refSource(m) + ") AS " + duckdbsql.QuoteIdent(m.Name)

	var b strings.Builder
	b.WriteString("SELECT ")
	exprs := make([]duckdbsql.Expr, 0, len(fields))
	for i, f := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(duckdbsql.FormatExpr(f.expr))
		b.WriteString(" AS ")
		b.WriteString(duckdbsql.QuoteIdent(f.col.Name))
		exprs = append(exprs, f.expr)
	}
	b.WriteString(" FROM ")
	b.WriteString(base)

	joined := x.joinsFor(referencedAliases(exprs...))
	if err := x.writeJoins(&b, joined, source); err != nil {
		return "", nil, err
	}

	for _, g := range groups {
		paths := x.joinsFor(g.aliases)
		joined = append(joined, paths...)

		key := duckdbsql.FormatExpr(pk)
		b.WriteString(" LEFT JOIN (SELECT ")
		b.WriteString(key)
		b.WriteString(` AS "pk#"`)
		for _, it := range g.items {
			b.WriteString(", ")
			b.WriteString(duckdbsql.FormatExpr(it.expr))
			b.WriteString(" AS ")
			b.WriteString(duckdbsql.QuoteIdent(it.name))
		}
		b.WriteString(" FROM ")
		b.WriteString(base)
		if err := x.writeJoins(&b, paths, source); err != nil {
			return "", nil, err
		}
		b.WriteString(" GROUP BY ")
		b.WriteString(key)
		b.WriteString(") AS ")
		b.WriteString(duckdbsql.QuoteIdent(g.alias))
		b.WriteString(" ON ")
		b.WriteString(key)
		b.WriteString(" = ")
		b.WriteString(duckdbsql.QuoteIdent(g.alias))
		b.WriteString(`."pk#"`)
	}

	return b.String(), pathTargets(joined), nil
}

// primaryKey returns the expression of m's primary key, which groups the
// aggregation subqueries of the to-many field col.
func primaryKey(m *domain.Model, fields []*field, col *domain.Column) (duckdbsql.Expr, error) {
	if m.PrimaryKey == "" {
		return nil, domain.ErrRewrite(domain.CodeUnsupportedExpression,
			"model %s needs a primary key to compute to-many field %s", m.Name, col.Name).
			WithModel(m.Name).WithColumn(col.Name)
	}
	pkCol := m.Column(m.PrimaryKey)
	for _, f := range fields {
		if f.col != pkCol {
			continue
		}
		if !f.info.IsLocal() {
			return nil, domain.ErrRewrite(domain.CodeUnsupportedExpression,
				"primary key %s of model %s must not read other models", f.col.Name, m.Name).
				WithModel(m.Name).WithColumn(f.col.Name)
		}
		return f.expr, nil
	}
	return nil, domain.ErrRewrite(domain.CodeUnsupportedExpression,
		"primary key %s of model %s is not a selectable column", m.PrimaryKey, m.Name).WithModel(m.Name)
}

// pathTargets returns the distinct models reached by paths, in order.
func pathTargets(paths []*joinPath) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range paths {
		to := p.hops[len(p.hops)-1].To
		if !seen[to] {
			seen[to] = true
			out = append(out, to)
		}
	}
	return out
}

// finish re-parses generated SQL and fills in the derived fields of a
// RelationInfo. SQL that does not parse is a renderer bug.
func finish(name string, kind RelationKind, sql string, deps []string) (*RelationInfo, error) {
	stmt, err := duckdbsql.ParseSelect(sql)
	if err != nil {
		rwErr := domain.ErrRewrite(domain.CodeRenderError, "generated SQL for %s %s does not parse", kind, name).Wrap(err)
		if kind == KindModel {
			rwErr.WithModel(name)
		}
		return nil, rwErr
	}
	required := duckdbsql.CollectTableNames(stmt)
	sort.Strings(required)
	return &RelationInfo{
		Name:            name,
		Kind:            kind,
		SQL:             duckdbsql.Format(stmt),
		Stmt:            stmt,
		DependsOn:       deps,
		RequiredObjects: required,
	}, nil
}

// render renders the model or metric called name. Models win over metrics
// of the same name.
func (r *renderer) render(name string) (*RelationInfo, error) {
	if _, ok := r.cat.Model(name); ok {
		return r.model(name)
	}
	if _, ok := r.cat.Metric(name); ok {
		return r.metric(name)
	}
	return nil, domain.ErrRewrite(domain.CodeNotFound, "no model or metric named %s", name)
}

// RenderModel renders one model.
func RenderModel(cat domain.Catalog, name string) (*RelationInfo, error) {
	return newRenderer(cat).model(name)
}

// RenderMetric renders one metric.
func RenderMetric(cat domain.Catalog, name string) (*RelationInfo, error) {
	return newRenderer(cat).metric(name)
}

// Render renders the model or metric called name.
func Render(cat domain.Catalog, name string) (*RelationInfo, error) {
	return newRenderer(cat).render(name)
}

// RenderAll renders every model and metric of cat concurrently, keyed by
// name. The first failure cancels the remaining renders.
func RenderAll(ctx context.Context, cat domain.Catalog) (map[string]*RelationInfo, error) {
	type job struct {
		name string
		kind RelationKind
	}
	var jobs []job
	for _, m := range cat.ListModels() {
		jobs = append(jobs, job{name: m.Name, kind: KindModel})
	}
	for _, m := range cat.ListMetrics() {
		jobs = append(jobs, job{name: m.Name, kind: KindMetric})
	}

	var mu sync.Mutex
	out := make(map[string]*RelationInfo, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := newRenderer(cat)
			var (
				info *RelationInfo
				err  error
			)
			if j.kind == KindModel {
				info, err = r.model(j.name)
			} else {
				info, err = r.metric(j.name)
			}
			if err != nil {
				return err
			}
			mu.Lock()
			out[j.name] = info
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
