package semantic

import (
	"strings"

	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/duckdbsql"
)

func (r *renderer) metric(name string) (*RelationInfo, error) {
	mt, ok := r.cat.Metric(name)
	if !ok {
		return nil, domain.ErrRewrite(domain.CodeNotFound, "metric %s does not exist", name)
	}
	key := string(KindMetric) + ":" + mt.Name
	if info, ok := r.memo[key]; ok {
		return info, nil
	}
	info, err := r.metricRelation(mt, nil)
	if err != nil {
		return nil, err
	}
	r.memo[key] = info
	return info, nil
}

// rollup renders the metric of ru with its time grain truncated to the
// requested date part. Rollups are not memoized.
func (r *renderer) rollup(ru *MetricRollupInfo) (*RelationInfo, error) {
	return r.metricRelation(ru.Metric, ru)
}

func (r *renderer) metricRelation(mt *domain.Metric, ru *MetricRollupInfo) (*RelationInfo, error) {
	if r.active[mt.Name] {
		return nil, domain.ErrRewrite(domain.CodeUnsupportedExpression, "metric %s is its own base object", mt.Name)
	}
	r.active[mt.Name] = true
	defer delete(r.active, mt.Name)

	sql, deps, err := r.metricSQL(mt, ru)
	if err != nil {
		return nil, metricError(err, mt.Name)
	}
	return finish(mt.Name, KindMetric, sql, deps)
}

// metricSource resolves metric columns against its base object.
type metricSource struct {
	alias   string
	sql     string
	resolve func(text string) (duckdbsql.Expr, error)
	x       *expander // nil for a metric over a metric
}

func (r *renderer) metricSQL(mt *domain.Metric, ru *MetricRollupInfo) (string, []string, error) {
	src, err := r.metricBase(mt)
	if err != nil {
		return "", nil, err
	}

	var grain *domain.TimeGrain
	if ru != nil {
		grain = ru.TimeGrain
	}

	dims := make([]duckdbsql.Expr, 0, len(mt.Dimensions))
	names := make([]string, 0, len(mt.Dimensions)+len(mt.Measures))
	for _, d := range mt.Dimensions {
		e, err := src.resolve(columnText(d))
		if err != nil {
			return "", nil, annotate(err, "", d.Name)
		}
		if containsAggregate(e) {
			return "", nil, domain.ErrRewrite(domain.CodeUnsupportedExpression,
				"dimension %s must not use an aggregate function", d.Name).WithColumn(d.Name)
		}
		name := d.Name
		if grain != nil && strings.EqualFold(grain.RefColumn, d.Name) {
			e = &duckdbsql.FuncCall{
				Name: "DATE_TRUNC",
				Args: []duckdbsql.Expr{
					&duckdbsql.Literal{Type: duckdbsql.LiteralString, Value: strings.ToLower(string(ru.DatePart))},
					e,
				},
			}
			name = grain.Name
		}
		dims = append(dims, e)
		names = append(names, name)
	}

	measures := make([]duckdbsql.Expr, 0, len(mt.Measures))
	for _, m := range mt.Measures {
		e, err := src.resolve(columnText(m))
		if err != nil {
			return "", nil, annotate(err, "", m.Name)
		}
		if !containsAggregate(e) {
			return "", nil, domain.ErrRewrite(domain.CodeUnsupportedExpression,
				"measure %s must use an aggregate function", m.Name).WithColumn(m.Name)
		}
		measures = append(measures, e)
		names = append(names, m.Name)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	for i, e := range append(append([]duckdbsql.Expr(nil), dims...), measures...) {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(duckdbsql.FormatExpr(e))
		b.WriteString(" AS ")
		b.WriteString(duckdbsql.QuoteIdent(names[i]))
	}
	b.WriteString(" FROM (")
	b.WriteString(src.sql)
	b.WriteString(") AS ")
	b.WriteString(duckdbsql.QuoteIdent(src.alias))

	deps := []string{src.alias}
	if src.x != nil {
		joined := src.x.joinsFor(referencedAliases(append(dims, measures...)...))
		source := func(name string) (string, error) {
			info, err := r.model(name)
			if err != nil {
				return "", err
			}
			return info.SQL, nil
		}
		if err := src.x.writeJoins(&b, joined, source); err != nil {
			return "", nil, err
		}
		for _, t := range pathTargets(joined) {
			if !containsFold(deps, t) {
				deps = append(deps, t)
			}
		}
	}

	if len(dims) > 0 {
		b.WriteString(" GROUP BY ")
		for i, e := range dims {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(duckdbsql.FormatExpr(e))
		}
	}
	return b.String(), deps, nil
}

// metricBase renders the base object of mt and returns how to read its
// columns.
func (r *renderer) metricBase(mt *domain.Metric) (*metricSource, error) {
	if base, ok := r.cat.Model(mt.BaseObject); ok {
		info, err := r.model(base.Name)
		if err != nil {
			return nil, err
		}
		x := newExpander(r.cat, base, base.Name, renderedColumns)
		return &metricSource{alias: base.Name, sql: info.SQL, resolve: x.expandExpr, x: x}, nil
	}
	if base, ok := r.cat.Metric(mt.BaseObject); ok {
		info, err := r.metric(base.Name)
		if err != nil {
			return nil, err
		}
		macros := r.cat.ListMacros()
		return &metricSource{
			alias: base.Name,
			sql:   info.SQL,
			resolve: func(text string) (duckdbsql.Expr, error) {
				return metricColumns(base, text, macros)
			},
		}, nil
	}
	return nil, domain.ErrRewrite(domain.CodeNotFound, "base object %s of metric %s does not exist", mt.BaseObject, mt.Name)
}

// metricColumns parses text written against the base metric base. Only the
// base metric's own columns can be referenced, optionally qualified with its
// name.
func metricColumns(base *domain.Metric, text string, macros []*domain.Macro) (duckdbsql.Expr, error) {
	tree, err := parseTemplate(text, macros)
	if err != nil {
		return nil, err
	}
	var refErr error
	out := duckdbsql.RewriteExpr(tree, func(e duckdbsql.Expr) (duckdbsql.Expr, bool) {
		ref, ok := e.(*duckdbsql.ColumnRef)
		if !ok || refErr != nil {
			return nil, false
		}
		parts := ref.Parts
		if len(parts) == 2 && strings.EqualFold(parts[0], base.Name) {
			parts = parts[1:]
		}
		if len(parts) != 1 {
			refErr = domain.ErrRewrite(domain.CodeUnsupportedExpression,
				"%s: a metric over metric %s can only read its columns", strings.Join(ref.Parts, "."), base.Name)
			return e, true
		}
		col := base.Column(parts[0])
		if col == nil {
			refErr = domain.ErrRewrite(domain.CodeNotFound, "metric %s does not declare column %s", base.Name, parts[0])
			return e, true
		}
		return duckdbsql.NewColumnRef(base.Name, col.Name), true
	})
	if refErr != nil {
		return nil, refErr
	}
	return out, nil
}

// columnText is the expression of a metric column, which defaults to the
// base column of the same name.
func columnText(c *domain.Column) string {
	if c.Expression != "" {
		return c.Expression
	}
	return c.Name
}

// metricError labels err with the metric it came from. Errors raised while
// rendering a base model keep that model.
func metricError(err error, metric string) error {
	return annotate(err, metric, "")
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
