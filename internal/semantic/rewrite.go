package semantic

import (
	"context"
	"strings"

	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/duckdbsql"
)

// SessionContext is the default catalog and schema a query runs under.
// Virtual objects may be referenced unqualified or qualified with these.
type SessionContext struct {
	Catalog string
	Schema  string
}

// withDefaults fills unset fields from the manifest.
func (s SessionContext) withDefaults(cat domain.Catalog) SessionContext {
	if s.Catalog == "" {
		s.Catalog = cat.CatalogName()
	}
	if s.Schema == "" {
		s.Schema = cat.SchemaName()
	}
	return s
}

// objectName returns the virtual object name tn refers to, if tn is
// unqualified or qualified with the session's catalog and schema.
func (s SessionContext) objectName(tn *duckdbsql.TableName) (string, bool) {
	switch {
	case tn.Catalog == "" && tn.Schema == "":
		return tn.Name, true
	case tn.Catalog == "":
		return tn.Name, strings.EqualFold(tn.Schema, s.Schema)
	default:
		return tn.Name, strings.EqualFold(tn.Catalog, s.Catalog) && strings.EqualFold(tn.Schema, s.Schema)
	}
}

// rewriter holds the state of one statement rewrite.
type rewriter struct {
	ctx     context.Context
	cat     domain.Catalog
	session SessionContext
	r       *renderer

	rollups  RollupAnalysis
	userCTEs map[string]bool // lower-cased top-level CTE names
	err      error
}

func rewrite(ctx context.Context, stmt duckdbsql.Stmt, session SessionContext, cat domain.Catalog) (*duckdbsql.SelectStmt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	orig, ok := stmt.(*duckdbsql.SelectStmt)
	if !ok {
		return nil, domain.ErrRewrite(domain.CodeUnsupportedExpression, "only SELECT statements can be rewritten")
	}
	// Work on a copy so a failed rewrite leaves the caller's tree untouched.
	sel, err := duckdbsql.ParseSelect(duckdbsql.Format(orig))
	if err != nil {
		return nil, domain.ErrRewrite(domain.CodeInternal, "cannot copy statement").Wrap(err)
	}

	rollups, err := AnalyzeRollups(sel, cat)
	if err != nil {
		return nil, err
	}

	w := &rewriter{
		ctx:      ctx,
		cat:      cat,
		session:  session.withDefaults(cat),
		r:        newRenderer(cat),
		rollups:  rollups,
		userCTEs: make(map[string]bool),
	}
	if sel.With != nil {
		for _, cte := range sel.With.CTEs {
			w.userCTEs[strings.ToLower(cte.Name)] = true
		}
	}

	for body := sel.Body; body != nil; body = body.Right {
		if err := w.inlinePaths(body.Left); err != nil {
			return nil, err
		}
	}

	duckdbsql.RewriteTableRefs(sel, w.replace)
	if w.err != nil {
		return nil, w.err
	}
	return sel, nil
}

// replace is the table reference callback: roll_up calls and model or
// metric names become derived tables over the rendered relation. Derived
// tables keep the physical names inside reference queries bound to the
// physical tables; a CTE named after a model would capture them.
func (w *rewriter) replace(ref duckdbsql.TableRef, scope *duckdbsql.Scope) duckdbsql.TableRef {
	if w.err != nil {
		return ref
	}
	if w.err = w.ctx.Err(); w.err != nil {
		return ref
	}

	switch t := ref.(type) {
	case *duckdbsql.FuncTable:
		if !isRollup(t) {
			return ref
		}
		info, ok := w.rollups[t]
		if !ok {
			w.err = domain.ErrRewrite(domain.CodeInternal, "unresolved metric rollup %s", duckdbsql.FormatExpr(t.Func))
			return ref
		}
		rel, err := w.r.rollup(info)
		if err != nil {
			w.err = err
			return ref
		}
		alias := t.Alias
		if alias == "" {
			alias = info.Metric.Name
		}
		return &duckdbsql.DerivedTable{Select: rel.Stmt, Alias: alias}

	case *duckdbsql.TableName:
		if t.Catalog == "" && t.Schema == "" && scope.Has(t.Name) {
			return ref
		}
		name, ok := w.session.objectName(t)
		if !ok || !w.isVirtual(name) {
			return ref
		}
		rel, err := w.r.render(name)
		if err != nil {
			w.err = err
			return ref
		}
		if err := w.checkShadowing(rel); err != nil {
			w.err = err
			return ref
		}
		alias := t.Alias
		if alias == "" {
			alias = t.Name
		}
		return &duckdbsql.DerivedTable{Select: rel.Stmt, Alias: alias}
	}
	return ref
}

func (w *rewriter) isVirtual(name string) bool {
	if _, ok := w.cat.Model(name); ok {
		return true
	}
	_, ok := w.cat.Metric(name)
	return ok
}

// checkShadowing fails when a CTE of the query would capture an unqualified
// table read by rel's reference queries.
func (w *rewriter) checkShadowing(rel *RelationInfo) error {
	for _, table := range rel.RequiredObjects {
		if !strings.Contains(table, ".") && w.userCTEs[strings.ToLower(table)] {
			return domain.ErrRewrite(domain.CodeUnsupportedExpression,
				"query declares a CTE named %s, which shadows a table read by the %s %s", table, rel.Kind, rel.Name)
		}
	}
	return nil
}

// inlinePaths rewrites dotted relationship paths in a query over a single
// model into LEFT JOINs against the target models.
func (w *rewriter) inlinePaths(sc *duckdbsql.SelectCore) error {
	if sc == nil || sc.From == nil || len(sc.From.Joins) > 0 {
		return nil
	}
	tn, ok := sc.From.Source.(*duckdbsql.TableName)
	if !ok {
		return nil
	}
	if tn.Catalog == "" && tn.Schema == "" && w.userCTEs[strings.ToLower(tn.Name)] {
		return nil
	}
	name, ok := w.session.objectName(tn)
	if !ok {
		return nil
	}
	model, ok := w.cat.Model(name)
	if !ok {
		return nil
	}

	alias := tn.Alias
	if alias == "" {
		alias = tn.Name
	}
	x := newExpander(w.cat, model, alias, renderedColumns)

	var pathErr error
	expand := func(e duckdbsql.Expr) duckdbsql.Expr {
		if e == nil {
			return nil
		}
		return duckdbsql.RewriteExpr(e, func(n duckdbsql.Expr) (duckdbsql.Expr, bool) {
			ref, ok := n.(*duckdbsql.ColumnRef)
			if !ok || pathErr != nil {
				return nil, false
			}
			parts := ref.Parts
			if len(parts) > 1 && strings.EqualFold(parts[0], alias) {
				parts = parts[1:]
			}
			if len(parts) < 2 {
				return nil, false
			}
			if first := model.Column(parts[0]); first == nil || !first.IsRelationship() {
				return nil, false
			}
			out, err := x.expandRef(model, parts, x.root, nil)
			if err != nil {
				pathErr = err
				return n, true
			}
			return out, true
		})
	}

	for i := range sc.Columns {
		sc.Columns[i].Expr = expand(sc.Columns[i].Expr)
	}
	sc.Where = expand(sc.Where)
	for i := range sc.GroupBy {
		sc.GroupBy[i] = expand(sc.GroupBy[i])
	}
	sc.Having = expand(sc.Having)
	for i := range sc.OrderBy {
		sc.OrderBy[i].Expr = expand(sc.OrderBy[i].Expr)
	}
	if pathErr != nil {
		return pathErr
	}

	for _, p := range x.order {
		hop := p.hops[len(p.hops)-1]
		cond, err := joinCondition(hop, x.parentAlias(p), p.alias)
		if err != nil {
			return err
		}
		sc.From.Joins = append(sc.From.Joins, &duckdbsql.Join{
			Type:      duckdbsql.JoinLeft,
			Right:     &duckdbsql.TableName{Name: hop.To, Alias: p.alias},
			Condition: cond,
		})
	}
	return nil
}
