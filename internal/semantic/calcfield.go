package semantic

import (
	"sort"
	"strings"

	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/duckdbsql"
)

// aggregateFunctions are the calls that may consume to-many references.
var aggregateFunctions = map[string]bool{
	"sum": true, "count": true, "avg": true, "min": true, "max": true,
	"any_value": true, "arg_max": true, "arg_min": true,
	"bool_and": true, "bool_or": true, "first": true, "last": true,
	"list": true, "array_agg": true, "string_agg": true, "group_concat": true,
	"median": true, "mode": true,
	"stddev": true, "stddev_pop": true, "stddev_samp": true,
	"variance": true, "var_pop": true, "var_samp": true,
	"approx_count_distinct": true, "bit_and": true, "bit_or": true, "product": true,
}

// isAggregateCall reports whether e is a plain (non-window) aggregate call.
func isAggregateCall(e duckdbsql.Expr) bool {
	fc, ok := e.(*duckdbsql.FuncCall)
	return ok && fc.Window == nil && fc.Schema == "" && aggregateFunctions[strings.ToLower(fc.Name)]
}

// containsAggregate reports whether any node of e is an aggregate call.
func containsAggregate(e duckdbsql.Expr) bool {
	found := false
	duckdbsql.WalkExpr(e, func(x duckdbsql.Expr) bool {
		if isAggregateCall(x) {
			found = true
		}
		return !found
	})
	return found
}

// CalculatedFieldRelationshipInfo describes how a calculated field reaches
// other models.
type CalculatedFieldRelationshipInfo struct {
	Column       *domain.Column
	Dependencies []*ExpressionRelationshipInfo
}

// IsAggregated reports whether the field depends on a to-many hop and so
// must be computed in an aggregation subquery.
func (c *CalculatedFieldRelationshipInfo) IsAggregated() bool {
	for _, d := range c.Dependencies {
		if d.IsToMany() {
			return true
		}
	}
	return false
}

// IsLocal reports whether the field reads only its own model.
func (c *CalculatedFieldRelationshipInfo) IsLocal() bool {
	for _, d := range c.Dependencies {
		if len(d.Hops) > 0 {
			return false
		}
	}
	return true
}

// aggregateCall is one aggregate of a to-many field, lifted into an
// aggregation subquery.
type aggregateCall struct {
	expr      duckdbsql.Expr
	aliases   []string // path aliases referenced, sorted
	signature string
}

// liftAggregates splits an aggregated field into its top-level aggregate
// calls and an outer expression in which each call is replaced by place(call).
// It enforces the to-many rules: every to-many reference sits inside an
// aggregate, aggregates do not nest, and the to-many chains inside one
// aggregate lie on a single path.
func liftAggregates(x *expander, expr duckdbsql.Expr, place func(call aggregateCall) duckdbsql.Expr) ([]aggregateCall, duckdbsql.Expr, error) {
	var calls []aggregateCall
	var liftErr error
	outer := duckdbsql.RewriteExpr(expr, func(e duckdbsql.Expr) (duckdbsql.Expr, bool) {
		if liftErr != nil || !isAggregateCall(e) {
			return nil, false
		}
		fc := e.(*duckdbsql.FuncCall)
		for _, arg := range aggregateOperands(fc) {
			if containsAggregate(arg) {
				liftErr = domain.ErrRewrite(domain.CodeUnsupportedExpression, "nested aggregate functions are not supported in %s",
					duckdbsql.FormatExpr(fc))
				return e, true
			}
		}
		call, err := classifyAggregate(x, fc)
		if err != nil {
			liftErr = err
			return e, true
		}
		calls = append(calls, call)
		return place(call), true
	})
	if liftErr != nil {
		return nil, nil, liftErr
	}

	for _, ref := range duckdbsql.ColumnRefs(outer) {
		if p := x.lookupAlias(ref.Table()); p != nil && p.toMany() {
			return nil, nil, domain.ErrRewrite(domain.CodeUnsupportedExpression,
				"to-many reference %s must be used inside an aggregate function", p.alias+"."+ref.Column())
		}
	}
	return calls, outer, nil
}

func aggregateOperands(fc *duckdbsql.FuncCall) []duckdbsql.Expr {
	ops := append([]duckdbsql.Expr(nil), fc.Args...)
	for _, o := range fc.OrderBy {
		ops = append(ops, o.Expr)
	}
	if fc.Filter != nil {
		ops = append(ops, fc.Filter)
	}
	return ops
}

func classifyAggregate(x *expander, fc *duckdbsql.FuncCall) (aggregateCall, error) {
	seen := make(map[string]bool)
	var aliases []string
	var toMany []*joinPath
	for _, ref := range duckdbsql.ColumnRefs(fc) {
		p := x.lookupAlias(ref.Table())
		if p == nil || p == x.root || seen[p.alias] {
			continue
		}
		seen[p.alias] = true
		aliases = append(aliases, p.alias)
		if p.toMany() {
			toMany = append(toMany, p)
		}
	}
	if len(toMany) == 0 {
		return aggregateCall{}, domain.ErrRewrite(domain.CodeUnsupportedExpression,
			"aggregate %s does not read a to-many relationship", duckdbsql.FormatExpr(fc))
	}

	longest := toMany[0]
	for _, p := range toMany[1:] {
		if len(p.parts) > len(longest.parts) {
			longest = p
		}
	}
	for _, p := range toMany {
		if !isPrefix(p.parts, longest.parts) {
			return aggregateCall{}, domain.ErrRewrite(domain.CodeUnsupportedExpression,
				"aggregate %s mixes unrelated to-many relationship paths %s and %s",
				duckdbsql.FormatExpr(fc), p.alias, longest.alias)
		}
	}

	sort.Strings(aliases)
	return aggregateCall{expr: fc, aliases: aliases, signature: strings.Join(aliases, "|")}, nil
}

func isPrefix(prefix, parts []string) bool {
	if len(prefix) > len(parts) {
		return false
	}
	for i := range prefix {
		if !strings.EqualFold(prefix[i], parts[i]) {
			return false
		}
	}
	return true
}
