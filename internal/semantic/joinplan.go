package semantic

import (
	"strings"

	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/duckdbsql"
)

// joinsFor returns the paths needed to reach aliases, every prefix before
// the paths extending it.
func (x *expander) joinsFor(aliases []string) []*joinPath {
	need := make(map[*joinPath]bool)
	for _, alias := range aliases {
		p := x.lookupAlias(alias)
		if p == nil || p == x.root {
			continue
		}
		for i := 1; i <= len(p.parts); i++ {
			if prefix := x.paths[strings.ToLower(x.pathAlias(p.parts[:i]))]; prefix != nil {
				need[prefix] = true
			}
		}
	}
	var out []*joinPath
	for _, p := range x.order {
		if need[p] {
			out = append(out, p)
		}
	}
	return out
}

// parentAlias is the alias of the relation p's last hop starts from.
func (x *expander) parentAlias(p *joinPath) string {
	if len(p.parts) <= 1 {
		return x.root.alias
	}
	return x.pathAlias(p.parts[:len(p.parts)-1])
}

// referencedAliases returns the distinct table qualifiers used in exprs, in
// order of appearance.
func referencedAliases(exprs ...duckdbsql.Expr) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range exprs {
		for _, ref := range duckdbsql.ColumnRefs(e) {
			t := ref.Table()
			if t == "" || seen[strings.ToLower(t)] {
				continue
			}
			seen[strings.ToLower(t)] = true
			out = append(out, t)
		}
	}
	return out
}

// writeJoins appends a LEFT JOIN per path. source yields the SQL of the
// relation to join for a model.
func (x *expander) writeJoins(b *strings.Builder, paths []*joinPath, source func(model string) (string, error)) error {
	for _, p := range paths {
		hop := p.hops[len(p.hops)-1]
		cond, err := joinCondition(hop, x.parentAlias(p), p.alias)
		if err != nil {
			return err
		}
		src, err := source(hop.To)
		if err != nil {
			return err
		}
		b.WriteString(" LEFT JOIN (")
		b.WriteString(src)
		b.WriteString(") AS ")
		b.WriteString(duckdbsql.QuoteIdent(p.alias))
		b.WriteString(" ON ")
		b.WriteString(duckdbsql.FormatExpr(cond))
	}
	return nil
}

// joinCondition rewrites the relationship condition of hop so that its
// model qualifiers name the joined aliases. In a self relationship the two
// sides are told apart by order: the first reference is the source side,
// the next the target side, and so on.
func joinCondition(hop Hop, fromAlias, toAlias string) (duckdbsql.Expr, error) {
	rel := hop.Relationship
	tree, err := duckdbsql.ParseExpr(rel.Condition)
	if err != nil {
		return nil, domain.ErrRewrite(domain.CodeUnsupportedExpression, "cannot parse join condition %q", rel.Condition).
			WithRelationship(rel.Name).Wrap(err)
	}

	side := func(i int) string {
		if (i == 0) == hop.Forward {
			return fromAlias
		}
		return toAlias
	}
	self := strings.EqualFold(rel.Models[0], rel.Models[1])
	seen := 0
	return duckdbsql.RewriteExpr(tree, func(e duckdbsql.Expr) (duckdbsql.Expr, bool) {
		ref, ok := e.(*duckdbsql.ColumnRef)
		if !ok || len(ref.Parts) != 2 {
			return nil, false
		}
		q := ref.Parts[0]
		switch {
		case self && strings.EqualFold(q, rel.Models[0]):
			alias := side(seen % 2)
			seen++
			return duckdbsql.NewColumnRef(alias, ref.Parts[1]), true
		case strings.EqualFold(q, rel.Models[0]):
			return duckdbsql.NewColumnRef(side(0), ref.Parts[1]), true
		case strings.EqualFold(q, rel.Models[1]):
			return duckdbsql.NewColumnRef(side(1), ref.Parts[1]), true
		}
		return nil, false
	}), nil
}

// refSource returns the reference query of a model, ready to be wrapped in
// parentheses.
func refSource(m *domain.Model) string {
	return strings.TrimRight(strings.TrimSpace(m.RefSQL), "; \t\n")
}
