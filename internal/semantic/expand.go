package semantic

import (
	"errors"
	"strings"

	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/duckdbsql"
	"mdl-rewrite/internal/macro"
)

// joinPath is a chain of relationship hops from the root model. Its alias
// names the joined relation in generated SQL.
type joinPath struct {
	parts []string // relationship column names from the root
	hops  []Hop
	alias string
}

func (p *joinPath) toMany() bool {
	for _, h := range p.hops {
		if h.JoinType.IsToMany() {
			return true
		}
	}
	return false
}

// expandMode selects how terminal columns are referenced.
type expandMode int

const (
	// inlineColumns reads from model reference queries: calculated fields are
	// inlined and undeclared reference-query columns pass through.
	inlineColumns expandMode = iota
	// renderedColumns reads from rendered relations, where every declared
	// column already exists. To-many paths are rejected.
	renderedColumns
)

// expander rewrites expressions written against root into expressions over
// the root alias and join path aliases, collecting the paths it needs.
type expander struct {
	cat    domain.Catalog
	macros []*domain.Macro
	mode   expandMode

	root  *joinPath
	model *domain.Model
	paths map[string]*joinPath // by lower-cased alias
	order []*joinPath          // registration order

	// deps collects the root-relative resolution of every reference seen
	// since the last reset.
	deps []*ExpressionRelationshipInfo
}

func newExpander(cat domain.Catalog, model *domain.Model, alias string, mode expandMode) *expander {
	return &expander{
		cat:    cat,
		macros: cat.ListMacros(),
		mode:   mode,
		root:   &joinPath{alias: alias},
		model:  model,
		paths:  make(map[string]*joinPath),
	}
}

// extend returns the path reached by following hops from base, registering
// every prefix along the way.
func (x *expander) extend(base *joinPath, hops []Hop) *joinPath {
	cur := base
	for _, h := range hops {
		parts := append(append([]string(nil), cur.parts...), h.Column)
		alias := x.pathAlias(parts)
		key := strings.ToLower(alias)
		next, ok := x.paths[key]
		if !ok {
			next = &joinPath{
				parts: parts,
				hops:  append(append([]Hop(nil), cur.hops...), h),
				alias: alias,
			}
			x.paths[key] = next
			x.order = append(x.order, next)
		}
		cur = next
	}
	return cur
}

func (x *expander) pathAlias(parts []string) string {
	alias := strings.Join(parts, ".")
	if strings.EqualFold(alias, x.root.alias) {
		alias = "~" + alias
	}
	return alias
}

// lookupAlias returns the path joined under alias, or nil.
func (x *expander) lookupAlias(alias string) *joinPath {
	if strings.EqualFold(alias, x.root.alias) {
		return x.root
	}
	return x.paths[strings.ToLower(alias)]
}

func (x *expander) parseTemplate(text string) (duckdbsql.Expr, error) {
	return parseTemplate(text, x.macros)
}

// parseTemplate expands macros in text and parses the result as a single
// expression.
func parseTemplate(text string, macros []*domain.Macro) (duckdbsql.Expr, error) {
	rendered, err := macro.Render(text, macros)
	if err != nil {
		return nil, err
	}
	tree, err := duckdbsql.ParseExpr(rendered)
	if err != nil {
		return nil, domain.ErrRewrite(domain.CodeUnsupportedExpression, "cannot parse expression %q", rendered).Wrap(err)
	}
	if duckdbsql.ContainsSubquery(tree) {
		return nil, domain.ErrRewrite(domain.CodeUnsupportedExpression, "subqueries are not supported in %q", rendered)
	}
	return tree, nil
}

// expandField expands a declared column of the root model.
func (x *expander) expandField(col *domain.Column) (duckdbsql.Expr, error) {
	x.deps = nil
	if !col.IsCalculated() {
		return x.expandRef(x.model, []string{col.Name}, x.root, nil)
	}
	return x.expandColumn(x.model, col, x.root, nil)
}

// expandExpr expands free text written against the root model, such as a
// metric dimension or measure.
func (x *expander) expandExpr(text string) (duckdbsql.Expr, error) {
	x.deps = nil
	tree, err := x.parseTemplate(text)
	if err != nil {
		return nil, err
	}
	return x.expandTree(x.model, tree, x.root, nil)
}

// expandColumn inlines the calculated column col of model, reached through
// prefix. stack holds the calculated fields being expanded, as Model.column.
func (x *expander) expandColumn(model *domain.Model, col *domain.Column, prefix *joinPath, stack []string) (duckdbsql.Expr, error) {
	key := model.Name + "." + col.Name
	for i, s := range stack {
		if s == key {
			cycle := append(append([]string(nil), stack[i:]...), key)
			return nil, domain.ErrRewrite(domain.CodeCircularCalculatedField, "circular calculated field: %s",
				strings.Join(cycle, " -> ")).WithModel(model.Name).WithColumn(col.Name)
		}
	}

	tree, err := x.parseTemplate(col.Expression)
	if err != nil {
		return nil, annotate(err, model.Name, col.Name)
	}
	out, err := x.expandTree(model, tree, prefix, append(stack, key))
	if err != nil {
		return nil, annotate(err, model.Name, col.Name)
	}
	return group(out), nil
}

func (x *expander) expandTree(model *domain.Model, tree duckdbsql.Expr, prefix *joinPath, stack []string) (duckdbsql.Expr, error) {
	var expandErr error
	out := duckdbsql.RewriteExpr(tree, func(e duckdbsql.Expr) (duckdbsql.Expr, bool) {
		if expandErr != nil {
			return e, true
		}
		ref, ok := e.(*duckdbsql.ColumnRef)
		if !ok {
			return nil, false
		}
		r, err := x.expandRef(model, ref.Parts, prefix, stack)
		if err != nil {
			expandErr = err
			return e, true
		}
		return r, true
	})
	if expandErr != nil {
		return nil, expandErr
	}
	return out, nil
}

func (x *expander) expandRef(model *domain.Model, parts []string, prefix *joinPath, stack []string) (duckdbsql.Expr, error) {
	if len(parts) > 1 && strings.EqualFold(parts[0], model.Name) && model.Column(parts[0]) == nil {
		parts = parts[1:]
	}
	info, err := Resolve(x.cat, model, parts)
	if err != nil {
		return nil, err
	}
	path := x.extend(prefix, info.Hops)
	x.deps = append(x.deps, rootRelative(prefix, info))

	switch x.mode {
	case renderedColumns:
		if path.toMany() {
			return nil, domain.ErrRewrite(domain.CodeUnsupportedExpression, "to-many relationship path %s is not supported here",
				strings.Join(parts, ".")).WithModel(model.Name)
		}
		if info.Column == nil {
			return nil, domain.ErrRewrite(domain.CodeNotFound, "model %s does not declare column %s",
				model.Name, info.RemainingParts[0]).WithModel(model.Name)
		}
	default:
		if info.Column != nil && info.Column.IsCalculated() {
			return x.expandColumn(info.Model, info.Column, path, stack)
		}
	}

	name := info.RemainingParts[0]
	if info.Column != nil {
		name = info.Column.Name
	}
	return duckdbsql.NewColumnRef(path.alias, name), nil
}

// rootRelative re-expresses info, resolved on the model at the end of
// prefix, as if it had been resolved on the root model.
func rootRelative(prefix *joinPath, info *ExpressionRelationshipInfo) *ExpressionRelationshipInfo {
	if len(prefix.parts) == 0 {
		return info
	}
	out := *info
	out.RelationshipParts = append(append([]string(nil), prefix.parts...), info.RelationshipParts...)
	out.QualifiedName = append(append([]string(nil), out.RelationshipParts...), info.RemainingParts...)
	out.Hops = append(append([]Hop(nil), prefix.hops...), info.Hops...)
	return &out
}

// annotate attaches model and column context to rewrite errors that lack it.
func annotate(err error, model, column string) error {
	var rwErr *domain.RewriteError
	if errors.As(err, &rwErr) {
		rwErr.WithModel(model).WithColumn(column)
	}
	return err
}

// group parenthesizes compound expressions so inlining keeps precedence.
func group(e duckdbsql.Expr) duckdbsql.Expr {
	switch e.(type) {
	case *duckdbsql.ColumnRef, *duckdbsql.Literal, *duckdbsql.FuncCall, *duckdbsql.ParenExpr,
		*duckdbsql.CaseExpr, *duckdbsql.CastExpr:
		return e
	}
	return &duckdbsql.ParenExpr{Expr: e}
}
