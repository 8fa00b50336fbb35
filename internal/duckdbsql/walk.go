package duckdbsql

import "strings"

// === Expression Walking ===

// WalkExpr calls fn for e and, while fn returns true, for every
// sub-expression in depth-first order. Nested SELECT statements are not
// entered; fn sees the SubqueryExpr, ExistsExpr or InExpr that holds them.
func WalkExpr(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, child := range exprChildren(e) {
		WalkExpr(child, fn)
	}
}

// exprChildren lists the direct sub-expressions of e in source order.
func exprChildren(e Expr) []Expr {
	switch expr := e.(type) {
	case *BinaryExpr:
		return []Expr{expr.Left, expr.Right}
	case *UnaryExpr:
		return []Expr{expr.Expr}
	case *ParenExpr:
		return []Expr{expr.Expr}
	case *FuncCall:
		children := append([]Expr(nil), expr.Args...)
		for _, o := range expr.OrderBy {
			children = append(children, o.Expr)
		}
		if expr.Filter != nil {
			children = append(children, expr.Filter)
		}
		if expr.Window != nil {
			children = append(children, expr.Window.PartitionBy...)
			for _, o := range expr.Window.OrderBy {
				children = append(children, o.Expr)
			}
		}
		return children
	case *CaseExpr:
		var children []Expr
		if expr.Operand != nil {
			children = append(children, expr.Operand)
		}
		for _, w := range expr.Whens {
			children = append(children, w.Condition, w.Result)
		}
		if expr.Else != nil {
			children = append(children, expr.Else)
		}
		return children
	case *CastExpr:
		return []Expr{expr.Expr}
	case *TypeCastExpr:
		return []Expr{expr.Expr}
	case *InExpr:
		return append([]Expr{expr.Expr}, expr.Values...)
	case *BetweenExpr:
		return []Expr{expr.Expr, expr.Low, expr.High}
	case *IsNullExpr:
		return []Expr{expr.Expr}
	case *IsBoolExpr:
		return []Expr{expr.Expr}
	case *LikeExpr:
		return []Expr{expr.Expr, expr.Pattern}
	case *IntervalExpr:
		return []Expr{expr.Value}
	case *ExtractExpr:
		return []Expr{expr.Expr}
	}
	return nil
}

// RewriteExpr returns a copy of e in which every node for which fn reports
// true is replaced by the returned expression. Replaced nodes are not
// descended into. Nodes on the path to a replacement are copied, so e itself
// is never modified; nested SELECT statements are shared, not copied.
func RewriteExpr(e Expr, fn func(Expr) (Expr, bool)) Expr {
	if e == nil {
		return nil
	}
	if repl, ok := fn(e); ok {
		return repl
	}
	rw := func(x Expr) Expr { return RewriteExpr(x, fn) }
	rwList := func(xs []Expr) []Expr {
		if xs == nil {
			return nil
		}
		out := make([]Expr, len(xs))
		for i, x := range xs {
			out[i] = rw(x)
		}
		return out
	}
	rwOrder := func(items []OrderByItem) []OrderByItem {
		if items == nil {
			return nil
		}
		out := make([]OrderByItem, len(items))
		for i, o := range items {
			o.Expr = rw(o.Expr)
			out[i] = o
		}
		return out
	}

	switch expr := e.(type) {
	case *ColumnRef:
		return &ColumnRef{Parts: append([]string(nil), expr.Parts...)}
	case *Literal:
		c := *expr
		return &c
	case *StarExpr:
		c := *expr
		return &c
	case *BinaryExpr:
		return &BinaryExpr{Left: rw(expr.Left), Op: expr.Op, Right: rw(expr.Right)}
	case *UnaryExpr:
		return &UnaryExpr{Op: expr.Op, Expr: rw(expr.Expr)}
	case *ParenExpr:
		return &ParenExpr{Expr: rw(expr.Expr)}
	case *FuncCall:
		c := *expr
		c.Args = rwList(expr.Args)
		c.OrderBy = rwOrder(expr.OrderBy)
		c.Filter = rw(expr.Filter)
		if expr.Window != nil {
			w := *expr.Window
			w.PartitionBy = rwList(w.PartitionBy)
			w.OrderBy = rwOrder(w.OrderBy)
			c.Window = &w
		}
		return &c
	case *CaseExpr:
		c := &CaseExpr{Operand: rw(expr.Operand), Else: rw(expr.Else)}
		for _, w := range expr.Whens {
			c.Whens = append(c.Whens, WhenClause{Condition: rw(w.Condition), Result: rw(w.Result)})
		}
		return c
	case *CastExpr:
		return &CastExpr{Expr: rw(expr.Expr), TypeName: expr.TypeName, TryCast: expr.TryCast}
	case *TypeCastExpr:
		return &TypeCastExpr{Expr: rw(expr.Expr), TypeName: expr.TypeName}
	case *InExpr:
		return &InExpr{Expr: rw(expr.Expr), Not: expr.Not, Values: rwList(expr.Values), Query: expr.Query}
	case *BetweenExpr:
		return &BetweenExpr{Expr: rw(expr.Expr), Not: expr.Not, Low: rw(expr.Low), High: rw(expr.High)}
	case *IsNullExpr:
		return &IsNullExpr{Expr: rw(expr.Expr), Not: expr.Not}
	case *IsBoolExpr:
		return &IsBoolExpr{Expr: rw(expr.Expr), Not: expr.Not, Value: expr.Value}
	case *LikeExpr:
		return &LikeExpr{Expr: rw(expr.Expr), Not: expr.Not, Pattern: rw(expr.Pattern), ILike: expr.ILike}
	case *IntervalExpr:
		return &IntervalExpr{Value: rw(expr.Value), Unit: expr.Unit}
	case *ExtractExpr:
		return &ExtractExpr{Field: expr.Field, Expr: rw(expr.Expr)}
	}
	return e
}

// ContainsSubquery reports whether e holds a nested SELECT anywhere.
func ContainsSubquery(e Expr) bool {
	found := false
	WalkExpr(e, func(x Expr) bool {
		switch n := x.(type) {
		case *SubqueryExpr, *ExistsExpr:
			found = true
		case *InExpr:
			if n.Query != nil {
				found = true
			}
		}
		return !found
	})
	return found
}

// ColumnRefs returns every column reference in e in source order.
func ColumnRefs(e Expr) []*ColumnRef {
	var refs []*ColumnRef
	WalkExpr(e, func(x Expr) bool {
		if ref, ok := x.(*ColumnRef); ok {
			refs = append(refs, ref)
		}
		return true
	})
	return refs
}

// === CTE Scopes ===

// Scope is the set of CTE names visible at a point in a statement.
type Scope struct {
	parent *Scope
	names  map[string]bool
}

// Has reports whether name (case-insensitive) is a visible CTE.
func (s *Scope) Has(name string) bool {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.names[strings.ToLower(name)] {
			return true
		}
	}
	return false
}

func (s *Scope) with(names ...string) *Scope {
	child := &Scope{parent: s, names: make(map[string]bool, len(names))}
	for _, n := range names {
		child.names[strings.ToLower(n)] = true
	}
	return child
}

// === Table Reference Rewriting ===

// TableRefFunc inspects a table reference and returns its replacement, or
// ref itself to keep it.
type TableRefFunc func(ref TableRef, scope *Scope) TableRef

// RewriteTableRefs calls fn for every table reference in sel, including
// those in CTE bodies, derived tables and expression subqueries, and stores
// the returned reference in its place. sel is modified in place. References
// are visited in source order. A non-recursive CTE body sees only the CTEs
// declared before it.
func RewriteTableRefs(sel *SelectStmt, fn TableRefFunc) {
	rewriteTablesInSelect(sel, nil, fn)
}

func rewriteTablesInSelect(sel *SelectStmt, scope *Scope, fn TableRefFunc) {
	if sel == nil {
		return
	}
	if sel.With != nil {
		var declared []string
		if sel.With.Recursive {
			for _, cte := range sel.With.CTEs {
				declared = append(declared, cte.Name)
			}
		}
		for _, cte := range sel.With.CTEs {
			rewriteTablesInSelect(cte.Select, scope.with(declared...), fn)
			if !sel.With.Recursive {
				declared = append(declared, cte.Name)
			}
		}
		scope = scope.with(declared...)
	}
	for body := sel.Body; body != nil; body = body.Right {
		rewriteTablesInCore(body.Left, scope, fn)
	}
}

func rewriteTablesInCore(sc *SelectCore, scope *Scope, fn TableRefFunc) {
	if sc == nil {
		return
	}
	for _, col := range sc.Columns {
		rewriteTablesInExpr(col.Expr, scope, fn)
	}
	if sc.From != nil {
		sc.From.Source = rewriteTableRef(sc.From.Source, scope, fn)
		for _, join := range sc.From.Joins {
			join.Right = rewriteTableRef(join.Right, scope, fn)
			rewriteTablesInExpr(join.Condition, scope, fn)
		}
	}
	rewriteTablesInExpr(sc.Where, scope, fn)
	for _, g := range sc.GroupBy {
		rewriteTablesInExpr(g, scope, fn)
	}
	rewriteTablesInExpr(sc.Having, scope, fn)
	rewriteTablesInExpr(sc.Qualify, scope, fn)
	for _, o := range sc.OrderBy {
		rewriteTablesInExpr(o.Expr, scope, fn)
	}
}

func rewriteTableRef(ref TableRef, scope *Scope, fn TableRefFunc) TableRef {
	if dt, ok := ref.(*DerivedTable); ok {
		rewriteTablesInSelect(dt.Select, scope, fn)
	}
	if ft, ok := ref.(*FuncTable); ok && ft.Func != nil {
		for _, arg := range ft.Func.Args {
			rewriteTablesInExpr(arg, scope, fn)
		}
	}
	return fn(ref, scope)
}

func rewriteTablesInExpr(e Expr, scope *Scope, fn TableRefFunc) {
	WalkExpr(e, func(x Expr) bool {
		switch n := x.(type) {
		case *SubqueryExpr:
			rewriteTablesInSelect(n.Select, scope, fn)
		case *ExistsExpr:
			rewriteTablesInSelect(n.Select, scope, fn)
		case *InExpr:
			rewriteTablesInSelect(n.Query, scope, fn)
		}
		return true
	})
}

// === Table Name Collection ===

// CollectTableNames returns the deduplicated, qualified names of physical
// tables read by the statement, in order of first appearance. References to
// CTEs declared in the statement are skipped.
func CollectTableNames(stmt Stmt) []string {
	sel, ok := stmt.(*SelectStmt)
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var tables []string
	rewriteTablesInSelect(sel, nil, func(ref TableRef, scope *Scope) TableRef {
		tn, ok := ref.(*TableName)
		if !ok {
			return ref
		}
		if tn.Catalog == "" && tn.Schema == "" && scope.Has(tn.Name) {
			return ref
		}
		addTable(tn.QualifiedName(), seen, &tables)
		return ref
	})
	return tables
}

func addTable(name string, seen map[string]bool, tables *[]string) {
	if name == "" || seen[name] {
		return
	}
	seen[name] = true
	*tables = append(*tables, name)
}
