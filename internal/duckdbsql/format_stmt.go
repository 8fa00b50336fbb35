package duckdbsql

// formatStmt dispatches statement formatting by type.
func (f *formatter) formatStmt(stmt Stmt) {
	if s, ok := stmt.(*SelectStmt); ok {
		f.formatSelectStmt(s)
	}
}

// === SELECT ===

func (f *formatter) formatSelectStmt(stmt *SelectStmt) {
	if stmt == nil {
		return
	}
	if stmt.With != nil && len(stmt.With.CTEs) > 0 {
		f.formatWithClause(stmt.With)
	}
	if stmt.Body != nil {
		f.formatSelectBody(stmt.Body)
	}
}

func (f *formatter) formatWithClause(with *WithClause) {
	f.write("WITH ")
	if with.Recursive {
		f.write("RECURSIVE ")
	}
	f.commaSep(len(with.CTEs), func(i int) {
		cte := with.CTEs[i]
		f.writeIdent(cte.Name)
		f.write(" AS (")
		f.formatSelectStmt(cte.Select)
		f.write(")")
	})
	f.space()
}

func (f *formatter) formatSelectBody(body *SelectBody) {
	if body == nil {
		return
	}
	f.formatSelectCore(body.Left)

	if body.Op != SetOpNone {
		f.space()
		f.write(string(body.Op))
		if body.All {
			f.write(" ALL")
		}
		f.space()
		f.formatSelectBody(body.Right)
	}
}

func (f *formatter) formatSelectCore(sc *SelectCore) {
	if sc == nil {
		return
	}

	f.write("SELECT ")
	if sc.Distinct {
		f.write("DISTINCT ")
	}

	f.commaSep(len(sc.Columns), func(i int) {
		f.formatSelectItem(sc.Columns[i])
	})

	if sc.From != nil {
		f.write(" FROM ")
		f.formatFromClause(sc.From)
	}

	if sc.Where != nil {
		f.write(" WHERE ")
		f.formatExpr(sc.Where)
	}

	if sc.GroupByAll {
		f.write(" GROUP BY ALL")
	} else if len(sc.GroupBy) > 0 {
		f.write(" GROUP BY ")
		f.commaSep(len(sc.GroupBy), func(i int) {
			f.formatExpr(sc.GroupBy[i])
		})
	}

	if sc.Having != nil {
		f.write(" HAVING ")
		f.formatExpr(sc.Having)
	}

	if sc.Qualify != nil {
		f.write(" QUALIFY ")
		f.formatExpr(sc.Qualify)
	}

	if len(sc.OrderBy) > 0 {
		f.write(" ORDER BY ")
		f.commaSep(len(sc.OrderBy), func(i int) {
			f.formatOrderByItem(sc.OrderBy[i])
		})
	}

	if sc.Limit != nil {
		f.write(" LIMIT ")
		f.formatExpr(sc.Limit)
	}

	if sc.Offset != nil {
		f.write(" OFFSET ")
		f.formatExpr(sc.Offset)
	}
}

func (f *formatter) formatSelectItem(item SelectItem) {
	if item.Star {
		f.write("*")
		return
	}
	if item.TableStar != "" {
		f.writeDotted(item.TableStar)
		f.write(".*")
		return
	}
	f.formatExpr(item.Expr)
	if item.Alias != "" {
		f.write(" AS ")
		f.writeIdent(item.Alias)
	}
}

func (f *formatter) formatFromClause(from *FromClause) {
	if from == nil {
		return
	}
	f.formatTableRef(from.Source)
	for _, join := range from.Joins {
		f.formatJoin(join)
	}
}

func (f *formatter) formatTableRef(ref TableRef) {
	switch t := ref.(type) {
	case *TableName:
		if t.Catalog != "" {
			f.writeIdent(t.Catalog)
			f.write(".")
		}
		if t.Schema != "" {
			f.writeIdent(t.Schema)
			f.write(".")
		}
		f.writeIdent(t.Name)
		f.formatAlias(t.Alias)
	case *DerivedTable:
		f.write("(")
		f.formatSelectStmt(t.Select)
		f.write(")")
		f.formatAlias(t.Alias)
	case *FuncTable:
		f.formatFuncCall(t.Func)
		f.formatAlias(t.Alias)
	}
}

func (f *formatter) formatAlias(alias string) {
	if alias != "" {
		f.write(" AS ")
		f.writeIdent(alias)
	}
}

func (f *formatter) formatJoin(join *Join) {
	if join.Type == JoinComma {
		f.write(", ")
		f.formatTableRef(join.Right)
		return
	}

	f.space()
	if join.Natural {
		f.write("NATURAL ")
	}
	f.write(string(join.Type))
	f.write(" JOIN ")
	f.formatTableRef(join.Right)

	if join.Condition != nil {
		f.write(" ON ")
		f.formatExpr(join.Condition)
	} else if len(join.Using) > 0 {
		f.write(" USING (")
		f.commaSep(len(join.Using), func(i int) {
			f.writeIdent(join.Using[i])
		})
		f.write(")")
	}
}
