package duckdbsql

import "strings"

// formatExpr dispatches expression formatting by type.
func (f *formatter) formatExpr(e Expr) {
	if e == nil {
		return
	}

	switch expr := e.(type) {
	case *Literal:
		f.formatLiteral(expr)
	case *ColumnRef:
		f.formatColumnRef(expr)
	case *BinaryExpr:
		f.formatBinaryExpr(expr)
	case *UnaryExpr:
		f.formatUnaryExpr(expr)
	case *ParenExpr:
		f.formatParenExpr(expr)
	case *FuncCall:
		f.formatFuncCall(expr)
	case *CaseExpr:
		f.formatCaseExpr(expr)
	case *CastExpr:
		f.formatCastExpr(expr)
	case *TypeCastExpr:
		f.formatTypeCastExpr(expr)
	case *InExpr:
		f.formatInExpr(expr)
	case *BetweenExpr:
		f.formatBetweenExpr(expr)
	case *IsNullExpr:
		f.formatIsNullExpr(expr)
	case *IsBoolExpr:
		f.formatIsBoolExpr(expr)
	case *LikeExpr:
		f.formatLikeExpr(expr)
	case *ExtractExpr:
		f.formatExtractExpr(expr)
	case *ExistsExpr:
		f.formatExistsExpr(expr)
	case *SubqueryExpr:
		f.write("(")
		f.formatSelectStmt(expr.Select)
		f.write(")")
	case *StarExpr:
		if expr.Table != "" {
			f.writeDotted(expr.Table)
			f.write(".")
		}
		f.write("*")
	case *IntervalExpr:
		f.formatIntervalExpr(expr)
	}
}

func (f *formatter) formatLiteral(lit *Literal) {
	switch lit.Type {
	case LiteralString:
		f.write("'")
		// Escape single quotes within the string value
		f.write(strings.ReplaceAll(lit.Value, "'", "''"))
		f.write("'")
	case LiteralBool:
		f.write(strings.ToUpper(lit.Value))
	case LiteralNull:
		f.write("NULL")
	default:
		f.write(lit.Value)
	}
}

func (f *formatter) formatColumnRef(col *ColumnRef) {
	for i, part := range col.Parts {
		if i > 0 {
			f.write(".")
		}
		f.writeIdent(part)
	}
}

func (f *formatter) formatBinaryExpr(expr *BinaryExpr) {
	if f.opts.ParenthesizeBinary {
		f.write("(")
	}
	f.formatExpr(expr.Left)
	f.space()
	f.write(operatorString(expr.Op))
	f.space()
	f.formatExpr(expr.Right)
	if f.opts.ParenthesizeBinary {
		f.write(")")
	}
}

// operatorString returns the SQL string for a token type used as an operator.
func operatorString(op TokenType) string {
	// Use SQL-standard <> for not-equal (DuckDB accepts both != and <>)
	if op == TOKEN_NE {
		return "<>"
	}
	if name, ok := tokenNames[op]; ok {
		return name
	}
	return "?"
}

func (f *formatter) formatUnaryExpr(expr *UnaryExpr) {
	switch expr.Op {
	case TOKEN_NOT:
		f.write("NOT ")
		f.formatExpr(expr.Expr)
	case TOKEN_MINUS, TOKEN_PLUS:
		f.write(operatorString(expr.Op))
		// "- -1" must not collapse into a line comment
		if inner, ok := expr.Expr.(*UnaryExpr); ok && inner.Op == TOKEN_MINUS {
			f.space()
		} else if lit, ok := expr.Expr.(*Literal); ok && strings.HasPrefix(lit.Value, "-") {
			f.space()
		}
		f.formatExpr(expr.Expr)
	default:
		f.write(operatorString(expr.Op))
		f.formatExpr(expr.Expr)
	}
}

func (f *formatter) formatParenExpr(paren *ParenExpr) {
	// ParenthesizeBinary already wraps the inner expression.
	if _, ok := paren.Expr.(*BinaryExpr); ok && f.opts.ParenthesizeBinary {
		f.formatExpr(paren.Expr)
		return
	}
	f.write("(")
	f.formatExpr(paren.Expr)
	f.write(")")
}

func (f *formatter) formatFuncCall(fn *FuncCall) {
	if fn.Schema != "" {
		f.writeIdent(fn.Schema)
		f.write(".")
	}
	// Function names are written unquoted in original case
	f.write(fn.Name)
	f.write("(")

	if fn.Distinct {
		f.write("DISTINCT ")
	}

	if fn.Star {
		f.write("*")
	} else {
		f.commaSep(len(fn.Args), func(i int) {
			f.formatExpr(fn.Args[i])
		})
	}

	if len(fn.OrderBy) > 0 {
		f.write(" ORDER BY ")
		f.commaSep(len(fn.OrderBy), func(i int) {
			f.formatOrderByItem(fn.OrderBy[i])
		})
	}

	f.write(")")

	if fn.Filter != nil {
		f.write(" FILTER (WHERE ")
		f.formatExpr(fn.Filter)
		f.write(")")
	}

	if fn.Window != nil {
		f.write(" OVER ")
		f.formatWindowSpec(fn.Window)
	}
}

func (f *formatter) formatWindowSpec(w *WindowSpec) {
	f.write("(")

	needSpace := false
	if len(w.PartitionBy) > 0 {
		f.write("PARTITION BY ")
		f.commaSep(len(w.PartitionBy), func(i int) {
			f.formatExpr(w.PartitionBy[i])
		})
		needSpace = true
	}

	if len(w.OrderBy) > 0 {
		if needSpace {
			f.space()
		}
		f.write("ORDER BY ")
		f.commaSep(len(w.OrderBy), func(i int) {
			f.formatOrderByItem(w.OrderBy[i])
		})
		needSpace = true
	}

	if w.Frame != nil {
		if needSpace {
			f.space()
		}
		f.formatFrameSpec(w.Frame)
	}

	f.write(")")
}

func (f *formatter) formatFrameSpec(fs *FrameSpec) {
	f.write(string(fs.Type))
	if fs.End != nil {
		f.write(" BETWEEN ")
		f.formatFrameBound(fs.Start)
		f.write(" AND ")
		f.formatFrameBound(fs.End)
	} else {
		f.space()
		f.formatFrameBound(fs.Start)
	}
}

func (f *formatter) formatFrameBound(b *FrameBound) {
	if b == nil {
		return
	}
	switch b.Type {
	case FrameExprPreceding:
		f.formatExpr(b.Offset)
		f.write(" PRECEDING")
	case FrameExprFollowing:
		f.formatExpr(b.Offset)
		f.write(" FOLLOWING")
	default:
		f.write(string(b.Type))
	}
}

func (f *formatter) formatCaseExpr(c *CaseExpr) {
	f.write("CASE")
	if c.Operand != nil {
		f.space()
		f.formatExpr(c.Operand)
	}
	for _, w := range c.Whens {
		f.write(" WHEN ")
		f.formatExpr(w.Condition)
		f.write(" THEN ")
		f.formatExpr(w.Result)
	}
	if c.Else != nil {
		f.write(" ELSE ")
		f.formatExpr(c.Else)
	}
	f.write(" END")
}

func (f *formatter) formatCastExpr(c *CastExpr) {
	if c.TryCast {
		f.write("TRY_CAST(")
	} else {
		f.write("CAST(")
	}
	f.formatExpr(c.Expr)
	f.write(" AS ")
	f.write(c.TypeName)
	f.write(")")
}

func (f *formatter) formatTypeCastExpr(c *TypeCastExpr) {
	f.formatExpr(c.Expr)
	f.write("::")
	f.write(c.TypeName)
}

func (f *formatter) formatInExpr(in *InExpr) {
	f.formatExpr(in.Expr)
	if in.Not {
		f.write(" NOT")
	}
	f.write(" IN (")
	if in.Query != nil {
		f.formatSelectStmt(in.Query)
	} else {
		f.commaSep(len(in.Values), func(i int) {
			f.formatExpr(in.Values[i])
		})
	}
	f.write(")")
}

func (f *formatter) formatBetweenExpr(b *BetweenExpr) {
	f.formatExpr(b.Expr)
	if b.Not {
		f.write(" NOT")
	}
	f.write(" BETWEEN ")
	f.formatExpr(b.Low)
	f.write(" AND ")
	f.formatExpr(b.High)
}

func (f *formatter) formatIsNullExpr(is *IsNullExpr) {
	f.formatExpr(is.Expr)
	if is.Not {
		f.write(" IS NOT NULL")
	} else {
		f.write(" IS NULL")
	}
}

func (f *formatter) formatIsBoolExpr(is *IsBoolExpr) {
	f.formatExpr(is.Expr)
	f.write(" IS ")
	if is.Not {
		f.write("NOT ")
	}
	if is.Value {
		f.write("TRUE")
	} else {
		f.write("FALSE")
	}
}

func (f *formatter) formatLikeExpr(like *LikeExpr) {
	f.formatExpr(like.Expr)
	if like.Not {
		f.write(" NOT")
	}
	if like.ILike {
		f.write(" ILIKE ")
	} else {
		f.write(" LIKE ")
	}
	f.formatExpr(like.Pattern)
}

func (f *formatter) formatExtractExpr(ext *ExtractExpr) {
	f.write("EXTRACT(")
	f.write(ext.Field)
	f.write(" FROM ")
	f.formatExpr(ext.Expr)
	f.write(")")
}

func (f *formatter) formatExistsExpr(ex *ExistsExpr) {
	if ex.Not {
		f.write("NOT ")
	}
	f.write("EXISTS (")
	f.formatSelectStmt(ex.Select)
	f.write(")")
}

func (f *formatter) formatIntervalExpr(iv *IntervalExpr) {
	f.write("INTERVAL ")
	f.formatExpr(iv.Value)
	if iv.Unit != "" {
		f.space()
		f.write(iv.Unit)
	}
}

func (f *formatter) formatOrderByItem(item OrderByItem) {
	f.formatExpr(item.Expr)
	if item.Desc {
		f.write(" DESC")
	}
	if item.NullsFirst != nil {
		if *item.NullsFirst {
			f.write(" NULLS FIRST")
		} else {
			f.write(" NULLS LAST")
		}
	}
}
