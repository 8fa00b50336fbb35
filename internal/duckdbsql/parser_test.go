package duckdbsql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// === Parse entry point tests ===

func TestParse_EmptySQL(t *testing.T) {
	_, err := Parse("")
	require.Error(t, err)
}

func TestParse_MultiStatement(t *testing.T) {
	_, err := Parse("SELECT 1; SELECT 2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multi-statement")
}

func TestParse_TrailingSemicolon(t *testing.T) {
	_, err := Parse("SELECT 1;")
	require.NoError(t, err)
}

func TestParse_InvalidSQL(t *testing.T) {
	_, err := Parse("SELEKT * FORM orders")
	require.Error(t, err)
}

func TestParse_NonSelectRejected(t *testing.T) {
	for _, sql := range []string{
		"INSERT INTO orders VALUES (1)",
		"DELETE FROM orders",
		"CREATE TABLE t (a INT)",
	} {
		_, err := Parse(sql)
		require.Error(t, err, sql)
		assert.Contains(t, err.Error(), "only SELECT")
	}
}

func TestParseSelect(t *testing.T) {
	sel, err := ParseSelect("WITH x AS (SELECT 1 AS a) SELECT a FROM x")
	require.NoError(t, err)
	require.NotNil(t, sel.With)
	require.Len(t, sel.With.CTEs, 1)
	assert.Equal(t, "x", sel.With.CTEs[0].Name)
}

// === ParseExpr tests ===

func TestParseExpr_Simple(t *testing.T) {
	expr, err := ParseExpr(`"custkey" = 1`)
	require.NoError(t, err)
	require.IsType(t, &BinaryExpr{}, expr)

	bin := expr.(*BinaryExpr)
	assert.Equal(t, TOKEN_EQ, bin.Op)
	assert.IsType(t, &ColumnRef{}, bin.Left)
	assert.IsType(t, &Literal{}, bin.Right)
}

func TestParseExpr_TrailingGarbage(t *testing.T) {
	_, err := ParseExpr("1 + 2 GARBAGE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected token")
}

func TestParseExpr_Empty(t *testing.T) {
	_, err := ParseExpr("")
	require.Error(t, err)
}

func TestParseExpr_Unbalanced(t *testing.T) {
	_, err := ParseExpr("sum(totalprice")
	require.Error(t, err)
}

func TestParseExpr_MissingOperand(t *testing.T) {
	_, err := ParseExpr("1 +")
	require.Error(t, err)
}

func TestParseExpr_DottedPath(t *testing.T) {
	expr, err := ParseExpr("orders.lineitem.orderkey_linenumber")
	require.NoError(t, err)
	ref, ok := expr.(*ColumnRef)
	require.True(t, ok)
	assert.Equal(t, []string{"orders", "lineitem", "orderkey_linenumber"}, ref.Parts)
	assert.Equal(t, "orderkey_linenumber", ref.Column())
	assert.Equal(t, "lineitem", ref.Table())
	assert.Equal(t, []string{"orders", "lineitem"}, ref.Qualifier())
	assert.Equal(t, "orders.lineitem.orderkey_linenumber", ref.String())
}

func TestParseExpr_KeywordAfterDot(t *testing.T) {
	expr, err := ParseExpr("t.first")
	require.NoError(t, err)
	assert.Equal(t, []string{"t", "first"}, expr.(*ColumnRef).Parts)
}

// === Expression parsing ===

func TestParse_BinaryOperators(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		op   TokenType
	}{
		{"eq", "1 = 2", TOKEN_EQ},
		{"ne", "1 != 2", TOKEN_NE},
		{"lt", "1 < 2", TOKEN_LT},
		{"gt", "1 > 2", TOKEN_GT},
		{"le", "1 <= 2", TOKEN_LE},
		{"ge", "1 >= 2", TOKEN_GE},
		{"add", "1 + 2", TOKEN_PLUS},
		{"sub", "1 - 2", TOKEN_MINUS},
		{"mul", "1 * 2", TOKEN_STAR},
		{"div", "1 / 2", TOKEN_SLASH},
		{"intdiv", "1 // 2", TOKEN_DSLASH},
		{"mod", "1 % 2", TOKEN_MOD},
		{"concat", "'a' || 'b'", TOKEN_DPIPE},
		{"and", "true AND false", TOKEN_AND},
		{"or", "true OR false", TOKEN_OR},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			expr, err := ParseExpr(tc.sql)
			require.NoError(t, err)
			bin, ok := expr.(*BinaryExpr)
			require.True(t, ok, "expected BinaryExpr, got %T", expr)
			assert.Equal(t, tc.op, bin.Op)
		})
	}
}

func TestParse_Precedence(t *testing.T) {
	expr, err := ParseExpr("a + b * c")
	require.NoError(t, err)
	bin := expr.(*BinaryExpr)
	assert.Equal(t, TOKEN_PLUS, bin.Op)
	assert.IsType(t, &BinaryExpr{}, bin.Right)

	expr, err = ParseExpr("a OR b AND c")
	require.NoError(t, err)
	bin = expr.(*BinaryExpr)
	assert.Equal(t, TOKEN_OR, bin.Op)

	expr, err = ParseExpr("NOT a = b")
	require.NoError(t, err)
	un := expr.(*UnaryExpr)
	assert.Equal(t, TOKEN_NOT, un.Op)
	assert.IsType(t, &BinaryExpr{}, un.Expr)
}

func TestParse_PostfixPredicates(t *testing.T) {
	tests := []struct {
		sql  string
		want Expr
	}{
		{"x IS NULL", &IsNullExpr{Expr: NewColumnRef("x")}},
		{"x IS NOT NULL", &IsNullExpr{Expr: NewColumnRef("x"), Not: true}},
		{"x IS TRUE", &IsBoolExpr{Expr: NewColumnRef("x"), Value: true}},
		{"x NOT LIKE 'a%'", &LikeExpr{Expr: NewColumnRef("x"), Not: true, Pattern: &Literal{Type: LiteralString, Value: "a%"}}},
		{"x ILIKE 'a%'", &LikeExpr{Expr: NewColumnRef("x"), ILike: true, Pattern: &Literal{Type: LiteralString, Value: "a%"}}},
		{"x IN (1, 2)", &InExpr{Expr: NewColumnRef("x"), Values: []Expr{
			&Literal{Type: LiteralNumber, Value: "1"}, &Literal{Type: LiteralNumber, Value: "2"},
		}}},
		{"x NOT BETWEEN 1 AND 2", &BetweenExpr{Expr: NewColumnRef("x"), Not: true,
			Low:  &Literal{Type: LiteralNumber, Value: "1"},
			High: &Literal{Type: LiteralNumber, Value: "2"},
		}},
		{"x::INTEGER", &TypeCastExpr{Expr: NewColumnRef("x"), TypeName: "INTEGER"}},
		{"DATE '1995-01-01'", &CastExpr{Expr: &Literal{Type: LiteralString, Value: "1995-01-01"}, TypeName: "DATE"}},
	}

	for _, tc := range tests {
		t.Run(tc.sql, func(t *testing.T) {
			expr, err := ParseExpr(tc.sql)
			require.NoError(t, err)
			assert.Equal(t, tc.want, expr)
		})
	}
}

func TestParse_FuncCall(t *testing.T) {
	expr, err := ParseExpr("count(DISTINCT orders.lineitem.orderkey_linenumber)")
	require.NoError(t, err)
	fn := expr.(*FuncCall)
	assert.Equal(t, "count", fn.Name)
	assert.True(t, fn.Distinct)
	require.Len(t, fn.Args, 1)
	assert.Equal(t, []string{"orders", "lineitem", "orderkey_linenumber"}, fn.Args[0].(*ColumnRef).Parts)

	expr, err = ParseExpr("count(*)")
	require.NoError(t, err)
	assert.True(t, expr.(*FuncCall).Star)

	expr, err = ParseExpr("left(name, 3)")
	require.NoError(t, err)
	assert.Equal(t, "left", expr.(*FuncCall).Name)

	expr, err = ParseExpr("main.my_func(1)")
	require.NoError(t, err)
	assert.Equal(t, "main", expr.(*FuncCall).Schema)
}

func TestParse_WindowAndFilter(t *testing.T) {
	expr, err := ParseExpr("sum(x) FILTER (WHERE y > 0) OVER (PARTITION BY a ORDER BY b DESC ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW)")
	require.NoError(t, err)
	fn := expr.(*FuncCall)
	require.NotNil(t, fn.Filter)
	require.NotNil(t, fn.Window)
	assert.Len(t, fn.Window.PartitionBy, 1)
	require.Len(t, fn.Window.OrderBy, 1)
	assert.True(t, fn.Window.OrderBy[0].Desc)
	require.NotNil(t, fn.Window.Frame)
	assert.Equal(t, FrameRows, fn.Window.Frame.Type)
	assert.Equal(t, FrameUnboundedPreceding, fn.Window.Frame.Start.Type)
	assert.Equal(t, FrameCurrentRow, fn.Window.Frame.End.Type)
}

func TestParse_CaseCastExtract(t *testing.T) {
	expr, err := ParseExpr("CASE WHEN a > 1 THEN 'x' ELSE 'y' END")
	require.NoError(t, err)
	c := expr.(*CaseExpr)
	assert.Nil(t, c.Operand)
	assert.Len(t, c.Whens, 1)
	assert.NotNil(t, c.Else)

	_, err = ParseExpr("CASE END")
	require.Error(t, err)

	expr, err = ParseExpr("TRY_CAST(x AS DECIMAL(10, 2))")
	require.NoError(t, err)
	assert.Equal(t, &CastExpr{Expr: NewColumnRef("x"), TypeName: "DECIMAL(10, 2)", TryCast: true}, expr)

	expr, err = ParseExpr("EXTRACT(year FROM orderdate)")
	require.NoError(t, err)
	assert.Equal(t, &ExtractExpr{Field: "YEAR", Expr: NewColumnRef("orderdate")}, expr)
}

func TestParse_Subqueries(t *testing.T) {
	expr, err := ParseExpr("EXISTS (SELECT 1 FROM orders)")
	require.NoError(t, err)
	assert.IsType(t, &ExistsExpr{}, expr)

	expr, err = ParseExpr("NOT EXISTS (SELECT 1)")
	require.NoError(t, err)
	assert.True(t, expr.(*ExistsExpr).Not)

	expr, err = ParseExpr("(SELECT max(x) FROM t)")
	require.NoError(t, err)
	assert.IsType(t, &SubqueryExpr{}, expr)

	expr, err = ParseExpr("x IN (SELECT y FROM t)")
	require.NoError(t, err)
	assert.NotNil(t, expr.(*InExpr).Query)
}

// === Statement parsing ===

func TestParse_SelectClauses(t *testing.T) {
	stmt, err := Parse(`SELECT DISTINCT a, b AS bee, t.* FROM main.orders AS o
		WHERE a > 1 GROUP BY a, b HAVING count(*) > 1 QUALIFY true
		ORDER BY a DESC NULLS LAST LIMIT 10 OFFSET 5`)
	require.NoError(t, err)
	sc := stmt.(*SelectStmt).Body.Left

	assert.True(t, sc.Distinct)
	require.Len(t, sc.Columns, 3)
	assert.Equal(t, "bee", sc.Columns[1].Alias)
	assert.Equal(t, "t", sc.Columns[2].TableStar)

	tn := sc.From.Source.(*TableName)
	assert.Equal(t, "main", tn.Schema)
	assert.Equal(t, "orders", tn.Name)
	assert.Equal(t, "o", tn.Alias)
	assert.Equal(t, "main.orders", tn.QualifiedName())

	assert.NotNil(t, sc.Where)
	assert.Len(t, sc.GroupBy, 2)
	assert.NotNil(t, sc.Having)
	assert.NotNil(t, sc.Qualify)
	require.Len(t, sc.OrderBy, 1)
	require.NotNil(t, sc.OrderBy[0].NullsFirst)
	assert.False(t, *sc.OrderBy[0].NullsFirst)
	assert.NotNil(t, sc.Limit)
	assert.NotNil(t, sc.Offset)
}

func TestParse_ImplicitAlias(t *testing.T) {
	stmt, err := Parse("SELECT totalprice tp FROM orders o")
	require.NoError(t, err)
	sc := stmt.(*SelectStmt).Body.Left
	assert.Equal(t, "tp", sc.Columns[0].Alias)
	assert.Equal(t, "o", sc.From.Source.(*TableName).Alias)
}

func TestParse_GroupByAll(t *testing.T) {
	stmt, err := Parse("SELECT a, count(*) FROM t GROUP BY ALL")
	require.NoError(t, err)
	assert.True(t, stmt.(*SelectStmt).Body.Left.GroupByAll)
}

func TestParse_Joins(t *testing.T) {
	stmt, err := Parse(`SELECT * FROM a
		LEFT JOIN b ON a.id = b.id
		INNER JOIN c USING (id)
		CROSS JOIN d
		FULL OUTER JOIN e ON true
		NATURAL JOIN f, g`)
	require.NoError(t, err)
	joins := stmt.(*SelectStmt).Body.Left.From.Joins
	require.Len(t, joins, 6)
	assert.Equal(t, JoinLeft, joins[0].Type)
	assert.NotNil(t, joins[0].Condition)
	assert.Equal(t, JoinInner, joins[1].Type)
	assert.Equal(t, []string{"id"}, joins[1].Using)
	assert.Equal(t, JoinCross, joins[2].Type)
	assert.Equal(t, JoinFull, joins[3].Type)
	assert.True(t, joins[4].Natural)
	assert.Equal(t, JoinComma, joins[5].Type)
}

func TestParse_JoinWithoutCondition(t *testing.T) {
	_, err := Parse("SELECT * FROM a JOIN b")
	require.Error(t, err)
}

func TestParse_DerivedAndFuncTables(t *testing.T) {
	stmt, err := Parse("SELECT * FROM (SELECT 1 AS x) sub, roll_up(Revenue, order_date, YEAR) AS r")
	require.NoError(t, err)
	from := stmt.(*SelectStmt).Body.Left.From
	dt := from.Source.(*DerivedTable)
	assert.Equal(t, "sub", dt.Alias)
	ft := from.Joins[0].Right.(*FuncTable)
	assert.Equal(t, "roll_up", ft.Func.Name)
	assert.Len(t, ft.Func.Args, 3)
	assert.Equal(t, "r", ft.Alias)
}

func TestParse_SetOperations(t *testing.T) {
	stmt, err := Parse("SELECT 1 UNION ALL SELECT 2 EXCEPT SELECT 3")
	require.NoError(t, err)
	body := stmt.(*SelectStmt).Body
	assert.Equal(t, SetOpUnion, body.Op)
	assert.True(t, body.All)
	require.NotNil(t, body.Right)
	assert.Equal(t, SetOpExcept, body.Right.Op)
}

func TestParse_RecursiveCTE(t *testing.T) {
	stmt, err := Parse("WITH RECURSIVE r AS (SELECT 1 AS n UNION ALL SELECT n + 1 FROM r WHERE n < 3) SELECT * FROM r")
	require.NoError(t, err)
	assert.True(t, stmt.(*SelectStmt).With.Recursive)
}
