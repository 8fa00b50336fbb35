package duckdbsql

import (
	"fmt"
	"strings"
)

// Primary expression parsing: literals, column refs, function calls, CASE,
// CAST, EXTRACT, INTERVAL and EXISTS.

// typedLiteralTypes are type names that may prefix a string literal, as in
// DATE '1995-01-01'.
var typedLiteralTypes = map[string]bool{
	"DATE":        true,
	"TIME":        true,
	"TIMESTAMP":   true,
	"TIMESTAMPTZ": true,
}

// parsePrimary parses a primary expression.
func (p *Parser) parsePrimary() Expr {
	switch p.token.Type {
	case TOKEN_NUMBER:
		lit := &Literal{Type: LiteralNumber, Value: p.token.Literal}
		p.nextToken()
		return lit

	case TOKEN_STRING:
		lit := &Literal{Type: LiteralString, Value: p.token.Literal}
		p.nextToken()
		return lit

	case TOKEN_TRUE:
		p.nextToken()
		return &Literal{Type: LiteralBool, Value: "true"}

	case TOKEN_FALSE:
		p.nextToken()
		return &Literal{Type: LiteralBool, Value: "false"}

	case TOKEN_NULL:
		p.nextToken()
		return &Literal{Type: LiteralNull, Value: "NULL"}

	case TOKEN_CASE:
		return p.parseCaseExpr()

	case TOKEN_CAST, TOKEN_TRY_CAST:
		return p.parseCastExpr()

	case TOKEN_EXTRACT:
		return p.parseExtractExpr()

	case TOKEN_EXISTS:
		return p.parseExistsExpr(false)

	case TOKEN_INTERVAL:
		return p.parseIntervalExpr()

	case TOKEN_IDENT:
		return p.parseIdentifierExpr()

	case TOKEN_LPAREN:
		return p.parseParenExpr()

	case TOKEN_STAR:
		p.nextToken()
		return &StarExpr{}

	default:
		// Keywords such as LEFT, RIGHT, FIRST or LAST double as function names.
		if isKeywordToken(p.token) && p.checkPeek(TOKEN_LPAREN) {
			return p.parseIdentifierExpr()
		}
		p.addError(fmt.Sprintf("unexpected token in expression: %s (%q)", p.token.Type, p.token.Literal))
		p.nextToken()
		return nil
	}
}

// parseIdentifierExpr parses an identifier (column ref, typed literal or function call).
func (p *Parser) parseIdentifierExpr() Expr {
	tok := p.token
	name := tok.Literal
	p.nextToken()

	// Function call: name(...)
	if p.check(TOKEN_LPAREN) {
		return p.parseFuncCall(name, "")
	}

	// Typed literal: DATE '2020-01-01'
	if !tok.Quoted && p.check(TOKEN_STRING) && typedLiteralTypes[strings.ToUpper(name)] {
		lit := &Literal{Type: LiteralString, Value: p.token.Literal}
		p.nextToken()
		return &CastExpr{Expr: lit, TypeName: strings.ToUpper(name)}
	}

	// Qualified name: a.b.c or a.*
	if p.check(TOKEN_DOT) {
		return p.parseQualifiedRef(name)
	}

	return &ColumnRef{Parts: []string{name}}
}

// parseQualifiedRef parses a dotted name of any depth (orders.customer.name),
// a qualified star (t.*) or a schema-qualified function call.
func (p *Parser) parseQualifiedRef(firstPart string) Expr {
	parts := []string{firstPart}

	for p.match(TOKEN_DOT) {
		if p.check(TOKEN_STAR) {
			p.nextToken()
			return &StarExpr{Table: strings.Join(parts, ".")}
		}
		part, ok := p.parseName(true)
		if !ok {
			return nil
		}
		parts = append(parts, part)
	}

	// Check for function call on qualified name: schema.func(...)
	if p.check(TOKEN_LPAREN) && len(parts) == 2 {
		return p.parseFuncCall(parts[1], parts[0])
	}

	return &ColumnRef{Parts: parts}
}

// parseFuncCall parses a function call: name([DISTINCT] args [ORDER BY ...]) [FILTER ...] [OVER ...]
func (p *Parser) parseFuncCall(name string, schema string) Expr {
	fn := &FuncCall{Name: name, Schema: schema}

	p.expect(TOKEN_LPAREN)

	// COUNT(*)
	if p.check(TOKEN_STAR) {
		fn.Star = true
		p.nextToken()
	} else if !p.check(TOKEN_RPAREN) {
		if p.match(TOKEN_DISTINCT) {
			fn.Distinct = true
		} else {
			p.match(TOKEN_ALL)
		}

		fn.Args = p.parseExpressionList()

		// ORDER BY within aggregate (e.g., array_agg(x ORDER BY y))
		if p.check(TOKEN_ORDER) {
			p.nextToken() // consume ORDER
			p.expect(TOKEN_BY)
			fn.OrderBy = p.parseOrderByList()
		}
	}

	p.expect(TOKEN_RPAREN)

	// FILTER clause
	if p.match(TOKEN_FILTER) {
		p.expect(TOKEN_LPAREN)
		p.expect(TOKEN_WHERE)
		fn.Filter = p.parseExpression()
		p.expect(TOKEN_RPAREN)
	}

	// OVER clause (window function)
	if p.match(TOKEN_OVER) {
		fn.Window = p.parseWindowSpec()
	}

	return fn
}

// parseWindowSpec parses a window specification.
func (p *Parser) parseWindowSpec() *WindowSpec {
	spec := &WindowSpec{}

	p.expect(TOKEN_LPAREN)

	if p.match(TOKEN_PARTITION) {
		p.expect(TOKEN_BY)
		spec.PartitionBy = p.parseExpressionList()
	}

	if p.check(TOKEN_ORDER) {
		p.nextToken()
		p.expect(TOKEN_BY)
		spec.OrderBy = p.parseOrderByList()
	}

	if p.check(TOKEN_ROWS) || p.check(TOKEN_RANGE) {
		spec.Frame = p.parseFrameSpec()
	}

	p.expect(TOKEN_RPAREN)
	return spec
}

// parseFrameSpec parses a window frame specification.
func (p *Parser) parseFrameSpec() *FrameSpec {
	frame := &FrameSpec{}

	if p.match(TOKEN_ROWS) {
		frame.Type = FrameRows
	} else if p.match(TOKEN_RANGE) {
		frame.Type = FrameRange
	}

	if p.match(TOKEN_BETWEEN) {
		frame.Start = p.parseFrameBound()
		p.expect(TOKEN_AND)
		frame.End = p.parseFrameBound()
	} else {
		frame.Start = p.parseFrameBound()
	}

	return frame
}

// parseFrameBound parses a frame bound.
func (p *Parser) parseFrameBound() *FrameBound {
	bound := &FrameBound{}

	switch {
	case p.match(TOKEN_UNBOUNDED):
		if p.match(TOKEN_PRECEDING) {
			bound.Type = FrameUnboundedPreceding
		} else if p.expect(TOKEN_FOLLOWING) {
			bound.Type = FrameUnboundedFollowing
		}
	case p.match(TOKEN_CURRENT):
		p.expect(TOKEN_ROW)
		bound.Type = FrameCurrentRow
	default:
		bound.Offset = p.parseExpressionWithPrecedence(PrecedenceAddition)
		if p.match(TOKEN_PRECEDING) {
			bound.Type = FrameExprPreceding
		} else if p.expect(TOKEN_FOLLOWING) {
			bound.Type = FrameExprFollowing
		}
	}

	return bound
}

// parseCaseExpr parses a CASE expression.
func (p *Parser) parseCaseExpr() Expr {
	p.expect(TOKEN_CASE)
	caseExpr := &CaseExpr{}

	if !p.check(TOKEN_WHEN) {
		caseExpr.Operand = p.parseExpression()
	}

	for !p.failed() && p.match(TOKEN_WHEN) {
		when := WhenClause{}
		when.Condition = p.parseExpression()
		p.expect(TOKEN_THEN)
		when.Result = p.parseExpression()
		caseExpr.Whens = append(caseExpr.Whens, when)
	}
	if len(caseExpr.Whens) == 0 {
		p.addError("CASE requires at least one WHEN clause")
	}

	if p.match(TOKEN_ELSE) {
		caseExpr.Else = p.parseExpression()
	}

	p.expect(TOKEN_END)
	return caseExpr
}

// parseCastExpr parses CAST(expr AS type) and TRY_CAST(expr AS type).
func (p *Parser) parseCastExpr() Expr {
	cast := &CastExpr{TryCast: p.check(TOKEN_TRY_CAST)}
	p.nextToken() // consume CAST / TRY_CAST
	p.expect(TOKEN_LPAREN)

	cast.Expr = p.parseExpression()
	p.expect(TOKEN_AS)
	cast.TypeName = p.parseTypeName()

	p.expect(TOKEN_RPAREN)
	return cast
}

// parseExtractExpr parses EXTRACT(field FROM expr).
func (p *Parser) parseExtractExpr() Expr {
	p.nextToken() // consume EXTRACT
	p.expect(TOKEN_LPAREN)

	var field string
	if p.check(TOKEN_IDENT) || p.check(TOKEN_STRING) {
		field = strings.ToUpper(p.token.Literal)
		p.nextToken()
	} else {
		p.addError("expected date part in EXTRACT")
		return nil
	}

	p.expect(TOKEN_FROM)
	expr := p.parseExpression()
	p.expect(TOKEN_RPAREN)

	return &ExtractExpr{Field: field, Expr: expr}
}

// parseTypeName parses a type name with optional parameters.
func (p *Parser) parseTypeName() string {
	var typeName string
	if p.check(TOKEN_IDENT) {
		typeName = strings.ToUpper(p.token.Literal)
		p.nextToken()
	} else {
		p.addError("expected type name")
		return ""
	}

	// Compound type names like DOUBLE PRECISION
	for p.check(TOKEN_IDENT) {
		upper := strings.ToUpper(p.token.Literal)
		if upper != "PRECISION" && upper != "VARYING" {
			break
		}
		typeName += " " + upper
		p.nextToken()
	}

	// Type parameters like VARCHAR(255) or DECIMAL(10, 2)
	if p.match(TOKEN_LPAREN) {
		var params []string
		for !p.failed() && !p.check(TOKEN_RPAREN) {
			if !p.check(TOKEN_NUMBER) {
				p.addError("expected numeric type parameter")
				return typeName
			}
			params = append(params, p.token.Literal)
			p.nextToken()
			if !p.match(TOKEN_COMMA) {
				break
			}
		}
		p.expect(TOKEN_RPAREN)
		typeName += "(" + strings.Join(params, ", ") + ")"
	}

	return typeName
}

// parseExistsExpr parses [NOT] EXISTS (subquery).
func (p *Parser) parseExistsExpr(not bool) Expr {
	p.nextToken() // consume EXISTS
	p.expect(TOKEN_LPAREN)
	exists := &ExistsExpr{Not: not, Select: p.parseSelectStatement()}
	p.expect(TOKEN_RPAREN)
	return exists
}

// parseParenExpr parses a parenthesized expression or subquery.
func (p *Parser) parseParenExpr() Expr {
	p.expect(TOKEN_LPAREN)

	if p.check(TOKEN_SELECT) || p.check(TOKEN_WITH) {
		subquery := &SubqueryExpr{Select: p.parseSelectStatement()}
		p.expect(TOKEN_RPAREN)
		return subquery
	}

	expr := p.parseExpression()
	p.expect(TOKEN_RPAREN)
	return &ParenExpr{Expr: expr}
}

// parseOrderByList parses a list of ORDER BY items.
func (p *Parser) parseOrderByList() []OrderByItem {
	var items []OrderByItem
	for !p.failed() {
		items = append(items, p.parseOrderByItem())
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	return items
}

// parseOrderByItem parses a single ORDER BY item.
func (p *Parser) parseOrderByItem() OrderByItem {
	item := OrderByItem{}
	item.Expr = p.parseExpression()

	if p.match(TOKEN_ASC) {
		item.Desc = false
	} else if p.match(TOKEN_DESC) {
		item.Desc = true
	}

	if p.match(TOKEN_NULLS) {
		if p.match(TOKEN_FIRST) {
			b := true
			item.NullsFirst = &b
		} else if p.expect(TOKEN_LAST) {
			b := false
			item.NullsFirst = &b
		}
	}

	return item
}

// parseIntervalExpr parses INTERVAL 'value' [unit] or INTERVAL n unit.
func (p *Parser) parseIntervalExpr() Expr {
	p.nextToken() // consume INTERVAL

	iv := &IntervalExpr{}
	iv.Value = p.parsePrimary()

	if p.check(TOKEN_IDENT) {
		upper := strings.ToUpper(p.token.Literal)
		switch upper {
		case "YEAR", "YEARS", "MONTH", "MONTHS", "DAY", "DAYS",
			"HOUR", "HOURS", "MINUTE", "MINUTES", "SECOND", "SECONDS",
			"WEEK", "WEEKS", "QUARTER", "QUARTERS", "MILLISECOND", "MILLISECONDS",
			"MICROSECOND", "MICROSECONDS":
			iv.Unit = upper
			p.nextToken()
		}
	}

	return iv
}
