package duckdbsql

// Statement parsing: SELECT with WITH clauses and set operations.

// parseSelectStatement parses a complete SELECT statement (WITH ... SELECT ...).
func (p *Parser) parseSelectStatement() *SelectStmt {
	stmt := &SelectStmt{}

	if p.check(TOKEN_WITH) {
		stmt.With = p.parseWithClause()
	}

	stmt.Body = p.parseSelectBody()
	return stmt
}

// parseWithClause parses a WITH clause with CTEs.
func (p *Parser) parseWithClause() *WithClause {
	p.expect(TOKEN_WITH)
	with := &WithClause{}

	if p.match(TOKEN_RECURSIVE) {
		with.Recursive = true
	}

	for !p.failed() {
		with.CTEs = append(with.CTEs, p.parseCTE())
		if !p.match(TOKEN_COMMA) {
			break
		}
	}

	return with
}

// parseCTE parses a single CTE.
func (p *Parser) parseCTE() *CTE {
	cte := &CTE{}

	if !p.check(TOKEN_IDENT) {
		p.addError("expected CTE name")
		return cte
	}
	cte.Name = p.token.Literal
	p.nextToken()

	p.expect(TOKEN_AS)
	p.expect(TOKEN_LPAREN)
	cte.Select = p.parseSelectStatement()
	p.expect(TOKEN_RPAREN)

	return cte
}

// parseSelectBody parses a SELECT body with possible set operations.
func (p *Parser) parseSelectBody() *SelectBody {
	body := &SelectBody{}
	body.Left = p.parseSelectCore()
	if p.failed() {
		return body
	}

	switch p.token.Type {
	case TOKEN_UNION:
		body.Op = SetOpUnion
	case TOKEN_INTERSECT:
		body.Op = SetOpIntersect
	case TOKEN_EXCEPT:
		body.Op = SetOpExcept
	default:
		return body
	}
	p.nextToken()
	if p.match(TOKEN_ALL) {
		body.All = true
	} else {
		p.match(TOKEN_DISTINCT)
	}

	body.Right = p.parseSelectBody()
	return body
}

// parseSelectCore parses a single SELECT clause with all optional clauses.
func (p *Parser) parseSelectCore() *SelectCore {
	sc := &SelectCore{}
	if !p.expect(TOKEN_SELECT) {
		return sc
	}

	if p.match(TOKEN_DISTINCT) {
		sc.Distinct = true
	} else {
		p.match(TOKEN_ALL)
	}

	sc.Columns = p.parseSelectList()

	if p.match(TOKEN_FROM) {
		sc.From = p.parseFromClause()
	}

	if p.match(TOKEN_WHERE) {
		sc.Where = p.parseExpression()
	}

	if p.check(TOKEN_GROUP) {
		p.nextToken()
		p.expect(TOKEN_BY)
		if p.match(TOKEN_ALL) {
			sc.GroupByAll = true
		} else {
			sc.GroupBy = p.parseExpressionList()
		}
	}

	if p.match(TOKEN_HAVING) {
		sc.Having = p.parseExpression()
	}

	if p.match(TOKEN_QUALIFY) {
		sc.Qualify = p.parseExpression()
	}

	if p.check(TOKEN_ORDER) {
		p.nextToken()
		p.expect(TOKEN_BY)
		sc.OrderBy = p.parseOrderByList()
	}

	if p.match(TOKEN_LIMIT) {
		sc.Limit = p.parseExpression()
	}

	if p.match(TOKEN_OFFSET) {
		sc.Offset = p.parseExpression()
	}

	return sc
}

// parseSelectList parses the list of SELECT items.
func (p *Parser) parseSelectList() []SelectItem {
	var items []SelectItem
	for !p.failed() {
		items = append(items, p.parseSelectItem())
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	return items
}

// parseSelectItem parses a single SELECT item.
func (p *Parser) parseSelectItem() SelectItem {
	item := SelectItem{}

	// SELECT *
	if p.check(TOKEN_STAR) {
		item.Star = true
		p.nextToken()
		return item
	}

	expr := p.parseExpression()
	if star, ok := expr.(*StarExpr); ok && star.Table != "" {
		item.TableStar = star.Table
		return item
	}
	if expr == nil && !p.failed() {
		p.addError("expected expression in SELECT list")
	}
	item.Expr = expr
	item.Alias = p.parseOptionalAlias()

	return item
}
