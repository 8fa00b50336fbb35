package duckdbsql

import (
	"fmt"
)

// FROM clause parsing: table references, derived tables, function tables
// and JOINs.

// parseFromClause parses the FROM clause.
func (p *Parser) parseFromClause() *FromClause {
	from := &FromClause{}
	from.Source = p.parseTableRef()

	for !p.failed() {
		join := p.parseJoin()
		if join == nil {
			break
		}
		from.Joins = append(from.Joins, join)
	}

	return from
}

// parseTableRef parses a table reference in FROM.
func (p *Parser) parseTableRef() TableRef {
	if p.check(TOKEN_LPAREN) {
		return p.parseDerivedTable()
	}
	return p.parseTableNameOrFunc()
}

// parseTableNameOrFunc parses a table name or table-valued function.
func (p *Parser) parseTableNameOrFunc() TableRef {
	if !p.check(TOKEN_IDENT) && !(isKeywordToken(p.token) && p.checkPeek(TOKEN_LPAREN)) {
		p.addError(fmt.Sprintf("expected table name, got %s", p.token.Type))
		return &TableName{}
	}

	// Parse potentially qualified name: catalog.schema.table or schema.func(...)
	parts := []string{p.token.Literal}
	p.nextToken()

	for p.match(TOKEN_DOT) {
		part, ok := p.parseName(true)
		if !ok {
			return &TableName{}
		}
		parts = append(parts, part)
	}

	// Table-valued function
	if p.check(TOKEN_LPAREN) {
		schema := ""
		if len(parts) > 1 {
			schema = parts[len(parts)-2]
		}
		fn, _ := p.parseFuncCall(parts[len(parts)-1], schema).(*FuncCall)
		return &FuncTable{Func: fn, Alias: p.parseOptionalAlias()}
	}

	if len(parts) > 3 {
		p.addError(fmt.Sprintf("table name has too many parts: %d", len(parts)))
		return &TableName{}
	}

	tn := &TableName{Name: parts[len(parts)-1]}
	switch len(parts) {
	case 2:
		tn.Schema = parts[0]
	case 3:
		tn.Catalog = parts[0]
		tn.Schema = parts[1]
	}
	tn.Alias = p.parseOptionalAlias()
	return tn
}

// parseDerivedTable parses (SELECT ...) [AS] alias.
func (p *Parser) parseDerivedTable() *DerivedTable {
	p.expect(TOKEN_LPAREN)
	if !p.check(TOKEN_SELECT) && !p.check(TOKEN_WITH) {
		p.addError("expected subquery in FROM")
		return &DerivedTable{}
	}
	dt := &DerivedTable{Select: p.parseSelectStatement()}
	p.expect(TOKEN_RPAREN)
	dt.Alias = p.parseOptionalAlias()
	return dt
}

// parseJoin parses a single JOIN, or returns nil when no join follows.
func (p *Parser) parseJoin() *Join {
	join := &Join{}

	// Comma join
	if p.match(TOKEN_COMMA) {
		join.Type = JoinComma
		join.Right = p.parseTableRef()
		return join
	}

	if p.match(TOKEN_NATURAL) {
		join.Natural = true
	}

	gotJoinType := true
	switch p.token.Type {
	case TOKEN_INNER:
		join.Type = JoinInner
		p.nextToken()
	case TOKEN_LEFT:
		join.Type = JoinLeft
		p.nextToken()
		p.match(TOKEN_OUTER)
	case TOKEN_RIGHT:
		join.Type = JoinRight
		p.nextToken()
		p.match(TOKEN_OUTER)
	case TOKEN_FULL:
		join.Type = JoinFull
		p.nextToken()
		p.match(TOKEN_OUTER)
	case TOKEN_CROSS:
		join.Type = JoinCross
		p.nextToken()
	case TOKEN_JOIN:
		join.Type = JoinInner
	default:
		gotJoinType = false
	}

	if !gotJoinType {
		if join.Natural {
			join.Type = JoinInner
		} else {
			return nil
		}
	}

	if !p.expect(TOKEN_JOIN) {
		return nil
	}

	join.Right = p.parseTableRef()
	p.parseJoinCondition(join)
	return join
}

// parseJoinCondition handles ON/USING.
func (p *Parser) parseJoinCondition(join *Join) {
	switch {
	case join.Natural, join.Type == JoinCross:
		// no condition
	case p.match(TOKEN_ON):
		join.Condition = p.parseExpression()
	case p.match(TOKEN_USING):
		join.Using = p.parseUsingColumns()
	default:
		p.addError(fmt.Sprintf("%s JOIN requires ON or USING", join.Type))
	}
}

// parseUsingColumns parses USING (col1, col2, ...).
func (p *Parser) parseUsingColumns() []string {
	p.expect(TOKEN_LPAREN)
	var cols []string
	for !p.failed() {
		col, ok := p.parseName(false)
		if !ok {
			break
		}
		cols = append(cols, col)
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	p.expect(TOKEN_RPAREN)
	return cols
}
