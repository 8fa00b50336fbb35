package duckdbsql

import (
	"fmt"
	"strings"
)

// Parser parses DuckDB SQL into an AST.
type Parser struct {
	lexer  *Lexer
	token  Token // current token
	peek   Token // lookahead token
	peek2  Token // second lookahead token
	errors []error
}

// NewParser creates a new parser for the given SQL input.
func NewParser(sql string) *Parser {
	p := &Parser{lexer: NewLexer(sql)}
	// Initialize three-token lookahead
	p.nextToken()
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses the SQL and returns the top-level statement.
// Only SELECT queries (optionally with a WITH clause) are accepted.
// Returns an error if parsing fails or if multi-statement input is detected.
func Parse(sql string) (Stmt, error) {
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return nil, fmt.Errorf("empty SQL")
	}

	p := NewParser(sql)
	stmt := p.parseTopLevel()
	if len(p.errors) > 0 {
		return nil, p.errors[0]
	}
	p.match(TOKEN_SEMICOLON)

	// Multi-statement rejection: after parsing one statement,
	// ensure we're at EOF.
	if p.token.Type != TOKEN_EOF {
		return nil, fmt.Errorf("multi-statement queries are not allowed")
	}

	return stmt, nil
}

// ParseSelect parses sql and returns it as a *SelectStmt.
func ParseSelect(sql string) (*SelectStmt, error) {
	stmt, err := Parse(sql)
	if err != nil {
		return nil, err
	}
	sel, ok := stmt.(*SelectStmt)
	if !ok {
		return nil, fmt.Errorf("expected SELECT statement, got %T", stmt)
	}
	return sel, nil
}

// ParseExpr parses a standalone expression from SQL text.
// Used for calculated fields, metric columns and relationship conditions.
func ParseExpr(sql string) (Expr, error) {
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return nil, fmt.Errorf("empty expression")
	}

	p := NewParser(sql)
	expr := p.parseExpression()
	if len(p.errors) > 0 {
		return nil, p.errors[0]
	}

	// Ensure we consumed all tokens
	if p.token.Type != TOKEN_EOF {
		return nil, fmt.Errorf("unexpected token after expression: %s", p.token.Literal)
	}

	return expr, nil
}

// parseTopLevel dispatches to the appropriate statement parser based on the first token.
func (p *Parser) parseTopLevel() Stmt {
	switch p.token.Type {
	case TOKEN_SELECT, TOKEN_WITH:
		return p.parseSelectStatement()
	default:
		p.addError(fmt.Sprintf("unsupported statement: only SELECT queries are accepted, got %s", p.token.Type))
		return nil
	}
}

// === Token Helpers ===

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.token = p.peek
	p.peek = p.peek2
	p.peek2 = p.lexer.NextToken()
}

// check returns true if the current token is of the given type.
func (p *Parser) check(t TokenType) bool {
	return p.token.Type == t
}

// checkPeek returns true if the peek token is of the given type.
func (p *Parser) checkPeek(t TokenType) bool {
	return p.peek.Type == t
}

// match consumes the current token if it matches and returns true.
func (p *Parser) match(t TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	return false
}

// expect consumes the current token if it matches, otherwise adds an error.
func (p *Parser) expect(t TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf("unexpected token %s, expected %s", p.token.Type, t))
	return false
}

// addError adds a parse error.
func (p *Parser) addError(msg string) {
	p.errors = append(p.errors, fmt.Errorf("parse error: %s", msg))
}

// failed reports whether any error has been recorded. Loops use it to stop
// early instead of spinning on a token they cannot consume.
func (p *Parser) failed() bool {
	return len(p.errors) > 0
}

// === Keyword Classification ===

// isKeywordToken returns true if the token is any SQL keyword.
func isKeywordToken(tok Token) bool {
	return tok.Type >= TOKEN_ALL
}

// isClauseKeyword returns true if token starts a new clause or join,
// so it can never be taken as an implicit alias.
func (p *Parser) isClauseKeyword(tok Token) bool {
	switch tok.Type {
	case TOKEN_FROM, TOKEN_UNION, TOKEN_INTERSECT, TOKEN_EXCEPT,
		TOKEN_LEFT, TOKEN_RIGHT, TOKEN_INNER, TOKEN_OUTER, TOKEN_FULL,
		TOKEN_CROSS, TOKEN_NATURAL, TOKEN_JOIN, TOKEN_ON, TOKEN_USING,
		TOKEN_WHERE, TOKEN_GROUP, TOKEN_HAVING, TOKEN_ORDER, TOKEN_LIMIT,
		TOKEN_OFFSET, TOKEN_QUALIFY, TOKEN_SELECT:
		return true
	}
	return false
}

// parseName consumes an identifier, accepting keywords when allowKeyword is
// set (column names after a dot, aliases after AS).
func (p *Parser) parseName(allowKeyword bool) (string, bool) {
	if p.check(TOKEN_IDENT) || (allowKeyword && isKeywordToken(p.token)) {
		name := p.token.Literal
		p.nextToken()
		return name, true
	}
	p.addError(fmt.Sprintf("expected identifier, got %s (%q)", p.token.Type, p.token.Literal))
	return "", false
}

// parseOptionalAlias parses [AS] alias. Without AS only plain identifiers
// qualify.
func (p *Parser) parseOptionalAlias() string {
	if p.match(TOKEN_AS) {
		if p.check(TOKEN_STRING) {
			alias := p.token.Literal
			p.nextToken()
			return alias
		}
		alias, _ := p.parseName(true)
		return alias
	}
	if p.check(TOKEN_IDENT) && !p.isClauseKeyword(p.token) {
		alias := p.token.Literal
		p.nextToken()
		return alias
	}
	return ""
}
