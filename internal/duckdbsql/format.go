package duckdbsql

import (
	"regexp"
	"strings"
)

// FormatOptions tweak the expression formatter.
type FormatOptions struct {
	// BareIdentifiers writes simple, non-keyword identifiers without quotes.
	BareIdentifiers bool
	// ParenthesizeBinary wraps every binary expression in parentheses.
	ParenthesizeBinary bool
}

// Format formats a statement AST back to a SQL string.
// The output is flat (no pretty-printing) and always double-quotes identifiers.
func Format(stmt Stmt) string {
	f := &formatter{}
	f.formatStmt(stmt)
	return strings.TrimSpace(f.buf.String())
}

// FormatExpr formats an expression AST back to a SQL string.
func FormatExpr(expr Expr) string {
	return FormatExprWith(expr, FormatOptions{})
}

// FormatExprWith formats an expression using the given options.
func FormatExprWith(expr Expr, opts FormatOptions) string {
	f := &formatter{opts: opts}
	f.formatExpr(expr)
	return strings.TrimSpace(f.buf.String())
}

// formatter is a simple SQL string builder. No indentation or pretty-printing.
type formatter struct {
	buf  strings.Builder
	opts FormatOptions
}

func (f *formatter) write(s string) {
	f.buf.WriteString(s)
}

func (f *formatter) space() {
	f.buf.WriteByte(' ')
}

var simpleIdent = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// quoteIdent unconditionally double-quotes an identifier.
// Internal double quotes are escaped by doubling.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// QuoteIdent is the exported form of quoteIdent for callers that assemble
// SQL text before parsing it.
func QuoteIdent(s string) string {
	return quoteIdent(s)
}

// writeIdent writes an identifier, quoted unless BareIdentifiers allows it.
func (f *formatter) writeIdent(s string) {
	if f.opts.BareIdentifiers && simpleIdent.MatchString(s) && !IsKeyword(s) {
		f.write(s)
		return
	}
	f.write(quoteIdent(s))
}

// writeDotted writes a dotted name, quoting each part.
func (f *formatter) writeDotted(name string) {
	for i, part := range strings.Split(name, ".") {
		if i > 0 {
			f.write(".")
		}
		f.writeIdent(part)
	}
}

// commaSep writes items separated by ", ".
func (f *formatter) commaSep(n int, fn func(i int)) {
	for i := 0; i < n; i++ {
		if i > 0 {
			f.write(", ")
		}
		fn(i)
	}
}
