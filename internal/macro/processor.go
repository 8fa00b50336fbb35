// Package macro expands {{ }} interpolation spans in templated text.
//
// Spans are passed through unchanged unless they call a macro that takes
// another macro as a parameter. Such a call is replaced by the callee's body,
// in which spans calling a MACRO parameter are bound to the macro the caller
// passed and identifiers naming an EXPRESSION parameter are bound to the
// argument expression. Only the first call in a span is considered.
package macro

import (
	"regexp"
	"strings"

	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/duckdbsql"
)

var callPattern = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_]*)\(([^)]*)\)(\.[^)]*\))?`)

// boundFormat renders rewritten span bodies: bare identifiers and every
// binary expression in parentheses.
var boundFormat = duckdbsql.FormatOptions{BareIdentifiers: true, ParenthesizeBinary: true}

// state is the scanner position: inside or outside a span, combined with the
// kind of quote currently open.
type state int

const (
	literal state = iota
	literalSingleQuoted
	literalDoubleQuoted
	expression
	expressionSingleQuoted
	expressionDoubleQuoted
)

func (s state) inExpression() bool { return s >= expression }

func (s state) quoted() bool { return s != literal && s != expression }

func (s state) singleQuoted() bool { return s == literalSingleQuoted || s == expressionSingleQuoted }

func (s state) doubleQuoted() bool { return s == literalDoubleQuoted || s == expressionDoubleQuoted }

func (s state) base() state {
	if s.inExpression() {
		return expression
	}
	return literal
}

func (s state) toggleSingle() state {
	if s.singleQuoted() {
		return s.base()
	}
	return s.base() + 1
}

func (s state) toggleDouble() state {
	if s.doubleQuoted() {
		return s.base()
	}
	return s.base() + 2
}

// Process expands every span in text against macros.
func Process(text string, macros []*domain.Macro) (string, error) {
	p := &processor{macros: byName(macros)}
	return p.expand(text, nil, nil)
}

func byName(macros []*domain.Macro) map[string]*domain.Macro {
	out := make(map[string]*domain.Macro, len(macros))
	for _, m := range macros {
		if _, ok := out[m.Name]; !ok {
			out[m.Name] = m
		}
	}
	return out
}

type processor struct {
	macros map[string]*domain.Macro
}

// binding is the macro whose body is being expanded plus the actual
// arguments of the call that selected it.
type binding struct {
	macro *domain.Macro
	args  []duckdbsql.Expr
}

func (p *processor) expand(source string, caller *binding, stack []string) (string, error) {
	return scan(source, func(span string) (string, error) {
		return p.processSpan(span, caller, stack)
	})
}

// scan copies source, replacing each {{ }} span with onSpan's result for the
// text between the delimiters.
func scan(source string, onSpan func(string) (string, error)) (string, error) {
	var result, span strings.Builder
	result.Grow(len(source))

	st := literal
	active := func() *strings.Builder {
		if st.inExpression() {
			return &span
		}
		return &result
	}

	for i := 0; i < len(source); i++ {
		c := source[i]
		double := i+1 < len(source) && source[i+1] == c
		switch {
		case c == '{' && double:
			i++
			switch {
			case st.quoted():
				active().WriteString("{{")
			case st.inExpression():
				return "", domain.ErrRewrite(domain.CodeMalformedTemplate, "nested expression is not supported")
			default:
				st = expression
			}
		case c == '}' && double:
			i++
			switch {
			case st.quoted():
				active().WriteString("}}")
			case !st.inExpression():
				return "", domain.ErrRewrite(domain.CodeMalformedTemplate, "unmatched }}")
			default:
				st = literal
				out, err := onSpan(span.String())
				if err != nil {
					return "", err
				}
				result.WriteString(out)
				span.Reset()
			}
		case c == '\'':
			if !st.doubleQuoted() {
				st = st.toggleSingle()
			}
			active().WriteByte(c)
		case c == '"':
			if !st.singleQuoted() {
				st = st.toggleDouble()
			}
			active().WriteByte(c)
		default:
			active().WriteByte(c)
		}
	}
	if st.inExpression() {
		return "", domain.ErrRewrite(domain.CodeMalformedTemplate, "unterminated expression %q", "{{"+span.String())
	}
	return result.String(), nil
}

func (p *processor) processSpan(expr string, caller *binding, stack []string) (string, error) {
	loc := callPattern.FindStringSubmatchIndex(expr)
	if loc == nil {
		return "{{" + expr + "}}", nil
	}

	name := expr[loc[2]:loc[3]]
	if callee, ok := p.macros[name]; ok && callee.HasMacroParameter() {
		for _, seen := range stack {
			if seen == callee.Name {
				return "", domain.ErrRewrite(domain.CodeMalformedTemplate, "recursive macro %s: %s",
					callee.Name, strings.Join(append(stack, callee.Name), " -> "))
			}
		}
		args, err := parseArgs(expr[loc[4]:loc[5]])
		if err != nil {
			return "", err
		}
		body, err := p.expand(callee.Body, &binding{macro: callee, args: args}, append(stack, callee.Name))
		if err != nil {
			return "", err
		}
		return expr[:loc[0]] + body + expr[loc[1]:], nil
	}

	if caller == nil {
		return "{{" + expr + "}}", nil
	}
	tree, err := duckdbsql.ParseExpr(expr)
	if err != nil {
		return "", domain.ErrRewrite(domain.CodeMalformedTemplate, "invalid expression %q in macro %s",
			strings.TrimSpace(expr), caller.macro.Name).Wrap(err)
	}
	bound, err := caller.bind(tree)
	if err != nil {
		return "", err
	}
	return "{{" + duckdbsql.FormatExprWith(bound, boundFormat) + "}}", nil
}

// parseArgs splits a call's argument text on commas and parses each piece.
func parseArgs(text string) ([]duckdbsql.Expr, error) {
	var args []duckdbsql.Expr
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		e, err := duckdbsql.ParseExpr(part)
		if err != nil {
			return nil, domain.ErrRewrite(domain.CodeMalformedTemplate, "invalid macro argument %q", part).Wrap(err)
		}
		args = append(args, e)
	}
	return args, nil
}

// bind replaces calls of MACRO parameters with the macro passed for them and
// identifiers naming EXPRESSION parameters with the argument expression.
func (b *binding) bind(tree duckdbsql.Expr) (duckdbsql.Expr, error) {
	var bindErr error
	var fn func(duckdbsql.Expr) (duckdbsql.Expr, bool)
	fn = func(e duckdbsql.Expr) (duckdbsql.Expr, bool) {
		if bindErr != nil {
			return e, true
		}
		switch n := e.(type) {
		case *duckdbsql.FuncCall:
			if n.Schema != "" {
				return nil, false
			}
			arg, ok, err := b.argument(n.Name, domain.ParameterMacro)
			if err != nil {
				bindErr = err
				return e, true
			}
			if !ok {
				return nil, false
			}
			c := *n
			c.Name = duckdbsql.FormatExprWith(arg, boundFormat)
			c.Args = make([]duckdbsql.Expr, len(n.Args))
			for i, a := range n.Args {
				c.Args[i] = duckdbsql.RewriteExpr(a, fn)
			}
			return &c, true
		case *duckdbsql.ColumnRef:
			if len(n.Parts) != 1 {
				return nil, false
			}
			arg, ok, err := b.argument(n.Parts[0], domain.ParameterExpression)
			if err != nil {
				bindErr = err
				return e, true
			}
			return arg, ok
		}
		return nil, false
	}
	out := duckdbsql.RewriteExpr(tree, fn)
	if bindErr != nil {
		return nil, bindErr
	}
	return out, nil
}

func (b *binding) argument(name string, typ domain.ParameterType) (duckdbsql.Expr, bool, error) {
	idx := b.macro.ParameterIndex(name, typ)
	if idx < 0 {
		return nil, false, nil
	}
	if idx >= len(b.args) {
		return nil, false, domain.ErrRewrite(domain.CodeMalformedTemplate,
			"macro %s called with %d arguments, parameter %s is #%d", b.macro.Name, len(b.args), name, idx+1)
	}
	return b.args[idx], true, nil
}
