package macro

import (
	"strings"

	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/duckdbsql"
)

// Render turns templated text into plain SQL. It runs Process first, then
// evaluates every remaining span: calls to macros are replaced by their
// parenthesized bodies with parameters bound to the call's arguments, and the
// delimiters are dropped. Text without spans is returned unchanged; other
// results are trimmed.
func Render(text string, macros []*domain.Macro) (string, error) {
	if !strings.Contains(text, "{{") && !strings.Contains(text, "}}") {
		return text, nil
	}
	processed, err := Process(text, macros)
	if err != nil {
		return "", err
	}
	r := &renderer{macros: byName(macros)}
	out, err := r.render(processed, nil, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

type renderer struct {
	macros map[string]*domain.Macro
}

// render evaluates the spans of text with params bound to env.
func (r *renderer) render(text string, env map[string]duckdbsql.Expr, stack []string) (string, error) {
	return scan(text, func(span string) (string, error) {
		tree, err := duckdbsql.ParseExpr(span)
		if err != nil {
			return "", domain.ErrRewrite(domain.CodeMalformedTemplate, "invalid expression %q", strings.TrimSpace(span)).Wrap(err)
		}
		out, err := r.eval(tree, env, stack)
		if err != nil {
			return "", err
		}
		return duckdbsql.FormatExprWith(out, duckdbsql.FormatOptions{BareIdentifiers: true}), nil
	})
}

func (r *renderer) eval(tree duckdbsql.Expr, env map[string]duckdbsql.Expr, stack []string) (duckdbsql.Expr, error) {
	var evalErr error
	var fn func(duckdbsql.Expr) (duckdbsql.Expr, bool)
	fn = func(e duckdbsql.Expr) (duckdbsql.Expr, bool) {
		if evalErr != nil {
			return e, true
		}
		switch n := e.(type) {
		case *duckdbsql.ColumnRef:
			if len(n.Parts) == 1 {
				if v, ok := env[n.Parts[0]]; ok {
					return group(v), true
				}
			}
		case *duckdbsql.FuncCall:
			if n.Schema != "" {
				return nil, false
			}
			name := n.Name
			if v, ok := env[name]; ok {
				ref, isRef := v.(*duckdbsql.ColumnRef)
				if !isRef || len(ref.Parts) != 1 {
					evalErr = domain.ErrRewrite(domain.CodeMalformedTemplate, "parameter %s is called but is bound to %s",
						name, duckdbsql.FormatExpr(v))
					return e, true
				}
				name = ref.Parts[0]
			}
			args := make([]duckdbsql.Expr, len(n.Args))
			for i, a := range n.Args {
				args[i] = duckdbsql.RewriteExpr(a, fn)
			}
			m, ok := r.macros[name]
			if !ok {
				c := *n
				c.Name = name
				c.Args = args
				return &c, true
			}
			out, err := r.call(m, args, stack)
			if err != nil {
				evalErr = err
				return e, true
			}
			return out, true
		}
		return nil, false
	}
	out := duckdbsql.RewriteExpr(tree, fn)
	if evalErr != nil {
		return nil, evalErr
	}
	return out, nil
}

// call inlines one macro invocation.
func (r *renderer) call(m *domain.Macro, args []duckdbsql.Expr, stack []string) (duckdbsql.Expr, error) {
	for _, seen := range stack {
		if seen == m.Name {
			return nil, domain.ErrRewrite(domain.CodeMalformedTemplate, "recursive macro %s: %s",
				m.Name, strings.Join(append(stack, m.Name), " -> "))
		}
	}
	if len(args) != len(m.Parameters) {
		return nil, domain.ErrRewrite(domain.CodeMalformedTemplate, "macro %s takes %d arguments, got %d",
			m.Name, len(m.Parameters), len(args))
	}
	env := make(map[string]duckdbsql.Expr, len(args))
	for i, p := range m.Parameters {
		env[p.Name] = args[i]
	}
	text, err := r.render(m.Body, env, append(stack, m.Name))
	if err != nil {
		return nil, err
	}
	body, err := duckdbsql.ParseExpr(text)
	if err != nil {
		return nil, domain.ErrRewrite(domain.CodeMalformedTemplate, "macro %s does not expand to an expression: %q", m.Name, text).Wrap(err)
	}
	return group(body), nil
}

// group parenthesizes compound expressions so that substituting them into
// surrounding text keeps their precedence.
func group(e duckdbsql.Expr) duckdbsql.Expr {
	switch e.(type) {
	case *duckdbsql.ColumnRef, *duckdbsql.Literal, *duckdbsql.FuncCall, *duckdbsql.ParenExpr:
		return e
	}
	return &duckdbsql.ParenExpr{Expr: e}
}
