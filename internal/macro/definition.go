package macro

import (
	"strings"

	"mdl-rewrite/internal/domain"
)

// ParseDefinition builds a macro from the compact form
//
//	(a: Expression, f: Macro) => {{ f(a) }} + 4
//
// Parameter types are case-insensitive. The body is everything after the
// arrow, trimmed.
func ParseDefinition(name, definition string) (*domain.Macro, error) {
	def := strings.TrimSpace(definition)
	if !strings.HasPrefix(def, "(") {
		return nil, domain.ErrValidation("macro %s: definition must start with a parameter list", name)
	}
	end := strings.IndexByte(def, ')')
	if end < 0 {
		return nil, domain.ErrValidation("macro %s: unterminated parameter list", name)
	}
	rest := strings.TrimSpace(def[end+1:])
	if !strings.HasPrefix(rest, "=>") {
		return nil, domain.ErrValidation("macro %s: expected => after parameter list", name)
	}

	params, err := parseParameters(name, def[1:end])
	if err != nil {
		return nil, err
	}
	return &domain.Macro{
		Name:       name,
		Parameters: params,
		Body:       strings.TrimSpace(rest[2:]),
	}, nil
}

func parseParameters(macroName, list string) ([]domain.MacroParameter, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	var params []domain.MacroParameter
	seen := make(map[string]bool)
	for _, item := range strings.Split(list, ",") {
		pname, ptype, ok := strings.Cut(item, ":")
		pname = strings.TrimSpace(pname)
		if !ok || pname == "" {
			return nil, domain.ErrValidation("macro %s: parameter %q must be written as name: Type", macroName, strings.TrimSpace(item))
		}
		typ, err := domain.ParseParameterType(ptype)
		if err != nil {
			return nil, domain.ErrValidation("macro %s: %v", macroName, err)
		}
		if seen[pname] {
			return nil, domain.ErrValidation("macro %s: duplicate parameter %q", macroName, pname)
		}
		seen[pname] = true
		params = append(params, domain.MacroParameter{Name: pname, Type: typ})
	}
	return params, nil
}

// FormatDefinition writes m back in compact form.
func FormatDefinition(m *domain.Macro) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range m.Parameters {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		b.WriteString(": ")
		switch p.Type {
		case domain.ParameterMacro:
			b.WriteString("Macro")
		default:
			b.WriteString("Expression")
		}
	}
	b.WriteString(") => ")
	b.WriteString(m.Body)
	return b.String()
}
