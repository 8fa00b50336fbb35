package domain

import "strings"

// ParameterType is the kind of value a macro parameter binds.
type ParameterType string

// Macro parameter types.
const (
	ParameterExpression ParameterType = "EXPRESSION"
	ParameterMacro      ParameterType = "MACRO"
)

// ParseParameterType accepts a parameter type in any case.
func ParseParameterType(s string) (ParameterType, error) {
	pt := ParameterType(strings.ToUpper(strings.TrimSpace(s)))
	switch pt {
	case ParameterExpression, ParameterMacro:
		return pt, nil
	}
	return "", ErrValidation("macro parameter type %q must be Expression or Macro", s)
}

// MacroParameter is a formal parameter of a macro.
type MacroParameter struct {
	Name string
	Type ParameterType
}

// Macro is a named text template expanded by the macro processor.
type Macro struct {
	Name       string
	Parameters []MacroParameter
	Body       string
}

// HasMacroParameter reports whether any parameter takes another macro.
func (m *Macro) HasMacroParameter() bool {
	for _, p := range m.Parameters {
		if p.Type == ParameterMacro {
			return true
		}
	}
	return false
}

// ParameterIndex returns the position of the named parameter of the given
// type, or -1.
func (m *Macro) ParameterIndex(name string, typ ParameterType) int {
	for i, p := range m.Parameters {
		if p.Name == name && p.Type == typ {
			return i
		}
	}
	return -1
}
