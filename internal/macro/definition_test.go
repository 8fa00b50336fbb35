package macro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdl-rewrite/internal/domain"
)

func TestParseDefinition(t *testing.T) {
	m, err := ParseDefinition("pass2Macro", "(a: Expression, f1: Macro, f2: macro) => {{ f1(a) + f2(a) }} + 5")
	require.NoError(t, err)
	assert.Equal(t, "pass2Macro", m.Name)
	assert.Equal(t, []domain.MacroParameter{
		{Name: "a", Type: domain.ParameterExpression},
		{Name: "f1", Type: domain.ParameterMacro},
		{Name: "f2", Type: domain.ParameterMacro},
	}, m.Parameters)
	assert.Equal(t, "{{ f1(a) + f2(a) }} + 5", m.Body)

	m, err = ParseDefinition("standardTime", "  () =>   standardTime ")
	require.NoError(t, err)
	assert.Empty(t, m.Parameters)
	assert.Equal(t, "standardTime", m.Body)
}

func TestParseDefinition_Errors(t *testing.T) {
	tests := []struct {
		name    string
		def     string
		wantMsg string
	}{
		{"no_params", "{{ a }} + 1", "must start with a parameter list"},
		{"unterminated", "(a: Expression => a", "unterminated parameter list"},
		{"no_arrow", "(a: Expression) a", "expected =>"},
		{"untyped", "(a) => a", "must be written as name: Type"},
		{"bad_type", "(a: Table) => a", "must be Expression or Macro"},
		{"duplicate", "(a: Expression, a: Macro) => a", "duplicate parameter"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDefinition("m", tc.def)
			var valErr *domain.ValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Contains(t, valErr.Message, tc.wantMsg)
		})
	}
}

func TestFormatDefinition(t *testing.T) {
	def := "(a: Expression, f: Macro) => {{ f(a) }} + 4"
	m, err := ParseDefinition("passMacro", def)
	require.NoError(t, err)
	assert.Equal(t, def, FormatDefinition(m))
}
