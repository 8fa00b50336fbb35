package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteError_Message(t *testing.T) {
	err := ErrRewrite(CodeRelationshipNotFound, "no relationship %q", "orders").
		WithModel("Customer").
		WithColumn("orders.totalprice")
	assert.Equal(t, `RELATIONSHIP_NOT_FOUND: no relationship "orders" (model=Customer, column=orders.totalprice)`, err.Error())

	bare := ErrRewrite(CodeInternal, "unresolved metric rollup")
	assert.Equal(t, "INTERNAL: unresolved metric rollup", bare.Error())
}

func TestRewriteError_WithKeepsFirst(t *testing.T) {
	err := ErrRewrite(CodeUnsupportedExpression, "x").WithModel("Inner").WithModel("Outer")
	assert.Equal(t, "Inner", err.Model)
}

func TestRewriteError_WrapAndAs(t *testing.T) {
	cause := errors.New("parse error: boom")
	err := fmt.Errorf("render: %w", ErrRewrite(CodeRenderError, "generated SQL does not parse").Wrap(cause))

	var rwErr *RewriteError
	require.True(t, errors.As(err, &rwErr))
	assert.Equal(t, CodeRenderError, rwErr.Code)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeRenderError, RewriteCodeOf(err))
	assert.Equal(t, RewriteCode(""), RewriteCodeOf(cause))
}

func TestIsUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"relationship", ErrRewrite(CodeRelationshipNotFound, "x"), true},
		{"unsupported", ErrRewrite(CodeUnsupportedExpression, "x"), true},
		{"template", ErrRewrite(CodeMalformedTemplate, "x"), true},
		{"circular", ErrRewrite(CodeCircularCalculatedField, "x"), true},
		{"not_found", ErrRewrite(CodeNotFound, "x"), true},
		{"render", ErrRewrite(CodeRenderError, "x"), false},
		{"internal", ErrRewrite(CodeInternal, "x"), false},
		{"validation", ErrValidation("bad"), true},
		{"wrapped_not_found", fmt.Errorf("load: %w", ErrNotFound("missing")), true},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsUserError(tc.err))
		})
	}
}
