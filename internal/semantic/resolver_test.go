package semantic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdl-rewrite/internal/domain"
)

func TestResolve(t *testing.T) {
	cat := loadTPCH(t)

	tests := []struct {
		name      string
		model     string
		parts     []string
		hops      []string // target models
		remaining []string
		toMany    bool
		column    string // "" for an undeclared column
	}{
		{name: "local", model: "Customer", parts: []string{"custkey"}, remaining: []string{"custkey"}, column: "custkey"},
		{name: "undeclared passes through", model: "Customer", parts: []string{"nation_name"}, remaining: []string{"nation_name"}},
		{name: "reverse to-many", model: "Customer", parts: []string{"orders", "totalprice"},
			hops: []string{"Orders"}, remaining: []string{"totalprice"}, toMany: true, column: "totalprice"},
		{name: "to-one chain", model: "Lineitem", parts: []string{"orders", "customer", "name"},
			hops: []string{"Orders", "Customer"}, remaining: []string{"name"}, column: "name"},
		{name: "calculated terminal", model: "Customer", parts: []string{"orders", "lineitem", "orderkey_linenumber"},
			hops: []string{"Orders", "Lineitem"}, remaining: []string{"orderkey_linenumber"}, toMany: true, column: "orderkey_linenumber"},
		{name: "revisits a model", model: "Orders", parts: []string{"customer", "orders", "orderkey"},
			hops: []string{"Customer", "Orders"}, remaining: []string{"orderkey"}, toMany: true, column: "orderkey"},
		{name: "case-insensitive", model: "Lineitem", parts: []string{"ORDERS", "TotalPrice"},
			hops: []string{"Orders"}, remaining: []string{"TotalPrice"}, column: "totalprice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, ok := cat.Model(tt.model)
			require.True(t, ok)

			info, err := Resolve(cat, model, tt.parts)
			require.NoError(t, err)

			assert.Equal(t, tt.parts, info.QualifiedName)
			assert.Len(t, info.RelationshipParts, len(tt.hops))
			assert.Equal(t, tt.remaining, info.RemainingParts)
			assert.Equal(t, len(info.QualifiedName), len(info.RelationshipParts)+len(info.RemainingParts))
			assert.Equal(t, tt.toMany, info.IsToMany())

			var targets []string
			for _, h := range info.Hops {
				targets = append(targets, h.To)
			}
			assert.Equal(t, tt.hops, targets)

			if tt.column == "" {
				assert.Nil(t, info.Column)
			} else {
				require.NotNil(t, info.Column)
				assert.Equal(t, tt.column, info.Column.Name)
			}
		})
	}
}

func TestResolve_HopDirection(t *testing.T) {
	cat := loadTPCH(t)
	customer, _ := cat.Model("Customer")

	info, err := Resolve(cat, customer, []string{"orders", "custkey"})
	require.NoError(t, err)

	hop := info.BaseModelRelationship()
	require.NotNil(t, hop)
	assert.Equal(t, "OrdersCustomer", hop.Relationship.Name)
	assert.Equal(t, "Customer", hop.From)
	assert.Equal(t, "Orders", hop.To)
	assert.False(t, hop.Forward)
	assert.Equal(t, domain.JoinOneToMany, hop.JoinType)

	local, err := Resolve(cat, customer, []string{"custkey"})
	require.NoError(t, err)
	assert.Nil(t, local.BaseModelRelationship())
}

func TestResolve_Errors(t *testing.T) {
	cat := loadTPCH(t)
	customer, _ := cat.Model("Customer")

	tests := []struct {
		name  string
		parts []string
		code  domain.RewriteCode
	}{
		{name: "unknown column after hop", parts: []string{"orders", "nope"}, code: domain.CodeRelationshipNotFound},
		{name: "non-relationship prefix", parts: []string{"custkey", "x"}, code: domain.CodeRelationshipNotFound},
		{name: "relationship as value", parts: []string{"orders"}, code: domain.CodeUnsupportedExpression},
		{name: "relationship as value after hop", parts: []string{"orders", "customer"}, code: domain.CodeUnsupportedExpression},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(cat, customer, tt.parts)
			requireCode(t, err, tt.code)
		})
	}
}
