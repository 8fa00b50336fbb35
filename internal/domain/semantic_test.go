package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinType(t *testing.T) {
	tests := []struct {
		jt      JoinType
		toMany  bool
		reverse JoinType
	}{
		{JoinOneToOne, false, JoinOneToOne},
		{JoinOneToMany, true, JoinManyToOne},
		{JoinManyToOne, false, JoinOneToMany},
		{JoinManyToMany, true, JoinManyToMany},
	}
	for _, tc := range tests {
		t.Run(string(tc.jt), func(t *testing.T) {
			assert.Equal(t, tc.toMany, tc.jt.IsToMany())
			assert.Equal(t, tc.reverse, tc.jt.Reverse())
		})
	}
}

func TestParseJoinType(t *testing.T) {
	jt, err := ParseJoinType("many_to_one")
	require.NoError(t, err)
	assert.Equal(t, JoinManyToOne, jt)

	_, err = ParseJoinType("SIDEWAYS")
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestRelationship_Other(t *testing.T) {
	rel := &Relationship{Name: "OrdersLineitem", Models: []string{"Orders", "Lineitem"}, JoinType: JoinOneToMany}

	target, jt, ok := rel.Other("Orders")
	require.True(t, ok)
	assert.Equal(t, "Lineitem", target)
	assert.Equal(t, JoinOneToMany, jt)

	target, jt, ok = rel.Other("lineitem")
	require.True(t, ok)
	assert.Equal(t, "Orders", target)
	assert.Equal(t, JoinManyToOne, jt)

	_, _, ok = rel.Other("Customer")
	assert.False(t, ok)

	self := &Relationship{Name: "Manager", Models: []string{"Employee", "Employee"}, JoinType: JoinManyToOne}
	target, jt, ok = self.Other("Employee")
	require.True(t, ok)
	assert.Equal(t, "Employee", target)
	assert.Equal(t, JoinManyToOne, jt)
}

func TestModel_Column(t *testing.T) {
	m := &Model{Columns: []*Column{
		{Name: "custkey", Type: "INTEGER"},
		{Name: "Name", Type: "VARCHAR"},
		{Name: "name", Type: "TEXT"},
		{Name: "orders", Type: "Orders", Relationship: "OrdersCustomer"},
		{Name: "totalprice", Expression: "sum(orders.totalprice)"},
	}}

	assert.Equal(t, "TEXT", m.Column("name").Type, "exact match wins")
	assert.Equal(t, "INTEGER", m.Column("CUSTKEY").Type)
	assert.Nil(t, m.Column("missing"))
	assert.True(t, m.Column("orders").IsRelationship())
	assert.True(t, m.Column("totalprice").IsCalculated())
	assert.False(t, m.Column("custkey").IsCalculated())
}

func TestMetric_Accessors(t *testing.T) {
	m := &Metric{
		Dimensions: []*Column{{Name: "orderdate"}, {Name: "status"}},
		Measures:   []*Column{{Name: "revenue"}},
		TimeGrains: []*TimeGrain{
			{Name: "order_date", RefColumn: "orderdate", DateParts: []DatePart{DatePartYear, DatePartMonth}},
			{Name: "order_date", RefColumn: "status"},
		},
	}

	cols := m.Columns()
	require.Len(t, cols, 3)
	assert.Equal(t, "revenue", cols[2].Name)
	assert.NotNil(t, m.Column("revenue"))
	assert.Nil(t, m.Dimension("revenue"))

	g := m.TimeGrain("order_date")
	require.NotNil(t, g)
	assert.Equal(t, "orderdate", g.RefColumn, "first grain with the name wins")
	assert.True(t, g.Allows(DatePartMonth))
	assert.False(t, g.Allows(DatePartDay))
	assert.Nil(t, m.TimeGrain("ship_date"))

	assert.True(t, (&TimeGrain{}).Allows(DatePartSecond))
}

func TestParseDatePart(t *testing.T) {
	p, ok := ParseDatePart("quarter")
	require.True(t, ok)
	assert.Equal(t, DatePartQuarter, p)

	_, ok = ParseDatePart("FORTNIGHT")
	assert.False(t, ok)
}

func TestMacro_Parameters(t *testing.T) {
	m := &Macro{Name: "passMacro", Parameters: []MacroParameter{
		{Name: "a", Type: ParameterExpression},
		{Name: "f", Type: ParameterMacro},
	}}
	assert.True(t, m.HasMacroParameter())
	assert.Equal(t, 1, m.ParameterIndex("f", ParameterMacro))
	assert.Equal(t, -1, m.ParameterIndex("f", ParameterExpression))
	assert.Equal(t, 0, m.ParameterIndex("a", ParameterExpression))

	plain := &Macro{Name: "addOne", Parameters: []MacroParameter{{Name: "a", Type: ParameterExpression}}}
	assert.False(t, plain.HasMacroParameter())

	pt, err := ParseParameterType("Macro")
	require.NoError(t, err)
	assert.Equal(t, ParameterMacro, pt)
	_, err = ParseParameterType("Table")
	require.Error(t, err)
}
