package domain

import (
	"strings"
)

// JoinType is the cardinality of a relationship, read from its first model
// to its second.
type JoinType string

// Relationship join types.
const (
	JoinOneToOne   JoinType = "ONE_TO_ONE"
	JoinOneToMany  JoinType = "ONE_TO_MANY"
	JoinManyToOne  JoinType = "MANY_TO_ONE"
	JoinManyToMany JoinType = "MANY_TO_MANY"
)

// ParseJoinType accepts a join type in any case.
func ParseJoinType(s string) (JoinType, error) {
	jt := JoinType(strings.ToUpper(strings.TrimSpace(s)))
	switch jt {
	case JoinOneToOne, JoinOneToMany, JoinManyToOne, JoinManyToMany:
		return jt, nil
	}
	return "", ErrValidation("join type %q must be ONE_TO_ONE, ONE_TO_MANY, MANY_TO_ONE or MANY_TO_MANY", s)
}

// IsToMany reports whether following the join can yield several rows per
// source row.
func (j JoinType) IsToMany() bool {
	return j == JoinOneToMany || j == JoinManyToMany
}

// Reverse returns the join type seen from the other side.
func (j JoinType) Reverse() JoinType {
	switch j {
	case JoinOneToMany:
		return JoinManyToOne
	case JoinManyToOne:
		return JoinOneToMany
	}
	return j
}

// Column is a declared column of a model or metric.
type Column struct {
	Name string
	// Type is the SQL type, or the target model name for relationship columns.
	Type         string
	Relationship string
	Expression   string
	NotNull      bool
	Description  string
}

// IsRelationship reports whether the column navigates to another model.
func (c *Column) IsRelationship() bool { return c.Relationship != "" }

// IsCalculated reports whether the column is defined by an expression.
func (c *Column) IsCalculated() bool { return c.Expression != "" }

// Model is a virtual table backed by a reference query.
type Model struct {
	Name        string
	RefSQL      string
	Columns     []*Column
	PrimaryKey  string
	Description string
}

// Column returns the named column, preferring an exact match over a
// case-insensitive one.
func (m *Model) Column(name string) *Column {
	return findColumn(m.Columns, name)
}

// Relationship joins two models.
type Relationship struct {
	Name      string
	Models    []string
	JoinType  JoinType
	Condition string
}

// Other returns the model on the far side when traversing from model, the
// join type seen from model, and whether model takes part at all. A self
// relationship is traversed forward.
func (r *Relationship) Other(model string) (string, JoinType, bool) {
	if len(r.Models) != 2 {
		return "", "", false
	}
	switch {
	case strings.EqualFold(r.Models[0], model):
		return r.Models[1], r.JoinType, true
	case strings.EqualFold(r.Models[1], model):
		return r.Models[0], r.JoinType.Reverse(), true
	}
	return "", "", false
}

// DatePart is a DATE_TRUNC unit usable in a time grain rollup.
type DatePart string

// Supported date parts.
const (
	DatePartYear    DatePart = "YEAR"
	DatePartQuarter DatePart = "QUARTER"
	DatePartMonth   DatePart = "MONTH"
	DatePartWeek    DatePart = "WEEK"
	DatePartDay     DatePart = "DAY"
	DatePartHour    DatePart = "HOUR"
	DatePartMinute  DatePart = "MINUTE"
	DatePartSecond  DatePart = "SECOND"
)

// ParseDatePart accepts a date part in any case.
func ParseDatePart(s string) (DatePart, bool) {
	p := DatePart(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case DatePartYear, DatePartQuarter, DatePartMonth, DatePartWeek,
		DatePartDay, DatePartHour, DatePartMinute, DatePartSecond:
		return p, true
	}
	return "", false
}

// TimeGrain lets a metric be rolled up along a date dimension.
type TimeGrain struct {
	Name      string
	RefColumn string
	DateParts []DatePart
}

// Allows reports whether p is one of the grain's date parts. A grain that
// lists none allows every part.
func (g *TimeGrain) Allows(p DatePart) bool {
	if len(g.DateParts) == 0 {
		return true
	}
	for _, dp := range g.DateParts {
		if dp == p {
			return true
		}
	}
	return false
}

// Metric is an aggregation over a model or another metric.
type Metric struct {
	Name        string
	BaseObject  string
	Dimensions  []*Column
	Measures    []*Column
	TimeGrains  []*TimeGrain
	Cached      bool
	RefreshTime string
	Description string
}

// Columns returns the dimensions followed by the measures.
func (m *Metric) Columns() []*Column {
	cols := make([]*Column, 0, len(m.Dimensions)+len(m.Measures))
	cols = append(cols, m.Dimensions...)
	return append(cols, m.Measures...)
}

// Column returns the named dimension or measure.
func (m *Metric) Column(name string) *Column {
	return findColumn(m.Columns(), name)
}

// Dimension returns the named dimension.
func (m *Metric) Dimension(name string) *Column {
	return findColumn(m.Dimensions, name)
}

// TimeGrain returns the first time grain with the given name.
func (m *Metric) TimeGrain(name string) *TimeGrain {
	for _, g := range m.TimeGrains {
		if g.Name == name {
			return g
		}
	}
	for _, g := range m.TimeGrains {
		if strings.EqualFold(g.Name, name) {
			return g
		}
	}
	return nil
}

func findColumn(cols []*Column, name string) *Column {
	for _, c := range cols {
		if c.Name == name {
			return c
		}
	}
	for _, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}
