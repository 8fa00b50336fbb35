package manifest

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/duckdbsql"
	"mdl-rewrite/internal/macro"
)

// Problem is a single manifest validation failure.
type Problem struct {
	Path    string // e.g. "model[Orders].column[customer]"
	Message string
}

func (p Problem) Error() string {
	if p.Path != "" {
		return fmt.Sprintf("%s: %s", p.Path, p.Message)
	}
	return p.Message
}

// Validate checks doc and returns every problem found.
func Validate(doc *Manifest) []Problem {
	b := newBuilder(doc)
	b.build()
	return b.problems
}

func problemsError(problems []Problem) *domain.ValidationError {
	msgs := make([]string, len(problems))
	for i, p := range problems {
		msgs[i] = p.Error()
	}
	return domain.ErrValidation("invalid manifest: %s", strings.Join(msgs, "; "))
}

type builder struct {
	doc      *Manifest
	cat      *Catalog
	problems []Problem
}

func newBuilder(doc *Manifest) *builder {
	cat := &Catalog{
		catalog:       doc.Catalog,
		schema:        doc.Schema,
		models:        newIndex[domain.Model](),
		relationships: newIndex[domain.Relationship](),
		metrics:       newIndex[domain.Metric](),
		macros:        newIndex[domain.Macro](),
		refresh:       make(map[string]cron.Schedule),
	}
	if cat.catalog == "" {
		cat.catalog = DefaultCatalog
	}
	if cat.schema == "" {
		cat.schema = DefaultSchema
	}
	return &builder{doc: doc, cat: cat}
}

func (b *builder) addf(path, format string, args ...any) {
	b.problems = append(b.problems, Problem{Path: path, Message: fmt.Sprintf(format, args...)})
}

// build converts every section, then runs the cross-reference checks that
// need all sections in place.
func (b *builder) build() {
	names := make(map[string]string) // relation name -> "model" | "metric"

	for _, md := range b.doc.Models {
		path := fmt.Sprintf("model[%s]", md.Name)
		if md.Name == "" {
			b.addf(path, "name is required")
			continue
		}
		if kind, dup := names[md.Name]; dup {
			b.addf(path, "name already used by a %s", kind)
			continue
		}
		names[md.Name] = "model"
		b.cat.models.add(md.Name, b.convertModel(path, md))
	}

	for _, rd := range b.doc.Relationships {
		path := fmt.Sprintf("relationship[%s]", rd.Name)
		if rd.Name == "" {
			b.addf(path, "name is required")
			continue
		}
		if _, dup := b.cat.relationships.exact[rd.Name]; dup {
			b.addf(path, "duplicate relationship")
			continue
		}
		if rel := b.convertRelationship(path, rd); rel != nil {
			b.cat.relationships.add(rd.Name, rel)
		}
	}

	for _, md := range b.doc.Metrics {
		path := fmt.Sprintf("metric[%s]", md.Name)
		if md.Name == "" {
			b.addf(path, "name is required")
			continue
		}
		if kind, dup := names[md.Name]; dup {
			b.addf(path, "name already used by a %s", kind)
			continue
		}
		names[md.Name] = "metric"
		b.cat.metrics.add(md.Name, b.convertMetric(path, md))
	}

	for _, md := range b.doc.Macros {
		path := fmt.Sprintf("macro[%s]", md.Name)
		if md.Name == "" {
			b.addf(path, "name is required")
			continue
		}
		if _, dup := b.cat.macros.exact[md.Name]; dup {
			b.addf(path, "duplicate macro")
			continue
		}
		if m := b.convertMacro(path, md); m != nil {
			b.cat.macros.add(md.Name, m)
		}
	}

	b.checkRelationshipColumns()
	b.checkMetricBases()
}

func (b *builder) convertModel(path string, md ModelDoc) *domain.Model {
	m := &domain.Model{
		Name:        md.Name,
		RefSQL:      strings.TrimSpace(md.RefSQL),
		PrimaryKey:  md.PrimaryKey,
		Description: md.Description,
	}
	if m.RefSQL == "" {
		b.addf(path, "refSql is required")
	} else if _, err := duckdbsql.ParseSelect(strings.TrimRight(m.RefSQL, "; \t\n")); err != nil {
		b.addf(path+".refSql", "does not parse: %v", err)
	}
	m.Columns = b.convertColumns(path, md.Columns)
	if m.PrimaryKey != "" {
		pk := m.Column(m.PrimaryKey)
		switch {
		case pk == nil:
			b.addf(path, "primary key %q is not a declared column", m.PrimaryKey)
		case pk.IsRelationship():
			b.addf(path, "primary key %q cannot be a relationship column", m.PrimaryKey)
		}
	}
	return m
}

func (b *builder) convertColumns(owner string, docs []ColumnDoc) []*domain.Column {
	seen := make(map[string]bool, len(docs))
	cols := make([]*domain.Column, 0, len(docs))
	for _, cd := range docs {
		path := fmt.Sprintf("%s.column[%s]", owner, cd.Name)
		if cd.Name == "" {
			b.addf(path, "name is required")
			continue
		}
		if seen[cd.Name] {
			b.addf(path, "duplicate column")
			continue
		}
		seen[cd.Name] = true
		if cd.Relationship != "" && cd.Expression != "" {
			b.addf(path, "a column cannot have both a relationship and an expression")
		}
		cols = append(cols, &domain.Column{
			Name:         cd.Name,
			Type:         cd.Type,
			Relationship: cd.Relationship,
			Expression:   strings.TrimSpace(cd.Expression),
			NotNull:      cd.NotNull,
			Description:  cd.Description,
		})
	}
	return cols
}

func (b *builder) convertRelationship(path string, rd RelationshipDoc) *domain.Relationship {
	ok := true
	if len(rd.Models) != 2 {
		b.addf(path, "a relationship must name exactly two models, got %d", len(rd.Models))
		ok = false
	} else {
		for _, name := range rd.Models {
			if _, exists := b.cat.models.exact[name]; !exists {
				b.addf(path, "model %q does not exist", name)
				ok = false
			}
		}
	}
	jt, err := domain.ParseJoinType(rd.JoinType)
	if err != nil {
		b.addf(path, "%v", err)
		ok = false
	}
	if strings.TrimSpace(rd.Condition) == "" {
		b.addf(path, "condition is required")
		ok = false
	} else if cond, err := duckdbsql.ParseExpr(rd.Condition); err != nil {
		b.addf(path, "condition: %v", err)
		ok = false
	} else if len(rd.Models) == 2 && !b.checkConditionRefs(path, rd.Models, cond) {
		ok = false
	}
	if !ok {
		return nil
	}
	return &domain.Relationship{
		Name:      rd.Name,
		Models:    append([]string(nil), rd.Models...),
		JoinType:  jt,
		Condition: strings.TrimSpace(rd.Condition),
	}
}

// checkConditionRefs requires every column of a join condition to be written
// as <model>.<column> against one of the relationship's two models.
func (b *builder) checkConditionRefs(path string, models []string, cond duckdbsql.Expr) bool {
	ok := true
	for _, ref := range duckdbsql.ColumnRefs(cond) {
		if len(ref.Parts) != 2 {
			b.addf(path, "condition column %s must be qualified by one of %s, %s", ref, models[0], models[1])
			ok = false
			continue
		}
		var owner string
		for _, name := range models {
			if strings.EqualFold(ref.Parts[0], name) {
				owner = name
				break
			}
		}
		if owner == "" {
			b.addf(path, "condition column %s does not belong to %s or %s", ref, models[0], models[1])
			ok = false
			continue
		}
		m, exists := b.cat.models.exact[owner]
		if !exists {
			continue
		}
		col := m.Column(ref.Parts[1])
		switch {
		case col == nil && len(m.Columns) > 0:
			b.addf(path, "condition column %s is not a column of model %s", ref, owner)
			ok = false
		case col != nil && col.IsRelationship():
			b.addf(path, "condition column %s is a relationship column", ref)
			ok = false
		}
	}
	return ok
}

func (b *builder) convertMetric(path string, md MetricDoc) *domain.Metric {
	m := &domain.Metric{
		Name:        md.Name,
		BaseObject:  md.BaseObject,
		Cached:      md.Cached,
		RefreshTime: md.RefreshTime,
		Description: md.Description,
	}
	if m.BaseObject == "" {
		b.addf(path, "baseObject is required")
	}
	m.Dimensions = b.convertColumns(path, md.Dimension)
	m.Measures = b.convertColumns(path, md.Measure)
	if len(m.Measures) == 0 {
		b.addf(path, "the number of measures should be one at least")
	}
	for _, c := range m.Columns() {
		if c.IsRelationship() {
			b.addf(fmt.Sprintf("%s.column[%s]", path, c.Name), "metric columns cannot be relationship columns")
		}
	}

	for _, gd := range md.TimeGrain {
		gpath := fmt.Sprintf("%s.timeGrain[%s]", path, gd.Name)
		if gd.Name == "" {
			b.addf(gpath, "name is required")
			continue
		}
		if m.Dimension(gd.RefColumn) == nil {
			b.addf(gpath, "refColumn %q is not a dimension", gd.RefColumn)
		}
		g := &domain.TimeGrain{Name: gd.Name, RefColumn: gd.RefColumn}
		for _, s := range gd.DateParts {
			p, ok := domain.ParseDatePart(s)
			if !ok {
				b.addf(gpath, "unsupported date part %q", s)
				continue
			}
			g.DateParts = append(g.DateParts, p)
		}
		m.TimeGrains = append(m.TimeGrains, g)
	}

	if m.RefreshTime != "" {
		sched, err := ParseRefreshTime(m.RefreshTime)
		if err != nil {
			b.addf(path, "%v", err)
		} else {
			b.cat.refresh[m.Name] = sched
		}
	}
	return m
}

func (b *builder) convertMacro(path string, md MacroDoc) *domain.Macro {
	if md.Definition != "" {
		if md.Body != "" || len(md.Parameters) > 0 {
			b.addf(path, "use either definition or parameters and body, not both")
			return nil
		}
		m, err := macro.ParseDefinition(md.Name, md.Definition)
		if err != nil {
			b.addf(path, "%v", err)
			return nil
		}
		return m
	}

	m := &domain.Macro{Name: md.Name, Body: strings.TrimSpace(md.Body)}
	if m.Body == "" {
		b.addf(path, "body is required")
	}
	for _, pd := range md.Parameters {
		typ, err := domain.ParseParameterType(pd.Type)
		if err != nil {
			b.addf(fmt.Sprintf("%s.parameter[%s]", path, pd.Name), "%v", err)
			continue
		}
		m.Parameters = append(m.Parameters, domain.MacroParameter{Name: pd.Name, Type: typ})
	}
	return m
}

// checkRelationshipColumns verifies that every relationship column names an
// existing relationship that includes its model.
func (b *builder) checkRelationshipColumns() {
	for _, m := range b.cat.models.order {
		for _, c := range m.Columns {
			if !c.IsRelationship() {
				continue
			}
			path := fmt.Sprintf("model[%s].column[%s]", m.Name, c.Name)
			rel, ok := b.cat.relationships.exact[c.Relationship]
			if !ok {
				b.addf(path, "relationship %q does not exist", c.Relationship)
				continue
			}
			target, _, ok := rel.Other(m.Name)
			if !ok {
				b.addf(path, "relationship %q does not include model %q", rel.Name, m.Name)
				continue
			}
			if c.Type != "" && !strings.EqualFold(c.Type, target) {
				b.addf(path, "type %q does not match relationship target %q", c.Type, target)
			}
		}
	}
}

// checkMetricBases verifies metric base objects and rejects base cycles.
func (b *builder) checkMetricBases() {
	for _, m := range b.cat.metrics.order {
		path := fmt.Sprintf("metric[%s]", m.Name)
		if m.BaseObject == "" {
			continue
		}
		if _, ok := b.cat.models.exact[m.BaseObject]; ok {
			continue
		}
		if _, ok := b.cat.metrics.exact[m.BaseObject]; ok {
			if cycle := b.metricCycle(m); cycle != "" {
				b.addf(path, "metric base objects form a cycle: %s", cycle)
			}
			continue
		}
		if _, ok := b.cat.relationships.exact[m.BaseObject]; ok {
			b.addf(path, "base object %q is a relationship; metrics must be based on a model or metric", m.BaseObject)
			continue
		}
		b.addf(path, "base object %q does not exist", m.BaseObject)
	}
}

func (b *builder) metricCycle(start *domain.Metric) string {
	path := []string{start.Name}
	seen := map[string]bool{start.Name: true}
	cur := start
	for {
		next, ok := b.cat.metrics.exact[cur.BaseObject]
		if !ok {
			return ""
		}
		path = append(path, next.Name)
		if seen[next.Name] {
			return strings.Join(path, " -> ")
		}
		seen[next.Name] = true
		cur = next
	}
}
