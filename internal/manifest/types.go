// Package manifest loads MDL manifests from YAML or JSON, validates them and
// exposes the result as an immutable domain.Catalog.
package manifest

// === Manifest Document ===

// Manifest is the top-level manifest document. JSON manifests decode through
// the same YAML decoder.
type Manifest struct {
	Catalog       string            `yaml:"catalog,omitempty"`
	Schema        string            `yaml:"schema,omitempty"`
	Models        []ModelDoc        `yaml:"models,omitempty"`
	Relationships []RelationshipDoc `yaml:"relationships,omitempty"`
	Metrics       []MetricDoc       `yaml:"metrics,omitempty"`
	Macros        []MacroDoc        `yaml:"macros,omitempty"`
}

// ModelDoc declares a model.
type ModelDoc struct {
	Name        string      `yaml:"name"`
	RefSQL      string      `yaml:"refSql"`
	Columns     []ColumnDoc `yaml:"columns"`
	PrimaryKey  string      `yaml:"primaryKey,omitempty"`
	Description string      `yaml:"description,omitempty"`
}

// ColumnDoc declares a model column, metric dimension or metric measure.
type ColumnDoc struct {
	Name         string `yaml:"name"`
	Type         string `yaml:"type,omitempty"`
	Relationship string `yaml:"relationship,omitempty"`
	Expression   string `yaml:"expression,omitempty"`
	NotNull      bool   `yaml:"notNull,omitempty"`
	Description  string `yaml:"description,omitempty"`
}

// RelationshipDoc declares a relationship between two models.
type RelationshipDoc struct {
	Name      string   `yaml:"name"`
	Models    []string `yaml:"models"`
	JoinType  string   `yaml:"joinType"`
	Condition string   `yaml:"condition"`
}

// MetricDoc declares a metric.
type MetricDoc struct {
	Name        string         `yaml:"name"`
	BaseObject  string         `yaml:"baseObject"`
	Dimension   []ColumnDoc    `yaml:"dimension,omitempty"`
	Measure     []ColumnDoc    `yaml:"measure"`
	TimeGrain   []TimeGrainDoc `yaml:"timeGrain,omitempty"`
	Cached      bool           `yaml:"cached,omitempty"`
	RefreshTime string         `yaml:"refreshTime,omitempty"`
	Description string         `yaml:"description,omitempty"`
}

// TimeGrainDoc declares a rollup granularity of a metric.
type TimeGrainDoc struct {
	Name      string   `yaml:"name"`
	RefColumn string   `yaml:"refColumn"`
	DateParts []string `yaml:"dateParts,omitempty"`
}

// MacroDoc declares a macro either compactly, as
// "(a: Expression, f: Macro) => body", or with explicit parameters and body.
type MacroDoc struct {
	Name       string         `yaml:"name"`
	Definition string         `yaml:"definition,omitempty"`
	Parameters []ParameterDoc `yaml:"parameters,omitempty"`
	Body       string         `yaml:"body,omitempty"`
}

// ParameterDoc declares a macro parameter.
type ParameterDoc struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}
