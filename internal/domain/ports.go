package domain

// Catalog is a read-only view of a loaded manifest. Implementations must be
// safe for concurrent use. Lookups match names exactly first and then
// case-insensitively.
// Implemented by manifest.Catalog.
type Catalog interface {
	CatalogName() string
	SchemaName() string

	ListModels() []*Model
	Model(name string) (*Model, bool)

	ListRelationships() []*Relationship
	Relationship(name string) (*Relationship, bool)

	ListMetrics() []*Metric
	Metric(name string) (*Metric, bool)

	ListMacros() []*Macro
	Macro(name string) (*Macro, bool)
}
