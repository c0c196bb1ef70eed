package fhir

import (
	"sort"

	"github.com/ehr/fhirsearch/internal/platform/search"
)

// SearchParamConfig maps a FHIR search parameter to its database representation.
type SearchParamConfig struct {
	Name      string
	Type      search.ParamType
	Column    string // Primary DB column (code column for tokens)
	SysColumn string // System column for token params (e.g., "code_system")
	// UnitColumn holds the UCUM code for quantity params.
	UnitColumn string
	// Columns lists extra columns a string param also matches; Properties
	// narrows a property criterion to one of them.
	Columns    []string
	Properties map[string]string
	// Targets lists the resource types a reference param may point at.
	Targets []string
}

func (c SearchParamConfig) stringColumns(property string) ([]string, bool) {
	if property != "" {
		col, ok := c.Properties[property]
		if !ok {
			return nil, false
		}
		return []string{col}, true
	}
	cols := make([]string, 0, 1+len(c.Columns))
	if c.Column != "" {
		cols = append(cols, c.Column)
	}
	return append(cols, c.Columns...), true
}

// TableDef describes how one resource type is stored.
type TableDef struct {
	ResourceType string
	Table        string
	// SelectCols is the column list scanned into the domain type.
	SelectCols string
	// DefaultOrder applies when no _sort is given. The primary key is always
	// appended so the order is total.
	DefaultOrder string
	// LastUpdated is the column behind _lastUpdated.
	LastUpdated string
	// Visibility is a predicate every search and fetch is restricted to.
	Visibility string
	PageSize   int
	Params     []SearchParamConfig
}

// Param looks up a parameter by name. _id and _lastUpdated are implicit.
func (d *TableDef) Param(name string) (SearchParamConfig, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return p, true
		}
	}
	switch name {
	case "_id":
		return SearchParamConfig{Name: "_id", Type: search.ParamToken, Column: "fhir_id"}, true
	case "_lastUpdated":
		if d.LastUpdated != "" {
			return SearchParamConfig{Name: "_lastUpdated", Type: search.ParamDate, Column: d.LastUpdated}, true
		}
	}
	return SearchParamConfig{}, false
}

// ParamDefs returns the registry view of the table's parameters.
func (d *TableDef) ParamDefs() []search.ParamDef {
	names := []string{"_id"}
	if d.LastUpdated != "" {
		names = append(names, "_lastUpdated")
	}
	for _, p := range d.Params {
		names = append(names, p.Name)
	}
	out := make([]search.ParamDef, 0, len(names))
	for _, n := range names {
		p, _ := d.Param(n)
		out = append(out, search.ParamDef{Name: p.Name, Type: p.Type, Targets: p.Targets})
	}
	return out
}

// Schema is the set of tables the search layer can compile queries against.
type Schema struct {
	tables map[string]*TableDef
}

// NewSchema creates a Schema from table definitions.
func NewSchema(defs ...*TableDef) *Schema {
	s := &Schema{tables: make(map[string]*TableDef, len(defs))}
	for _, d := range defs {
		s.tables[d.ResourceType] = d
	}
	return s
}

// Add registers another table definition.
func (s *Schema) Add(def *TableDef) {
	s.tables[def.ResourceType] = def
}

// Table returns the definition of a resource type.
func (s *Schema) Table(resourceType string) (*TableDef, bool) {
	d, ok := s.tables[resourceType]
	return d, ok
}

// ResourceTypes returns the known types sorted by name.
func (s *Schema) ResourceTypes() []string {
	out := make([]string, 0, len(s.tables))
	for rt := range s.tables {
		out = append(out, rt)
	}
	sort.Strings(out)
	return out
}

// RegisterParams declares every table's parameters on the registry.
func (s *Schema) RegisterParams(reg *search.Registry) {
	for _, rt := range s.ResourceTypes() {
		reg.RegisterParams(rt, s.tables[rt].ParamDefs()...)
	}
}
