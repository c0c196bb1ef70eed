package search

import (
	"context"
	"sort"
	"sync"
)

// ParamType is the FHIR type of a search parameter.
type ParamType int

const (
	ParamToken ParamType = iota
	ParamReference
	ParamDate
	ParamString
	ParamNumber
	ParamQuantity
	ParamURI
)

// ParamDef declares a searchable property of a resource type.
type ParamDef struct {
	Name string
	Type ParamType
	// Targets lists the resource types a reference parameter may point at.
	Targets []string
}

// accepts reports whether a value of kind k can be used with the parameter.
func (d ParamDef) accepts(k ValueKind) bool {
	switch d.Type {
	case ParamToken, ParamURI:
		return k == KindToken || k == KindTokenOr || k == KindTokenAnd
	case ParamReference:
		return k == KindReference || k == KindReferenceOr || k == KindReferenceAnd
	case ParamDate:
		return k == KindDateRange
	case ParamString:
		return k == KindString
	case ParamNumber, ParamQuantity:
		return k == KindQuantity
	}
	return false
}

func (d ParamDef) targets(t string) bool {
	for _, target := range d.Targets {
		if target == t {
			return true
		}
	}
	return false
}

// Source is a type-erased DAO and Translator pair used to load included
// resources of a given type.
type Source interface {
	ResourceType() string
	// Fetch loads and translates the given ids. Records that fail to
	// translate are dropped.
	Fetch(ctx context.Context, ids []string) ([]Included, error)
	// Referencing loads and translates every resource whose param references
	// one of ids on a resource of targetType.
	Referencing(ctx context.Context, param, targetType string, ids []string) ([]Included, error)
}

// Registry records, per resource type, the searchable parameters and the
// Source used to load that type for includes. It is populated at startup and
// read concurrently afterwards.
type Registry struct {
	mu      sync.RWMutex
	params  map[string]map[string]ParamDef
	sources map[string]Source
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		params:  make(map[string]map[string]ParamDef),
		sources: make(map[string]Source),
	}
}

// RegisterParams declares search parameters for a resource type.
func (r *Registry) RegisterParams(resourceType string, defs ...ParamDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.params[resourceType]
	if m == nil {
		m = make(map[string]ParamDef)
		r.params[resourceType] = m
	}
	for _, d := range defs {
		m[d.Name] = d
	}
}

// RegisterSource makes a resource type loadable for includes.
func (r *Registry) RegisterSource(src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[src.ResourceType()] = src
}

// Param looks up a parameter definition.
func (r *Registry) Param(resourceType, name string) (ParamDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.params[resourceType][name]
	return d, ok
}

// Params returns the parameter definitions of a type sorted by name.
func (r *Registry) Params(resourceType string) []ParamDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ParamDef, 0, len(r.params[resourceType]))
	for _, d := range r.params[resourceType] {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// HasResource reports whether any parameter is registered for the type.
func (r *Registry) HasResource(resourceType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.params[resourceType]
	return ok
}

// Source returns the include source of a type.
func (r *Registry) Source(resourceType string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[resourceType]
	return s, ok
}

// ValidateParams checks every criterion of m against the parameters declared
// for resourceType. It returns an *InvalidRequestError on the first problem.
func (r *Registry) ValidateParams(resourceType string, m *ParameterMap) error {
	for _, p := range m.All() {
		if p.Handler == SortHandler {
			if err := r.validateSort(resourceType, p.Value); err != nil {
				return err
			}
			continue
		}
		if p.Value == nil {
			continue
		}
		if p.Value.Kind() == KindHas {
			if err := r.validateHas(resourceType, p.Handler, p.Value.(Has)); err != nil {
				return err
			}
			continue
		}
		def, ok := r.Param(resourceType, p.Handler)
		if !ok {
			return invalidParam(p.Handler, "not supported for %s", resourceType)
		}
		if err := r.validateValue(p.Handler, def, p.Value); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) validateValue(handler string, def ParamDef, v Value) error {
	if !def.accepts(v.Kind()) {
		return invalidParam(handler, "%s value not allowed for this parameter", v.Kind())
	}
	switch val := v.(type) {
	case Reference:
		return r.validateReference(handler, def, val)
	case ReferenceOr:
		for _, ref := range val {
			if err := r.validateReference(handler, def, ref); err != nil {
				return err
			}
		}
	case ReferenceAnd:
		for _, or := range val {
			for _, ref := range or {
				if err := r.validateReference(handler, def, ref); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (r *Registry) validateReference(handler string, def ParamDef, ref Reference) error {
	if ref.ResourceType != "" && len(def.Targets) > 0 && !def.targets(ref.ResourceType) {
		return invalidParam(handler, "cannot reference %s", ref.ResourceType)
	}
	if !ref.IsChained() {
		return nil
	}
	target := ref.ResourceType
	if target == "" {
		if len(def.Targets) != 1 {
			return invalidParam(handler, "chain %q needs an explicit target type", ref.Chain)
		}
		target = def.Targets[0]
	}
	chained, ok := r.Param(target, ref.Chain)
	if !ok {
		return invalidParam(handler, "%s has no searchable property %q", target, ref.Chain)
	}
	if chained.Type == ParamReference {
		return invalidParam(handler, "chaining through %s.%s is not supported", target, ref.Chain)
	}
	if ref.ChainValue == nil {
		return invalidParam(handler, "chain %q has no value", ref.Chain)
	}
	return r.validateValue(handler, chained, ref.ChainValue)
}

func (r *Registry) validateHas(resourceType, handler string, h Has) error {
	refDef, ok := r.Param(h.ResourceType, h.ReferenceParam)
	if !ok || refDef.Type != ParamReference {
		return invalidParam(handler, "%s has no reference parameter %q", h.ResourceType, h.ReferenceParam)
	}
	if len(refDef.Targets) > 0 && !refDef.targets(resourceType) {
		return invalidParam(handler, "%s.%s does not reference %s", h.ResourceType, h.ReferenceParam, resourceType)
	}
	propDef, ok := r.Param(h.ResourceType, h.Property)
	if !ok {
		return invalidParam(handler, "%s has no searchable property %q", h.ResourceType, h.Property)
	}
	if h.Value == nil {
		return invalidParam(handler, "missing value")
	}
	return r.validateValue(handler, propDef, h.Value)
}

func (r *Registry) validateSort(resourceType string, v Value) error {
	s, ok := v.(Sort)
	if !ok {
		return invalidParam(SortHandler, "expected a sort value")
	}
	for _, f := range s.Fields {
		if f.Name == "_id" || f.Name == "_lastUpdated" {
			continue
		}
		def, ok := r.Param(resourceType, f.Name)
		if !ok {
			return invalidParam(SortHandler, "cannot sort %s by %q", resourceType, f.Name)
		}
		if def.Type == ParamReference {
			return invalidParam(SortHandler, "cannot sort by reference %q", f.Name)
		}
	}
	return nil
}
