package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Direction of an include entry.
type Direction int

const (
	// Forward includes the resources the primary set references.
	Forward Direction = iota
	// Reverse includes the resources that reference the primary set.
	Reverse
)

func (d Direction) String() string {
	if d == Reverse {
		return "revinclude"
	}
	return "include"
}

// IncludeEntry is one relationship to expand. For Forward entries
// Relationship is a reference parameter of SourceType pointing at TargetType.
// For Reverse entries it is a reference parameter of TargetType pointing at
// SourceType, the type of the primary results.
type IncludeEntry struct {
	SourceType   string
	Relationship string
	TargetType   string
	Direction    Direction
}

func (e IncludeEntry) String() string {
	if e.Direction == Reverse {
		return fmt.Sprintf("_revinclude=%s:%s:%s", e.TargetType, e.Relationship, e.SourceType)
	}
	return fmt.Sprintf("_include=%s:%s:%s", e.SourceType, e.Relationship, e.TargetType)
}

// Included is a resource attached to a page because of an include entry.
type Included struct {
	ResourceType string
	ID           string
	Resource     Resource
}

// Include resolves include entries for a page of primary results. Entries are
// validated once, at construction; each entry is resolved independently and
// one hop deep.
type Include struct {
	registry *Registry
	entries  []IncludeEntry
}

// NewInclude validates entries against the registry. A relationship the
// source type does not declare, or a target that has no Source, yields an
// error matching ErrUnsupportedInclude.
func NewInclude(registry *Registry, entries ...IncludeEntry) (*Include, error) {
	resolved := make([]IncludeEntry, 0, len(entries))
	for _, e := range entries {
		r, err := registry.resolveEntry(e)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, r)
	}
	return &Include{registry: registry, entries: resolved}, nil
}

// ParseIncludes builds an Include from FHIR _include and _revinclude values of
// the form "Type:param" or "Type:param:TargetType". It returns nil when both
// lists are empty.
func ParseIncludes(registry *Registry, primaryType string, includes, revIncludes []string) (*Include, error) {
	var entries []IncludeEntry
	for _, raw := range includes {
		parts, err := splitIncludeSpec(raw)
		if err != nil {
			return nil, err
		}
		if parts[0] != primaryType {
			return nil, unsupportedInclude(raw, "include source must be %s", primaryType)
		}
		entries = append(entries, IncludeEntry{
			SourceType:   parts[0],
			Relationship: parts[1],
			TargetType:   parts[2],
			Direction:    Forward,
		})
	}
	for _, raw := range revIncludes {
		parts, err := splitIncludeSpec(raw)
		if err != nil {
			return nil, err
		}
		if parts[2] != "" && parts[2] != primaryType {
			return nil, unsupportedInclude(raw, "revinclude target must be %s", primaryType)
		}
		entries = append(entries, IncludeEntry{
			SourceType:   primaryType,
			Relationship: parts[1],
			TargetType:   parts[0],
			Direction:    Reverse,
		})
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return NewInclude(registry, entries...)
}

func splitIncludeSpec(raw string) ([3]string, error) {
	var out [3]string
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return out, unsupportedInclude(raw, "expected Type:param[:TargetType]")
	}
	if parts[1] == "*" {
		return out, unsupportedInclude(raw, "wildcard includes are not supported")
	}
	copy(out[:], parts)
	return out, nil
}

func (r *Registry) resolveEntry(e IncludeEntry) (IncludeEntry, error) {
	// The reference parameter lives on the resource that holds the reference.
	holder, pointee := e.SourceType, e.TargetType
	if e.Direction == Reverse {
		holder, pointee = e.TargetType, e.SourceType
	}
	def, ok := r.Param(holder, e.Relationship)
	if !ok || def.Type != ParamReference {
		return e, unsupportedInclude(e.String(), "%s has no reference parameter %q", holder, e.Relationship)
	}
	if pointee == "" {
		if len(def.Targets) != 1 {
			return e, unsupportedInclude(e.String(), "%s.%s needs an explicit target type", holder, e.Relationship)
		}
		pointee = def.Targets[0]
	} else if len(def.Targets) > 0 && !def.targets(pointee) {
		return e, unsupportedInclude(e.String(), "%s.%s does not reference %s", holder, e.Relationship, pointee)
	}
	if e.Direction == Reverse {
		e.SourceType = pointee
	} else {
		e.TargetType = pointee
	}
	loadType := e.TargetType
	if _, ok := r.Source(loadType); !ok {
		return e, unsupportedInclude(e.String(), "%s cannot be included", loadType)
	}
	return e, nil
}

// Entries returns the validated entries.
func (inc *Include) Entries() []IncludeEntry {
	if inc == nil {
		return nil
	}
	out := make([]IncludeEntry, len(inc.entries))
	copy(out, inc.entries)
	return out
}

// Resolve returns the resources to attach to a page whose primary results are
// primaries of primaryType. Primaries themselves are never returned, and every
// (type, id) pair appears at most once.
func (inc *Include) Resolve(ctx context.Context, primaryType string, primaries []Entity, logger zerolog.Logger) ([]Included, error) {
	if inc == nil || len(inc.entries) == 0 || len(primaries) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool, len(primaries))
	primaryIDs := make([]string, 0, len(primaries))
	for _, p := range primaries {
		id := p.EntityID()
		seen[primaryType+"/"+id] = true
		primaryIDs = append(primaryIDs, id)
	}

	var out []Included
	for _, e := range inc.entries {
		if e.SourceType != primaryType {
			continue
		}
		src, _ := inc.registry.Source(e.TargetType)

		var found []Included
		var err error
		switch e.Direction {
		case Forward:
			ids := forwardIDs(e, primaries, seen)
			if len(ids) == 0 {
				continue
			}
			found, err = src.Fetch(ctx, ids)
		case Reverse:
			found, err = src.Referencing(ctx, e.Relationship, primaryType, primaryIDs)
		}
		if err != nil {
			return nil, err
		}

		for _, f := range found {
			key := f.ResourceType + "/" + f.ID
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, f)
		}
		logger.Debug().
			Str("include", e.String()).
			Int("found", len(found)).
			Msg("include resolved")
	}
	return out, nil
}

// forwardIDs collects the distinct ids the primaries reference through the
// entry's relationship, skipping anything already seen.
func forwardIDs(e IncludeEntry, primaries []Entity, seen map[string]bool) []string {
	local := make(map[string]bool)
	var ids []string
	for _, p := range primaries {
		ref, ok := p.(Referencer)
		if !ok {
			continue
		}
		for _, id := range ref.ReferencedIDs(e.Relationship) {
			if id == "" || local[id] || seen[e.TargetType+"/"+id] {
				continue
			}
			local[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// daoSource adapts a typed DAO and Translator to Source.
type daoSource[D Entity] struct {
	dao    DAO[D]
	tr     Translator[D]
	logger zerolog.Logger
}

// NewSource wraps a DAO and Translator so the type can be included.
func NewSource[D Entity](dao DAO[D], tr Translator[D], logger zerolog.Logger) Source {
	return &daoSource[D]{dao: dao, tr: tr, logger: logger}
}

func (s *daoSource[D]) ResourceType() string { return s.dao.ResourceType() }

func (s *daoSource[D]) Fetch(ctx context.Context, ids []string) ([]Included, error) {
	entities, err := s.dao.GetByIdentifiers(ctx, ids)
	if err != nil {
		return nil, err
	}
	return s.translate(orderByIDs(ids, entities)), nil
}

func (s *daoSource[D]) Referencing(ctx context.Context, param, targetType string, ids []string) ([]Included, error) {
	refs := make(ReferenceOr, len(ids))
	for i, id := range ids {
		refs[i] = Reference{ResourceType: targetType, ID: id}
	}
	params := NewMapBuilder().AddParameter(param, refs).Build()
	matched, err := s.dao.SearchIdentifiers(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, nil
	}
	return s.Fetch(ctx, matched)
}

func (s *daoSource[D]) translate(entities []D) []Included {
	rt := s.dao.ResourceType()
	out := make([]Included, 0, len(entities))
	for _, ent := range entities {
		res, err := s.tr.ToResource(ent)
		if err != nil {
			s.logger.Warn().Err(err).
				Str("resource_type", rt).
				Str("id", ent.EntityID()).
				Msg("dropping included resource that failed to translate")
			continue
		}
		out = append(out, Included{ResourceType: rt, ID: ent.EntityID(), Resource: res})
	}
	return out
}

// orderByIDs returns entities in the order of ids, dropping ids with no entity
// and entities that were not requested.
func orderByIDs[D Entity](ids []string, entities []D) []D {
	byID := make(map[string]D, len(entities))
	for _, e := range entities {
		byID[e.EntityID()] = e
	}
	out := make([]D, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
			delete(byID, id)
		}
	}
	return out
}
