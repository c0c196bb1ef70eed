package search

import (
	"context"
	"strconv"
	"time"
)

// Resource is the external representation a Translator produces.
type Resource = map[string]interface{}

// Entity is a domain record that can be identified by the backend.
type Entity interface {
	EntityID() string
}

// Referencer is implemented by entities that can be followed by a forward
// include. ReferencedIDs returns the identifiers the named reference search
// parameter points at.
type Referencer interface {
	ReferencedIDs(param string) []string
}

// DAO executes ParameterMap-derived queries against storage for one entity
// type. Implementations own their visibility rules (retired, voided,
// entered-in-error records).
type DAO[D Entity] interface {
	ResourceType() string
	// SearchIdentifiers returns the ordered ids of every match. The order must
	// be stable across calls for the same parameters.
	SearchIdentifiers(ctx context.Context, params *ParameterMap) ([]string, error)
	// GetByIdentifiers materializes the given ids. Order of the result is not
	// significant and missing ids are silently absent.
	GetByIdentifiers(ctx context.Context, ids []string) ([]D, error)
	ResultCount(ctx context.Context, params *ParameterMap) (int, error)
	PreferredPageSize() int
}

// Translator maps one domain record to its external resource. It must be
// side-effect free; a failure only affects that record.
type Translator[D Entity] interface {
	ToResource(entity D) (Resource, error)
}

// TranslatorFunc adapts a function to a Translator.
type TranslatorFunc[D Entity] func(D) (Resource, error)

// ToResource calls f(entity).
func (f TranslatorFunc[D]) ToResource(entity D) (Resource, error) { return f(entity) }

// PropertySource is the read-only configuration the engine consults.
type PropertySource interface {
	Property(name string) (string, bool)
}

// Property names read by the engine.
const (
	PropDefaultPageSize = "fhir.paging.default"
	PropMaxPageSize     = "fhir.paging.max"
)

// MapProperties is a PropertySource backed by a map.
type MapProperties map[string]string

// Property implements PropertySource.
func (m MapProperties) Property(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

func intProperty(props PropertySource, name string) (int, bool) {
	if props == nil {
		return 0, false
	}
	raw, ok := props.Property(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Provider is the type-independent view of a BundleProvider consumed by
// endpoint handlers.
type Provider interface {
	ResourceType() string
	Count(ctx context.Context) (int, error)
	Page(ctx context.Context, offset, limit int) (*Page, error)
	PreferredPageSize() (int, bool)
	Identity() string
	Published() time.Time
}

// IDCache stores id lists so paging stays consistent across requests.
type IDCache interface {
	GetSnapshot(ctx context.Context, token string) (*Snapshot, error)
	PutSnapshot(ctx context.Context, token string, snap *Snapshot, ttl time.Duration) error
}

// Snapshot is the cached state of a provider: its id list and count.
type Snapshot struct {
	ResourceType string    `json:"resource_type"`
	ParamsKey    string    `json:"params_key"`
	IDs          []string  `json:"ids"`
	Total        int       `json:"total"`
	Published    time.Time `json:"published"`
}
