package search

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Query turns a ParameterMap into a BundleProvider. A Query holds only
// request-independent collaborators and may be shared; everything derived
// from a request lives in the BundleProvider it returns.
type Query struct {
	registry *Registry
	props    PropertySource
	logger   zerolog.Logger
	cache    IDCache
	cacheTTL time.Duration
	now      func() time.Time
	newID    func() string
}

// Option configures a Query.
type Option func(*Query)

// WithIDCache stores each provider's id list under its identity for ttl so
// later requests can resume paging over the same results.
func WithIDCache(cache IDCache, ttl time.Duration) Option {
	return func(q *Query) {
		q.cache = cache
		q.cacheTTL = ttl
	}
}

// withClock overrides the publication clock.
func withClock(now func() time.Time) Option {
	return func(q *Query) { q.now = now }
}

// NewQuery creates a Query. A nil registry disables parameter validation.
func NewQuery(registry *Registry, props PropertySource, logger zerolog.Logger, opts ...Option) *Query {
	q := &Query{
		registry: registry,
		props:    props,
		logger:   logger.With().Str("component", "search").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Registry returns the registry the query validates against.
func (q *Query) Registry() *Registry { return q.registry }

// GetQueryResults validates params and returns a lazy provider over the
// matching entities. No backend work happens until the provider is used.
func GetQueryResults[D Entity](q *Query, params *ParameterMap, dao DAO[D], tr Translator[D]) (*BundleProvider[D], error) {
	return GetQueryResultsWithInclude(q, params, dao, tr, nil)
}

// GetQueryResultsWithInclude is GetQueryResults with include expansion applied
// to every page.
func GetQueryResultsWithInclude[D Entity](q *Query, params *ParameterMap, dao DAO[D], tr Translator[D], include *Include) (*BundleProvider[D], error) {
	pruned := params.Prune()
	if q.registry != nil {
		if err := q.registry.ValidateParams(dao.ResourceType(), pruned); err != nil {
			return nil, err
		}
	}
	for _, e := range include.Entries() {
		if e.SourceType != dao.ResourceType() {
			return nil, unsupportedInclude(e.String(), "primary results are %s", dao.ResourceType())
		}
	}
	return newBundleProvider(q, pruned, dao, tr, include, q.newID(), q.now()), nil
}

// ResumeQueryResults rebuilds the provider identified by token from the id
// cache. It returns ErrSnapshotNotFound when no cache is configured, the
// token is unknown or expired, or the snapshot belongs to another type.
func ResumeQueryResults[D Entity](ctx context.Context, q *Query, token string, dao DAO[D], tr Translator[D], include *Include) (*BundleProvider[D], error) {
	if q.cache == nil || token == "" {
		return nil, ErrSnapshotNotFound
	}
	snap, err := q.cache.GetSnapshot(ctx, token)
	if err != nil {
		return nil, err
	}
	if snap == nil || snap.ResourceType != dao.ResourceType() {
		return nil, ErrSnapshotNotFound
	}
	for _, e := range include.Entries() {
		if e.SourceType != dao.ResourceType() {
			return nil, unsupportedInclude(e.String(), "primary results are %s", dao.ResourceType())
		}
	}

	p := newBundleProvider(q, &ParameterMap{}, dao, tr, include, token, snap.Published)
	p.ids.set(snap.IDs)
	p.count.set(snap.Total)
	// Already cached under this token.
	p.snapOnce.Do(func() {})
	q.logger.Debug().
		Str("resource_type", snap.ResourceType).
		Str("token", token).
		Int("ids", len(snap.IDs)).
		Msg("resumed search from snapshot")
	return p, nil
}

func (q *Query) maxPageSize() (int, bool) {
	return intProperty(q.props, PropMaxPageSize)
}
