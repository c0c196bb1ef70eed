package search

import (
	"context"
	"sync"
	"time"
)

// EntryMode says why a resource is on a page.
type EntryMode string

const (
	ModeMatch   EntryMode = "match"
	ModeInclude EntryMode = "include"
)

// Entry is one resource on a page.
type Entry struct {
	ResourceType string
	ID           string
	Resource     Resource
	Mode         EntryMode
}

// Page is a window of search results. Matches come first, in result order,
// followed by included resources.
type Page struct {
	Offset  int
	Limit   int
	Entries []Entry
	// Excluded lists the ids in the window that could not be translated. The
	// total count still includes them.
	Excluded []string
}

// Matches returns the primary results of the page.
func (p *Page) Matches() []Entry {
	return p.byMode(ModeMatch)
}

// Includes returns the included resources of the page.
func (p *Page) Includes() []Entry {
	return p.byMode(ModeInclude)
}

// Partial reports whether some results in the window were dropped.
func (p *Page) Partial() bool { return len(p.Excluded) > 0 }

func (p *Page) byMode(mode EntryMode) []Entry {
	var out []Entry
	for _, e := range p.Entries {
		if e.Mode == mode {
			out = append(out, e)
		}
	}
	return out
}

// memo holds a value computed at most once. Failed loads are not remembered.
type memo[T any] struct {
	mu   sync.Mutex
	done bool
	val  T
}

func (m *memo[T]) get(load func() (T, error)) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return m.val, nil
	}
	v, err := load()
	if err != nil {
		var zero T
		return zero, err
	}
	m.val, m.done = v, true
	return v, nil
}

func (m *memo[T]) set(v T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.val, m.done = v, true
}

func (m *memo[T]) peek() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.val, m.done
}

// BundleProvider is a lazy, paginated view over one search. The id list and
// the count are each fetched once and reused, so every page of a provider is
// cut from the same ordered result.
type BundleProvider[D Entity] struct {
	q         *Query
	params    *ParameterMap
	dao       DAO[D]
	tr        Translator[D]
	include   *Include
	identity  string
	published time.Time

	ids      memo[[]string]
	count    memo[int]
	snapOnce sync.Once
}

func newBundleProvider[D Entity](q *Query, params *ParameterMap, dao DAO[D], tr Translator[D], include *Include, identity string, published time.Time) *BundleProvider[D] {
	return &BundleProvider[D]{
		q:         q,
		params:    params,
		dao:       dao,
		tr:        tr,
		include:   include,
		identity:  identity,
		published: published,
	}
}

// ResourceType returns the type of the primary results.
func (p *BundleProvider[D]) ResourceType() string { return p.dao.ResourceType() }

// Params returns the pruned parameter map the provider searches with.
func (p *BundleProvider[D]) Params() *ParameterMap { return p.params }

// Identity returns the token identifying this provider. It does not change
// for the provider's lifetime and doubles as the paging snapshot key.
func (p *BundleProvider[D]) Identity() string { return p.identity }

// Published returns the time the search was created.
func (p *BundleProvider[D]) Published() time.Time { return p.published }

// PreferredPageSize returns the configured default page size, falling back to
// the DAO's preference.
func (p *BundleProvider[D]) PreferredPageSize() (int, bool) {
	if n, ok := intProperty(p.q.props, PropDefaultPageSize); ok {
		return n, true
	}
	if n := p.dao.PreferredPageSize(); n > 0 {
		return n, true
	}
	return 0, false
}

// Count returns the number of primary matches.
func (p *BundleProvider[D]) Count(ctx context.Context) (int, error) {
	return p.count.get(func() (int, error) {
		return p.dao.ResultCount(ctx, p.params)
	})
}

func (p *BundleProvider[D]) identifiers(ctx context.Context) ([]string, error) {
	ids, err := p.ids.get(func() ([]string, error) {
		ids, err := p.dao.SearchIdentifiers(ctx, p.params)
		if err != nil {
			return nil, err
		}
		return dedupe(ids), nil
	})
	if err != nil {
		return nil, err
	}
	p.storeSnapshot(ctx, ids)
	return ids, nil
}

// dedupe drops repeated ids, keeping the first occurrence, so a resource
// reached by several joined rows lands on exactly one page.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (p *BundleProvider[D]) storeSnapshot(ctx context.Context, ids []string) {
	if p.q.cache == nil {
		return
	}
	p.snapOnce.Do(func() { p.putSnapshot(ctx, ids) })
}

func (p *BundleProvider[D]) putSnapshot(ctx context.Context, ids []string) {
	total, ok := p.count.peek()
	if !ok {
		total = len(ids)
	}
	snap := &Snapshot{
		ResourceType: p.dao.ResourceType(),
		ParamsKey:    p.params.Key(),
		IDs:          ids,
		Total:        total,
		Published:    p.published,
	}
	if err := p.q.cache.PutSnapshot(ctx, p.identity, snap, p.q.cacheTTL); err != nil {
		p.q.logger.Warn().Err(err).
			Str("token", p.identity).
			Msg("failed to store search snapshot")
	}
}

// Page returns the results in [offset, offset+limit). Only the ids in that
// window are materialized. Entities that fail translation are logged and
// listed in Page.Excluded instead of failing the page. Backend errors are
// returned unchanged.
func (p *BundleProvider[D]) Page(ctx context.Context, offset, limit int) (*Page, error) {
	if offset < 0 {
		return nil, invalidParam("_offset", "must not be negative")
	}
	if limit < 0 {
		return nil, invalidParam("_count", "must not be negative")
	}
	if maxSize, ok := p.q.maxPageSize(); ok && limit > maxSize {
		limit = maxSize
	}
	page := &Page{Offset: offset, Limit: limit}

	ids, err := p.identifiers(ctx)
	if err != nil {
		return nil, err
	}
	if limit == 0 || offset >= len(ids) {
		return page, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	window := make([]string, end-offset)
	copy(window, ids[offset:end])

	entities, err := p.dao.GetByIdentifiers(ctx, window)
	if err != nil {
		return nil, err
	}
	ordered := orderByIDs(window, entities)

	rt := p.dao.ResourceType()
	primaries := make([]Entity, 0, len(ordered))
	returned := make(map[string]bool, len(ordered))
	for _, ent := range ordered {
		id := ent.EntityID()
		returned[id] = true
		res, err := p.tr.ToResource(ent)
		if err != nil {
			p.q.logger.Warn().Err(err).
				Str("resource_type", rt).
				Str("id", id).
				Msg("excluding resource that failed to translate")
			page.Excluded = append(page.Excluded, id)
			continue
		}
		page.Entries = append(page.Entries, Entry{ResourceType: rt, ID: id, Resource: res, Mode: ModeMatch})
		primaries = append(primaries, ent)
	}
	for _, id := range window {
		if !returned[id] {
			// Gone between the id lookup and materialization.
			p.q.logger.Debug().Str("resource_type", rt).Str("id", id).Msg("search result no longer available")
		}
	}

	if p.include != nil && len(primaries) > 0 {
		included, err := p.include.Resolve(ctx, rt, primaries, p.q.logger)
		if err != nil {
			return nil, err
		}
		for _, inc := range included {
			page.Entries = append(page.Entries, Entry{
				ResourceType: inc.ResourceType,
				ID:           inc.ID,
				Resource:     inc.Resource,
				Mode:         ModeInclude,
			})
		}
	}

	p.q.logger.Debug().
		Str("resource_type", rt).
		Str("search_id", p.identity).
		Int("offset", offset).
		Int("limit", limit).
		Int("entries", len(page.Entries)).
		Int("excluded", len(page.Excluded)).
		Msg("search page fetched")
	return page, nil
}

var _ Provider = (*BundleProvider[Entity])(nil)
