package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// -- Fake entity --

type fakeEntity struct {
	id    string
	attrs map[string]string
	refs  map[string][]string
	bad   bool
}

func (e *fakeEntity) EntityID() string { return e.id }

func (e *fakeEntity) ReferencedIDs(param string) []string { return e.refs[param] }

func ent(id string) *fakeEntity {
	return &fakeEntity{id: id, attrs: map[string]string{}, refs: map[string][]string{}}
}

func (e *fakeEntity) with(attr, value string) *fakeEntity {
	e.attrs[attr] = value
	return e
}

func (e *fakeEntity) ref(param string, ids ...string) *fakeEntity {
	e.refs[param] = append(e.refs[param], ids...)
	return e
}

// -- Fake DAO --

type fakeDAO struct {
	mu       sync.Mutex
	rt       string
	rows     []*fakeEntity
	pageSize int
	err      error
	// ids, when set, replaces the identifier list SearchIdentifiers returns.
	ids []string

	searchCalls int
	countCalls  int
	getBatches  [][]string
	lastParams  *ParameterMap
}

func newFakeDAO(rt string, rows ...*fakeEntity) *fakeDAO {
	return &fakeDAO{rt: rt, rows: rows}
}

func (d *fakeDAO) ResourceType() string { return d.rt }

func (d *fakeDAO) SearchIdentifiers(_ context.Context, params *ParameterMap) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.searchCalls++
	d.lastParams = params
	if d.err != nil {
		return nil, d.err
	}
	if d.ids != nil {
		return append([]string(nil), d.ids...), nil
	}
	var ids []string
	for _, r := range d.rows {
		if matches(r, params) {
			ids = append(ids, r.id)
		}
	}
	return ids, nil
}

func (d *fakeDAO) GetByIdentifiers(_ context.Context, ids []string) ([]*fakeEntity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.getBatches = append(d.getBatches, ids)
	if d.err != nil {
		return nil, d.err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	// Deliberately reverse the order to prove the provider reorders.
	var out []*fakeEntity
	for i := len(d.rows) - 1; i >= 0; i-- {
		if want[d.rows[i].id] {
			out = append(out, d.rows[i])
		}
	}
	return out, nil
}

func (d *fakeDAO) ResultCount(_ context.Context, params *ParameterMap) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.countCalls++
	if d.err != nil {
		return 0, d.err
	}
	n := 0
	for _, r := range d.rows {
		if matches(r, params) {
			n++
		}
	}
	return n, nil
}

func (d *fakeDAO) PreferredPageSize() int { return d.pageSize }

// matches understands tokens and reference lists; everything else matches.
func matches(e *fakeEntity, params *ParameterMap) bool {
	for _, p := range params.All() {
		switch v := p.Value.(type) {
		case Token:
			if e.attrs[p.Handler] != v.Code {
				return false
			}
		case TokenOr:
			ok := false
			for _, t := range v {
				if e.attrs[p.Handler] == t.Code {
					ok = true
				}
			}
			if !ok {
				return false
			}
		case ReferenceOr:
			ok := false
			for _, r := range v {
				for _, id := range e.refs[p.Handler] {
					if id == r.ID {
						ok = true
					}
				}
			}
			if !ok {
				return false
			}
		}
	}
	return true
}

// -- Translator --

func fakeTranslator(rt string) Translator[*fakeEntity] {
	return TranslatorFunc[*fakeEntity](func(e *fakeEntity) (Resource, error) {
		if e.bad {
			return nil, fmt.Errorf("cannot translate %s", e.id)
		}
		return Resource{"resourceType": rt, "id": e.id}, nil
	})
}

// -- Cache --

type memCache struct {
	mu    sync.Mutex
	snaps map[string]*Snapshot
	puts  int
}

func newMemCache() *memCache { return &memCache{snaps: map[string]*Snapshot{}} }

func (c *memCache) GetSnapshot(_ context.Context, token string) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.snaps[token]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return s, nil
}

func (c *memCache) PutSnapshot(_ context.Context, token string, snap *Snapshot, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.snaps[token] = snap
	return nil
}

// -- Registry --

func testRegistry() *Registry {
	r := NewRegistry()
	r.RegisterParams("Patient",
		ParamDef{Name: "_id", Type: ParamToken},
		ParamDef{Name: "name", Type: ParamString},
		ParamDef{Name: "gender", Type: ParamToken},
		ParamDef{Name: "birthdate", Type: ParamDate},
		ParamDef{Name: "general-practitioner", Type: ParamReference, Targets: []string{"Practitioner"}},
	)
	r.RegisterParams("Practitioner",
		ParamDef{Name: "name", Type: ParamString},
	)
	r.RegisterParams("Observation",
		ParamDef{Name: "_id", Type: ParamToken},
		ParamDef{Name: "category", Type: ParamToken},
		ParamDef{Name: "code", Type: ParamToken},
		ParamDef{Name: "date", Type: ParamDate},
		ParamDef{Name: "value-quantity", Type: ParamQuantity},
		ParamDef{Name: "subject", Type: ParamReference, Targets: []string{"Patient", "Group"}},
		ParamDef{Name: "patient", Type: ParamReference, Targets: []string{"Patient"}},
		ParamDef{Name: "encounter", Type: ParamReference, Targets: []string{"Encounter"}},
	)
	r.RegisterParams("Encounter",
		ParamDef{Name: "status", Type: ParamToken},
		ParamDef{Name: "patient", Type: ParamReference, Targets: []string{"Patient"}},
	)
	return r
}

func testQuery(opts ...Option) *Query {
	return NewQuery(testRegistry(), nil, zerolog.Nop(), opts...)
}

func idsOf(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
