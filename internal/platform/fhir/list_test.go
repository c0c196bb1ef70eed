package fhir

import (
	"context"
	"errors"
	"testing"

	"github.com/ehr/fhirsearch/internal/platform/search"
)

type listEntity string

func (e listEntity) EntityID() string { return string(e) }

type listDAO struct {
	ids      []string
	fetchErr error
	fetched  []string
}

func (d *listDAO) ResourceType() string { return "Patient" }

func (d *listDAO) SearchIdentifiers(context.Context, *search.ParameterMap) ([]string, error) {
	return d.ids, nil
}

// GetByIdentifiers returns rows in reverse and drops "gone".
func (d *listDAO) GetByIdentifiers(_ context.Context, ids []string) ([]listEntity, error) {
	d.fetched = ids
	if d.fetchErr != nil {
		return nil, d.fetchErr
	}
	var out []listEntity
	for i := len(ids) - 1; i >= 0; i-- {
		if ids[i] != "gone" {
			out = append(out, listEntity(ids[i]))
		}
	}
	return out, nil
}

func (d *listDAO) ResultCount(context.Context, *search.ParameterMap) (int, error) {
	return len(d.ids), nil
}

func (d *listDAO) PreferredPageSize() int { return 0 }

func window(offset, limit int) func(int) (int, int) {
	return func(n int) (int, int) {
		start, end := offset, offset+limit
		if start > n {
			start = n
		}
		if end > n {
			end = n
		}
		return start, end
	}
}

func TestListEntities(t *testing.T) {
	dao := &listDAO{ids: []string{"a", "b", "gone", "d", "e"}}

	got, total, err := ListEntities[listEntity](context.Background(), dao, &search.ParameterMap{}, window(1, 3))
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 {
		t.Errorf("total = %d", total)
	}
	if len(dao.fetched) != 3 || dao.fetched[0] != "b" {
		t.Errorf("fetched = %v", dao.fetched)
	}
	want := []listEntity{"b", "d"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestListEntities_PastEnd(t *testing.T) {
	dao := &listDAO{ids: []string{"a"}}
	got, total, err := ListEntities[listEntity](context.Background(), dao, &search.ParameterMap{}, window(5, 10))
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(got) != 0 || got == nil {
		t.Errorf("got %v (total %d)", got, total)
	}
	if dao.fetched != nil {
		t.Error("nothing should be fetched past the end")
	}
}

func TestListEntities_FetchError(t *testing.T) {
	dao := &listDAO{ids: []string{"a"}, fetchErr: errors.New("boom")}
	if _, _, err := ListEntities[listEntity](context.Background(), dao, &search.ParameterMap{}, window(0, 10)); err == nil {
		t.Error("expected error")
	}
}
