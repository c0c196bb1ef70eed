package fhir

import (
	"context"

	"github.com/ehr/fhirsearch/internal/platform/search"
)

// ListEntities returns the matches of params selected by window, in search
// order, together with the total number of matches. It backs the
// operational list endpoints, which return domain records rather than FHIR
// resources.
func ListEntities[D search.Entity](ctx context.Context, dao search.DAO[D], params *search.ParameterMap, window func(n int) (int, int)) ([]D, int, error) {
	ids, err := dao.SearchIdentifiers(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total := len(ids)
	start, end := window(total)
	if start >= end {
		return []D{}, total, nil
	}
	ids = ids[start:end]
	items, err := dao.GetByIdentifiers(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	byID := make(map[string]D, len(items))
	for _, it := range items {
		byID[it.EntityID()] = it
	}
	out := make([]D, 0, len(ids))
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			out = append(out, it)
		}
	}
	return out, total, nil
}
