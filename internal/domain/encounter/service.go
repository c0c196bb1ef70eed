package encounter

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/fhirsearch/internal/platform/fhir"
	"github.com/ehr/fhirsearch/internal/platform/search"
	"github.com/ehr/fhirsearch/pkg/pagination"
)

type Service struct {
	repo  Repository
	query *search.Query
}

func NewService(repo Repository, query *search.Query) *Service {
	return &Service{repo: repo, query: query}
}

// Search implements fhir.Searcher.
func (s *Service) Search(ctx context.Context, req *fhir.SearchRequest) (search.Provider, error) {
	p, err := search.GetQueryResultsWithInclude[*Encounter](s.query, req.Params, s.repo, translator, req.Include)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Resume implements fhir.Searcher.
func (s *Service) Resume(ctx context.Context, token string, include *search.Include) (search.Provider, error) {
	p, err := search.ResumeQueryResults[*Encounter](ctx, s.query, token, s.repo, translator, include)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Source makes encounters loadable as included resources.
func (s *Service) Source(logger zerolog.Logger) search.Source {
	return search.NewSource[*Encounter](s.repo, translator, logger)
}

func (s *Service) GetEncounterByFHIRID(ctx context.Context, fhirID string) (*Encounter, error) {
	return s.repo.GetByFHIRID(ctx, fhirID)
}

// ListEncounters returns one page of encounters, optionally for one patient,
// in the default search order.
func (s *Service) ListEncounters(ctx context.Context, patientID *uuid.UUID, pg pagination.Params) ([]*Encounter, int, error) {
	b := search.NewMapBuilder()
	if patientID != nil {
		b.AddParameter("patient", search.Reference{ResourceType: "Patient", ID: patientID.String()})
	}
	return fhir.ListEntities[*Encounter](ctx, s.repo, b.Build(), pg.Window)
}
