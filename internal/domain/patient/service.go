package patient

import (
	"context"

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

func (s *Service) Search(ctx context.Context, req *fhir.SearchRequest) (search.Provider, error) {
	p, err := search.GetQueryResultsWithInclude[*Patient](s.query, req.Params, s.repo, translator, req.Include)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Resume(ctx context.Context, token string, include *search.Include) (search.Provider, error) {
	p, err := search.ResumeQueryResults[*Patient](ctx, s.query, token, s.repo, translator, include)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Source makes patients loadable as included resources.
func (s *Service) Source(logger zerolog.Logger) search.Source {
	return search.NewSource[*Patient](s.repo, translator, logger)
}

func (s *Service) GetPatientByFHIRID(ctx context.Context, fhirID string) (*Patient, error) {
	return s.repo.GetByFHIRID(ctx, fhirID)
}

// ListPatients returns one page of patients whose name starts with name, or
// of all patients when name is empty.
func (s *Service) ListPatients(ctx context.Context, name string, pg pagination.Params) ([]*Patient, int, error) {
	b := search.NewMapBuilder()
	if name != "" {
		b.AddParameter("name", search.String{Value: name})
	}
	return fhir.ListEntities[*Patient](ctx, s.repo, b.Build(), pg.Window)
}
