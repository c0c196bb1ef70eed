package observation

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

func (s *Service) Search(ctx context.Context, req *fhir.SearchRequest) (search.Provider, error) {
	p, err := search.GetQueryResultsWithInclude[*Observation](s.query, req.Params, s.repo, translator, req.Include)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Resume(ctx context.Context, token string, include *search.Include) (search.Provider, error) {
	p, err := search.ResumeQueryResults[*Observation](ctx, s.query, token, s.repo, translator, include)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Source(logger zerolog.Logger) search.Source {
	return search.NewSource[*Observation](s.repo, translator, logger)
}

func (s *Service) GetObservationByFHIRID(ctx context.Context, fhirID string) (*Observation, error) {
	return s.repo.GetByFHIRID(ctx, fhirID)
}

// ListObservations returns one page of observations, optionally narrowed to a
// patient and a code.
func (s *Service) ListObservations(ctx context.Context, patientID *uuid.UUID, code string, pg pagination.Params) ([]*Observation, int, error) {
	b := search.NewMapBuilder()
	if patientID != nil {
		b.AddParameter("patient", search.Reference{ResourceType: "Patient", ID: patientID.String()})
	}
	if code != "" {
		b.AddParameter("code", fhir.ParseToken(code))
	}
	return fhir.ListEntities[*Observation](ctx, s.repo, b.Build(), pg.Window)
}
