package task

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
	p, err := search.GetQueryResultsWithInclude[*Task](s.query, req.Params, s.repo, translator, req.Include)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Resume(ctx context.Context, token string, include *search.Include) (search.Provider, error) {
	p, err := search.ResumeQueryResults[*Task](ctx, s.query, token, s.repo, translator, include)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Source(logger zerolog.Logger) search.Source {
	return search.NewSource[*Task](s.repo, translator, logger)
}

func (s *Service) GetTaskByFHIRID(ctx context.Context, fhirID string) (*Task, error) {
	return s.repo.GetByFHIRID(ctx, fhirID)
}

// ListTasks returns one page of a patient's tasks, optionally in one status.
func (s *Service) ListTasks(ctx context.Context, patientID *uuid.UUID, status string, pg pagination.Params) ([]*Task, int, error) {
	b := search.NewMapBuilder()
	if patientID != nil {
		b.AddParameter("patient", search.Reference{ResourceType: "Patient", ID: patientID.String()})
	}
	if status != "" {
		b.AddParameter("status", search.Token{Code: status})
	}
	return fhir.ListEntities[*Task](ctx, s.repo, b.Build(), pg.Window)
}
