package patient

import (
	"context"

	"github.com/ehr/fhirsearch/internal/platform/search"
)

type Repository interface {
	search.DAO[*Patient]
	GetByFHIRID(ctx context.Context, fhirID string) (*Patient, error)
}
