package observation

import (
	"context"

	"github.com/ehr/fhirsearch/internal/platform/search"
)

type Repository interface {
	search.DAO[*Observation]
	GetByFHIRID(ctx context.Context, fhirID string) (*Observation, error)
}
