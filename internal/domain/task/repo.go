package task

import (
	"context"

	"github.com/ehr/fhirsearch/internal/platform/search"
)

type Repository interface {
	search.DAO[*Task]
	GetByFHIRID(ctx context.Context, fhirID string) (*Task, error)
}
