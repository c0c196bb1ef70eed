package encounter

import (
	"context"

	"github.com/ehr/fhirsearch/internal/platform/search"
)

// Repository is the search DAO for encounters plus a read by FHIR id.
type Repository interface {
	search.DAO[*Encounter]
	GetByFHIRID(ctx context.Context, fhirID string) (*Encounter, error)
}
