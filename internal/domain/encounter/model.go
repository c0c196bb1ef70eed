package encounter

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/fhirsearch/internal/platform/fhir"
	"github.com/ehr/fhirsearch/internal/platform/search"
	"github.com/ehr/fhirsearch/pkg/fhirmodels"
)

// Encounter maps to the encounter table.
type Encounter struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	FHIRID       string     `db:"fhir_id" json:"fhir_id"`
	Status       string     `db:"status" json:"status"`
	ClassCode    string     `db:"class_code" json:"class_code"`
	ClassDisplay *string    `db:"class_display" json:"class_display,omitempty"`
	TypeCode     *string    `db:"type_code" json:"type_code,omitempty"`
	TypeDisplay  *string    `db:"type_display" json:"type_display,omitempty"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	PeriodStart  time.Time  `db:"period_start" json:"period_start"`
	PeriodEnd    *time.Time `db:"period_end" json:"period_end,omitempty"`
	ReasonText   *string    `db:"reason_text" json:"reason_text,omitempty"`
	VersionID    int        `db:"version_id" json:"version_id"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	PatientRef   string     `db:"patient_ref" json:"-"`
}

func (e *Encounter) EntityID() string { return e.ID.String() }

// ReferencedIDs returns the patient an encounter belongs to.
func (e *Encounter) ReferencedIDs(param string) []string {
	switch param {
	case "patient", "subject":
		return []string{e.PatientID.String()}
	}
	return nil
}

func (e *Encounter) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "Encounter",
		"id":           e.FHIRID,
		"status":       e.Status,
		"class": fhir.Coding{
			System:  fhirmodels.SystemActCode,
			Code:    e.ClassCode,
			Display: strPtrVal(e.ClassDisplay),
		},
		"subject": fhir.Reference{
			Reference: fhir.FormatReference("Patient", fhir.ReferenceID(e.PatientRef, e.PatientID)),
		},
		"period": fhir.Period{
			Start: &e.PeriodStart,
			End:   e.PeriodEnd,
		},
		"meta": fhir.Meta{
			VersionID:   fmt.Sprintf("%d", e.VersionID),
			LastUpdated: e.UpdatedAt,
			Profile:     []string{"http://hl7.org/fhir/us/core/StructureDefinition/us-core-encounter"},
		},
	}

	if e.TypeCode != nil {
		result["type"] = []fhir.CodeableConcept{
			{Coding: []fhir.Coding{{Code: *e.TypeCode, Display: strPtrVal(e.TypeDisplay)}}},
		}
	}

	if e.ReasonText != nil {
		result["reasonCode"] = []fhir.CodeableConcept{
			{Text: *e.ReasonText},
		}
	}

	return result
}

// ToResource translates an encounter for a search bundle. Rows with a status
// outside the R4 value set are not representable.
func ToResource(e *Encounter) (search.Resource, error) {
	if !fhirmodels.EncounterStatuses.Contains(e.Status) {
		return nil, fmt.Errorf("encounter %s: invalid status %q", e.FHIRID, e.Status)
	}
	return e.ToFHIR(), nil
}

var translator = search.TranslatorFunc[*Encounter](ToResource)

func strPtrVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
