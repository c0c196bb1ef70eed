package observation

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/fhirsearch/internal/platform/fhir"
	"github.com/ehr/fhirsearch/internal/platform/search"
	"github.com/ehr/fhirsearch/pkg/fhirmodels"
)

// Observation maps to the observation table.
type Observation struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	FHIRID             string     `db:"fhir_id" json:"fhir_id"`
	Status             string     `db:"status" json:"status"`
	CategoryCode       *string    `db:"category_code" json:"category_code,omitempty"`
	CategoryDisplay    *string    `db:"category_display" json:"category_display,omitempty"`
	CodeSystem         *string    `db:"code_system" json:"code_system,omitempty"`
	CodeValue          string     `db:"code_value" json:"code_value"`
	CodeDisplay        string     `db:"code_display" json:"code_display"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	EncounterID        *uuid.UUID `db:"encounter_id" json:"encounter_id,omitempty"`
	EffectiveDatetime  *time.Time `db:"effective_datetime" json:"effective_datetime,omitempty"`
	ValueQuantity      *float64   `db:"value_quantity" json:"value_quantity,omitempty"`
	ValueUnit          *string    `db:"value_unit" json:"value_unit,omitempty"`
	ValueSystem        *string    `db:"value_system" json:"value_system,omitempty"`
	ValueCode          *string    `db:"value_code" json:"value_code,omitempty"`
	ValueString        *string    `db:"value_string" json:"value_string,omitempty"`
	InterpretationCode *string    `db:"interpretation_code" json:"interpretation_code,omitempty"`
	Note               *string    `db:"note" json:"note,omitempty"`
	VersionID          int        `db:"version_id" json:"version_id"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`

	// fhir_id of the referenced rows.
	PatientRef   string  `db:"patient_ref" json:"-"`
	EncounterRef *string `db:"encounter_ref" json:"-"`
}

func (o *Observation) EntityID() string { return o.ID.String() }

// ReferencedIDs returns the patient or encounter an observation points at.
func (o *Observation) ReferencedIDs(param string) []string {
	switch param {
	case "patient", "subject":
		return []string{o.PatientID.String()}
	case "encounter":
		if o.EncounterID != nil {
			return []string{o.EncounterID.String()}
		}
	}
	return nil
}

func (o *Observation) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "Observation",
		"id":           o.FHIRID,
		"status":       o.Status,
		"code": fhir.CodeableConcept{
			Coding: []fhir.Coding{{
				System:  strVal(o.CodeSystem),
				Code:    o.CodeValue,
				Display: o.CodeDisplay,
			}},
		},
		"subject": fhir.Reference{Reference: fhir.FormatReference("Patient", fhir.ReferenceID(o.PatientRef, o.PatientID))},
		"meta": fhir.Meta{
			VersionID:   fmt.Sprintf("%d", o.VersionID),
			LastUpdated: o.UpdatedAt,
		},
	}
	if o.CategoryCode != nil {
		result["category"] = []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{
				System:  fhirmodels.SystemObservationCategory,
				Code:    *o.CategoryCode,
				Display: strVal(o.CategoryDisplay),
			}},
		}}
	}
	if o.EffectiveDatetime != nil {
		result["effectiveDateTime"] = o.EffectiveDatetime.Format(time.RFC3339)
	}
	if o.ValueQuantity != nil {
		result["valueQuantity"] = fhir.Quantity{
			Value:  *o.ValueQuantity,
			Unit:   strVal(o.ValueUnit),
			System: strVal(o.ValueSystem),
			Code:   strVal(o.ValueCode),
		}
	} else if o.ValueString != nil {
		result["valueString"] = *o.ValueString
	}
	if o.InterpretationCode != nil {
		result["interpretation"] = []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{Code: *o.InterpretationCode}},
		}}
	}
	if o.EncounterID != nil {
		result["encounter"] = fhir.Reference{Reference: fhir.FormatReference("Encounter", fhir.ReferenceID(strVal(o.EncounterRef), *o.EncounterID))}
	}
	if o.Note != nil {
		result["note"] = []map[string]string{{"text": *o.Note}}
	}
	return result
}

// ToResource translates an observation for a search bundle.
func ToResource(o *Observation) (search.Resource, error) {
	if !fhirmodels.ObservationStatuses.Contains(o.Status) {
		return nil, fmt.Errorf("observation %s: invalid status %q", o.FHIRID, o.Status)
	}
	if o.CodeValue == "" {
		return nil, fmt.Errorf("observation %s: missing code", o.FHIRID)
	}
	return o.ToFHIR(), nil
}

var translator = search.TranslatorFunc[*Observation](ToResource)

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
