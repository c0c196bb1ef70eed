package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/fhirsearch/internal/platform/fhir"
	"github.com/ehr/fhirsearch/internal/platform/search"
	"github.com/ehr/fhirsearch/pkg/fhirmodels"
)

// Task maps to the task table (FHIR Task resource).
type Task struct {
	ID           uuid.UUID        `db:"id" json:"id"`
	FHIRID       string           `db:"fhir_id" json:"fhir_id"`
	Status       string           `db:"status" json:"status"`
	StatusReason *string          `db:"status_reason" json:"status_reason,omitempty"`
	Intent       string           `db:"intent" json:"intent"`
	Priority     *string          `db:"priority" json:"priority,omitempty"`
	CodeValue    *string          `db:"code_value" json:"code_value,omitempty"`
	CodeDisplay  *string          `db:"code_display" json:"code_display,omitempty"`
	CodeSystem   *string          `db:"code_system" json:"code_system,omitempty"`
	Description  *string          `db:"description" json:"description,omitempty"`
	ForPatientID uuid.UUID        `db:"for_patient_id" json:"for_patient_id"`
	EncounterID  *uuid.UUID       `db:"encounter_id" json:"encounter_id,omitempty"`
	AuthoredOn   *time.Time       `db:"authored_on" json:"authored_on,omitempty"`
	LastModified *time.Time       `db:"last_modified" json:"last_modified,omitempty"`
	Note         *string          `db:"note" json:"note,omitempty"`
	InputJSON    *json.RawMessage `db:"input_json" json:"input_json,omitempty"`
	VersionID    int              `db:"version_id" json:"version_id"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
	PatientRef   string           `db:"patient_ref" json:"-"`
	EncounterRef *string          `db:"encounter_ref" json:"-"`
}

func (t *Task) EntityID() string { return t.ID.String() }

// ReferencedIDs returns the patient or encounter a task is for.
func (t *Task) ReferencedIDs(param string) []string {
	switch param {
	case "patient", "subject":
		return []string{t.ForPatientID.String()}
	case "encounter":
		if t.EncounterID != nil {
			return []string{t.EncounterID.String()}
		}
	}
	return nil
}

// ToFHIR builds the Task resource. A malformed input column is an error.
func (t *Task) ToFHIR() (map[string]interface{}, error) {
	result := map[string]interface{}{
		"resourceType": "Task",
		"id":           t.FHIRID,
		"status":       t.Status,
		"intent":       t.Intent,
		"for":          fhir.Reference{Reference: fhir.FormatReference("Patient", fhir.ReferenceID(t.PatientRef, t.ForPatientID))},
		"meta": fhir.Meta{
			VersionID:   fmt.Sprintf("%d", t.VersionID),
			LastUpdated: t.UpdatedAt,
		},
	}

	if t.StatusReason != nil {
		result["statusReason"] = fhir.CodeableConcept{Text: *t.StatusReason}
	}
	if t.Priority != nil {
		result["priority"] = *t.Priority
	}
	if t.CodeValue != nil {
		result["code"] = fhir.CodeableConcept{
			Coding: []fhir.Coding{{
				System:  strVal(t.CodeSystem),
				Code:    *t.CodeValue,
				Display: strVal(t.CodeDisplay),
			}},
		}
	}
	if t.Description != nil {
		result["description"] = *t.Description
	}
	if t.EncounterID != nil {
		result["encounter"] = fhir.Reference{Reference: fhir.FormatReference("Encounter", fhir.ReferenceID(strVal(t.EncounterRef), *t.EncounterID))}
	}
	if t.AuthoredOn != nil {
		result["authoredOn"] = t.AuthoredOn.Format(time.RFC3339)
	}
	if t.LastModified != nil {
		result["lastModified"] = t.LastModified.Format(time.RFC3339)
	}
	if t.Note != nil {
		result["note"] = []map[string]string{{"text": *t.Note}}
	}
	if t.InputJSON != nil {
		var inputs []interface{}
		if err := json.Unmarshal(*t.InputJSON, &inputs); err != nil {
			return nil, fmt.Errorf("task %s: decode input: %w", t.FHIRID, err)
		}
		result["input"] = inputs
	}

	return result, nil
}

// ToResource translates a task for a search bundle.
func ToResource(t *Task) (search.Resource, error) {
	if !fhirmodels.TaskStatuses.Contains(t.Status) {
		return nil, fmt.Errorf("task %s: invalid status %q", t.FHIRID, t.Status)
	}
	if !fhirmodels.TaskIntents.Contains(t.Intent) {
		return nil, fmt.Errorf("task %s: invalid intent %q", t.FHIRID, t.Intent)
	}
	return t.ToFHIR()
}

var translator = search.TranslatorFunc[*Task](ToResource)

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
