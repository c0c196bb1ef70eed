package task

import (
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/fhirsearch/internal/platform/fhir"
	"github.com/ehr/fhirsearch/internal/platform/search"
)

var taskCols = `id, fhir_id, status, status_reason, intent, priority,
	code_value, code_display, code_system, description, for_patient_id, encounter_id,
	authored_on, last_modified, note, input_json, version_id, created_at, updated_at, ` +
	fhir.ReferenceColumn("task", "for_patient_id", "patient") + ", " +
	fhir.ReferenceColumn("task", "encounter_id", "encounter")

var table = &fhir.TableDef{
	ResourceType: "Task",
	Table:        "task",
	SelectCols:   taskCols,
	DefaultOrder: "authored_on DESC",
	LastUpdated:  "updated_at",
	Visibility:   "status <> 'entered-in-error'",
	PageSize:     25,
	Params: []fhir.SearchParamConfig{
		{Name: "status", Type: search.ParamToken, Column: "status"},
		{Name: "intent", Type: search.ParamToken, Column: "intent"},
		{Name: "priority", Type: search.ParamToken, Column: "priority"},
		{Name: "code", Type: search.ParamToken, Column: "code_value", SysColumn: "code_system"},
		{Name: "description", Type: search.ParamString, Column: "description"},
		{Name: "authored-on", Type: search.ParamDate, Column: "authored_on"},
		{Name: "modified", Type: search.ParamDate, Column: "last_modified"},
		{Name: "patient", Type: search.ParamReference, Column: "for_patient_id", Targets: []string{"Patient"}},
		{Name: "subject", Type: search.ParamReference, Column: "for_patient_id", Targets: []string{"Patient"}},
		{Name: "encounter", Type: search.ParamReference, Column: "encounter_id", Targets: []string{"Encounter"}},
	},
}

// Table describes how tasks are stored and searched.
func Table() *fhir.TableDef { return table }

// NewRepo returns the Postgres repository. schema must include Table().
func NewRepo(pool *pgxpool.Pool, schema *fhir.Schema) Repository {
	return fhir.NewPGTable[*Task](pool, schema, table, scanTask)
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(
		&t.ID, &t.FHIRID, &t.Status, &t.StatusReason, &t.Intent, &t.Priority,
		&t.CodeValue, &t.CodeDisplay, &t.CodeSystem, &t.Description, &t.ForPatientID, &t.EncounterID,
		&t.AuthoredOn, &t.LastModified, &t.Note, &t.InputJSON, &t.VersionID, &t.CreatedAt, &t.UpdatedAt,
		&t.PatientRef, &t.EncounterRef,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
