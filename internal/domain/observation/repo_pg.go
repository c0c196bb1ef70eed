package observation

import (
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/fhirsearch/internal/platform/fhir"
	"github.com/ehr/fhirsearch/internal/platform/search"
)

var obsCols = `id, fhir_id, status, category_code, category_display,
	code_system, code_value, code_display, patient_id, encounter_id, effective_datetime,
	value_quantity, value_unit, value_system, value_code, value_string,
	interpretation_code, note, version_id, created_at, updated_at, ` +
	fhir.ReferenceColumn("observation", "patient_id", "patient") + ", " +
	fhir.ReferenceColumn("observation", "encounter_id", "encounter")

var table = &fhir.TableDef{
	ResourceType: "Observation",
	Table:        "observation",
	SelectCols:   obsCols,
	DefaultOrder: "effective_datetime DESC",
	LastUpdated:  "updated_at",
	Visibility:   "status <> 'entered-in-error'",
	Params: []fhir.SearchParamConfig{
		{Name: "code", Type: search.ParamToken, Column: "code_value", SysColumn: "code_system"},
		{Name: "category", Type: search.ParamToken, Column: "category_code"},
		{Name: "status", Type: search.ParamToken, Column: "status"},
		{Name: "interpretation", Type: search.ParamToken, Column: "interpretation_code"},
		{Name: "date", Type: search.ParamDate, Column: "effective_datetime"},
		{Name: "value-quantity", Type: search.ParamQuantity, Column: "value_quantity", UnitColumn: "value_code"},
		{Name: "value-string", Type: search.ParamString, Column: "value_string"},
		{Name: "patient", Type: search.ParamReference, Column: "patient_id", Targets: []string{"Patient"}},
		{Name: "subject", Type: search.ParamReference, Column: "patient_id", Targets: []string{"Patient"}},
		{Name: "encounter", Type: search.ParamReference, Column: "encounter_id", Targets: []string{"Encounter"}},
	},
}

// Table describes how observations are stored and searched. Observations
// entered in error are never returned.
func Table() *fhir.TableDef { return table }

// NewRepo returns the Postgres repository. schema must include Table().
func NewRepo(pool *pgxpool.Pool, schema *fhir.Schema) Repository {
	return fhir.NewPGTable[*Observation](pool, schema, table, scanObs)
}

func scanObs(row pgx.Row) (*Observation, error) {
	var o Observation
	err := row.Scan(
		&o.ID, &o.FHIRID, &o.Status, &o.CategoryCode, &o.CategoryDisplay,
		&o.CodeSystem, &o.CodeValue, &o.CodeDisplay, &o.PatientID, &o.EncounterID, &o.EffectiveDatetime,
		&o.ValueQuantity, &o.ValueUnit, &o.ValueSystem, &o.ValueCode, &o.ValueString,
		&o.InterpretationCode, &o.Note, &o.VersionID, &o.CreatedAt, &o.UpdatedAt,
		&o.PatientRef, &o.EncounterRef,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
