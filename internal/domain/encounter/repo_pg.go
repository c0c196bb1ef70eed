package encounter

import (
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/fhirsearch/internal/platform/fhir"
	"github.com/ehr/fhirsearch/internal/platform/search"
)

var encCols = `id, fhir_id, status, class_code, class_display, type_code, type_display,
	patient_id, period_start, period_end, reason_text, version_id, created_at, updated_at, ` +
	fhir.ReferenceColumn("encounter", "patient_id", "patient")

var table = &fhir.TableDef{
	ResourceType: "Encounter",
	Table:        "encounter",
	SelectCols:   encCols,
	DefaultOrder: "period_start DESC",
	LastUpdated:  "updated_at",
	Visibility:   "status <> 'entered-in-error'",
	Params: []fhir.SearchParamConfig{
		{Name: "status", Type: search.ParamToken, Column: "status"},
		{Name: "class", Type: search.ParamToken, Column: "class_code"},
		{Name: "type", Type: search.ParamToken, Column: "type_code"},
		{Name: "date", Type: search.ParamDate, Column: "period_start"},
		{Name: "reason", Type: search.ParamString, Column: "reason_text"},
		{Name: "patient", Type: search.ParamReference, Column: "patient_id", Targets: []string{"Patient"}},
		{Name: "subject", Type: search.ParamReference, Column: "patient_id", Targets: []string{"Patient"}},
	},
}

// Table describes how encounters are stored and searched.
func Table() *fhir.TableDef { return table }

// NewRepo returns the Postgres repository. schema must include Table().
func NewRepo(pool *pgxpool.Pool, schema *fhir.Schema) Repository {
	return fhir.NewPGTable[*Encounter](pool, schema, table, scanEnc)
}

func scanEnc(row pgx.Row) (*Encounter, error) {
	var e Encounter
	err := row.Scan(
		&e.ID, &e.FHIRID, &e.Status, &e.ClassCode, &e.ClassDisplay, &e.TypeCode, &e.TypeDisplay,
		&e.PatientID, &e.PeriodStart, &e.PeriodEnd, &e.ReasonText,
		&e.VersionID, &e.CreatedAt, &e.UpdatedAt, &e.PatientRef,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
