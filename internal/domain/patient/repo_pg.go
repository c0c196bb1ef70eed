package patient

import (
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/fhirsearch/internal/platform/fhir"
	"github.com/ehr/fhirsearch/internal/platform/search"
)

const patientCols = `id, fhir_id, active, mrn, mrn_system, first_name, middle_name, last_name,
	birth_date, gender, deceased_boolean, phone_mobile, email, version_id, created_at, updated_at`

var table = &fhir.TableDef{
	ResourceType: "Patient",
	Table:        "patient",
	SelectCols:   patientCols,
	DefaultOrder: "last_name ASC, first_name ASC",
	LastUpdated:  "updated_at",
	PageSize:     50,
	Params: []fhir.SearchParamConfig{
		{
			Name:       "name",
			Type:       search.ParamString,
			Column:     "last_name",
			Columns:    []string{"first_name", "middle_name"},
			Properties: map[string]string{"family": "last_name", "given": "first_name"},
		},
		{Name: "family", Type: search.ParamString, Column: "last_name"},
		{Name: "given", Type: search.ParamString, Column: "first_name", Columns: []string{"middle_name"}},
		{Name: "identifier", Type: search.ParamToken, Column: "mrn", SysColumn: "mrn_system"},
		{Name: "gender", Type: search.ParamToken, Column: "gender"},
		{Name: "birthdate", Type: search.ParamDate, Column: "birth_date"},
		{Name: "phone", Type: search.ParamToken, Column: "phone_mobile"},
		{Name: "email", Type: search.ParamToken, Column: "email"},
	},
}

// Table describes how patients are stored and searched.
func Table() *fhir.TableDef { return table }

// NewRepo returns the Postgres repository. schema must include Table().
func NewRepo(pool *pgxpool.Pool, schema *fhir.Schema) Repository {
	return fhir.NewPGTable[*Patient](pool, schema, table, scanPatient)
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.FHIRID, &p.Active, &p.MRN, &p.MRNSystem, &p.FirstName, &p.MiddleName, &p.LastName,
		&p.BirthDate, &p.Gender, &p.Deceased, &p.PhoneMobile, &p.Email,
		&p.VersionID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
