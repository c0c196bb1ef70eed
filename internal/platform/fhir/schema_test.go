package fhir

import (
	"testing"

	"github.com/ehr/fhirsearch/internal/platform/search"
)

func testSchema() *Schema {
	return NewSchema(
		&TableDef{
			ResourceType: "Patient",
			Table:        "patient",
			SelectCols:   "id, fhir_id, family_name, given_name",
			DefaultOrder: "family_name ASC",
			LastUpdated:  "updated_at",
			Params: []SearchParamConfig{
				{Name: "name", Type: search.ParamString, Column: "family_name", Columns: []string{"given_name"},
					Properties: map[string]string{"family": "family_name", "given": "given_name"}},
				{Name: "gender", Type: search.ParamToken, Column: "gender"},
				{Name: "birthdate", Type: search.ParamDate, Column: "birth_date"},
				{Name: "identifier", Type: search.ParamToken, Column: "mrn", SysColumn: "mrn_system"},
			},
		},
		&TableDef{
			ResourceType: "Observation",
			Table:        "observation",
			SelectCols:   "id, fhir_id, code_value",
			DefaultOrder: "effective_date DESC",
			LastUpdated:  "updated_at",
			Visibility:   "status <> 'entered-in-error'",
			PageSize:     25,
			Params: []SearchParamConfig{
				{Name: "code", Type: search.ParamToken, Column: "code_value", SysColumn: "code_system"},
				{Name: "category", Type: search.ParamToken, Column: "category"},
				{Name: "status", Type: search.ParamToken, Column: "status"},
				{Name: "date", Type: search.ParamDate, Column: "effective_date"},
				{Name: "patient", Type: search.ParamReference, Column: "patient_id", Targets: []string{"Patient"}},
				{Name: "encounter", Type: search.ParamReference, Column: "encounter_id", Targets: []string{"Encounter"}},
				{Name: "value-quantity", Type: search.ParamQuantity, Column: "value_quantity", UnitColumn: "value_unit"},
			},
		},
		&TableDef{
			ResourceType: "Encounter",
			Table:        "encounter",
			SelectCols:   "id, fhir_id, status",
			DefaultOrder: "period_start DESC",
			Params: []SearchParamConfig{
				{Name: "status", Type: search.ParamToken, Column: "status"},
				{Name: "patient", Type: search.ParamReference, Column: "patient_id", Targets: []string{"Patient"}},
				{Name: "date", Type: search.ParamDate, Column: "period_start"},
			},
		},
	)
}

func testRegistry() *search.Registry {
	reg := search.NewRegistry()
	testSchema().RegisterParams(reg)
	return reg
}

func TestTableDef_ImplicitParams(t *testing.T) {
	def, _ := testSchema().Table("Observation")

	id, ok := def.Param("_id")
	if !ok || id.Column != "fhir_id" || id.Type != search.ParamToken {
		t.Errorf("_id = %+v, %v", id, ok)
	}
	lu, ok := def.Param("_lastUpdated")
	if !ok || lu.Column != "updated_at" || lu.Type != search.ParamDate {
		t.Errorf("_lastUpdated = %+v, %v", lu, ok)
	}
	if _, ok := def.Param("colour"); ok {
		t.Error("unknown param should not resolve")
	}

	enc, _ := testSchema().Table("Encounter")
	if _, ok := enc.Param("_lastUpdated"); ok {
		t.Error("_lastUpdated needs a column")
	}
}

func TestSchema_RegisterParams(t *testing.T) {
	reg := testRegistry()
	for _, rt := range []string{"Patient", "Observation", "Encounter"} {
		if !reg.HasResource(rt) {
			t.Errorf("%s not registered", rt)
		}
		if _, ok := reg.Param(rt, "_id"); !ok {
			t.Errorf("%s._id not registered", rt)
		}
	}
	p, ok := reg.Param("Observation", "patient")
	if !ok || p.Type != search.ParamReference || len(p.Targets) != 1 || p.Targets[0] != "Patient" {
		t.Errorf("Observation.patient = %+v", p)
	}
	if got := testSchema().ResourceTypes(); len(got) != 3 || got[0] != "Encounter" {
		t.Errorf("ResourceTypes() = %v", got)
	}
}
