package patient

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/fhirsearch/internal/platform/fhir"
)

func ptrStr(s string) *string { return &s }

func TestPatient_ToFHIR(t *testing.T) {
	birth := time.Date(1980, 2, 14, 0, 0, 0, 0, time.UTC)
	p := &Patient{
		ID:          uuid.New(),
		FHIRID:      "pat-1",
		Active:      true,
		MRN:         "MRN-0042",
		MRNSystem:   ptrStr("urn:oid:2.16.840.1.113883.19.5"),
		FirstName:   "Ada",
		MiddleName:  ptrStr("B"),
		LastName:    "Lovelace",
		BirthDate:   &birth,
		Gender:      ptrStr("female"),
		PhoneMobile: ptrStr("555-0100"),
		VersionID:   2,
	}

	result := p.ToFHIR()

	if result["resourceType"] != "Patient" || result["id"] != "pat-1" || result["active"] != true {
		t.Errorf("header = %v", result)
	}
	names := result["name"].([]fhir.HumanName)
	if names[0].Family != "Lovelace" || len(names[0].Given) != 2 || names[0].Given[1] != "B" {
		t.Errorf("name = %+v", names[0])
	}
	ids := result["identifier"].([]fhir.Identifier)
	if ids[0].Value != "MRN-0042" || ids[0].System != "urn:oid:2.16.840.1.113883.19.5" || ids[0].Type.Coding[0].Code != "MR" {
		t.Errorf("identifier = %+v", ids[0])
	}
	if result["birthDate"] != "1980-02-14" {
		t.Errorf("birthDate = %v", result["birthDate"])
	}
	if result["gender"] != "female" {
		t.Errorf("gender = %v", result["gender"])
	}
	tel := result["telecom"].([]fhir.ContactPoint)
	if len(tel) != 1 || tel[0].Use != "mobile" {
		t.Errorf("telecom = %+v", tel)
	}
	if _, ok := result["deceasedBoolean"]; ok {
		t.Error("deceasedBoolean should be absent")
	}
}

func TestPatient_ToFHIR_Minimal(t *testing.T) {
	result := (&Patient{FHIRID: "pat-2", FirstName: "Bo", LastName: "Li"}).ToFHIR()
	for _, key := range []string{"gender", "birthDate", "telecom"} {
		if _, ok := result[key]; ok {
			t.Errorf("%s should be absent", key)
		}
	}
	if ids := result["identifier"].([]fhir.Identifier); ids[0].System != "" {
		t.Errorf("identifier system = %q", ids[0].System)
	}
}

func TestToResource(t *testing.T) {
	tests := []struct {
		name    string
		gender  *string
		wantErr bool
	}{
		{"no gender", nil, false},
		{"valid gender", ptrStr("other"), false},
		{"invalid gender", ptrStr("M"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToResource(&Patient{FHIRID: "p", Gender: tt.gender})
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
