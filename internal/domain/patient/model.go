package patient

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/fhirsearch/internal/platform/fhir"
	"github.com/ehr/fhirsearch/internal/platform/search"
	"github.com/ehr/fhirsearch/pkg/fhirmodels"
)

// Patient maps to the patient table.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	FHIRID      string     `db:"fhir_id" json:"fhir_id"`
	Active      bool       `db:"active" json:"active"`
	MRN         string     `db:"mrn" json:"mrn"`
	MRNSystem   *string    `db:"mrn_system" json:"mrn_system,omitempty"`
	FirstName   string     `db:"first_name" json:"first_name"`
	MiddleName  *string    `db:"middle_name" json:"middle_name,omitempty"`
	LastName    string     `db:"last_name" json:"last_name"`
	BirthDate   *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Gender      *string    `db:"gender" json:"gender,omitempty"`
	Deceased    bool       `db:"deceased_boolean" json:"deceased_boolean"`
	PhoneMobile *string    `db:"phone_mobile" json:"phone_mobile,omitempty"`
	Email       *string    `db:"email" json:"email,omitempty"`
	VersionID   int        `db:"version_id" json:"version_id"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

func (p *Patient) EntityID() string { return p.ID.String() }

func (p *Patient) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "Patient",
		"id":           p.FHIRID,
		"active":       p.Active,
		"meta": fhir.Meta{
			VersionID:   fmt.Sprintf("%d", p.VersionID),
			LastUpdated: p.UpdatedAt,
		},
	}

	name := fhir.HumanName{
		Use:    "official",
		Family: p.LastName,
		Given:  []string{p.FirstName},
	}
	if p.MiddleName != nil {
		name.Given = append(name.Given, *p.MiddleName)
	}
	result["name"] = []fhir.HumanName{name}

	mr := fhir.Identifier{
		Use:   "usual",
		Type:  &fhir.CodeableConcept{Coding: []fhir.Coding{{System: fhirmodels.SystemIdentifierType, Code: "MR"}}},
		Value: p.MRN,
	}
	if p.MRNSystem != nil {
		mr.System = *p.MRNSystem
	}
	result["identifier"] = []fhir.Identifier{mr}

	if p.Gender != nil {
		result["gender"] = *p.Gender
	}
	if p.BirthDate != nil {
		result["birthDate"] = p.BirthDate.Format("2006-01-02")
	}
	if p.Deceased {
		result["deceasedBoolean"] = true
	}

	var telecoms []fhir.ContactPoint
	if p.PhoneMobile != nil {
		telecoms = append(telecoms, fhir.ContactPoint{System: "phone", Value: *p.PhoneMobile, Use: "mobile"})
	}
	if p.Email != nil {
		telecoms = append(telecoms, fhir.ContactPoint{System: "email", Value: *p.Email})
	}
	if len(telecoms) > 0 {
		result["telecom"] = telecoms
	}

	return result
}

// ToResource translates a patient for a search bundle.
func ToResource(p *Patient) (search.Resource, error) {
	if p.Gender != nil && !fhirmodels.Genders.Contains(*p.Gender) {
		return nil, fmt.Errorf("patient %s: invalid gender %q", p.FHIRID, *p.Gender)
	}
	return p.ToFHIR(), nil
}

var translator = search.TranslatorFunc[*Patient](ToResource)
