package fhirmodels

// Value sets shared by the searchable resource types. Each set is a lookup
// table keyed by code.

// ValueSet is a set of allowed codes.
type ValueSet map[string]bool

// Contains reports whether code is in the set.
func (v ValueSet) Contains(code string) bool { return v[code] }

// Shared code system URIs.
const (
	SystemObservationCategory = "http://terminology.hl7.org/CodeSystem/observation-category"
	SystemActCode             = "http://terminology.hl7.org/CodeSystem/v3-ActCode"
	SystemIdentifierType      = "http://terminology.hl7.org/CodeSystem/v2-0203"
	SystemUCUM                = "http://unitsofmeasure.org"
	SystemLOINC               = "http://loinc.org"
)

// EncounterStatus values per FHIR R4.
const (
	EncounterStatusPlanned        = "planned"
	EncounterStatusArrived        = "arrived"
	EncounterStatusTriaged        = "triaged"
	EncounterStatusInProgress     = "in-progress"
	EncounterStatusOnLeave        = "onleave"
	EncounterStatusFinished       = "finished"
	EncounterStatusCancelled      = "cancelled"
	EncounterStatusEnteredInError = "entered-in-error"
)

var EncounterStatuses = ValueSet{
	EncounterStatusPlanned:        true,
	EncounterStatusArrived:        true,
	EncounterStatusTriaged:        true,
	EncounterStatusInProgress:     true,
	EncounterStatusOnLeave:        true,
	EncounterStatusFinished:       true,
	EncounterStatusCancelled:      true,
	EncounterStatusEnteredInError: true,
}

// EncounterClass codes per FHIR R4 v3-ActCode.
const (
	EncounterClassAmbulatory = "AMB"
	EncounterClassEmergency  = "EMER"
	EncounterClassInpatient  = "IMP"
	EncounterClassShortStay  = "SS"
	EncounterClassVirtual    = "VR"
	EncounterClassHomeHealth = "HH"
)

// ObservationStatus values per FHIR R4.
const (
	ObsStatusRegistered     = "registered"
	ObsStatusPreliminary    = "preliminary"
	ObsStatusFinal          = "final"
	ObsStatusAmended        = "amended"
	ObsStatusCorrected      = "corrected"
	ObsStatusCancelled      = "cancelled"
	ObsStatusEnteredInError = "entered-in-error"
	ObsStatusUnknown        = "unknown"
)

var ObservationStatuses = ValueSet{
	ObsStatusRegistered:     true,
	ObsStatusPreliminary:    true,
	ObsStatusFinal:          true,
	ObsStatusAmended:        true,
	ObsStatusCorrected:      true,
	ObsStatusCancelled:      true,
	ObsStatusEnteredInError: true,
	ObsStatusUnknown:        true,
}

// ObservationCategory codes.
const (
	ObsCategoryVitalSigns    = "vital-signs"
	ObsCategoryLaboratory    = "laboratory"
	ObsCategoryImaging       = "imaging"
	ObsCategorySocialHistory = "social-history"
	ObsCategorySurvey        = "survey"
	ObsCategoryExam          = "exam"
	ObsCategoryProcedure     = "procedure"
	ObsCategoryActivity      = "activity"
	ObsCategoryTherapy       = "therapy"
)

// TaskStatus values per FHIR R4.
const (
	TaskStatusDraft          = "draft"
	TaskStatusRequested      = "requested"
	TaskStatusReceived       = "received"
	TaskStatusAccepted       = "accepted"
	TaskStatusRejected       = "rejected"
	TaskStatusReady          = "ready"
	TaskStatusCancelled      = "cancelled"
	TaskStatusInProgress     = "in-progress"
	TaskStatusOnHold         = "on-hold"
	TaskStatusFailed         = "failed"
	TaskStatusCompleted      = "completed"
	TaskStatusEnteredInError = "entered-in-error"
)

var TaskStatuses = ValueSet{
	TaskStatusDraft:          true,
	TaskStatusRequested:      true,
	TaskStatusReceived:       true,
	TaskStatusAccepted:       true,
	TaskStatusRejected:       true,
	TaskStatusReady:          true,
	TaskStatusCancelled:      true,
	TaskStatusInProgress:     true,
	TaskStatusOnHold:         true,
	TaskStatusFailed:         true,
	TaskStatusCompleted:      true,
	TaskStatusEnteredInError: true,
}

// TaskIntent codes.
var TaskIntents = ValueSet{
	"unknown":        true,
	"proposal":       true,
	"plan":           true,
	"order":          true,
	"original-order": true,
	"reflex-order":   true,
	"filler-order":   true,
	"instance-order": true,
	"option":         true,
}

// AdministrativeGender codes.
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderOther   = "other"
	GenderUnknown = "unknown"
)

var Genders = ValueSet{
	GenderMale:    true,
	GenderFemale:  true,
	GenderOther:   true,
	GenderUnknown: true,
}
