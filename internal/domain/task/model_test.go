package task

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/fhirsearch/internal/platform/fhir"
)

func ptrStr(s string) *string { return &s }

func rawJSON(s string) *json.RawMessage {
	r := json.RawMessage(s)
	return &r
}

func TestTask_ToFHIR(t *testing.T) {
	authored := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	patID, encID := uuid.New(), uuid.New()
	task := &Task{
		FHIRID:       "task-1",
		Status:       "requested",
		Intent:       "order",
		Priority:     ptrStr("urgent"),
		CodeValue:    ptrStr("fulfill"),
		CodeSystem:   ptrStr("http://hl7.org/fhir/CodeSystem/task-code"),
		Description:  ptrStr("Draw blood"),
		ForPatientID: patID,
		EncounterID:  &encID,
		AuthoredOn:   &authored,
		InputJSON:    rawJSON(`[{"type":{"text":"specimen"},"valueString":"blood"}]`),
	}

	result, err := task.ToFHIR()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["intent"] != "order" || result["priority"] != "urgent" {
		t.Errorf("result = %v", result)
	}
	if ref := result["for"].(fhir.Reference); ref.Reference != "Patient/"+patID.String() {
		t.Errorf("for = %v", ref)
	}
	if ref := result["encounter"].(fhir.Reference); ref.Reference != "Encounter/"+encID.String() {
		t.Errorf("encounter = %v", ref)
	}
	if result["authoredOn"] != "2024-06-01T14:00:00Z" {
		t.Errorf("authoredOn = %v", result["authoredOn"])
	}
	if inputs := result["input"].([]interface{}); len(inputs) != 1 {
		t.Errorf("input = %v", inputs)
	}
}

func TestTask_ToFHIR_ReferencesUseResolvedIDs(t *testing.T) {
	encID := uuid.New()
	task := &Task{
		FHIRID: "task-3", Status: "requested", Intent: "order",
		ForPatientID: uuid.New(), PatientRef: "alice",
		EncounterID: &encID, EncounterRef: ptrStr("enc-a"),
	}
	result, err := task.ToFHIR()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref := result["for"].(fhir.Reference); ref.Reference != "Patient/alice" {
		t.Errorf("for = %v", ref)
	}
	if ref := result["encounter"].(fhir.Reference); ref.Reference != "Encounter/enc-a" {
		t.Errorf("encounter = %v", ref)
	}
}

func TestTask_ToFHIR_BadInput(t *testing.T) {
	task := &Task{FHIRID: "task-2", Status: "draft", Intent: "plan", InputJSON: rawJSON(`{not json`)}
	if _, err := task.ToFHIR(); err == nil {
		t.Error("expected error for malformed input")
	}
}

func TestToResource(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{"valid", Task{Status: "completed", Intent: "order"}, false},
		{"bad status", Task{Status: "done", Intent: "order"}, true},
		{"bad intent", Task{Status: "ready", Intent: "wish"}, true},
		{"bad input", Task{Status: "ready", Intent: "order", InputJSON: rawJSON(`[`)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToResource(&tt.task)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTask_ReferencedIDs(t *testing.T) {
	patID := uuid.New()
	task := &Task{ForPatientID: patID}
	if got := task.ReferencedIDs("patient"); len(got) != 1 || got[0] != patID.String() {
		t.Errorf("patient = %v", got)
	}
	if got := task.ReferencedIDs("encounter"); got != nil {
		t.Errorf("encounter = %v", got)
	}
}
