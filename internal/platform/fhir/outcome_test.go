package fhir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ehr/fhirsearch/internal/platform/search"
)

func TestNewOperationOutcome(t *testing.T) {
	oo := NewOperationOutcome(IssueSeverityError, IssueTypeInvalid, "bad input")
	if oo.ResourceType != "OperationOutcome" {
		t.Errorf("resourceType = %s", oo.ResourceType)
	}
	if len(oo.Issue) != 1 || oo.Issue[0].Severity != "error" || oo.Issue[0].Code != "invalid" || oo.Issue[0].Diagnostics != "bad input" {
		t.Errorf("issue = %+v", oo.Issue)
	}
}

func TestOutcomeHelpers(t *testing.T) {
	tests := []struct {
		name     string
		oo       *OperationOutcome
		severity string
		code     string
	}{
		{"error", ErrorOutcome("x"), IssueSeverityError, IssueTypeProcessing},
		{"not found", NotFoundOutcome("Patient", "123"), IssueSeverityError, IssueTypeNotFound},
		{"not supported", NotSupportedOutcome("x"), IssueSeverityError, IssueTypeNotSupported},
		{"internal", InternalErrorOutcome("x"), IssueSeverityFatal, IssueTypeException},
		{"warning", WarningOutcome("x"), IssueSeverityWarning, IssueTypeProcessing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issue := tt.oo.Issue[0]
			if issue.Severity != tt.severity || issue.Code != tt.code {
				t.Errorf("issue = %+v", issue)
			}
		})
	}
	if got := NotFoundOutcome("Patient", "123").Issue[0].Diagnostics; got != "Patient/123 not found" {
		t.Errorf("diagnostics = %q", got)
	}
}

func TestSearchErrorOutcome(t *testing.T) {
	_, includeErr := search.ParseIncludes(search.NewRegistry(), "Observation", []string{"Observation:*"}, nil)

	tests := []struct {
		name       string
		err        error
		status     int
		code       string
		expression string
	}{
		{"invalid parameter", &search.InvalidRequestError{Param: "colour", Reason: "not supported"}, http.StatusBadRequest, IssueTypeInvalid, "colour"},
		{"wrapped invalid", fmt.Errorf("search: %w", search.ErrInvalidRequest), http.StatusBadRequest, IssueTypeInvalid, ""},
		{"unsupported include", includeErr, http.StatusBadRequest, IssueTypeNotSupported, "Observation:*"},
		{"expired snapshot", fmt.Errorf("resume: %w", search.ErrSnapshotNotFound), http.StatusGone, IssueTypeNotFound, ""},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, IssueTypeTimeout, ""},
		{"backend", errors.New("connection refused"), http.StatusInternalServerError, IssueTypeException, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, oo := SearchErrorOutcome(tt.err)
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			issue := oo.Issue[0]
			if issue.Code != tt.code {
				t.Errorf("code = %s, want %s", issue.Code, tt.code)
			}
			if tt.expression != "" && (len(issue.Expression) != 1 || issue.Expression[0] != tt.expression) {
				t.Errorf("expression = %v, want %s", issue.Expression, tt.expression)
			}
		})
	}

	_, oo := SearchErrorOutcome(errors.New("password=hunter2"))
	if oo.Issue[0].Diagnostics != "search failed" {
		t.Errorf("internal details leaked: %q", oo.Issue[0].Diagnostics)
	}
}

func TestOperationOutcome_JSON(t *testing.T) {
	oo := NewOperationOutcome(IssueSeverityError, IssueTypeInvalid, "bad")
	oo.Issue[0].Expression = []string{"code"}
	data, err := json.Marshal(oo)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["resourceType"] != "OperationOutcome" {
		t.Errorf("resourceType = %v", m["resourceType"])
	}
	issue := m["issue"].([]interface{})[0].(map[string]interface{})
	if _, ok := issue["details"]; ok {
		t.Error("empty details should be omitted")
	}
	if issue["expression"].([]interface{})[0] != "code" {
		t.Errorf("expression = %v", issue["expression"])
	}
}
