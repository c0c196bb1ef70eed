package task

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/fhirsearch/internal/platform/auth"
	"github.com/ehr/fhirsearch/internal/platform/fhir"
	"github.com/ehr/fhirsearch/internal/platform/search"
)

func newTestServer(role string) *echo.Echo {
	reg := search.NewRegistry()
	fhir.NewSchema(Table()).RegisterParams(reg)
	svc := NewService(newMockRepo(fixtures()...), search.NewQuery(reg, nil, zerolog.Nop()))
	endpoint := fhir.NewSearchEndpoint(reg, fhir.SearchEndpointConfig{DefaultCount: 10}, zerolog.Nop())

	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := context.WithValue(c.Request().Context(), auth.UserRolesKey, []string{role})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(svc, endpoint).RegisterRoutes(e.Group("/api/v1"), e.Group("/fhir"))
	return e
}

func get(e *echo.Echo, target string) (int, map[string]interface{}) {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	return rec.Code, body
}

func TestHandler_SearchTasksFHIR(t *testing.T) {
	e := newTestServer("nurse")

	code, body := get(e, "/fhir/Task?patient="+patA.String()+"&status=requested")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", code, body)
	}
	if body["resourceType"] != "Bundle" || body["type"] != "searchset" {
		t.Errorf("body = %v", body)
	}
	// task-4 cannot be rendered and is reported in an outcome entry.
	entries, _ := body["entry"].([]interface{})
	if len(entries) != 2 {
		t.Fatalf("entries = %v", entries)
	}
	res := entries[0].(map[string]interface{})["resource"].(map[string]interface{})
	if res["id"] != "task-1" {
		t.Errorf("resource = %v", res)
	}
	outcome := entries[1].(map[string]interface{})
	if outcome["search"].(map[string]interface{})["mode"] != "outcome" {
		t.Errorf("last entry = %v", outcome)
	}
}

func TestHandler_SearchTasksFHIR_UnknownParam(t *testing.T) {
	e := newTestServer("nurse")
	if code, _ := get(e, "/fhir/Task?owner=Practitioner/1"); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_GetTaskFHIR(t *testing.T) {
	e := newTestServer("physician")
	if code, body := get(e, "/fhir/Task/task-2"); code != http.StatusOK || body["status"] != "in-progress" {
		t.Errorf("got %d %v", code, body)
	}
	if code, _ := get(e, "/fhir/Task/missing"); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
	if code, _ := get(e, "/fhir/Task/task-4"); code != http.StatusInternalServerError {
		t.Errorf("malformed input: expected 500, got %d", code)
	}
}

func TestHandler_ListTasks(t *testing.T) {
	e := newTestServer("admin")

	code, body := get(e, "/api/v1/tasks?patient_id="+patA.String()+"&limit=2")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["total"] != float64(3) || body["has_more"] != true {
		t.Errorf("body = %v", body)
	}
	if code, _ := get(e, "/api/v1/tasks?patient_id=nope"); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_Forbidden(t *testing.T) {
	e := newTestServer("registrar")
	if code, _ := get(e, "/fhir/Task"); code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}
}
