package observation

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
)

func newTestServer() *echo.Echo {
	f := newFixture(fixtures()...)
	endpoint := fhir.NewSearchEndpoint(f.registry, fhir.SearchEndpointConfig{DefaultCount: 10}, zerolog.Nop())

	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := context.WithValue(c.Request().Context(), auth.UserRolesKey, []string{"lab_tech"})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(f.svc, endpoint).RegisterRoutes(e.Group("/api/v1"), e.Group("/fhir"))
	return e
}

func get(e *echo.Echo, target string) (int, map[string]interface{}) {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	return rec.Code, body
}

func TestHandler_SearchObservationsFHIR_Include(t *testing.T) {
	e := newTestServer()

	code, body := get(e, "/fhir/Observation?category=vital-signs&_include=Observation:patient")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", code, body)
	}
	if body["total"] != float64(3) {
		t.Errorf("total = %v", body["total"])
	}
	modes := map[string]int{}
	for _, raw := range body["entry"].([]interface{}) {
		entry := raw.(map[string]interface{})
		modes[entry["search"].(map[string]interface{})["mode"].(string)]++
	}
	if modes["match"] != 2 || modes["include"] != 2 {
		t.Errorf("modes = %v", modes)
	}
}

func TestHandler_SearchObservationsFHIR_BadInclude(t *testing.T) {
	e := newTestServer()
	code, body := get(e, "/fhir/Observation?_include=Observation:performer")
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	issue := body["issue"].([]interface{})[0].(map[string]interface{})
	if issue["code"] != "not-supported" {
		t.Errorf("issue = %v", issue)
	}
}

func TestHandler_GetObservationFHIR(t *testing.T) {
	e := newTestServer()
	if code, body := get(e, "/fhir/Observation/obs-5"); code != http.StatusOK || body["id"] != "obs-5" {
		t.Errorf("got %d %v", code, body)
	}
	if code, _ := get(e, "/fhir/Observation/obs-4"); code != http.StatusNotFound {
		t.Errorf("entered-in-error: expected 404, got %d", code)
	}
}

func TestHandler_ListObservations(t *testing.T) {
	e := newTestServer()
	code, body := get(e, "/api/v1/observations?patient_id="+patB.String())
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["total"] != float64(2) {
		t.Errorf("total = %v", body["total"])
	}
}
