package observation

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/ehr/fhirsearch/internal/platform/auth"
	"github.com/ehr/fhirsearch/internal/platform/fhir"
	"github.com/ehr/fhirsearch/pkg/pagination"
)

type Handler struct {
	svc    *Service
	search *fhir.SearchEndpoint
}

func NewHandler(svc *Service, endpoint *fhir.SearchEndpoint) *Handler {
	return &Handler{svc: svc, search: endpoint}
}

func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse", "lab_tech"))
	readGroup.GET("/observations", h.ListObservations)

	fhirRead := fhirGroup.Group("", auth.RequireRole("admin", "physician", "nurse", "lab_tech"))
	searchHandler := h.search.Handler("Observation", h.svc)
	fhirRead.GET("/Observation", searchHandler)
	fhirRead.POST("/Observation/_search", searchHandler)
	fhirRead.GET("/Observation/:id", h.GetObservationFHIR)
}

func (h *Handler) ListObservations(c echo.Context) error {
	pg := pagination.FromContext(c)

	var patientID *uuid.UUID
	if raw := c.QueryParam("patient_id"); raw != "" {
		pid, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		patientID = &pid
	}

	obs, total, err := h.svc.ListObservations(c.Request().Context(), patientID, c.QueryParam("code"), pg)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list observations")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(obs, total, pg))
}

func (h *Handler) GetObservationFHIR(c echo.Context) error {
	obs, err := h.svc.GetObservationByFHIRID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, pgx.ErrNoRows) {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("Observation", c.Param("id")))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome("failed to read observation"))
	}
	res, err := ToResource(obs)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, res)
}
