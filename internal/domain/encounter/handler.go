package encounter

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
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse", "registrar"))
	readGroup.GET("/encounters", h.ListEncounters)

	fhirRead := fhirGroup.Group("", auth.RequireRole("admin", "physician", "nurse", "registrar"))
	searchHandler := h.search.Handler("Encounter", h.svc)
	fhirRead.GET("/Encounter", searchHandler)
	fhirRead.POST("/Encounter/_search", searchHandler)
	fhirRead.GET("/Encounter/:id", h.GetEncounterFHIR)
}

func (h *Handler) ListEncounters(c echo.Context) error {
	pg := pagination.FromContext(c)

	var patientID *uuid.UUID
	if raw := c.QueryParam("patient_id"); raw != "" {
		pid, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		patientID = &pid
	}

	encs, total, err := h.svc.ListEncounters(c.Request().Context(), patientID, pg)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list encounters")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(encs, total, pg))
}

func (h *Handler) GetEncounterFHIR(c echo.Context) error {
	enc, err := h.svc.GetEncounterByFHIRID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, pgx.ErrNoRows) {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("Encounter", c.Param("id")))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome("failed to read encounter"))
	}
	res, err := ToResource(enc)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, res)
}
