package task

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
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	readGroup.GET("/tasks", h.ListTasks)

	fhirRead := fhirGroup.Group("", auth.RequireRole("admin", "physician", "nurse"))
	searchHandler := h.search.Handler("Task", h.svc)
	fhirRead.GET("/Task", searchHandler)
	fhirRead.POST("/Task/_search", searchHandler)
	fhirRead.GET("/Task/:id", h.GetTaskFHIR)
}

func (h *Handler) ListTasks(c echo.Context) error {
	pg := pagination.FromContext(c)

	var patientID *uuid.UUID
	if raw := c.QueryParam("patient_id"); raw != "" {
		pid, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		patientID = &pid
	}

	tasks, total, err := h.svc.ListTasks(c.Request().Context(), patientID, c.QueryParam("status"), pg)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list tasks")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(tasks, total, pg))
}

func (h *Handler) GetTaskFHIR(c echo.Context) error {
	t, err := h.svc.GetTaskByFHIRID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, pgx.ErrNoRows) {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("Task", c.Param("id")))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome("failed to read task"))
	}
	res, err := ToResource(t)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, res)
}
