package patient

import (
	"errors"
	"net/http"

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
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse", "registrar", "pharmacist", "lab_tech"))
	readGroup.GET("/patients", h.ListPatients)

	fhirRead := fhirGroup.Group("", auth.RequireRole("admin", "physician", "nurse", "registrar", "pharmacist", "lab_tech"))
	searchHandler := h.search.Handler("Patient", h.svc)
	fhirRead.GET("/Patient", searchHandler)
	fhirRead.POST("/Patient/_search", searchHandler)
	fhirRead.GET("/Patient/:id", h.GetPatientFHIR)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	patients, total, err := h.svc.ListPatients(c.Request().Context(), c.QueryParam("name"), pg)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list patients")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg))
}

func (h *Handler) GetPatientFHIR(c echo.Context) error {
	p, err := h.svc.GetPatientByFHIRID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, pgx.ErrNoRows) {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("Patient", c.Param("id")))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome("failed to read patient"))
	}
	res, err := ToResource(p)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, res)
}
