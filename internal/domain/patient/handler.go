package patient

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/onco/onco/internal/platform/auth"
	"github.com/onco/onco/internal/platform/fhir"
	"github.com/onco/onco/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readRoles := auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RolePharmacist)

	read := api.Group("/patients", readRoles)
	read.GET("", h.ListPatients)
	read.GET("/:id", h.GetPatient)

	write := api.Group("/patients", auth.RequireRole(auth.RolePhysician, auth.RoleNurse))
	write.POST("", h.CreatePatient)
	write.PUT("/:id", h.UpdatePatient)

	admin := api.Group("/patients", auth.RequireRole(auth.RoleAdmin))
	admin.DELETE("/:id", h.DeletePatient)

	fhirRead := api.Group("/fhir/patients", readRoles)
	fhirRead.GET("", h.SearchPatientsFHIR)
	fhirRead.GET("/:id", h.GetPatientFHIR)
}

func writeStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateMRN):
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

// -- Patient Operational Handlers --

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return echo.NewHTTPError(writeStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	patients, total, err := h.svc.SearchPatients(c.Request().Context(), SearchParams{Query: c.QueryParam("q")}, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if patients == nil {
		patients = []*Patient{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = id
	if err := h.svc.UpdatePatient(c.Request().Context(), &p); err != nil {
		return echo.NewHTTPError(writeStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// -- FHIR Patient Handlers --

func (h *Handler) SearchPatientsFHIR(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := SearchParams{
		Name:       c.QueryParam("name"),
		Identifier: c.QueryParam("identifier"),
		Gender:     c.QueryParam("gender"),
	}
	if v := c.QueryParam("birthdate"); v != "" {
		df, err := ParseDateFilter(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
		}
		params.BirthDate = df
	}

	patients, total, err := h.svc.SearchPatients(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}

	resources := make([]fhir.Resource, len(patients))
	for i, p := range patients {
		resources[i] = p.ToFHIR()
	}
	bundle, err := fhir.NewSearchBundle(resources, total, "/api/fhir/patients", c.QueryParams(), pg)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, bundle)
}

func (h *Handler) GetPatientFHIR(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("Patient", c.Param("id")))
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("Patient", c.Param("id")))
		}
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, p.ToFHIR())
}
