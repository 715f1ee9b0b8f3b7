package pain

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/onco/onco/internal/platform/auth"
	"github.com/onco/onco/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	calc := api.Group("/pain/opiates", auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RolePharmacist))
	calc.POST("/mme", h.CalculateMME)
	calc.POST("/safety-check", h.SafetyCheck)
	calc.GET("/suggestions", h.Suggestions)

	read := api.Group("/pain/assessments", auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RolePharmacist))
	read.GET("", h.ListAssessments)
	read.GET("/:id", h.GetAssessment)

	write := api.Group("/pain/assessments", auth.RequireRole(auth.RolePhysician, auth.RoleNurse))
	write.POST("", h.CreateAssessment)
}

// request_seq is echoed back untouched so clients can discard responses
// that arrive after a newer request was issued.

type MMERequest struct {
	RequestSeq  *uint64           `json:"request_seq,omitempty"`
	Medications []MedicationEntry `json:"medications"`
}

type MMEResponse struct {
	RequestSeq *uint64 `json:"request_seq,omitempty"`
	MMEResult
}

type SafetyCheckBody struct {
	RequestSeq  *uint64           `json:"request_seq,omitempty"`
	Medications []MedicationEntry `json:"medications"`
	Patient     *PatientContext   `json:"patient,omitempty"`
	PatientID   *uuid.UUID        `json:"patient_id,omitempty"`
}

type SafetyCheckResponse struct {
	RequestSeq *uint64 `json:"request_seq,omitempty"`
	CheckResult
}

func (h *Handler) CalculateMME(c echo.Context) error {
	var req MMERequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.CalculateMME(req.Medications)
	if err != nil {
		return errorFor(err)
	}
	return c.JSON(http.StatusOK, MMEResponse{RequestSeq: req.RequestSeq, MMEResult: res})
}

func (h *Handler) SafetyCheck(c echo.Context) error {
	var req SafetyCheckBody
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.SafetyCheck(c.Request().Context(), SafetyCheckRequest{
		Medications: req.Medications,
		Patient:     req.Patient,
		PatientID:   req.PatientID,
	})
	if err != nil {
		return errorFor(err)
	}
	return c.JSON(http.StatusOK, SafetyCheckResponse{RequestSeq: req.RequestSeq, CheckResult: res})
}

func (h *Handler) Suggestions(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Suggest(c.QueryParam("q")))
}

func (h *Handler) CreateAssessment(c echo.Context) error {
	var a Assessment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateAssessment(c.Request().Context(), &a); err != nil {
		return errorFor(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAssessment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.GetAssessment(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "assessment not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAssessments(c echo.Context) error {
	patientID, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id query parameter is required")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAssessments(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Assessment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func errorFor(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
