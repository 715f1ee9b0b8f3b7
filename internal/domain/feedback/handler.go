package feedback

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/onco/onco/internal/platform/apiclient"
	"github.com/onco/onco/internal/platform/auth"
	"github.com/onco/onco/internal/platform/github"
	"github.com/onco/onco/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/feedback")
	g.POST("", h.Submit)
	g.POST("/classify", h.Classify)

	read := api.Group("/feedback", auth.RequireRole(auth.RoleAdmin, auth.RolePhysician))
	read.GET("", h.List)
	read.GET("/stats", h.Stats)
	read.GET("/:id", h.Get)

	admin := api.Group("/feedback", auth.RequireRole(auth.RoleAdmin))
	admin.PATCH("/:id/status", h.UpdateStatus)
	admin.POST("/:id/github-issue", h.CreateIssue)
}

type classifyRequest struct {
	Message string `json:"message"`
}

type statusRequest struct {
	Status Status `json:"status"`
}

func (h *Handler) Submit(c echo.Context) error {
	var f Feedback
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if f.UserAgent == nil {
		if ua := c.Request().UserAgent(); ua != "" {
			f.UserAgent = &ua
		}
	}
	if err := h.svc.Submit(c.Request().Context(), &f); err != nil {
		return errorFor(err)
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) Classify(c echo.Context) error {
	var req classifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	return c.JSON(http.StatusOK, h.svc.Classify(req.Message))
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	filter := Filter{Status: Status(c.QueryParam("status")), Type: Type(c.QueryParam("type"))}
	if filter.Status != "" && !filter.Status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status")
	}
	items, total, err := h.svc.List(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Feedback{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Stats(c echo.Context) error {
	s, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	f, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return errorFor(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !req.Status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status")
	}
	f, err := h.svc.UpdateStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return errorFor(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) CreateIssue(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	f, err := h.svc.CreateIssue(c.Request().Context(), id)
	if err != nil {
		return errorFor(err)
	}
	return c.JSON(http.StatusOK, f)
}

func errorFor(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "feedback not found")
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, github.ErrNotConfigured):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "github integration is not configured")
	case apiclient.StatusCode(err) != 0:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
