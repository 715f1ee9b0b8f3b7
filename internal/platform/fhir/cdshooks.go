package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// CDS Hooks 2.0 card indicators.
const (
	IndicatorInfo     = "info"
	IndicatorWarning  = "warning"
	IndicatorCritical = "critical"
)

// CDSService describes a single CDS service returned in discovery.
type CDSService struct {
	Hook        string            `json:"hook"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description"`
	ID          string            `json:"id"`
	Prefetch    map[string]string `json:"prefetch,omitempty"`
}

// CDSHookRequest is the payload POSTed to invoke a hook.
type CDSHookRequest struct {
	Hook         string                     `json:"hook"`
	HookInstance string                     `json:"hookInstance"`
	FHIRServer   string                     `json:"fhirServer,omitempty"`
	Context      map[string]json.RawMessage `json:"context"`
	Prefetch     map[string]json.RawMessage `json:"prefetch,omitempty"`
}

// ContextString returns a string-valued context field, or "".
func (r CDSHookRequest) ContextString(key string) string {
	var s string
	if raw, ok := r.Context[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

type CDSCard struct {
	UUID        string          `json:"uuid,omitempty"`
	Summary     string          `json:"summary"`
	Detail      string          `json:"detail,omitempty"`
	Indicator   string          `json:"indicator"`
	Source      CDSSource       `json:"source"`
	Links       []CDSLink       `json:"links,omitempty"`
	Suggestions []CDSSuggestion `json:"suggestions,omitempty"`
}

type CDSSource struct {
	Label string `json:"label"`
	URL   string `json:"url,omitempty"`
}

type CDSSuggestion struct {
	Label string `json:"label"`
	UUID  string `json:"uuid,omitempty"`
}

type CDSLink struct {
	Label string `json:"label"`
	URL   string `json:"url"`
	Type  string `json:"type"`
}

type CDSCoding struct {
	Code    string `json:"code"`
	System  string `json:"system,omitempty"`
	Display string `json:"display,omitempty"`
}

type CDSHookResponse struct {
	Cards []CDSCard `json:"cards"`
}

// CDSFeedbackRequest records what the clinician did with a card.
type CDSFeedbackRequest struct {
	Card             string      `json:"card"`
	Outcome          string      `json:"outcome"`
	OverrideReasons  []CDSCoding `json:"overrideReasons,omitempty"`
	OutcomeTimestamp string      `json:"outcomeTimestamp,omitempty"`
}

type ServiceHandler func(ctx context.Context, req CDSHookRequest) (*CDSHookResponse, error)

type FeedbackHandler func(ctx context.Context, serviceID string, fb CDSFeedbackRequest) error

// CDSHooksHandler serves the CDS Hooks discovery and invocation endpoints.
// Services are registered at startup, before routes receive traffic.
type CDSHooksHandler struct {
	services         map[string]CDSService
	handlers         map[string]ServiceHandler
	feedbackHandlers map[string]FeedbackHandler
	order            []string
}

func NewCDSHooksHandler() *CDSHooksHandler {
	return &CDSHooksHandler{
		services:         make(map[string]CDSService),
		handlers:         make(map[string]ServiceHandler),
		feedbackHandlers: make(map[string]FeedbackHandler),
	}
}

func (h *CDSHooksHandler) RegisterService(svc CDSService, handler ServiceHandler) {
	if _, exists := h.services[svc.ID]; !exists {
		h.order = append(h.order, svc.ID)
	}
	h.services[svc.ID] = svc
	h.handlers[svc.ID] = handler
}

func (h *CDSHooksHandler) RegisterFeedbackHandler(serviceID string, handler FeedbackHandler) {
	h.feedbackHandlers[serviceID] = handler
}

// RegisterRoutes mounts the CDS Hooks endpoints. Middleware (auth, role
// guards) is supplied by the caller.
func (h *CDSHooksHandler) RegisterRoutes(e *echo.Echo, m ...echo.MiddlewareFunc) {
	g := e.Group("/cds-services", m...)
	g.GET("", h.Discovery)
	g.POST("/:id", h.HandleHook)
	g.POST("/:id/feedback", h.HandleFeedback)
}

// Discovery lists registered services in registration order.
func (h *CDSHooksHandler) Discovery(c echo.Context) error {
	services := make([]CDSService, 0, len(h.order))
	for _, id := range h.order {
		services = append(services, h.services[id])
	}
	return c.JSON(http.StatusOK, map[string][]CDSService{
		"services": services,
	})
}

func (h *CDSHooksHandler) HandleHook(c echo.Context) error {
	serviceID := c.Param("id")

	svc, ok := h.services[serviceID]
	if !ok {
		return c.JSON(http.StatusNotFound, NotFoundOutcome("CDS Service", serviceID))
	}

	var req CDSHookRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, InvalidOutcome(fmt.Sprintf("invalid request body: %v", err)))
	}
	if req.Hook != svc.Hook {
		return c.JSON(http.StatusBadRequest, InvalidOutcome(
			fmt.Sprintf("hook mismatch: request hook %q does not match service hook %q", req.Hook, svc.Hook),
		))
	}
	if req.HookInstance == "" {
		return c.JSON(http.StatusBadRequest, InvalidOutcome("hookInstance is required"))
	}

	resp, err := h.handlers[serviceID](c.Request().Context(), req)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, InternalErrorOutcome(err.Error()))
	}
	if resp.Cards == nil {
		resp.Cards = []CDSCard{}
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *CDSHooksHandler) HandleFeedback(c echo.Context) error {
	serviceID := c.Param("id")

	if _, ok := h.services[serviceID]; !ok {
		return c.JSON(http.StatusNotFound, NotFoundOutcome("CDS Service", serviceID))
	}

	var body struct {
		Feedback []CDSFeedbackRequest `json:"feedback"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return c.JSON(http.StatusBadRequest, InvalidOutcome(fmt.Sprintf("invalid feedback body: %v", err)))
	}

	handler, ok := h.feedbackHandlers[serviceID]
	if !ok {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
	for _, fb := range body.Feedback {
		if err := handler(c.Request().Context(), serviceID, fb); err != nil {
			return c.JSON(http.StatusInternalServerError, InternalErrorOutcome(err.Error()))
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
