package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/onco/onco/internal/platform/auth"
)

// AuditEntry records one access to patient data.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	Resource   string
	PatientID  string
	Action     string // read, create, update, delete
	IPAddress  string
	Path       string
	Method     string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// auditedPrefixes are the routes that return or change patient data.
var auditedPrefixes = []string{
	"/api/patients",
	"/api/fhir/patients",
	"/api/pain/assessments",
	"/api/pain/opiates/safety-check",
	"/cds-services",
}

// Audit logs every request to a patient-data route after it completes.
// recorder may be nil.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !isAuditablePath(path) {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Path:       path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				StatusCode: responseStatus(c, err),
				Action:     httpMethodToAction(req.Method),
				Resource:   resourceFor(path),
				PatientID:  extractPatientID(c),
				UserID:     auth.UserIDFromContext(req.Context()),
				UserRoles:  auth.RolesFromContext(req.Context()),
			}
			if rid, ok := c.Get(RequestIDKey).(string); ok {
				entry.RequestID = rid
			}

			if recorder != nil {
				if recErr := recorder.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "phi_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("resource", entry.Resource).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

// responseStatus is the status the client will see. Errors are written
// later by the logger middleware, so the response is not committed yet.
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func isAuditablePath(path string) bool {
	for _, p := range auditedPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// resourceFor maps /api/pain/assessments/<id> to "pain/assessments".
func resourceFor(path string) string {
	segs := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/"), "/"), "/")
	var out []string
	for _, s := range segs {
		if s == "" || isUUID(s) {
			break
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return "unknown"
	}
	return strings.Join(out, "/")
}

// extractPatientID looks for a patient id in /patients/<id> paths, then in
// the patient_id query parameter.
func extractPatientID(c echo.Context) string {
	path := c.Request().URL.Path
	for _, prefix := range []string{"/api/patients/", "/api/fhir/patients/"} {
		if rest, ok := strings.CutPrefix(path, prefix); ok {
			id, _, _ := strings.Cut(rest, "/")
			if isUUID(id) {
				return id
			}
		}
	}
	if id := c.QueryParam("patient_id"); isUUID(id) {
		return id
	}
	return ""
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
