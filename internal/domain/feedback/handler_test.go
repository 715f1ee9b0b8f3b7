package feedback

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onco/onco/internal/platform/auth"
	"github.com/onco/onco/internal/platform/github"
)

func newFeedbackServer(svc *Service, roles ...string) *echo.Echo {
	e := echo.New()
	api := e.Group("/api", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithIdentity(c.Request().Context(), "user-1", roles)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(svc).RegisterRoutes(api)
	return e
}

func request(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set("User-Agent", "test-agent/1.0")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Submit(t *testing.T) {
	e := newFeedbackServer(newTestService(nil, false), auth.RoleNurse)

	rec := request(e, http.MethodPost, "/api/feedback", `{"message":"How do I export my records?","page":"/patients"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var f Feedback
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	assert.Equal(t, TypeQuestion, f.Type)
	assert.Equal(t, StatusNew, f.Status)
	assert.Equal(t, "user-1", f.SubmittedBy)
	require.NotNil(t, f.UserAgent)
	assert.Equal(t, "test-agent/1.0", *f.UserAgent)

	rec = request(e, http.MethodPost, "/api/feedback", `{"message":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Submit_StoreFailure(t *testing.T) {
	repo := &flakyRepo{Repository: NewMemoryRepo(), err: errors.New("connection refused")}
	e := newFeedbackServer(NewService(repo, nil, false, zerolog.Nop()), auth.RoleNurse)

	rec := request(e, http.MethodPost, "/api/feedback", `{"message":"The chart does not load"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandler_Classify(t *testing.T) {
	e := newFeedbackServer(newTestService(nil, false))

	rec := request(e, http.MethodPost, "/api/feedback/classify", `{"message":"Thank you, this tool is amazing"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var c Classification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, TypePraise, c.Type)

	rec = request(e, http.MethodPost, "/api/feedback/classify", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_AdminRoutes(t *testing.T) {
	svc := newTestService(nil, false)
	admin := newFeedbackServer(svc, auth.RoleAdmin)
	physician := newFeedbackServer(svc, auth.RolePhysician)
	nurse := newFeedbackServer(svc, auth.RoleNurse)

	rec := request(nurse, http.MethodPost, "/api/feedback", `{"message":"The export button is broken"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var f Feedback
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))

	assert.Equal(t, http.StatusForbidden, request(nurse, http.MethodGet, "/api/feedback", "").Code)
	assert.Equal(t, http.StatusOK, request(physician, http.MethodGet, "/api/feedback?type=bug", "").Code)
	assert.Equal(t, http.StatusOK, request(physician, http.MethodGet, "/api/feedback/"+f.ID.String(), "").Code)
	assert.Equal(t, http.StatusBadRequest, request(physician, http.MethodGet, "/api/feedback?status=bogus", "").Code)

	rec = request(physician, http.MethodGet, "/api/feedback/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	assert.Equal(t, http.StatusForbidden, request(physician, http.MethodPatch, "/api/feedback/"+f.ID.String()+"/status", `{"status":"triaged"}`).Code)
	assert.Equal(t, http.StatusOK, request(admin, http.MethodPatch, "/api/feedback/"+f.ID.String()+"/status", `{"status":"triaged"}`).Code)
	assert.Equal(t, http.StatusConflict, request(admin, http.MethodPatch, "/api/feedback/"+f.ID.String()+"/status", `{"status":"resolved"}`).Code)
	assert.Equal(t, http.StatusBadRequest, request(admin, http.MethodPatch, "/api/feedback/"+f.ID.String()+"/status", `{"status":"gone"}`).Code)
	assert.Equal(t, http.StatusNotFound, request(admin, http.MethodGet, "/api/feedback/"+uuid.NewString(), "").Code)

	assert.Equal(t, http.StatusServiceUnavailable, request(admin, http.MethodPost, "/api/feedback/"+f.ID.String()+"/github-issue", "").Code)
}

func TestHandler_CreateIssue_GitHub(t *testing.T) {
	var calls int32
	var got github.IssueRequest
	gh := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/repos/onco/app/issues", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"number":42,"html_url":"https://github.com/onco/app/issues/42","state":"open"}`))
	}))
	defer gh.Close()

	client, err := github.NewClient(github.Config{BaseURL: gh.URL, Token: "tok", Owner: "onco", Repo: "app"})
	require.NoError(t, err)
	svc := NewService(NewMemoryRepo(), client, false, zerolog.Nop())
	e := newFeedbackServer(svc, auth.RoleAdmin)

	rec := request(e, http.MethodPost, "/api/feedback", `{"message":"Please add support for exporting PDFs"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var f Feedback
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))

	for i := 0; i < 2; i++ {
		rec = request(e, http.MethodPost, "/api/feedback/"+f.ID.String()+"/github-issue", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	var withIssue Feedback
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &withIssue))
	assert.Equal(t, 42, *withIssue.GitHubIssueNumber)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.True(t, strings.HasPrefix(got.Title, "[Feature Request] "))
	assert.Contains(t, got.Labels, "enhancement")
}

func TestHandler_CreateIssue_UpstreamError(t *testing.T) {
	gh := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
	}))
	defer gh.Close()

	client, err := github.NewClient(github.Config{BaseURL: gh.URL, Token: "bad", Owner: "o", Repo: "r"})
	require.NoError(t, err)
	svc := NewService(NewMemoryRepo(), client, false, zerolog.Nop())
	e := newFeedbackServer(svc, auth.RoleAdmin)

	f := &Feedback{Message: "hello"}
	require.NoError(t, svc.Submit(httptest.NewRequest(http.MethodGet, "/", nil).Context(), f))

	rec := request(e, http.MethodPost, "/api/feedback/"+f.ID.String()+"/github-issue", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
