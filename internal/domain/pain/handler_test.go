package pain

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onco/onco/internal/platform/auth"
)

func newTestHandler() (*Handler, *mockPatientLookup) {
	lookup := newMockPatientLookup()
	return NewHandler(newTestService(lookup, 0)), lookup
}

func jsonContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithIdentity(req.Context(), "nurse-1", []string{auth.RoleNurse}))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func assertHTTPStatus(t *testing.T, err error, want int) {
	t.Helper()
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected echo.HTTPError, got %T", err)
	assert.Equal(t, want, httpErr.Code)
}

func TestHandler_CalculateMME_EchoesSequence(t *testing.T) {
	h, _ := newTestHandler()
	body := `{"request_seq":7,"medications":[{"name":"oxycodone","route":"oral","dose_amount_per_administration":10,"administrations_per_day":4},{"name":"Suboxone","route":"sublingual","dose_amount_per_administration":8,"administrations_per_day":1}]}`
	c, rec := jsonContext(http.MethodPost, "/api/pain/opiates/mme", body)

	require.NoError(t, h.CalculateMME(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		RequestSeq *uint64         `json:"request_seq"`
		Total      float64         `json:"total_mme_per_day"`
		Breakdown  []DoseBreakdown `json:"per_medication_breakdown"`
		RiskTier   RiskTier        `json:"risk_tier"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.RequestSeq)
	assert.Equal(t, uint64(7), *resp.RequestSeq)
	assert.InDelta(t, 60, resp.Total, 1e-9)
	assert.Len(t, resp.Breakdown, 2)
	assert.True(t, resp.Breakdown[1].Excluded)
	assert.Equal(t, RiskElevated, resp.RiskTier)
}

func TestHandler_CalculateMME_BadBody(t *testing.T) {
	h, _ := newTestHandler()
	c, _ := jsonContext(http.MethodPost, "/api/pain/opiates/mme", `{"medications":`)
	assertHTTPStatus(t, h.CalculateMME(c), http.StatusBadRequest)
}

func TestHandler_SafetyCheck(t *testing.T) {
	h, _ := newTestHandler()
	body := `{"request_seq":3,"medications":[{"name":"methadone","route":"oral","dose_amount_per_administration":10,"administrations_per_day":1},{"name":"Zofran","route":"oral","dose_amount_per_administration":8,"administrations_per_day":2}],"patient":{"age":50}}`
	c, rec := jsonContext(http.MethodPost, "/api/pain/opiates/safety-check", body)

	require.NoError(t, h.SafetyCheck(c))
	var resp SafetyCheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(3), *resp.RequestSeq)
	assert.Equal(t, []string{"Methadone + QT-prolonging agent"}, issues(resp.Findings))
	assert.Equal(t, SeverityMajor, resp.HighestSeverity)
}

func TestHandler_SafetyCheck_EmptyFindingsIsArray(t *testing.T) {
	h, _ := newTestHandler()
	c, rec := jsonContext(http.MethodPost, "/api/pain/opiates/safety-check", `{"medications":[]}`)
	require.NoError(t, h.SafetyCheck(c))
	assert.Contains(t, rec.Body.String(), `"findings":[]`)
	assert.NotContains(t, rec.Body.String(), "request_seq")
}

func TestHandler_SafetyCheck_UnknownPatient(t *testing.T) {
	h, _ := newTestHandler()
	body := `{"medications":[],"patient_id":"` + uuid.NewString() + `"}`
	c, _ := jsonContext(http.MethodPost, "/api/pain/opiates/safety-check", body)
	assertHTTPStatus(t, h.SafetyCheck(c), http.StatusNotFound)
}

func TestHandler_SafetyCheck_MixedCasePhenotype(t *testing.T) {
	h, _ := newTestHandler()
	body := `{"medications":[{"name":"codeine","route":"oral","dose_amount_per_administration":30,"administrations_per_day":4}],"patient":{"cyp2d6_phenotype":"Ultra-Rapid"}}`
	c, rec := jsonContext(http.MethodPost, "/api/pain/opiates/safety-check", body)

	require.NoError(t, h.SafetyCheck(c))
	var resp SafetyCheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"CYP2D6 phenotype + codeine/tramadol"}, issues(resp.Findings))
	assert.Equal(t, SeverityMajor, resp.HighestSeverity)
}

func TestHandler_SafetyCheck_UnknownPhenotype(t *testing.T) {
	h, _ := newTestHandler()
	body := `{"medications":[],"patient":{"cyp2d6_phenotype":"extensive"}}`
	c, _ := jsonContext(http.MethodPost, "/api/pain/opiates/safety-check", body)
	assertHTTPStatus(t, h.SafetyCheck(c), http.StatusBadRequest)
}

func TestHandler_SafetyCheck_LookupFailure(t *testing.T) {
	h, lookup := newTestHandler()
	lookup.err = errors.New("connection refused")
	body := `{"medications":[],"patient_id":"` + uuid.NewString() + `"}`
	c, _ := jsonContext(http.MethodPost, "/api/pain/opiates/safety-check", body)
	assertHTTPStatus(t, h.SafetyCheck(c), http.StatusInternalServerError)

	body = `{"patient_id":"` + uuid.NewString() + `","medications":[{"name":"morphine","route":"oral","dose_amount_per_administration":5,"administrations_per_day":1}]}`
	c, _ = jsonContext(http.MethodPost, "/api/pain/assessments", body)
	assertHTTPStatus(t, h.CreateAssessment(c), http.StatusInternalServerError)
}

func TestHandler_Suggestions(t *testing.T) {
	h, _ := newTestHandler()
	c, rec := jsonContext(http.MethodGet, "/api/pain/opiates/suggestions?q=dil", "")
	require.NoError(t, h.Suggestions(c))

	var got []Suggestion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "dilaudid", got[0].Name)
	assert.Equal(t, Hydromorphone, got[0].Ingredient)
}

func TestHandler_Assessments(t *testing.T) {
	h, lookup := newTestHandler()
	patientID := uuid.New()
	lookup.contexts[patientID] = PatientContext{}

	body := `{"patient_id":"` + patientID.String() + `","pain_score":4,"medications":[{"name":"morphine","route":"oral","dose_amount_per_administration":15,"administrations_per_day":2}]}`
	c, rec := jsonContext(http.MethodPost, "/api/pain/assessments", body)
	require.NoError(t, h.CreateAssessment(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var created Assessment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.InDelta(t, 30, created.TotalMMEPerDay, 1e-9)
	assert.Equal(t, "nurse-1", created.AssessedBy)

	c, rec = jsonContext(http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())
	require.NoError(t, h.GetAssessment(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = jsonContext(http.MethodGet, "/api/pain/assessments?patient_id="+patientID.String(), "")
	require.NoError(t, h.ListAssessments(c))
	var page struct {
		Total int          `json:"total"`
		Data  []Assessment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)
	assert.Len(t, page.Data, 1)
}

func TestHandler_AssessmentErrors(t *testing.T) {
	h, _ := newTestHandler()

	c, _ := jsonContext(http.MethodGet, "/api/pain/assessments", "")
	assertHTTPStatus(t, h.ListAssessments(c), http.StatusBadRequest)

	c, _ = jsonContext(http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	assertHTTPStatus(t, h.GetAssessment(c), http.StatusBadRequest)

	c, _ = jsonContext(http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	assertHTTPStatus(t, h.GetAssessment(c), http.StatusNotFound)

	body := `{"patient_id":"` + uuid.NewString() + `","medications":[{"name":"morphine","route":"oral","dose_amount_per_administration":5,"administrations_per_day":1}]}`
	c, _ = jsonContext(http.MethodPost, "/api/pain/assessments", body)
	assertHTTPStatus(t, h.CreateAssessment(c), http.StatusNotFound)
}

func TestHandler_RoutesRequireClinicalRole(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	api := e.Group("/api", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithIdentity(c.Request().Context(), "u", []string{"receptionist"})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	h.RegisterRoutes(api)

	req := httptest.NewRequest(http.MethodPost, "/api/pain/opiates/mme", strings.NewReader(`{"medications":[]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
