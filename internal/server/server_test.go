package server_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnsphere/console/internal/config"
	"github.com/vulnsphere/console/internal/database"
	"github.com/vulnsphere/console/internal/report"
	"github.com/vulnsphere/console/internal/server"
	"github.com/vulnsphere/console/internal/telemetry"
	"github.com/vulnsphere/console/internal/testutil"
	"github.com/vulnsphere/console/internal/vulnsphere"
)

const sessionCookie = "vulnsphere_session"

type harness struct {
	t       *testing.T
	fake    *testutil.FakeAPI
	db      *database.DB
	handler http.Handler
	cookie  *http.Cookie
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := testutil.New(t).Seed()

	db, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "console.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	metrics, err := telemetry.NewMetrics()
	require.NoError(t, err)

	cfg := &config.Config{
		Server:  config.ServerConfig{Host: "127.0.0.1", Port: 0},
		API:     config.APIConfig{BaseURL: fake.BaseURL(), Timeout: 5 * time.Second, FanoutLimit: 4},
		Session: config.SessionConfig{TTL: time.Hour},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	srv, err := server.New(cfg, db, fake.Client(), metrics)
	require.NoError(t, err)

	return &harness{t: t, fake: fake, db: db, handler: srv.Handler()}
}

func (h *harness) do(method, path string, form url.Values) *httptest.ResponseRecorder {
	h.t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	return h.serve(req)
}

func (h *harness) serve(req *http.Request) *httptest.ResponseRecorder {
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) login(username string) {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/login", url.Values{"username": {username}, "password": {"secret"}})
	require.Equal(h.t, http.StatusSeeOther, rec.Code, rec.Body.String())
	require.Equal(h.t, "/", rec.Header().Get("Location"))
	h.cookie = findCookie(rec, sessionCookie)
	require.NotNil(h.t, h.cookie)
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestPagesRequireSession(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/", "/companies", "/reports", "/users"} {
		rec := h.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusSeeOther, rec.Code, path)
		assert.Equal(t, "/login", rec.Header().Get("Location"), path)
	}

	rec := h.do(http.MethodGet, "/login", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sign in")
}

func TestLoginCreatesSession(t *testing.T) {
	h := newHarness(t)
	h.login("admin")

	sess, err := h.db.GetSession(context.Background(), h.cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "admin", sess.Username)
	assert.Equal(t, "access-1", sess.AccessToken)
	assert.Equal(t, "refresh-1", sess.RefreshToken)

	rec := h.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Ada Admin")
	assert.Contains(t, body, "Acme Web App")
	assert.Contains(t, body, `href="/users"`)
}

func TestLoginRejected(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/login", url.Values{"username": {"admin"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "No active account found with the given credentials")
	assert.Nil(t, findCookie(rec, sessionCookie))

	rec = h.do(http.MethodPost, "/login", url.Values{"username": {"admin"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please enter your username and password")
	assert.Equal(t, 1, h.fake.Calls("POST /auth/login/"))
}

func TestLogoutClearsSession(t *testing.T) {
	h := newHarness(t)
	h.login("admin")
	id := h.cookie.Value

	rec := h.do(http.MethodPost, "/logout", url.Values{})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	cleared := findCookie(rec, sessionCookie)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)

	_, err := h.db.GetSession(context.Background(), id)
	assert.ErrorIs(t, err, database.ErrSessionNotFound)
}

func TestExpiredAccessIsRefreshedTransparently(t *testing.T) {
	h := newHarness(t)
	h.login("admin")
	h.fake.RotateAccess()

	rec := h.do(http.MethodGet, "/companies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Acme Corp")
	assert.Equal(t, 1, h.fake.Calls("POST /auth/refresh/"))

	h.fake.Lock()
	access := h.fake.AccessToken
	h.fake.Unlock()
	sess, err := h.db.GetSession(context.Background(), h.cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, access, sess.AccessToken)
}

func TestFailedRefreshLogsOut(t *testing.T) {
	h := newHarness(t)
	h.login("admin")
	id := h.cookie.Value

	h.fake.Lock()
	h.fake.RefreshToken = "refresh-2"
	h.fake.Unlock()
	h.fake.RotateAccess()

	rec := h.do(http.MethodGet, "/companies", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	cleared := findCookie(rec, sessionCookie)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)

	_, err := h.db.GetSession(context.Background(), id)
	assert.ErrorIs(t, err, database.ErrSessionNotFound)
}

func TestAPIOutageKeepsSession(t *testing.T) {
	h := newHarness(t)
	h.login("admin")
	id := h.cookie.Value

	h.fake.Lock()
	h.fake.Fail["GET /users/me/"] = http.StatusServiceUnavailable
	h.fake.Unlock()

	rec := h.do(http.MethodGet, "/companies", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not reachable right now")
	assert.Nil(t, findCookie(rec, sessionCookie), "cookie is left alone")

	_, err := h.db.GetSession(context.Background(), id)
	require.NoError(t, err)

	h.fake.Lock()
	delete(h.fake.Fail, "GET /users/me/")
	h.fake.Unlock()

	rec = h.do(http.MethodGet, "/companies", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProjectCreateRedirects(t *testing.T) {
	h := newHarness(t)
	h.login("admin")

	rec := h.do(http.MethodPost, "/companies/"+testutil.AcmeID+"/projects", url.Values{
		"title":      {"Acme Mobile"},
		"start_date": {"2025-05-01"},
		"end_date":   {"2025-05-09"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/companies/"+testutil.AcmeID, rec.Header().Get("Location"))

	rec = h.do(http.MethodGet, "/companies/"+testutil.AcmeID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Acme Mobile")
}

func TestProjectCreateFieldErrorKeepsDialogOpen(t *testing.T) {
	h := newHarness(t)
	h.login("admin")

	rec := h.do(http.MethodPost, "/companies/"+testutil.AcmeID+"/projects", url.Values{
		"title":      {"Backwards"},
		"start_date": {"2025-05-09"},
		"end_date":   {"2025-05-01"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "End date must be after start date.")
	assert.Contains(t, body, `data-field="end_date"`)
	assert.Contains(t, body, `value="Backwards"`, "typed values survive the failed submit")
}

func TestEditStartsFromStoredEntity(t *testing.T) {
	h := newHarness(t)
	h.login("admin")

	rec := h.do(http.MethodPost, "/companies/"+testutil.AcmeID+"/projects/"+testutil.AcmeWebID+"/edit", url.Values{
		"title": {"Acme Web App v2"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

	h.fake.Lock()
	defer h.fake.Unlock()
	assert.Contains(t, string(h.fake.Patches["/companies/c-acme/projects/p-acme-web/"]), `"engagement_type":"Web Application Penetration Test"`)
	p := h.fake.Projects[0]
	assert.Equal(t, "Acme Web App v2", p.Title)
	assert.Equal(t, vulnsphere.DefaultEngagement, p.EngagementType)
	assert.Equal(t, "2025-03-01", p.StartDate)
	assert.Equal(t, "2025-03-14", p.EndDate)
	assert.Equal(t, vulnsphere.ProjectStatusInReview, p.Status)
}

func TestVulnEditKeepsSeverity(t *testing.T) {
	h := newHarness(t)
	h.login("admin")

	rec := h.do(http.MethodPost, "/projects/"+testutil.AcmeID+"/"+testutil.AcmeWebID+"/vulnerabilities/v-1/edit", url.Values{
		"title":           {"SQL injection in login form"},
		"cvss_base_score": {"9.8"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

	h.fake.Lock()
	defer h.fake.Unlock()
	v := h.fake.Vulns[testutil.AcmeWebID][0]
	assert.Equal(t, "SQL injection in login form", v.Title)
	assert.Equal(t, vulnsphere.SeverityCritical, v.Severity)
	assert.Equal(t, vulnsphere.StatusOpen, v.Status)
}

func TestEditOfMissingEntityFails(t *testing.T) {
	h := newHarness(t)
	h.login("admin")

	rec := h.do(http.MethodPost, "/templates/t-gone/edit", url.Values{"name": {"Renamed"}})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Zero(t, h.fake.Calls("PATCH /templates/t-gone/"))
}

func TestVulnDetailShowsRetests(t *testing.T) {
	h := newHarness(t)
	h.login("admin")
	path := "/projects/" + testutil.AcmeID + "/" + testutil.AcmeWebID + "/vulnerabilities/v-1"

	rec := h.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "SQL Injection in login")
	assert.Contains(t, body, "Patched in 2.4.1")

	rec = h.do(http.MethodPost, path+"/retest", url.Values{"notes": {"WAF rule added"}})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, path, rec.Header().Get("Location"))

	rec = h.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "WAF rule added")
}

func TestVulnDetailWithoutRetestHistory(t *testing.T) {
	h := newHarness(t)
	h.login("admin")
	h.fake.Lock()
	h.fake.Fail["GET /companies/c-acme/projects/p-acme-web/vulnerabilities/v-1/retests/"] = http.StatusInternalServerError
	h.fake.Unlock()

	rec := h.do(http.MethodGet, "/projects/"+testutil.AcmeID+"/"+testutil.AcmeWebID+"/vulnerabilities/v-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Retest history is unavailable right now.")
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	h := newHarness(t)
	h.login("admin")
	path := "/companies/" + testutil.AcmeID + "/projects/" + testutil.AcmeAPIID + "/delete"
	apiKey := "DELETE /companies/" + testutil.AcmeID + "/projects/" + testutil.AcmeAPIID + "/"

	rec := h.do(http.MethodPost, path, url.Values{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please confirm the deletion.")
	assert.Zero(t, h.fake.Calls(apiKey))

	rec = h.do(http.MethodPost, path, url.Values{"confirm": {"yes"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 1, h.fake.Calls(apiKey))
}

func TestClientCannotMutate(t *testing.T) {
	h := newHarness(t)
	h.fake.SetMe(testutil.ClientID)
	h.login("acme_client")

	rec := h.do(http.MethodPost, "/companies/"+testutil.AcmeID+"/projects", url.Values{"title": {"Nope"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, h.fake.Calls("POST /companies/"+testutil.AcmeID+"/projects/"))

	rec = h.do(http.MethodGet, "/users", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodGet, "/companies/"+testutil.InitechID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGenerateMissingSelection(t *testing.T) {
	h := newHarness(t)
	h.login("admin")

	rec := h.do(http.MethodPost, "/reports/generate", url.Values{"template_id": {"t-docx"}, "scope": {"company"}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), report.MsgMissingSelection)
	assert.Empty(t, h.fake.Generated)
}

func TestGenerateForCompany(t *testing.T) {
	h := newHarness(t)
	h.login("admin")

	rec := h.do(http.MethodPost, "/reports/generate", url.Values{
		"template_id": {"t-html"},
		"scope":       {"company"},
		"scope_id":    {testutil.GlobexID},
		"format":      {"HTML"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/reports", rec.Header().Get("Location"))
	require.Len(t, h.fake.Generated, 1)
	assert.Equal(t, testutil.GlobexID, h.fake.Generated[0].CompanyID)
	assert.Empty(t, h.fake.Generated[0].ProjectID)
}

func TestAssetImportPartialSuccess(t *testing.T) {
	h := newHarness(t)
	h.login("admin")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "assets.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("name,type,identifier,description\nPortal,WEB_APP,https://portal.acme.test,\n,API,https://x.test,\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/companies/"+testutil.AcmeID+"/assets/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := h.serve(req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Successfully imported 1 items, 1 failed")
	assert.Contains(t, body, "Row 3: name is required")
	assert.Contains(t, body, "Portal")
}

func TestActivityForbiddenForTester(t *testing.T) {
	h := newHarness(t)
	h.fake.SeedLogs(3)
	h.fake.SetMe(testutil.TesterID)
	h.login("tess")

	rec := h.do(http.MethodGet, "/activity", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Access denied. Only administrators can view activity logs.")
}

func TestCSVTemplateDownload(t *testing.T) {
	h := newHarness(t)
	h.login("admin")

	rec := h.do(http.MethodGet, "/companies/"+testutil.AcmeID+"/assets/csv-template", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename=assets_template.csv`, rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "name,type,identifier,description"))
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = h.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vulnsphere_http_requests_total")
}
