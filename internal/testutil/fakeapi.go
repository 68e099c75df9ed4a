// Package testutil provides an in-memory VulnSphere API for package tests.
package testutil

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vulnsphere/console/internal/apiclient"
	"github.com/vulnsphere/console/internal/credentials"
	"github.com/vulnsphere/console/internal/vulnsphere"
)

const Prefix = "/api/v1"

// FakeAPI serves a mutable dataset over httptest. Tests may edit the exported
// fields between requests; handlers hold mu while reading them.
type FakeAPI struct {
	Server *httptest.Server

	mu sync.Mutex

	Companies []vulnsphere.Company
	Projects  []vulnsphere.Project
	Assets    []vulnsphere.Asset
	// Vulns is keyed by project id.
	Vulns     map[string][]vulnsphere.Vulnerability
	Retests   []vulnsphere.Retest
	Templates []vulnsphere.ReportTemplate
	Reports   []vulnsphere.GeneratedReport
	Users     []vulnsphere.User
	Logs      []vulnsphere.ActivityLog

	// Me is the user behind AccessToken.
	Me       vulnsphere.User
	Password string

	AccessToken  string
	RefreshToken string

	// Fail forces a status for "METHOD /path/" (path without the API prefix).
	Fail map[string]int
	// Problems is the body sent with a forced failure.
	Problems map[string]string

	Generated []vulnsphere.GenerateRequest
	Patches   map[string]json.RawMessage

	calls map[string]int
}

func New(t *testing.T) *FakeAPI {
	t.Helper()
	f := &FakeAPI{
		Vulns:        map[string][]vulnsphere.Vulnerability{},
		Fail:         map[string]int{},
		Problems:     map[string]string{},
		Patches:      map[string]json.RawMessage{},
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Password:     "secret",
		calls:        map[string]int{},
	}
	f.Server = httptest.NewServer(f.routes())
	t.Cleanup(f.Server.Close)
	return f
}

// BaseURL is the API base path the console is configured with.
func (f *FakeAPI) BaseURL() string { return f.Server.URL + Prefix }

func (f *FakeAPI) Client() *apiclient.Client {
	return apiclient.New(apiclient.Config{BaseURL: f.BaseURL(), Timeout: 5 * time.Second})
}

// Store returns credentials holding the fake's current token pair.
func (f *FakeAPI) Store() *credentials.MemoryStore {
	f.mu.Lock()
	defer f.mu.Unlock()
	return credentials.NewMemoryStore(credentials.Tokens{Access: f.AccessToken, Refresh: f.RefreshToken})
}

func (f *FakeAPI) API() *vulnsphere.API {
	return vulnsphere.New(f.Client(), f.Store())
}

// RotateAccess invalidates the current access token so the next request
// needs a refresh.
func (f *FakeAPI) RotateAccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AccessToken = "access-" + uuid.NewString()
}

// Calls counts requests to "METHOD /path/".
func (f *FakeAPI) Calls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

// Lock exposes the dataset lock to tests that mutate it while requests run.
func (f *FakeAPI) Lock()   { f.mu.Lock() }
func (f *FakeAPI) Unlock() { f.mu.Unlock() }

func (f *FakeAPI) routes() http.Handler {
	mux := http.NewServeMux()
	p := func(pattern string) string {
		method, path, _ := strings.Cut(pattern, " ")
		return method + " " + Prefix + path
	}

	mux.HandleFunc(p("POST /auth/login/"), f.login)
	mux.HandleFunc(p("POST /auth/refresh/"), f.refresh)

	mux.HandleFunc(p("GET /companies/"), f.authed(f.listCompanies))
	mux.HandleFunc(p("GET /companies/{c}/"), f.authed(f.getCompany))
	mux.HandleFunc(p("PATCH /companies/{c}/"), f.authed(f.patchCompany))
	mux.HandleFunc(p("GET /companies/{c}/projects/"), f.authed(f.listCompanyProjects))
	mux.HandleFunc(p("POST /companies/{c}/projects/"), f.authed(f.createProject))
	mux.HandleFunc(p("GET /companies/{c}/projects/{p}/"), f.authed(f.getProject))
	mux.HandleFunc(p("PATCH /companies/{c}/projects/{p}/"), f.authed(f.patchProject))
	mux.HandleFunc(p("DELETE /companies/{c}/projects/{p}/"), f.authed(f.deleteProject))
	mux.HandleFunc(p("GET /companies/{c}/projects/{p}/vulnerabilities/"), f.authed(f.listVulns))
	mux.HandleFunc(p("POST /companies/{c}/projects/{p}/vulnerabilities/"), f.authed(f.createVuln))
	mux.HandleFunc(p("GET /companies/{c}/projects/{p}/vulnerabilities/{v}/"), f.authed(f.getVuln))
	mux.HandleFunc(p("PATCH /companies/{c}/projects/{p}/vulnerabilities/{v}/"), f.authed(f.patchVuln))
	mux.HandleFunc(p("DELETE /companies/{c}/projects/{p}/vulnerabilities/{v}/"), f.authed(f.deleteVuln))
	mux.HandleFunc(p("GET /companies/{c}/projects/{p}/vulnerabilities/{v}/retests/"), f.authed(f.listRetests))
	mux.HandleFunc(p("POST /companies/{c}/projects/{p}/vulnerabilities/{v}/retests/"), f.authed(f.createRetest))
	mux.HandleFunc(p("GET /companies/{c}/assets/"), f.authed(f.listAssets))
	mux.HandleFunc(p("POST /companies/{c}/assets/"), f.authed(f.createAsset))
	mux.HandleFunc(p("GET /companies/{c}/assets/{a}/"), f.authed(f.getAsset))
	mux.HandleFunc(p("PATCH /companies/{c}/assets/{a}/"), f.authed(f.patchAsset))
	mux.HandleFunc(p("DELETE /companies/{c}/assets/{a}/"), f.authed(f.deleteAsset))
	mux.HandleFunc(p("POST /companies/{c}/assets/bulk-import/"), f.authed(f.importAssets))
	mux.HandleFunc(p("GET /companies/{c}/assets/csv-template/"), f.authed(f.csvTemplate))

	mux.HandleFunc(p("GET /projects/"), f.authed(f.listProjects))

	mux.HandleFunc(p("GET /report-templates/"), f.authed(f.listTemplates))
	mux.HandleFunc(p("POST /report-templates/"), f.authed(f.uploadTemplate))
	mux.HandleFunc(p("GET /report-templates/{t}/"), f.authed(f.getTemplate))
	mux.HandleFunc(p("PATCH /report-templates/{t}/"), f.authed(f.patchTemplate))
	mux.HandleFunc(p("DELETE /report-templates/{t}/"), f.authed(f.deleteTemplate))
	mux.HandleFunc(p("GET /report-templates/{t}/download/"), f.authed(f.downloadTemplate))

	mux.HandleFunc(p("GET /generated-reports/"), f.authed(f.listReports))
	mux.HandleFunc(p("POST /generated-reports/generate/"), f.authed(f.generate))
	mux.HandleFunc(p("DELETE /generated-reports/{r}/"), f.authed(f.deleteReport))
	mux.HandleFunc(p("GET /generated-reports/{r}/download/"), f.authed(f.downloadReport))

	mux.HandleFunc(p("GET /users/"), f.authed(f.listUsers))
	mux.HandleFunc(p("POST /users/"), f.authed(f.createUser))
	mux.HandleFunc(p("GET /users/me/"), f.authed(f.me))
	mux.HandleFunc(p("PATCH /users/me/"), f.authed(f.patchMe))
	mux.HandleFunc(p("GET /users/{u}/"), f.authed(f.getUser))
	mux.HandleFunc(p("PATCH /users/{u}/"), f.authed(f.patchUser))

	mux.HandleFunc(p("GET /activity-logs/"), f.authed(f.listLogs))
	return mux
}

// authed checks the bearer token and forced failures, and holds mu for the
// duration of the handler.
func (f *FakeAPI) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		key := r.Method + " " + strings.TrimPrefix(r.URL.Path, Prefix)
		f.calls[key]++

		if r.Header.Get("Authorization") != "Bearer "+f.AccessToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
			return
		}
		if status, ok := f.Fail[key]; ok {
			body := f.Problems[key]
			if body == "" {
				body = `{"detail":"forced failure"}`
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			io.WriteString(w, body)
			return
		}
		h(w, r)
	}
}

func (f *FakeAPI) login(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["POST /auth/login/"]++

	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}
	known := body.Username == f.Me.Username || body.Username == f.Me.Email
	if !known || body.Password != f.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": f.AccessToken, "refresh": f.RefreshToken})
}

func (f *FakeAPI) refresh(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["POST /auth/refresh/"]++

	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Refresh != f.RefreshToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": f.AccessToken})
}

func (f *FakeAPI) listCompanies(w http.ResponseWriter, r *http.Request) {
	items := filter(f.Companies, r.URL.Query().Get("search"), func(c vulnsphere.Company) string { return c.Name })
	writeList(w, r, items)
}

func (f *FakeAPI) getCompany(w http.ResponseWriter, r *http.Request) {
	if c, ok := f.company(r.PathValue("c")); ok {
		writeJSON(w, http.StatusOK, c)
		return
	}
	notFound(w)
}

func (f *FakeAPI) patchCompany(w http.ResponseWriter, r *http.Request) {
	i := slices.IndexFunc(f.Companies, func(c vulnsphere.Company) bool { return c.ID == r.PathValue("c") })
	if i < 0 {
		notFound(w)
		return
	}
	var d vulnsphere.CompanyDraft
	if !f.decodePatch(w, r, &d) {
		return
	}
	if strings.TrimSpace(d.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"name": {"This field may not be blank."}})
		return
	}
	c := &f.Companies[i]
	c.Name, c.ContactEmail, c.Address, c.Notes, c.IsActive = d.Name, d.ContactEmail, d.Address, d.Notes, d.IsActive
	writeJSON(w, http.StatusOK, c)
}

func (f *FakeAPI) listCompanyProjects(w http.ResponseWriter, r *http.Request) {
	var items []vulnsphere.Project
	for _, p := range f.Projects {
		if p.Company == r.PathValue("c") {
			items = append(items, p)
		}
	}
	writeList(w, r, items)
}

func (f *FakeAPI) listProjects(w http.ResponseWriter, r *http.Request) {
	items := filter(f.Projects, r.URL.Query().Get("search"), func(p vulnsphere.Project) string { return p.Title })
	writeList(w, r, items)
}

func (f *FakeAPI) createProject(w http.ResponseWriter, r *http.Request) {
	var d vulnsphere.ProjectDraft
	if !decode(w, r, &d) {
		return
	}
	if strings.TrimSpace(d.Title) == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"title": {"This field may not be blank."}})
		return
	}
	if d.StartDate > d.EndDate {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"end_date": {"End date must be after start date."}})
		return
	}
	c, _ := f.company(r.PathValue("c"))
	p := vulnsphere.Project{
		ID:             uuid.NewString(),
		Company:        r.PathValue("c"),
		CompanyName:    c.Name,
		Title:          d.Title,
		EngagementType: d.EngagementType,
		Status:         vulnsphere.ProjectStatusDraft,
		StartDate:      d.StartDate,
		EndDate:        d.EndDate,
		Summary:        d.Summary,
		CreatedAt:      time.Now().UTC(),
	}
	f.Projects = append(f.Projects, p)
	writeJSON(w, http.StatusCreated, p)
}

func (f *FakeAPI) getProject(w http.ResponseWriter, r *http.Request) {
	if i := f.projectIndex(r); i >= 0 {
		writeJSON(w, http.StatusOK, f.Projects[i])
		return
	}
	notFound(w)
}

func (f *FakeAPI) patchProject(w http.ResponseWriter, r *http.Request) {
	i := f.projectIndex(r)
	if i < 0 {
		notFound(w)
		return
	}
	var d vulnsphere.ProjectDraft
	if !f.decodePatch(w, r, &d) {
		return
	}
	if d.StartDate > d.EndDate {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"end_date": {"End date must be after start date."}})
		return
	}
	p := &f.Projects[i]
	p.Title, p.EngagementType, p.StartDate, p.EndDate, p.Summary = d.Title, d.EngagementType, d.StartDate, d.EndDate, d.Summary
	if d.Status != "" {
		p.Status = d.Status
	}
	writeJSON(w, http.StatusOK, p)
}

func (f *FakeAPI) deleteProject(w http.ResponseWriter, r *http.Request) {
	i := f.projectIndex(r)
	if i < 0 {
		notFound(w)
		return
	}
	f.Projects = slices.Delete(f.Projects, i, i+1)
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeAPI) listVulns(w http.ResponseWriter, r *http.Request) {
	writeList(w, r, f.Vulns[r.PathValue("p")])
}

func (f *FakeAPI) createVuln(w http.ResponseWriter, r *http.Request) {
	var d vulnsphere.VulnerabilityDraft
	if !decode(w, r, &d) {
		return
	}
	if strings.TrimSpace(d.Title) == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"title": {"This field may not be blank."}})
		return
	}
	v := vulnsphere.Vulnerability{
		ID:          uuid.NewString(),
		Project:     r.PathValue("p"),
		Title:       d.Title,
		Severity:    d.Severity,
		Status:      d.Status,
		CVSSScore:   d.CVSSScore,
		CVSSVector:  d.CVSSVector,
		Description: d.Description,
		CreatedAt:   time.Now().UTC(),
	}
	f.Vulns[v.Project] = append(f.Vulns[v.Project], v)
	writeJSON(w, http.StatusCreated, v)
}

func (f *FakeAPI) getVuln(w http.ResponseWriter, r *http.Request) {
	list := f.Vulns[r.PathValue("p")]
	if i := slices.IndexFunc(list, func(v vulnsphere.Vulnerability) bool { return v.ID == r.PathValue("v") }); i >= 0 {
		writeJSON(w, http.StatusOK, list[i])
		return
	}
	notFound(w)
}

func (f *FakeAPI) patchVuln(w http.ResponseWriter, r *http.Request) {
	list := f.Vulns[r.PathValue("p")]
	i := slices.IndexFunc(list, func(v vulnsphere.Vulnerability) bool { return v.ID == r.PathValue("v") })
	if i < 0 {
		notFound(w)
		return
	}
	var d vulnsphere.VulnerabilityDraft
	if !f.decodePatch(w, r, &d) {
		return
	}
	v := &list[i]
	v.Title, v.Severity, v.Status, v.CVSSScore, v.CVSSVector, v.Description = d.Title, d.Severity, d.Status, d.CVSSScore, d.CVSSVector, d.Description
	writeJSON(w, http.StatusOK, v)
}

func (f *FakeAPI) deleteVuln(w http.ResponseWriter, r *http.Request) {
	list := f.Vulns[r.PathValue("p")]
	i := slices.IndexFunc(list, func(v vulnsphere.Vulnerability) bool { return v.ID == r.PathValue("v") })
	if i < 0 {
		notFound(w)
		return
	}
	f.Vulns[r.PathValue("p")] = slices.Delete(list, i, i+1)
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeAPI) listRetests(w http.ResponseWriter, r *http.Request) {
	var items []vulnsphere.Retest
	for _, rt := range f.Retests {
		if rt.Vulnerability == r.PathValue("v") {
			items = append(items, rt)
		}
	}
	writeList(w, r, items)
}

func (f *FakeAPI) createRetest(w http.ResponseWriter, r *http.Request) {
	var req vulnsphere.RetestRequest
	if !decode(w, r, &req) {
		return
	}
	me := f.Me.ID
	rt := vulnsphere.Retest{
		ID:            uuid.NewString(),
		Vulnerability: r.PathValue("v"),
		RequestType:   req.RequestType,
		Status:        "PENDING",
		Notes:         req.Notes,
		RequestedBy:   &me,
		CreatedAt:     time.Now().UTC(),
	}
	f.Retests = append(f.Retests, rt)
	writeJSON(w, http.StatusCreated, rt)
}

func (f *FakeAPI) listAssets(w http.ResponseWriter, r *http.Request) {
	var items []vulnsphere.Asset
	for _, a := range f.Assets {
		if a.Company == r.PathValue("c") {
			items = append(items, a)
		}
	}
	writeList(w, r, items)
}

func (f *FakeAPI) createAsset(w http.ResponseWriter, r *http.Request) {
	var d vulnsphere.AssetDraft
	if !decode(w, r, &d) {
		return
	}
	if strings.TrimSpace(d.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"name": {"This field may not be blank."}})
		return
	}
	a := vulnsphere.Asset{
		ID:          uuid.NewString(),
		Company:     r.PathValue("c"),
		Name:        d.Name,
		Type:        d.Type,
		Identifier:  d.Identifier,
		Description: d.Description,
		IsActive:    d.IsActive,
		CreatedAt:   time.Now().UTC(),
	}
	f.Assets = append(f.Assets, a)
	writeJSON(w, http.StatusCreated, a)
}

func (f *FakeAPI) getAsset(w http.ResponseWriter, r *http.Request) {
	i := slices.IndexFunc(f.Assets, func(a vulnsphere.Asset) bool {
		return a.ID == r.PathValue("a") && a.Company == r.PathValue("c")
	})
	if i < 0 {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, f.Assets[i])
}

func (f *FakeAPI) patchAsset(w http.ResponseWriter, r *http.Request) {
	i := slices.IndexFunc(f.Assets, func(a vulnsphere.Asset) bool { return a.ID == r.PathValue("a") })
	if i < 0 {
		notFound(w)
		return
	}
	var d vulnsphere.AssetDraft
	if !f.decodePatch(w, r, &d) {
		return
	}
	a := &f.Assets[i]
	a.Name, a.Type, a.Identifier, a.Description, a.IsActive = d.Name, d.Type, d.Identifier, d.Description, d.IsActive
	writeJSON(w, http.StatusOK, a)
}

func (f *FakeAPI) deleteAsset(w http.ResponseWriter, r *http.Request) {
	i := slices.IndexFunc(f.Assets, func(a vulnsphere.Asset) bool { return a.ID == r.PathValue("a") })
	if i < 0 {
		notFound(w)
		return
	}
	f.Assets = slices.Delete(f.Assets, i, i+1)
	w.WriteHeader(http.StatusNoContent)
}

// importAssets accepts name,type,identifier,description rows. A row without a
// name is rejected on its own; the others are still created.
func (f *FakeAPI) importAssets(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file provided"})
		return
	}
	defer file.Close()
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "File must be a CSV"})
		return
	}
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil || len(rows) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid CSV file"})
		return
	}

	res := vulnsphere.ImportResult{Errors: []vulnsphere.RowError{}, Items: []vulnsphere.Asset{}}
	for i, row := range rows[1:] {
		rowNum := i + 2
		if len(row) < 3 || strings.TrimSpace(row[0]) == "" {
			res.Errors = append(res.Errors, vulnsphere.RowError{Row: rowNum, Error: "name is required"})
			continue
		}
		a := vulnsphere.Asset{
			ID:         uuid.NewString(),
			Company:    r.PathValue("c"),
			Name:       row[0],
			Type:       vulnsphere.AssetType(row[1]),
			Identifier: row[2],
			IsActive:   true,
		}
		if len(row) > 3 {
			a.Description = row[3]
		}
		f.Assets = append(f.Assets, a)
		res.Items = append(res.Items, a)
		res.Created++
	}
	writeJSON(w, http.StatusOK, res)
}

func (f *FakeAPI) csvTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="assets_template.csv"`)
	io.WriteString(w, "name,type,identifier,description\nMain site,WEB_APP,https://example.com,Public website\n")
}

func (f *FakeAPI) listTemplates(w http.ResponseWriter, r *http.Request) {
	writeList(w, r, f.Templates)
}

func (f *FakeAPI) uploadTemplate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Multipart form parse error"})
		return
	}
	_, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"file": {"No file was submitted."}})
		return
	}
	now := time.Now().UTC()
	t := vulnsphere.ReportTemplate{
		ID:          uuid.NewString(),
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		File:        "/media/templates/" + header.Filename,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.Templates = append(f.Templates, t)
	writeJSON(w, http.StatusCreated, t)
}

func (f *FakeAPI) getTemplate(w http.ResponseWriter, r *http.Request) {
	if i := f.templateIndex(r); i >= 0 {
		writeJSON(w, http.StatusOK, f.Templates[i])
		return
	}
	notFound(w)
}

func (f *FakeAPI) patchTemplate(w http.ResponseWriter, r *http.Request) {
	i := f.templateIndex(r)
	if i < 0 {
		notFound(w)
		return
	}
	var p vulnsphere.TemplatePatch
	if !f.decodePatch(w, r, &p) {
		return
	}
	t := &f.Templates[i]
	t.Name, t.Description, t.UpdatedAt = p.Name, p.Description, time.Now().UTC()
	writeJSON(w, http.StatusOK, t)
}

func (f *FakeAPI) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	i := f.templateIndex(r)
	if i < 0 {
		notFound(w)
		return
	}
	f.Templates = slices.Delete(f.Templates, i, i+1)
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeAPI) downloadTemplate(w http.ResponseWriter, r *http.Request) {
	i := f.templateIndex(r)
	if i < 0 {
		notFound(w)
		return
	}
	name := f.Templates[i].File[strings.LastIndex(f.Templates[i].File, "/")+1:]
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	io.WriteString(w, "template:"+f.Templates[i].ID)
}

func (f *FakeAPI) listReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items := filter(f.Reports, q.Get("search"), func(g vulnsphere.GeneratedReport) string {
		return g.TemplateName + " " + g.ProjectTitle + " " + g.CompanyName
	})
	if company := q.Get("company__name"); company != "" {
		items = slices.DeleteFunc(items, func(g vulnsphere.GeneratedReport) bool { return g.CompanyName != company })
	}
	writeList(w, r, items)
}

func (f *FakeAPI) generate(w http.ResponseWriter, r *http.Request) {
	var req vulnsphere.GenerateRequest
	if !decode(w, r, &req) {
		return
	}
	f.Generated = append(f.Generated, req)
	if (req.ProjectID == "") == (req.CompanyID == "") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Provide exactly one of project_id or company_id"})
		return
	}
	g := vulnsphere.GeneratedReport{
		ID:        uuid.NewString(),
		Template:  req.TemplateID,
		Project:   req.ProjectID,
		Company:   req.CompanyID,
		Format:    req.Format,
		CreatedAt: time.Now().UTC(),
	}
	f.Reports = append([]vulnsphere.GeneratedReport{g}, f.Reports...)
	writeJSON(w, http.StatusCreated, g)
}

func (f *FakeAPI) deleteReport(w http.ResponseWriter, r *http.Request) {
	i := slices.IndexFunc(f.Reports, func(g vulnsphere.GeneratedReport) bool { return g.ID == r.PathValue("r") })
	if i < 0 {
		notFound(w)
		return
	}
	f.Reports = slices.Delete(f.Reports, i, i+1)
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeAPI) downloadReport(w http.ResponseWriter, r *http.Request) {
	i := slices.IndexFunc(f.Reports, func(g vulnsphere.GeneratedReport) bool { return g.ID == r.PathValue("r") })
	if i < 0 {
		notFound(w)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="report_%s.%s"`, f.Reports[i].ID, strings.ToLower(string(f.Reports[i].Format))))
	io.WriteString(w, "report:"+f.Reports[i].ID)
}

func (f *FakeAPI) listUsers(w http.ResponseWriter, r *http.Request) {
	items := filter(f.Users, r.URL.Query().Get("search"), func(u vulnsphere.User) string {
		return u.Username + " " + u.Email + " " + u.Name
	})
	writeList(w, r, items)
}

func (f *FakeAPI) createUser(w http.ResponseWriter, r *http.Request) {
	var d vulnsphere.UserDraft
	if !decode(w, r, &d) {
		return
	}
	for _, u := range f.Users {
		if strings.EqualFold(u.Email, d.Email) {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"email": {"user with this email already exists."}})
			return
		}
	}
	u := vulnsphere.User{
		ID:        uuid.NewString(),
		Email:     d.Email,
		Username:  d.Username,
		Name:      d.Name,
		Role:      d.Role,
		IsActive:  true,
		Companies: d.Companies,
	}
	f.Users = append(f.Users, u)
	writeJSON(w, http.StatusCreated, u)
}

func (f *FakeAPI) getUser(w http.ResponseWriter, r *http.Request) {
	if i := slices.IndexFunc(f.Users, func(u vulnsphere.User) bool { return u.ID == r.PathValue("u") }); i >= 0 {
		writeJSON(w, http.StatusOK, f.Users[i])
		return
	}
	notFound(w)
}

func (f *FakeAPI) patchUser(w http.ResponseWriter, r *http.Request) {
	i := slices.IndexFunc(f.Users, func(u vulnsphere.User) bool { return u.ID == r.PathValue("u") })
	if i < 0 {
		notFound(w)
		return
	}
	var p vulnsphere.UserPatch
	if !f.decodePatch(w, r, &p) {
		return
	}
	u := &f.Users[i]
	u.Email, u.Name, u.Role, u.IsActive, u.Companies = p.Email, p.Name, p.Role, p.IsActive, p.Companies
	writeJSON(w, http.StatusOK, u)
}

func (f *FakeAPI) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, f.Me)
}

func (f *FakeAPI) patchMe(w http.ResponseWriter, r *http.Request) {
	var p vulnsphere.ProfilePatch
	if !f.decodePatch(w, r, &p) {
		return
	}
	f.Me.Name, f.Me.Email = p.Name, p.Email
	writeJSON(w, http.StatusOK, f.Me)
}

func (f *FakeAPI) listLogs(w http.ResponseWriter, r *http.Request) {
	if f.Me.Role != vulnsphere.RoleAdmin {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "You do not have permission to perform this action."})
		return
	}
	writeList(w, r, f.Logs)
}

func (f *FakeAPI) company(id string) (vulnsphere.Company, bool) {
	i := slices.IndexFunc(f.Companies, func(c vulnsphere.Company) bool { return c.ID == id })
	if i < 0 {
		return vulnsphere.Company{}, false
	}
	return f.Companies[i], true
}

func (f *FakeAPI) projectIndex(r *http.Request) int {
	return slices.IndexFunc(f.Projects, func(p vulnsphere.Project) bool {
		return p.ID == r.PathValue("p") && p.Company == r.PathValue("c")
	})
}

func (f *FakeAPI) templateIndex(r *http.Request) int {
	return slices.IndexFunc(f.Templates, func(t vulnsphere.ReportTemplate) bool { return t.ID == r.PathValue("t") })
}

// decodePatch decodes v and records the raw body under the request path.
func (f *FakeAPI) decodePatch(w http.ResponseWriter, r *http.Request, v any) bool {
	raw, err := io.ReadAll(r.Body)
	if err == nil {
		err = json.Unmarshal(raw, v)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON parse error"})
		return false
	}
	f.Patches[strings.TrimPrefix(r.URL.Path, Prefix)] = raw
	return true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON parse error"})
		return false
	}
	return true
}

func filter[T any](items []T, search string, text func(T) string) []T {
	if search == "" {
		return items
	}
	var out []T
	for _, it := range items {
		if strings.Contains(strings.ToLower(text(it)), strings.ToLower(search)) {
			out = append(out, it)
		}
	}
	return out
}

// writeList sends the paginated envelope when page_size is given and a bare
// array otherwise, as the API does for unpaginated views.
func writeList[T any](w http.ResponseWriter, r *http.Request, items []T) {
	if items == nil {
		items = []T{}
	}
	q := r.URL.Query()
	size, err := strconv.Atoi(q.Get("page_size"))
	if err != nil || size <= 0 {
		writeJSON(w, http.StatusOK, items)
		return
	}
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	start := min((page-1)*size, len(items))
	end := min(start+size, len(items))

	var next, prev *string
	if end < len(items) {
		s := pageLink(r, page+1)
		next = &s
	}
	if page > 1 {
		s := pageLink(r, page-1)
		prev = &s
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(items),
		"next":     next,
		"previous": prev,
		"results":  items[start:end],
	})
}

func pageLink(r *http.Request, page int) string {
	q := r.URL.Query()
	q.Set("page", strconv.Itoa(page))
	u := url.URL{Scheme: "http", Host: r.Host, Path: r.URL.Path, RawQuery: q.Encode()}
	return u.String()
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
