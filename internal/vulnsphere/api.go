package vulnsphere

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/vulnsphere/console/internal/apiclient"
	"github.com/vulnsphere/console/internal/credentials"
)

// API is the typed VulnSphere REST surface for one set of credentials.
// It is cheap to construct; build one per browser request.
type API struct {
	client *apiclient.Client
	store  credentials.Store
}

func New(client *apiclient.Client, store credentials.Store) *API {
	return &API{client: client, store: store}
}

func get[T any](ctx context.Context, a *API, path string, q url.Values) (T, error) {
	var out T
	resp, err := a.client.Do(ctx, a.store, apiclient.Request{Method: http.MethodGet, Path: path, Query: q})
	if err != nil {
		return out, err
	}
	if err := resp.Decode(&out); err != nil {
		return out, fmt.Errorf("GET %s: %w", path, err)
	}
	return out, nil
}

func send[T any](ctx context.Context, a *API, method, path string, body any) (T, error) {
	var out T
	resp, err := a.client.Do(ctx, a.store, apiclient.Request{Method: method, Path: path, Body: body})
	if err != nil {
		return out, err
	}
	if err := resp.Decode(&out); err != nil {
		return out, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return out, nil
}

func (a *API) remove(ctx context.Context, path string) error {
	_, err := a.client.Do(ctx, a.store, apiclient.Request{Method: http.MethodDelete, Path: path})
	return err
}

// Companies

func (a *API) ListCompanies(ctx context.Context, q url.Values) (Page[Company], error) {
	return get[Page[Company]](ctx, a, "/companies/", q)
}

func (a *API) GetCompany(ctx context.Context, id string) (Company, error) {
	return get[Company](ctx, a, companyPath(id), nil)
}

func (a *API) UpdateCompany(ctx context.Context, id string, d CompanyDraft) (Company, error) {
	return send[Company](ctx, a, http.MethodPatch, companyPath(id), d)
}

// Projects

func (a *API) ListProjects(ctx context.Context, q url.Values) (Page[Project], error) {
	return get[Page[Project]](ctx, a, "/projects/", q)
}

func (a *API) ListCompanyProjects(ctx context.Context, companyID string, q url.Values) (Page[Project], error) {
	return get[Page[Project]](ctx, a, companyPath(companyID)+"projects/", q)
}

func (a *API) GetProject(ctx context.Context, companyID, projectID string) (Project, error) {
	return get[Project](ctx, a, projectPath(companyID, projectID), nil)
}

func (a *API) CreateProject(ctx context.Context, companyID string, d ProjectDraft) (Project, error) {
	return send[Project](ctx, a, http.MethodPost, companyPath(companyID)+"projects/", d)
}

func (a *API) UpdateProject(ctx context.Context, companyID, projectID string, d ProjectDraft) (Project, error) {
	return send[Project](ctx, a, http.MethodPatch, projectPath(companyID, projectID), d)
}

func (a *API) DeleteProject(ctx context.Context, companyID, projectID string) error {
	return a.remove(ctx, projectPath(companyID, projectID))
}

// Assets

func (a *API) ListAssets(ctx context.Context, companyID string, q url.Values) (Page[Asset], error) {
	return get[Page[Asset]](ctx, a, companyPath(companyID)+"assets/", q)
}

func (a *API) GetAsset(ctx context.Context, companyID, assetID string) (Asset, error) {
	return get[Asset](ctx, a, assetPath(companyID, assetID), nil)
}

func (a *API) CreateAsset(ctx context.Context, companyID string, d AssetDraft) (Asset, error) {
	return send[Asset](ctx, a, http.MethodPost, companyPath(companyID)+"assets/", d)
}

func (a *API) UpdateAsset(ctx context.Context, companyID, assetID string, d AssetDraft) (Asset, error) {
	return send[Asset](ctx, a, http.MethodPatch, assetPath(companyID, assetID), d)
}

func (a *API) DeleteAsset(ctx context.Context, companyID, assetID string) error {
	return a.remove(ctx, assetPath(companyID, assetID))
}

// ImportAssets uploads a CSV of assets. Row failures are reported in the
// result, not as an error.
func (a *API) ImportAssets(ctx context.Context, companyID, filename string, data []byte) (ImportResult, error) {
	resp, err := a.client.Do(ctx, a.store, apiclient.Request{
		Method: http.MethodPost,
		Path:   companyPath(companyID) + "assets/bulk-import/",
		Files:  []apiclient.File{{Field: "file", Name: filename, Data: data}},
	})
	if err != nil {
		return ImportResult{}, err
	}
	var out ImportResult
	if err := resp.Decode(&out); err != nil {
		return ImportResult{}, err
	}
	return out, nil
}

func (a *API) AssetCSVTemplate(ctx context.Context, companyID string) (*apiclient.Blob, error) {
	return a.client.Download(ctx, a.store, companyPath(companyID)+"assets/csv-template/", nil, "assets_template.csv")
}

// Vulnerabilities

func (a *API) ListVulnerabilities(ctx context.Context, companyID, projectID string, q url.Values) (Page[Vulnerability], error) {
	return get[Page[Vulnerability]](ctx, a, projectPath(companyID, projectID)+"vulnerabilities/", q)
}

func (a *API) GetVulnerability(ctx context.Context, companyID, projectID, vulnID string) (Vulnerability, error) {
	return get[Vulnerability](ctx, a, vulnPath(companyID, projectID, vulnID), nil)
}

func (a *API) CreateVulnerability(ctx context.Context, companyID, projectID string, d VulnerabilityDraft) (Vulnerability, error) {
	return send[Vulnerability](ctx, a, http.MethodPost, projectPath(companyID, projectID)+"vulnerabilities/", d)
}

func (a *API) UpdateVulnerability(ctx context.Context, companyID, projectID, vulnID string, d VulnerabilityDraft) (Vulnerability, error) {
	return send[Vulnerability](ctx, a, http.MethodPatch, vulnPath(companyID, projectID, vulnID), d)
}

func (a *API) DeleteVulnerability(ctx context.Context, companyID, projectID, vulnID string) error {
	return a.remove(ctx, vulnPath(companyID, projectID, vulnID))
}

func (a *API) ListRetests(ctx context.Context, companyID, projectID, vulnID string) (Page[Retest], error) {
	return get[Page[Retest]](ctx, a, vulnPath(companyID, projectID, vulnID)+"retests/", nil)
}

func (a *API) RequestRetest(ctx context.Context, companyID, projectID, vulnID string, r RetestRequest) (Retest, error) {
	return send[Retest](ctx, a, http.MethodPost, vulnPath(companyID, projectID, vulnID)+"retests/", r)
}

// Report templates

func (a *API) ListTemplates(ctx context.Context, q url.Values) (Page[ReportTemplate], error) {
	return get[Page[ReportTemplate]](ctx, a, "/report-templates/", q)
}

func (a *API) GetTemplate(ctx context.Context, id string) (ReportTemplate, error) {
	return get[ReportTemplate](ctx, a, "/report-templates/"+url.PathEscape(id)+"/", nil)
}

func (a *API) UploadTemplate(ctx context.Context, d TemplateDraft) (ReportTemplate, error) {
	resp, err := a.client.Do(ctx, a.store, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/report-templates/",
		Form:   map[string]string{"name": d.Name, "description": d.Description},
		Files:  []apiclient.File{{Field: "file", Name: d.Filename, Data: d.File}},
	})
	if err != nil {
		return ReportTemplate{}, err
	}
	var out ReportTemplate
	if err := resp.Decode(&out); err != nil {
		return ReportTemplate{}, err
	}
	return out, nil
}

func (a *API) UpdateTemplate(ctx context.Context, id string, p TemplatePatch) (ReportTemplate, error) {
	return send[ReportTemplate](ctx, a, http.MethodPatch, "/report-templates/"+url.PathEscape(id)+"/", p)
}

func (a *API) DeleteTemplate(ctx context.Context, id string) error {
	return a.remove(ctx, "/report-templates/"+url.PathEscape(id)+"/")
}

func (a *API) DownloadTemplate(ctx context.Context, t ReportTemplate) (*apiclient.Blob, error) {
	return a.client.Download(ctx, a.store, "/report-templates/"+url.PathEscape(t.ID)+"/download/", nil, t.Name)
}

// Generated reports

func (a *API) ListReports(ctx context.Context, q url.Values) (Page[GeneratedReport], error) {
	return get[Page[GeneratedReport]](ctx, a, "/generated-reports/", q)
}

func (a *API) GenerateReport(ctx context.Context, r GenerateRequest) (GeneratedReport, error) {
	return send[GeneratedReport](ctx, a, http.MethodPost, "/generated-reports/generate/", r)
}

func (a *API) DeleteReport(ctx context.Context, id string) error {
	return a.remove(ctx, "/generated-reports/"+url.PathEscape(id)+"/")
}

func (a *API) DownloadReport(ctx context.Context, r GeneratedReport) (*apiclient.Blob, error) {
	return a.client.Download(ctx, a.store, "/generated-reports/"+url.PathEscape(r.ID)+"/download/", nil, r.Filename())
}

// Users

func (a *API) ListUsers(ctx context.Context, q url.Values) (Page[User], error) {
	return get[Page[User]](ctx, a, "/users/", q)
}

func (a *API) GetUser(ctx context.Context, id string) (User, error) {
	return get[User](ctx, a, "/users/"+url.PathEscape(id)+"/", nil)
}

func (a *API) CreateUser(ctx context.Context, d UserDraft) (User, error) {
	return send[User](ctx, a, http.MethodPost, "/users/", d.Body())
}

func (a *API) UpdateUser(ctx context.Context, id string, p UserPatch) (User, error) {
	return send[User](ctx, a, http.MethodPatch, "/users/"+url.PathEscape(id)+"/", p.Body())
}

func (a *API) Me(ctx context.Context) (User, error) {
	return get[User](ctx, a, "/users/me/", nil)
}

func (a *API) UpdateMe(ctx context.Context, p ProfilePatch) (User, error) {
	return send[User](ctx, a, http.MethodPatch, "/users/me/", p)
}

// Activity logs are read-only.

func (a *API) ListActivityLogs(ctx context.Context, q url.Values) (Page[ActivityLog], error) {
	return get[Page[ActivityLog]](ctx, a, "/activity-logs/", q)
}

func companyPath(id string) string {
	return "/companies/" + url.PathEscape(id) + "/"
}

func projectPath(companyID, projectID string) string {
	return companyPath(companyID) + "projects/" + url.PathEscape(projectID) + "/"
}

func assetPath(companyID, assetID string) string {
	return companyPath(companyID) + "assets/" + url.PathEscape(assetID) + "/"
}

func vulnPath(companyID, projectID, vulnID string) string {
	return projectPath(companyID, projectID) + "vulnerabilities/" + url.PathEscape(vulnID) + "/"
}

// PageQuery returns the page/page_size parameters for a 1-indexed page.
func PageQuery(page, size int) url.Values {
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	q.Set("page_size", fmt.Sprint(size))
	return q
}
