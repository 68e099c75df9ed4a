package server

import (
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/vulnsphere/console/internal/dialog"
	"github.com/vulnsphere/console/internal/pagination"
	"github.com/vulnsphere/console/internal/report"
	"github.com/vulnsphere/console/internal/views"
	"github.com/vulnsphere/console/internal/vulnsphere"
)

// Each page has a render func taking the response status and an optional
// failed dialog, so a rejected form can redraw the page it was posted from.
type pageFunc func(w http.ResponseWriter, r *http.Request, status int, dlg *dialogState)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	d, err := e.views.Dashboard(r.Context())
	if err != nil {
		s.fail(w, r, err, "Failed to load dashboard.")
		return
	}
	s.renderPage(w, r, "dashboard.html", http.StatusOK, pageData{ActivePage: "dashboard", Title: "Dashboard", Data: d})
}

func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	q := views.CompaniesQuery().FromURL(r.URL.Query())
	l, err := e.views.Companies(r.Context(), e.identity, q)
	if err != nil {
		s.fail(w, r, err, "Failed to load companies.")
		return
	}
	s.renderPage(w, r, "companies.html", http.StatusOK, pageData{ActivePage: "companies", Title: "Companies", Data: l})
}

type companyPage struct {
	views.CompanyDetail
	NewProject vulnsphere.ProjectDraft
	NewAsset   vulnsphere.AssetDraft
	Import     *dialog.ImportOutcome
	// PagerBase keeps one list's page while the other one changes.
	PagerBase url.Values
}

func (s *Server) handleCompany(w http.ResponseWriter, r *http.Request) {
	s.companyPage(w, r, http.StatusOK, nil)
}

func (s *Server) companyPage(w http.ResponseWriter, r *http.Request, status int, dlg *dialogState) {
	s.renderCompany(w, r, status, dlg, nil)
}

func (s *Server) renderCompany(w http.ResponseWriter, r *http.Request, status int, dlg *dialogState, outcome *dialog.ImportOutcome) {
	e := envFrom(r.Context())
	companyID := r.PathValue("c")
	if !e.identity.HasCompanyAccess(companyID) {
		s.forbidden(w, r)
		return
	}
	q := r.URL.Query()
	d, err := e.views.CompanyDetail(r.Context(), companyID,
		pagination.ParsePage(q.Get("projects_page")), pagination.ParsePage(q.Get("assets_page")))
	if err != nil {
		s.fail(w, r, err, "Failed to load company.")
		return
	}
	s.renderPage(w, r, "company.html", status, pageData{
		ActivePage: "companies",
		Title:      d.Company.Name,
		Dialog:     dlg,
		Data: companyPage{
			CompanyDetail: d,
			NewProject:    vulnsphere.NewProjectDraft(s.now()),
			NewAsset:      vulnsphere.NewAssetDraft(),
			Import:        outcome,
			PagerBase:     pagerBase(q, "projects_page", "assets_page"),
		},
	})
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	q := views.ProjectsQuery().FromURL(r.URL.Query())
	p, err := e.views.Projects(r.Context(), q)
	if err != nil {
		s.fail(w, r, err, "Failed to load projects.")
		return
	}
	s.renderPage(w, r, "projects.html", http.StatusOK, pageData{ActivePage: "projects", Title: "Projects", Data: p})
}

type projectPage struct {
	views.ProjectDetail
	CompanyID string
	NewVuln   vulnsphere.VulnerabilityDraft
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	s.projectPage(w, r, http.StatusOK, nil)
}

func (s *Server) projectPage(w http.ResponseWriter, r *http.Request, status int, dlg *dialogState) {
	e := envFrom(r.Context())
	companyID, projectID := r.PathValue("c"), r.PathValue("p")
	if !e.identity.HasCompanyAccess(companyID) {
		s.forbidden(w, r)
		return
	}
	q := views.ProjectVulnsQuery().FromURL(r.URL.Query())
	d, err := e.views.ProjectDetail(r.Context(), companyID, projectID, q)
	if err != nil {
		s.fail(w, r, err, "Failed to load project.")
		return
	}
	s.renderPage(w, r, "project.html", status, pageData{
		ActivePage: "projects",
		Title:      d.Project.Title,
		Dialog:     dlg,
		Data:       projectPage{ProjectDetail: d, CompanyID: companyID, NewVuln: vulnsphere.NewVulnerabilityDraft()},
	})
}

func (s *Server) handleVuln(w http.ResponseWriter, r *http.Request) {
	s.vulnPage(w, r, http.StatusOK, nil)
}

func (s *Server) vulnPage(w http.ResponseWriter, r *http.Request, status int, dlg *dialogState) {
	e := envFrom(r.Context())
	companyID := r.PathValue("c")
	if !e.identity.HasCompanyAccess(companyID) {
		s.forbidden(w, r)
		return
	}
	d, err := e.views.VulnerabilityDetail(r.Context(), companyID, r.PathValue("p"), r.PathValue("v"))
	if err != nil {
		s.fail(w, r, err, "Failed to load vulnerability.")
		return
	}
	s.renderPage(w, r, "vulnerability.html", status, pageData{
		ActivePage: "projects",
		Title:      d.Vuln.Title,
		Dialog:     dlg,
		Data:       vulnPage{VulnDetail: d, CompanyID: companyID},
	})
}

type vulnPage struct {
	views.VulnDetail
	CompanyID string
}

func (s *Server) handleVulnerabilities(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	q := views.VulnsQuery().FromURL(r.URL.Query())
	b, err := e.views.Vulnerabilities(r.Context(), q)
	if err != nil {
		s.fail(w, r, err, "Failed to load vulnerabilities.")
		return
	}
	s.renderPage(w, r, "vulnerabilities.html", http.StatusOK, pageData{ActivePage: "vulnerabilities", Title: "Vulnerabilities", Data: b})
}

type reportsPage struct {
	views.List[vulnsphere.GeneratedReport]
	Choices report.Choices
	// ChoicesError replaces the generation form when its options fail to load.
	ChoicesError string
	Form         report.Request
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	s.reportsPage(w, r, http.StatusOK, nil)
}

func (s *Server) reportsPage(w http.ResponseWriter, r *http.Request, status int, dlg *dialogState) {
	e := envFrom(r.Context())
	if !e.identity.Nav().Reports {
		s.forbidden(w, r)
		return
	}
	q := views.ReportsQuery().FromURL(r.URL.Query())
	l, err := e.views.Reports(r.Context(), q)
	if err != nil {
		s.fail(w, r, err, "Failed to load reports.")
		return
	}
	data := reportsPage{List: l, Form: report.NewRequest()}
	if dlg != nil && dlg.Name == "generate" {
		data.Form = generateRequest(dlg.Values)
	}
	c, err := report.NewTrigger(e.api).Load(r.Context())
	if err != nil {
		if loginRequired(err) {
			s.toLogin(w, r)
			return
		}
		data.ChoicesError = report.MsgLoadFailed
	}
	data.Choices = c
	s.renderPage(w, r, "reports.html", status, pageData{ActivePage: "reports", Title: "Reports", Dialog: dlg, Data: data})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	s.templatesPage(w, r, http.StatusOK, nil)
}

func (s *Server) templatesPage(w http.ResponseWriter, r *http.Request, status int, dlg *dialogState) {
	e := envFrom(r.Context())
	if !e.identity.Nav().Templates {
		s.forbidden(w, r)
		return
	}
	q := views.TemplatesQuery().FromURL(r.URL.Query())
	t, err := e.views.Templates(r.Context(), q)
	if err != nil {
		s.fail(w, r, err, "Failed to load templates.")
		return
	}
	s.renderPage(w, r, "templates.html", status, pageData{ActivePage: "templates", Title: "Report Templates", Dialog: dlg, Data: t})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	s.usersPage(w, r, http.StatusOK, nil)
}

type usersPage struct {
	views.Users
	AllCompanies []vulnsphere.Company
}

func (s *Server) usersPage(w http.ResponseWriter, r *http.Request, status int, dlg *dialogState) {
	e := envFrom(r.Context())
	if !e.identity.IsAdmin() {
		s.forbidden(w, r)
		return
	}
	q := views.UsersQuery().FromURL(r.URL.Query())
	u, err := e.views.Users(r.Context(), q)
	if err != nil {
		s.fail(w, r, err, "Failed to load users.")
		return
	}
	data := usersPage{Users: u}
	for id, name := range u.Companies {
		data.AllCompanies = append(data.AllCompanies, vulnsphere.Company{ID: id, Name: name})
	}
	slices.SortFunc(data.AllCompanies, func(a, b vulnsphere.Company) int { return strings.Compare(a.Name, b.Name) })
	s.renderPage(w, r, "users.html", status, pageData{ActivePage: "users", Title: "Users", Dialog: dlg, Data: data})
}

type activityPage struct {
	views.List[vulnsphere.ActivityLog]
	Error string
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	q := views.ActivityQuery().FromURL(r.URL.Query())
	l, err := e.views.Activity(r.Context(), q)
	data := activityPage{List: l}
	status := http.StatusOK
	if err != nil {
		if loginRequired(err) {
			s.toLogin(w, r)
			return
		}
		data.Error = views.ActivityMessage(err)
		if errors.Is(err, views.ErrAdminOnly) {
			status = http.StatusForbidden
		}
	}
	s.renderPage(w, r, "activity.html", status, pageData{ActivePage: "activity", Title: "Activity Log", Data: data})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	s.settingsPage(w, r, http.StatusOK, nil)
}

func (s *Server) settingsPage(w http.ResponseWriter, r *http.Request, status int, dlg *dialogState) {
	e := envFrom(r.Context())
	s.renderPage(w, r, "settings.html", status, pageData{
		ActivePage: "settings",
		Title:      "Settings",
		Dialog:     dlg,
		Data:       vulnsphere.ProfilePatchFrom(e.user()),
	})
}

func pagerBase(q url.Values, keys ...string) url.Values {
	out := url.Values{}
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			out.Set(k, v)
		}
	}
	return out
}
