package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/vulnsphere/console/internal/dialog"
	"github.com/vulnsphere/console/internal/report"
	"github.com/vulnsphere/console/internal/vulnsphere"
)

const maxUpload = 10 << 20

// form is one mutation dialog posted from a page. On success the browser is
// redirected; on failure the page is drawn again with the dialog open.
type form[D, R any] struct {
	name   string
	target string
	seed   D
	// load replaces seed with a draft of the stored entity.
	load func(context.Context) (D, error)
	read func(url.Values, *D)
	call dialog.SubmitFunc[D, R]
	opts dialog.Options[D, R]
	// topic is broadcast to live views after a successful submit.
	topic    string
	redirect string
	page     pageFunc
	// anyone lets callers without edit rights submit, as for the own profile.
	anyone bool
}

func submitForm[D, R any](s *Server, w http.ResponseWriter, r *http.Request, f form[D, R]) {
	e := envFrom(r.Context())
	if !f.anyone && !e.identity.CanEdit() {
		s.forbidden(w, r)
		return
	}
	if r.PostForm == nil {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
	}

	seed := f.seed
	if f.load != nil {
		var err error
		if seed, err = f.load(r.Context()); err != nil {
			s.fail(w, r, err, "Failed to load the item being edited.")
			return
		}
	}

	d := dialog.New(f.call, f.opts)
	d.Open(seed)
	if f.read != nil {
		d.Update(func(draft *D) { f.read(r.PostForm, draft) })
	}
	if r.PostForm.Get("confirm") == "yes" {
		d.Confirm()
	}

	_, err := d.Submit(r.Context())
	switch {
	case err == nil:
		s.hub.Refetch(f.topic)
		http.Redirect(w, r, f.redirect, http.StatusSeeOther)
		return
	case loginRequired(err):
		s.toLogin(w, r)
		return
	}

	msg := dialog.Message(err)
	if errors.Is(err, dialog.ErrNotConfirmed) {
		msg = "Please confirm the deletion."
	}
	slog.Info("form rejected", "form", f.name, "target", f.target, "error", msg)
	f.page(w, r, http.StatusUnprocessableEntity, &dialogState{
		Name:    f.name,
		Target:  f.target,
		Message: msg,
		Field:   dialog.FieldOf(err),
		Values:  r.PostForm,
	})
}

func companyURL(id string) string { return "/companies/" + url.PathEscape(id) }

func projectURL(companyID, projectID string) string {
	return "/projects/" + url.PathEscape(companyID) + "/" + url.PathEscape(projectID)
}

func vulnURL(companyID, projectID, vulnID string) string {
	return projectURL(companyID, projectID) + "/vulnerabilities/" + url.PathEscape(vulnID)
}

// Companies

func (s *Server) handleCompanyEdit(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	id := r.PathValue("c")
	submitForm(s, w, r, form[vulnsphere.CompanyDraft, vulnsphere.Company]{
		name:   "company-edit",
		target: id,
		load: func(ctx context.Context) (vulnsphere.CompanyDraft, error) {
			c, err := e.api.GetCompany(ctx, id)
			return vulnsphere.CompanyDraftFrom(c), err
		},
		read: readCompany,
		call: func(ctx context.Context, d vulnsphere.CompanyDraft) (vulnsphere.Company, error) {
			return e.api.UpdateCompany(ctx, id, d)
		},
		opts:     dialog.Options[vulnsphere.CompanyDraft, vulnsphere.Company]{Fallback: "Failed to update company"},
		topic:    "companies",
		redirect: companyURL(id),
		page:     s.companyPage,
	})
}

func readCompany(v url.Values, d *vulnsphere.CompanyDraft) {
	d.Name = strings.TrimSpace(v.Get("name"))
	d.ContactEmail = strings.TrimSpace(v.Get("contact_email"))
	d.Address = v.Get("address")
	d.Notes = v.Get("notes")
	d.IsActive = v.Get("is_active") == "on"
}

// Projects

func (s *Server) handleProjectCreate(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	companyID := r.PathValue("c")
	submitForm(s, w, r, form[vulnsphere.ProjectDraft, vulnsphere.Project]{
		name:   "project-create",
		target: companyID,
		seed:   vulnsphere.NewProjectDraft(s.now()),
		read:   readProject,
		call: func(ctx context.Context, d vulnsphere.ProjectDraft) (vulnsphere.Project, error) {
			return e.api.CreateProject(ctx, companyID, d)
		},
		opts:     dialog.Options[vulnsphere.ProjectDraft, vulnsphere.Project]{Fallback: "Failed to create project"},
		topic:    "projects",
		redirect: companyURL(companyID),
		page:     s.companyPage,
	})
}

func (s *Server) handleProjectEdit(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	companyID, projectID := r.PathValue("c"), r.PathValue("p")
	submitForm(s, w, r, form[vulnsphere.ProjectDraft, vulnsphere.Project]{
		name:   "project-edit",
		target: projectID,
		load: func(ctx context.Context) (vulnsphere.ProjectDraft, error) {
			p, err := e.api.GetProject(ctx, companyID, projectID)
			return vulnsphere.ProjectDraftFrom(p), err
		},
		read: readProject,
		call: func(ctx context.Context, d vulnsphere.ProjectDraft) (vulnsphere.Project, error) {
			return e.api.UpdateProject(ctx, companyID, projectID, d)
		},
		opts:     dialog.Options[vulnsphere.ProjectDraft, vulnsphere.Project]{Fallback: "Failed to update project"},
		topic:    "projects",
		redirect: companyURL(companyID),
		page:     s.companyPage,
	})
}

func (s *Server) handleProjectDelete(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	companyID, projectID := r.PathValue("c"), r.PathValue("p")
	submitForm(s, w, r, form[struct{}, struct{}]{
		name:   "project-delete",
		target: projectID,
		call: func(ctx context.Context, _ struct{}) (struct{}, error) {
			return struct{}{}, e.api.DeleteProject(ctx, companyID, projectID)
		},
		opts:     dialog.Options[struct{}, struct{}]{Fallback: "Failed to delete project", Confirm: true},
		topic:    "projects",
		redirect: companyURL(companyID),
		page:     s.companyPage,
	})
}

func readProject(v url.Values, d *vulnsphere.ProjectDraft) {
	d.Title = strings.TrimSpace(v.Get("title"))
	if t := strings.TrimSpace(v.Get("engagement_type")); t != "" {
		d.EngagementType = t
	}
	if sd := v.Get("start_date"); sd != "" {
		d.StartDate = sd
	}
	if ed := v.Get("end_date"); ed != "" {
		d.EndDate = ed
	}
	d.Summary = v.Get("summary")
	d.Scope = v.Get("scope_description")
	if st := vulnsphere.ProjectStatus(v.Get("status")); st.Valid() {
		d.Status = st
	}
}

// Assets

func (s *Server) handleAssetCreate(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	companyID := r.PathValue("c")
	submitForm(s, w, r, form[vulnsphere.AssetDraft, vulnsphere.Asset]{
		name:   "asset-create",
		target: companyID,
		seed:   vulnsphere.NewAssetDraft(),
		read:   readAsset,
		call: func(ctx context.Context, d vulnsphere.AssetDraft) (vulnsphere.Asset, error) {
			return e.api.CreateAsset(ctx, companyID, d)
		},
		opts:     dialog.Options[vulnsphere.AssetDraft, vulnsphere.Asset]{Fallback: "Failed to create asset"},
		topic:    "assets",
		redirect: companyURL(companyID),
		page:     s.companyPage,
	})
}

func (s *Server) handleAssetEdit(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	companyID, assetID := r.PathValue("c"), r.PathValue("a")
	submitForm(s, w, r, form[vulnsphere.AssetDraft, vulnsphere.Asset]{
		name:   "asset-edit",
		target: assetID,
		load: func(ctx context.Context) (vulnsphere.AssetDraft, error) {
			a, err := e.api.GetAsset(ctx, companyID, assetID)
			return vulnsphere.AssetDraftFrom(a), err
		},
		read: readAsset,
		call: func(ctx context.Context, d vulnsphere.AssetDraft) (vulnsphere.Asset, error) {
			return e.api.UpdateAsset(ctx, companyID, assetID, d)
		},
		opts:     dialog.Options[vulnsphere.AssetDraft, vulnsphere.Asset]{Fallback: "Failed to update asset"},
		topic:    "assets",
		redirect: companyURL(companyID),
		page:     s.companyPage,
	})
}

func (s *Server) handleAssetDelete(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	companyID, assetID := r.PathValue("c"), r.PathValue("a")
	submitForm(s, w, r, form[struct{}, struct{}]{
		name:   "asset-delete",
		target: assetID,
		call: func(ctx context.Context, _ struct{}) (struct{}, error) {
			return struct{}{}, e.api.DeleteAsset(ctx, companyID, assetID)
		},
		opts:     dialog.Options[struct{}, struct{}]{Fallback: "Failed to delete asset", Confirm: true},
		topic:    "assets",
		redirect: companyURL(companyID),
		page:     s.companyPage,
	})
}

func readAsset(v url.Values, d *vulnsphere.AssetDraft) {
	d.Name = strings.TrimSpace(v.Get("name"))
	if t := v.Get("type"); t != "" {
		d.Type = vulnsphere.AssetType(t)
	}
	d.Identifier = strings.TrimSpace(v.Get("identifier"))
	d.Description = v.Get("description")
	d.IsActive = v.Get("is_active") == "on"
}

// handleAssetImport uploads a CSV of assets. The page is drawn directly
// rather than redirected so the per-row errors can be listed.
func (s *Server) handleAssetImport(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	companyID := r.PathValue("c")
	if !e.identity.CanEdit() {
		s.forbidden(w, r)
		return
	}

	filename, data, err := readUpload(r, "file")
	if err != nil {
		http.Error(w, "bad upload", http.StatusBadRequest)
		return
	}

	imp := dialog.NewImporter(func(ctx context.Context, name string, b []byte) (vulnsphere.ImportResult, error) {
		return e.api.ImportAssets(ctx, companyID, name, b)
	}, func(out dialog.ImportOutcome) {
		s.hub.Refetch("assets")
	})
	outcome, err := imp.Import(r.Context(), filename, data)
	if err != nil {
		if loginRequired(err) {
			s.toLogin(w, r)
			return
		}
		s.companyPage(w, r, http.StatusUnprocessableEntity, &dialogState{
			Name:    "asset-import",
			Target:  companyID,
			Message: dialog.Message(err),
			Field:   dialog.FieldOf(err),
		})
		return
	}
	slog.Info("assets imported", "company", companyID, "created", outcome.Created, "failed", len(outcome.Errors))
	s.renderCompany(w, r, http.StatusOK, nil, &outcome)
}

// readUpload parses a multipart form and returns one file. A missing file
// yields an empty name, which the caller's validation rejects.
func readUpload(r *http.Request, field string) (string, []byte, error) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		return "", nil, err
	}
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUpload))
	if err != nil {
		return "", nil, err
	}
	return hdr.Filename, data, nil
}

// Vulnerabilities

func (s *Server) handleVulnCreate(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	companyID, projectID := r.PathValue("c"), r.PathValue("p")
	submitForm(s, w, r, form[vulnsphere.VulnerabilityDraft, vulnsphere.Vulnerability]{
		name:   "vuln-create",
		target: projectID,
		seed:   vulnsphere.NewVulnerabilityDraft(),
		read:   readVuln,
		call: func(ctx context.Context, d vulnsphere.VulnerabilityDraft) (vulnsphere.Vulnerability, error) {
			return e.api.CreateVulnerability(ctx, companyID, projectID, d)
		},
		opts: dialog.Options[vulnsphere.VulnerabilityDraft, vulnsphere.Vulnerability]{
			Fallback: "Failed to create vulnerability",
			Validate: validateVuln,
		},
		topic:    "vulnerabilities",
		redirect: projectURL(companyID, projectID),
		page:     s.projectPage,
	})
}

func (s *Server) handleVulnEdit(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	companyID, projectID, vulnID := r.PathValue("c"), r.PathValue("p"), r.PathValue("v")
	submitForm(s, w, r, form[vulnsphere.VulnerabilityDraft, vulnsphere.Vulnerability]{
		name:   "vuln-edit",
		target: vulnID,
		load: func(ctx context.Context) (vulnsphere.VulnerabilityDraft, error) {
			v, err := e.api.GetVulnerability(ctx, companyID, projectID, vulnID)
			return vulnsphere.VulnerabilityDraftFrom(v), err
		},
		read: readVuln,
		call: func(ctx context.Context, d vulnsphere.VulnerabilityDraft) (vulnsphere.Vulnerability, error) {
			return e.api.UpdateVulnerability(ctx, companyID, projectID, vulnID, d)
		},
		opts: dialog.Options[vulnsphere.VulnerabilityDraft, vulnsphere.Vulnerability]{
			Fallback: "Failed to update vulnerability",
			Validate: validateVuln,
		},
		topic:    "vulnerabilities",
		redirect: projectURL(companyID, projectID),
		page:     s.projectPage,
	})
}

func (s *Server) handleVulnDelete(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	companyID, projectID, vulnID := r.PathValue("c"), r.PathValue("p"), r.PathValue("v")
	submitForm(s, w, r, form[struct{}, struct{}]{
		name:   "vuln-delete",
		target: vulnID,
		call: func(ctx context.Context, _ struct{}) (struct{}, error) {
			return struct{}{}, e.api.DeleteVulnerability(ctx, companyID, projectID, vulnID)
		},
		opts:     dialog.Options[struct{}, struct{}]{Fallback: "Failed to delete vulnerability", Confirm: true},
		topic:    "vulnerabilities",
		redirect: projectURL(companyID, projectID),
		page:     s.projectPage,
	})
}

func (s *Server) handleRetest(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	companyID, projectID, vulnID := r.PathValue("c"), r.PathValue("p"), r.PathValue("v")
	submitForm(s, w, r, form[vulnsphere.RetestRequest, vulnsphere.Retest]{
		name:   "retest",
		target: vulnID,
		seed:   vulnsphere.RetestRequest{RequestType: "RETEST"},
		read: func(v url.Values, d *vulnsphere.RetestRequest) {
			if t := v.Get("request_type"); t != "" {
				d.RequestType = t
			}
			d.Notes = v.Get("notes")
		},
		call: func(ctx context.Context, d vulnsphere.RetestRequest) (vulnsphere.Retest, error) {
			return e.api.RequestRetest(ctx, companyID, projectID, vulnID, d)
		},
		opts:     dialog.Options[vulnsphere.RetestRequest, vulnsphere.Retest]{Fallback: "Failed to request retest"},
		topic:    "vulnerabilities",
		redirect: vulnURL(companyID, projectID, vulnID),
		page:     s.vulnPage,
		anyone:   true,
	})
}

// readVuln marks an unparseable score out of range so validateVuln rejects it.
func readVuln(v url.Values, d *vulnsphere.VulnerabilityDraft) {
	d.Title = strings.TrimSpace(v.Get("title"))
	if sev := vulnsphere.Severity(v.Get("severity")); sev.Valid() {
		d.Severity = sev
	}
	if st := vulnsphere.VulnStatus(v.Get("status")); st.Valid() {
		d.Status = st
	}
	d.CVSSScore = vulnsphere.Score{}
	if raw := strings.TrimSpace(v.Get("cvss_base_score")); raw != "" {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			d.CVSSScore = vulnsphere.Score{Value: f, Set: true}
		} else {
			d.CVSSScore = vulnsphere.Score{Value: -1, Set: true}
		}
	}
	d.CVSSVector = strings.TrimSpace(v.Get("cvss_vector"))
	d.Description = v.Get("details_md")
}

func validateVuln(d vulnsphere.VulnerabilityDraft) error {
	if d.Title == "" {
		return &dialog.ValidationError{Field: "title", Message: "Title is required"}
	}
	if d.CVSSScore.Set && (d.CVSSScore.Value < 0 || d.CVSSScore.Value > 10) {
		return &dialog.ValidationError{Field: "cvss_base_score", Message: "CVSS score must be between 0.0 and 10.0"}
	}
	return nil
}

// Reports

func generateRequest(v url.Values) report.Request {
	req := report.NewRequest().WithScope(report.ParseScope(v.Get("scope")))
	req.TemplateID = v.Get("template_id")
	req.ScopeID = v.Get("scope_id")
	if f := vulnsphere.ReportFormat(v.Get("format")); f.Valid() {
		req.Format = f
	}
	return req
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	trigger := report.NewTrigger(e.api)
	submitForm(s, w, r, form[report.Request, vulnsphere.GeneratedReport]{
		name: "generate",
		seed: report.NewRequest(),
		read: func(v url.Values, d *report.Request) { *d = generateRequest(v) },
		call: trigger.Generate,
		opts: dialog.Options[report.Request, vulnsphere.GeneratedReport]{
			Fallback: "Failed to generate report.",
		},
		topic:    "reports",
		redirect: "/reports",
		page:     s.reportsPage,
	})
}

func (s *Server) handleReportDelete(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	id := r.PathValue("r")
	submitForm(s, w, r, form[struct{}, struct{}]{
		name:   "report-delete",
		target: id,
		call: func(ctx context.Context, _ struct{}) (struct{}, error) {
			return struct{}{}, e.api.DeleteReport(ctx, id)
		},
		opts:     dialog.Options[struct{}, struct{}]{Fallback: "Failed to delete report", Confirm: true},
		topic:    "reports",
		redirect: "/reports",
		page:     s.reportsPage,
	})
}

// Templates

func (s *Server) handleTemplateUpload(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	filename, data, err := readUpload(r, "file")
	if err != nil {
		http.Error(w, "bad upload", http.StatusBadRequest)
		return
	}
	submitForm(s, w, r, form[vulnsphere.TemplateDraft, vulnsphere.ReportTemplate]{
		name: "template-upload",
		seed: vulnsphere.TemplateDraft{Filename: filename, File: data},
		read: func(v url.Values, d *vulnsphere.TemplateDraft) {
			d.Name = strings.TrimSpace(v.Get("name"))
			d.Description = v.Get("description")
		},
		call: e.api.UploadTemplate,
		opts: dialog.Options[vulnsphere.TemplateDraft, vulnsphere.ReportTemplate]{
			Fallback: "Failed to upload template",
			Validate: func(d vulnsphere.TemplateDraft) error {
				if d.Name == "" {
					return &dialog.ValidationError{Field: "name", Message: "Name is required"}
				}
				if err := vulnsphere.ValidateTemplateFilename(d.Filename); err != nil {
					return dialog.Invalid("file", err)
				}
				if err := vulnsphere.ValidateTemplateContent(d.Filename, d.File); err != nil {
					return dialog.Invalid("file", err)
				}
				return nil
			},
		},
		topic:    "templates",
		redirect: "/templates",
		page:     s.templatesPage,
	})
}

func (s *Server) handleTemplateEdit(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	id := r.PathValue("t")
	submitForm(s, w, r, form[vulnsphere.TemplatePatch, vulnsphere.ReportTemplate]{
		name:   "template-edit",
		target: id,
		load: func(ctx context.Context) (vulnsphere.TemplatePatch, error) {
			t, err := e.api.GetTemplate(ctx, id)
			return vulnsphere.TemplatePatchFrom(t), err
		},
		read: func(v url.Values, d *vulnsphere.TemplatePatch) {
			d.Name = strings.TrimSpace(v.Get("name"))
			d.Description = v.Get("description")
		},
		call: func(ctx context.Context, p vulnsphere.TemplatePatch) (vulnsphere.ReportTemplate, error) {
			return e.api.UpdateTemplate(ctx, id, p)
		},
		opts:     dialog.Options[vulnsphere.TemplatePatch, vulnsphere.ReportTemplate]{Fallback: "Failed to update template"},
		topic:    "templates",
		redirect: "/templates",
		page:     s.templatesPage,
	})
}

func (s *Server) handleTemplateDelete(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	id := r.PathValue("t")
	submitForm(s, w, r, form[struct{}, struct{}]{
		name:   "template-delete",
		target: id,
		call: func(ctx context.Context, _ struct{}) (struct{}, error) {
			return struct{}{}, e.api.DeleteTemplate(ctx, id)
		},
		opts:     dialog.Options[struct{}, struct{}]{Fallback: "Failed to delete template", Confirm: true},
		topic:    "templates",
		redirect: "/templates",
		page:     s.templatesPage,
	})
}

// Users

func (s *Server) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	if !e.identity.IsAdmin() {
		s.forbidden(w, r)
		return
	}
	submitForm(s, w, r, form[vulnsphere.UserDraft, vulnsphere.User]{
		name: "user-create",
		seed: vulnsphere.NewUserDraft(),
		read: func(v url.Values, d *vulnsphere.UserDraft) {
			d.Username = strings.TrimSpace(v.Get("username"))
			d.Email = strings.TrimSpace(v.Get("email"))
			d.Name = strings.TrimSpace(v.Get("name"))
			d.Password = v.Get("password")
			if role := vulnsphere.Role(v.Get("role")); role.Valid() {
				d.Role = role
			}
			d.Companies = append([]string{}, v["companies"]...)
		},
		call: func(ctx context.Context, d vulnsphere.UserDraft) (vulnsphere.User, error) {
			return e.api.CreateUser(ctx, d)
		},
		opts: dialog.Options[vulnsphere.UserDraft, vulnsphere.User]{
			Fallback:     "Failed to create user",
			PreferFields: []string{"username", "email"},
			Validate: func(d vulnsphere.UserDraft) error {
				if err := vulnsphere.ValidateUsername(d.Username); err != nil {
					return dialog.Invalid("username", err)
				}
				return nil
			},
		},
		topic:    "users",
		redirect: "/users",
		page:     s.usersPage,
	})
}

func (s *Server) handleUserEdit(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	if !e.identity.IsAdmin() {
		s.forbidden(w, r)
		return
	}
	id := r.PathValue("u")
	submitForm(s, w, r, form[vulnsphere.UserPatch, vulnsphere.User]{
		name:   "user-edit",
		target: id,
		load: func(ctx context.Context) (vulnsphere.UserPatch, error) {
			u, err := e.api.GetUser(ctx, id)
			return vulnsphere.UserPatchFrom(u), err
		},
		read: func(v url.Values, d *vulnsphere.UserPatch) {
			d.Email = strings.TrimSpace(v.Get("email"))
			d.Name = strings.TrimSpace(v.Get("name"))
			if role := vulnsphere.Role(v.Get("role")); role.Valid() {
				d.Role = role
			}
			d.IsActive = v.Get("is_active") == "on"
			d.Companies = append([]string{}, v["companies"]...)
		},
		call: func(ctx context.Context, p vulnsphere.UserPatch) (vulnsphere.User, error) {
			return e.api.UpdateUser(ctx, id, p)
		},
		opts: dialog.Options[vulnsphere.UserPatch, vulnsphere.User]{
			Fallback:     "Failed to update user",
			PreferFields: []string{"email"},
		},
		topic:    "users",
		redirect: "/users",
		page:     s.usersPage,
	})
}

func (s *Server) handleProfileEdit(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	submitForm(s, w, r, form[vulnsphere.ProfilePatch, vulnsphere.User]{
		name: "profile",
		seed: vulnsphere.ProfilePatchFrom(e.user()),
		read: func(v url.Values, d *vulnsphere.ProfilePatch) {
			d.Name = strings.TrimSpace(v.Get("name"))
			d.Email = strings.TrimSpace(v.Get("email"))
		},
		call:     e.api.UpdateMe,
		opts:     dialog.Options[vulnsphere.ProfilePatch, vulnsphere.User]{Fallback: "Failed to update profile"},
		redirect: "/settings",
		page:     s.settingsPage,
		anyone:   true,
	})
}
