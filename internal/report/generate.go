// Package report drives report generation: choosing a template and a scope,
// validating the choice locally and asking the API to render it.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/vulnsphere/console/internal/dialog"
	"github.com/vulnsphere/console/internal/vulnsphere"
)

const (
	MsgMissingSelection = "Please select a template and a scope (Project/Company)."
	MsgLoadFailed       = "Failed to load data needed for generation."
	msgGenerateFailed   = "Failed to generate report."
)

var (
	ErrMissingSelection = errors.New(MsgMissingSelection)
	ErrLoadFailed       = errors.New(MsgLoadFailed)
)

// Scope is what a report covers.
type Scope string

const (
	ScopeProject Scope = "project"
	ScopeCompany Scope = "company"
)

func ParseScope(s string) Scope {
	if Scope(s) == ScopeCompany {
		return ScopeCompany
	}
	return ScopeProject
}

// Request is the generation form. Changing Scope clears ScopeID; see
// WithScope.
type Request struct {
	TemplateID string
	Scope      Scope
	ScopeID    string
	Format     vulnsphere.ReportFormat
}

func NewRequest() Request {
	return Request{Scope: ScopeProject, Format: vulnsphere.FormatDOCX}
}

// WithScope switches the scope kind and drops the selected id.
func (r Request) WithScope(s Scope) Request {
	if r.Scope != s {
		r.Scope = s
		r.ScopeID = ""
	}
	return r
}

// Payload builds the API body. Exactly one of project_id and company_id is
// set.
func (r Request) Payload() (vulnsphere.GenerateRequest, error) {
	if strings.TrimSpace(r.TemplateID) == "" || strings.TrimSpace(r.ScopeID) == "" {
		return vulnsphere.GenerateRequest{}, ErrMissingSelection
	}
	format := r.Format
	if !format.Valid() {
		format = vulnsphere.FormatDOCX
	}
	p := vulnsphere.GenerateRequest{TemplateID: r.TemplateID, Format: format}
	switch r.Scope {
	case ScopeCompany:
		p.CompanyID = r.ScopeID
	default:
		p.ProjectID = r.ScopeID
	}
	return p, nil
}

// Backend is the slice of the API the trigger needs.
type Backend interface {
	GenerateReport(ctx context.Context, r vulnsphere.GenerateRequest) (vulnsphere.GeneratedReport, error)
	ListTemplates(ctx context.Context, q url.Values) (vulnsphere.Page[vulnsphere.ReportTemplate], error)
	ListProjects(ctx context.Context, q url.Values) (vulnsphere.Page[vulnsphere.Project], error)
	ListCompanies(ctx context.Context, q url.Values) (vulnsphere.Page[vulnsphere.Company], error)
}

type Trigger struct {
	api Backend
}

func NewTrigger(api Backend) *Trigger {
	return &Trigger{api: api}
}

// Generate validates r and submits it. A local validation failure never
// reaches the API.
func (t *Trigger) Generate(ctx context.Context, r Request) (vulnsphere.GeneratedReport, error) {
	payload, err := r.Payload()
	if err != nil {
		return vulnsphere.GeneratedReport{}, &dialog.ValidationError{Message: err.Error()}
	}
	rep, err := t.api.GenerateReport(ctx, payload)
	if err != nil {
		return vulnsphere.GeneratedReport{}, dialog.Translate(err, msgGenerateFailed)
	}
	slog.Info("report generation requested", "report", rep.ID, "template", payload.TemplateID,
		"project", payload.ProjectID, "company", payload.CompanyID, "format", payload.Format)
	return rep, nil
}

// Choices are the option lists for the generation form.
type Choices struct {
	Templates []Option
	Projects  []vulnsphere.Project
	Companies []vulnsphere.Company
}

// Load fetches templates, projects and companies together. Any failure fails
// the whole form.
func (t *Trigger) Load(ctx context.Context) (Choices, error) {
	var (
		c         Choices
		templates []vulnsphere.ReportTemplate
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := t.api.ListTemplates(ctx, nil)
		templates = p.Results
		return err
	})
	g.Go(func() error {
		p, err := t.api.ListProjects(ctx, nil)
		c.Projects = p.Results
		return err
	})
	g.Go(func() error {
		p, err := t.api.ListCompanies(ctx, nil)
		c.Companies = p.Results
		return err
	})
	if err := g.Wait(); err != nil {
		return Choices{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	c.Templates = Annotate(templates)
	return c, nil
}

// TemplateType is derived from a template's file extension.
type TemplateType string

const (
	TypeHTML    TemplateType = "HTML"
	TypeDOCX    TemplateType = "DOCX"
	TypeUnknown TemplateType = "Unknown"
)

func TypeOf(t vulnsphere.ReportTemplate) TemplateType {
	switch strings.ToLower(path.Ext(t.File)) {
	case ".html":
		return TypeHTML
	case ".docx":
		return TypeDOCX
	}
	return TypeUnknown
}

// Option is a template as offered in a select list.
type Option struct {
	vulnsphere.ReportTemplate
	Type TemplateType
}

func (o Option) Label() string {
	return fmt.Sprintf("%s (%s)", o.Name, o.Type)
}

func Annotate(ts []vulnsphere.ReportTemplate) []Option {
	out := make([]Option, len(ts))
	for i, t := range ts {
		out[i] = Option{ReportTemplate: t, Type: TypeOf(t)}
	}
	return out
}
