package vulnsphere

import "time"

// Drafts are the request bodies owned by mutation dialogs. Each editable
// entity has a DraftFrom seed used when an edit dialog opens.

type CompanyDraft struct {
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email"`
	Address      string `json:"address"`
	Notes        string `json:"notes"`
	IsActive     bool   `json:"is_active"`
}

func CompanyDraftFrom(c Company) CompanyDraft {
	return CompanyDraft{
		Name:         c.Name,
		ContactEmail: c.ContactEmail,
		Address:      c.Address,
		Notes:        c.Notes,
		IsActive:     c.IsActive,
	}
}

type ProjectDraft struct {
	Title          string        `json:"title"`
	EngagementType string        `json:"engagement_type"`
	StartDate      string        `json:"start_date"`
	EndDate        string        `json:"end_date"`
	Summary        string        `json:"summary"`
	Scope          string        `json:"scope_description,omitempty"`
	Status         ProjectStatus `json:"status,omitempty"`
}

// NewProjectDraft returns the defaults for a project created on day now.
func NewProjectDraft(now time.Time) ProjectDraft {
	today := now.Format(time.DateOnly)
	return ProjectDraft{
		EngagementType: DefaultEngagement,
		StartDate:      today,
		EndDate:        today,
	}
}

func ProjectDraftFrom(p Project) ProjectDraft {
	return ProjectDraft{
		Title:          p.Title,
		EngagementType: p.EngagementType,
		StartDate:      p.StartDate,
		EndDate:        p.EndDate,
		Summary:        p.Summary,
		Scope:          p.Scope,
		Status:         p.Status,
	}
}

type AssetDraft struct {
	Name        string    `json:"name"`
	Type        AssetType `json:"type"`
	Identifier  string    `json:"identifier"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
}

func NewAssetDraft() AssetDraft {
	return AssetDraft{Type: AssetWebApp, IsActive: true}
}

func AssetDraftFrom(a Asset) AssetDraft {
	return AssetDraft{
		Name:        a.Name,
		Type:        a.Type,
		Identifier:  a.Identifier,
		Description: a.Description,
		IsActive:    a.IsActive,
	}
}

type VulnerabilityDraft struct {
	Title       string     `json:"title"`
	Severity    Severity   `json:"severity"`
	Status      VulnStatus `json:"status"`
	CVSSScore   Score      `json:"cvss_base_score"`
	CVSSVector  string     `json:"cvss_vector"`
	Description string     `json:"details_md"`
}

func NewVulnerabilityDraft() VulnerabilityDraft {
	return VulnerabilityDraft{Severity: SeverityMedium, Status: StatusOpen}
}

func VulnerabilityDraftFrom(v Vulnerability) VulnerabilityDraft {
	return VulnerabilityDraft{
		Title:       v.Title,
		Severity:    v.Severity,
		Status:      v.Status,
		CVSSScore:   v.CVSSScore,
		CVSSVector:  v.CVSSVector,
		Description: v.Description,
	}
}

type RetestRequest struct {
	RequestType string `json:"request_type"`
	Notes       string `json:"notes"`
}

// UserDraft creates a user. Companies is only sent for roles scoped to
// companies; see Body.
type UserDraft struct {
	Email     string   `json:"email"`
	Username  string   `json:"username"`
	Name      string   `json:"name"`
	Password  string   `json:"password"`
	Role      Role     `json:"role"`
	Companies []string `json:"companies"`
}

func NewUserDraft() UserDraft {
	return UserDraft{Role: RoleClient, Companies: []string{}}
}

// Body drops the company assignment for admins, which have access to all companies.
func (d UserDraft) Body() UserDraft {
	if !d.Role.ScopedToCompanies() {
		d.Companies = []string{}
	}
	return d
}

// UserPatch edits a user. Usernames are fixed at creation so there is no
// username field.
type UserPatch struct {
	Email     string   `json:"email"`
	Name      string   `json:"name"`
	Role      Role     `json:"role"`
	IsActive  bool     `json:"is_active"`
	Companies []string `json:"companies"`
}

func UserPatchFrom(u User) UserPatch {
	companies := append([]string{}, u.Companies...)
	return UserPatch{
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		IsActive:  u.IsActive,
		Companies: companies,
	}
}

func (p UserPatch) Body() UserPatch {
	if !p.Role.ScopedToCompanies() {
		p.Companies = []string{}
	}
	return p
}

type ProfilePatch struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func ProfilePatchFrom(u User) ProfilePatch {
	return ProfilePatch{Name: u.Name, Email: u.Email}
}

// TemplateDraft uploads a new report template as multipart form data.
type TemplateDraft struct {
	Name        string
	Description string
	Filename    string
	File        []byte
}

type TemplatePatch struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func TemplatePatchFrom(t ReportTemplate) TemplatePatch {
	return TemplatePatch{Name: t.Name, Description: t.Description}
}

// GenerateRequest is the body of /generated-reports/generate/. Exactly one of
// ProjectID and CompanyID is set.
type GenerateRequest struct {
	TemplateID string       `json:"template_id"`
	Format     ReportFormat `json:"format"`
	ProjectID  string       `json:"project_id,omitempty"`
	CompanyID  string       `json:"company_id,omitempty"`
}

// ImportResult is the bulk asset import response. Rows are reported
// individually so a batch can partially succeed.
type ImportResult struct {
	Created int        `json:"created"`
	Errors  []RowError `json:"errors"`
	Items   []Asset    `json:"items"`
}

type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}
