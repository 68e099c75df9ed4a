// Package vulnsphere models the VulnSphere REST resources and wraps their
// endpoints in typed calls.
package vulnsphere

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Company struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	ContactEmail string    `json:"contact_email"`
	Address      string    `json:"address"`
	Notes        string    `json:"notes"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

type ProjectStatus string

const (
	ProjectStatusDraft    ProjectStatus = "DRAFT"
	ProjectStatusInReview ProjectStatus = "IN_REVIEW"
	ProjectStatusFinal    ProjectStatus = "FINAL"
	ProjectStatusArchived ProjectStatus = "ARCHIVED"
)

var ProjectStatuses = []ProjectStatus{ProjectStatusDraft, ProjectStatusInReview, ProjectStatusFinal, ProjectStatusArchived}

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusDraft, ProjectStatusInReview, ProjectStatusFinal, ProjectStatusArchived:
		return true
	}
	return false
}

func (s ProjectStatus) Label() string { return label(string(s)) }

func (s ProjectStatus) Tone() Tone {
	switch s {
	case ProjectStatusDraft:
		return ToneMuted
	case ProjectStatusInReview:
		return ToneWarning
	case ProjectStatusFinal:
		return ToneSuccess
	case ProjectStatusArchived:
		return ToneNeutral
	}
	return ToneNeutral
}

// DefaultEngagement is the engagement type a new project starts with.
const DefaultEngagement = "Web Application Penetration Test"

type Project struct {
	ID                 string        `json:"id"`
	Company            string        `json:"company"`
	CompanyName        string        `json:"company_name,omitempty"`
	Title              string        `json:"title"`
	EngagementType     string        `json:"engagement_type"`
	Status             ProjectStatus `json:"status"`
	StartDate          string        `json:"start_date"`
	EndDate            string        `json:"end_date"`
	Summary            string        `json:"summary"`
	Scope              string        `json:"scope_description"`
	CreatedAt          time.Time     `json:"created_at"`
	VulnerabilityCount *int          `json:"vulnerability_count,omitempty"`
}

type AssetType string

const (
	AssetWebApp    AssetType = "WEB_APP"
	AssetAPI       AssetType = "API"
	AssetServer    AssetType = "SERVER"
	AssetMobileApp AssetType = "MOBILE_APP"
	AssetNetwork   AssetType = "NETWORK"
	AssetCloud     AssetType = "CLOUD"
	AssetOther     AssetType = "OTHER"
)

var AssetTypes = []AssetType{AssetWebApp, AssetAPI, AssetServer, AssetMobileApp, AssetNetwork, AssetCloud, AssetOther}

// Label renders known types and passes unknown ones through.
func (t AssetType) Label() string {
	switch t {
	case AssetAPI:
		return "API"
	case "":
		return ""
	}
	return label(string(t))
}

type Asset struct {
	ID          string    `json:"id"`
	Company     string    `json:"company"`
	Name        string    `json:"name"`
	Type        AssetType `json:"type"`
	Identifier  string    `json:"identifier"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

func (s Severity) Label() string { return label(string(s)) }

func (s Severity) Tone() Tone {
	switch s {
	case SeverityCritical:
		return ToneCritical
	case SeverityHigh:
		return ToneDanger
	case SeverityMedium:
		return ToneWarning
	case SeverityLow:
		return ToneInfo
	}
	return ToneNeutral
}

// Rank orders severities from most to least severe. Unknown values sort last.
func (s Severity) Rank() int {
	for i, v := range Severities {
		if v == s {
			return i
		}
	}
	return len(Severities)
}

type VulnStatus string

const (
	StatusOpen          VulnStatus = "OPEN"
	StatusInProgress    VulnStatus = "IN_PROGRESS"
	StatusResolved      VulnStatus = "RESOLVED"
	StatusAcceptedRisk  VulnStatus = "ACCEPTED_RISK"
	StatusFalsePositive VulnStatus = "FALSE_POSITIVE"
	StatusRetestPending VulnStatus = "RETEST_PENDING"
	StatusRetestFailed  VulnStatus = "RETEST_FAILED"
)

var VulnStatuses = []VulnStatus{
	StatusOpen, StatusInProgress, StatusResolved, StatusAcceptedRisk,
	StatusFalsePositive, StatusRetestPending, StatusRetestFailed,
}

func (s VulnStatus) Valid() bool {
	for _, v := range VulnStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func (s VulnStatus) Label() string { return label(string(s)) }

func (s VulnStatus) Tone() Tone {
	switch s {
	case StatusOpen, StatusRetestFailed:
		return ToneDanger
	case StatusInProgress, StatusRetestPending:
		return ToneWarning
	case StatusResolved:
		return ToneSuccess
	case StatusAcceptedRisk:
		return ToneInfo
	}
	return ToneMuted
}

// Score is a CVSS base score. The API serializes decimals as strings, so both
// "7.5" and 7.5 decode.
type Score struct {
	Value float64
	Set   bool
}

func (s *Score) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" || raw == `""` {
		*s = Score{}
		return nil
	}
	raw = strings.Trim(raw, `"`)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("cvss score %q: %w", raw, err)
	}
	*s = Score{Value: v, Set: true}
	return nil
}

func (s Score) MarshalJSON() ([]byte, error) {
	if !s.Set {
		return []byte("null"), nil
	}
	return json.Marshal(strconv.FormatFloat(s.Value, 'f', 1, 64))
}

func (s Score) String() string {
	if !s.Set {
		return ""
	}
	return strconv.FormatFloat(s.Value, 'f', 1, 64)
}

type Vulnerability struct {
	ID          string     `json:"id"`
	Project     string     `json:"project"`
	Title       string     `json:"title"`
	Severity    Severity   `json:"severity"`
	Status      VulnStatus `json:"status"`
	CVSSScore   Score      `json:"cvss_base_score"`
	CVSSVector  string     `json:"cvss_vector"`
	Description string     `json:"details_md"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Retest struct {
	ID            string    `json:"id"`
	Vulnerability string    `json:"vulnerability"`
	RequestType   string    `json:"request_type"`
	Status        string    `json:"status"`
	RetestDate    string    `json:"retest_date"`
	Notes         string    `json:"notes"`
	RequestedBy   *string   `json:"requested_by"`
	PerformedBy   *string   `json:"performed_by"`
	CreatedAt     time.Time `json:"created_at"`
}

type ReportTemplate struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	File        string    `json:"file"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ReportFormat string

const (
	FormatDOCX ReportFormat = "DOCX"
	FormatHTML ReportFormat = "HTML"
)

func (f ReportFormat) Valid() bool { return f == FormatDOCX || f == FormatHTML }

type GeneratedReport struct {
	ID           string       `json:"id"`
	Template     string       `json:"template"`
	TemplateName string       `json:"template_name,omitempty"`
	Project      string       `json:"project,omitempty"`
	ProjectTitle string       `json:"project_title,omitempty"`
	Company      string       `json:"company,omitempty"`
	CompanyName  string       `json:"company_name,omitempty"`
	Format       ReportFormat `json:"format"`
	IsFailed     bool         `json:"is_failed"`
	ErrorMessage string       `json:"error_message,omitempty"`
	File         string       `json:"file"`
	CreatedAt    time.Time    `json:"created_at"`
}

// ScopeLabel names the project or company the report was generated for.
func (r GeneratedReport) ScopeLabel() string {
	switch {
	case r.ProjectTitle != "":
		return r.ProjectTitle
	case r.Project != "":
		return r.Project
	case r.CompanyName != "":
		return r.CompanyName
	case r.Company != "":
		return r.Company
	}
	return "Unknown"
}

// Filename is the download name offered when the API sends none.
func (r GeneratedReport) Filename() string {
	ext := ".docx"
	if r.Format == FormatHTML {
		ext = ".html"
	}
	return "report-" + r.ID + ext
}

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleTester Role = "TESTER"
	RoleClient Role = "CLIENT"
)

var Roles = []Role{RoleAdmin, RoleTester, RoleClient}

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleTester || r == RoleClient
}

func (r Role) Label() string { return label(string(r)) }

// ScopedToCompanies reports whether the role's access is limited to assigned companies.
func (r Role) ScopedToCompanies() bool {
	return r == RoleTester || r == RoleClient
}

type User struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	Username  string   `json:"username"`
	Name      string   `json:"name"`
	Role      Role     `json:"role"`
	IsActive  bool     `json:"is_active"`
	Companies []string `json:"companies"`
}

func (u User) FullName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Username != "":
		return u.Username
	}
	return u.Email
}

type Action string

const (
	ActionCreated       Action = "CREATED"
	ActionUpdated       Action = "UPDATED"
	ActionDeleted       Action = "DELETED"
	ActionStatusChanged Action = "STATUS_CHANGED"
)

func (a Action) Label() string { return label(string(a)) }

func (a Action) Tone() Tone {
	switch a {
	case ActionCreated:
		return ToneSuccess
	case ActionUpdated:
		return ToneWarning
	case ActionDeleted:
		return ToneDanger
	case ActionStatusChanged:
		return ToneInfo
	}
	return ToneNeutral
}

type ActivityLog struct {
	ID          string         `json:"id"`
	Company     string         `json:"company"`
	CompanyName string         `json:"company_name,omitempty"`
	User        *string        `json:"user"`
	UserName    string         `json:"user_name,omitempty"`
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	Action      Action         `json:"action"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Actor names who performed the action. Entries without a user were
// recorded by the system.
func (l ActivityLog) Actor() string {
	if l.User == nil {
		return "System"
	}
	if l.UserName != "" {
		return l.UserName
	}
	return *l.User
}

// Tone is the badge colour class used when rendering an enum value.
type Tone string

const (
	ToneCritical Tone = "critical"
	ToneDanger   Tone = "danger"
	ToneWarning  Tone = "warning"
	ToneInfo     Tone = "info"
	ToneSuccess  Tone = "success"
	ToneMuted    Tone = "muted"
	ToneNeutral  Tone = "neutral"
)

// label turns IN_REVIEW into "In Review".
func label(v string) string {
	words := strings.Fields(strings.ReplaceAll(strings.ToLower(v), "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
