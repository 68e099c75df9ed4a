package testutil

import (
	"fmt"
	"time"

	"github.com/vulnsphere/console/internal/vulnsphere"
)

// Fixed ids used by the seeded dataset.
const (
	AcmeID    = "c-acme"
	GlobexID  = "c-globex"
	InitechID = "c-initech"

	AcmeWebID   = "p-acme-web"
	AcmeAPIID   = "p-acme-api"
	GlobexExtID = "p-globex-ext"

	AdminID  = "u-admin"
	TesterID = "u-tester"
	ClientID = "u-client"
)

var seedTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// Seed fills the fake with three companies, three projects and a handful of
// vulnerabilities, assets, templates, reports and users. The caller is an
// administrator unless Me is replaced.
func (f *FakeAPI) Seed() *FakeAPI {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Companies = []vulnsphere.Company{
		{ID: AcmeID, Name: "Acme Corp", Slug: "acme", ContactEmail: "sec@acme.test", IsActive: true, CreatedAt: seedTime},
		{ID: GlobexID, Name: "Globex", Slug: "globex", ContactEmail: "it@globex.test", IsActive: true, CreatedAt: seedTime},
		{ID: InitechID, Name: "Initech", Slug: "initech", IsActive: false, CreatedAt: seedTime},
	}
	f.Projects = []vulnsphere.Project{
		{ID: AcmeWebID, Company: AcmeID, CompanyName: "Acme Corp", Title: "Acme Web App", EngagementType: vulnsphere.DefaultEngagement,
			Status: vulnsphere.ProjectStatusInReview, StartDate: "2025-03-01", EndDate: "2025-03-14", CreatedAt: seedTime},
		{ID: AcmeAPIID, Company: AcmeID, CompanyName: "Acme Corp", Title: "Acme Public API", EngagementType: "API Penetration Test",
			Status: vulnsphere.ProjectStatusDraft, StartDate: "2025-04-01", EndDate: "2025-04-10", CreatedAt: seedTime.Add(time.Hour)},
		{ID: GlobexExtID, Company: GlobexID, CompanyName: "Globex", Title: "Globex External", EngagementType: "External Network Test",
			Status: vulnsphere.ProjectStatusFinal, StartDate: "2025-01-10", EndDate: "2025-01-20", CreatedAt: seedTime.Add(2 * time.Hour)},
	}
	f.Vulns = map[string][]vulnsphere.Vulnerability{
		AcmeWebID: {
			vuln("v-1", AcmeWebID, "SQL Injection in login", vulnsphere.SeverityCritical, vulnsphere.StatusOpen, 9.8),
			vuln("v-2", AcmeWebID, "Reflected XSS in search", vulnsphere.SeverityHigh, vulnsphere.StatusInProgress, 7.1),
			vuln("v-3", AcmeWebID, "Missing security headers", vulnsphere.SeverityLow, vulnsphere.StatusResolved, 3.1),
		},
		AcmeAPIID: {
			vuln("v-4", AcmeAPIID, "Broken object level authorization", vulnsphere.SeverityHigh, vulnsphere.StatusOpen, 8.1),
		},
		GlobexExtID: {
			vuln("v-5", GlobexExtID, "Outdated TLS configuration", vulnsphere.SeverityMedium, vulnsphere.StatusAcceptedRisk, 5.3),
			vuln("v-6", GlobexExtID, "Verbose server banner", vulnsphere.SeverityInfo, vulnsphere.StatusFalsePositive, 0),
		},
	}
	tester := TesterID
	f.Retests = []vulnsphere.Retest{
		{ID: "rt-1", Vulnerability: "v-1", RequestType: "RETEST", Status: "PENDING", Notes: "Patched in 2.4.1",
			RequestedBy: &tester, CreatedAt: seedTime.Add(24 * time.Hour)},
	}
	f.Assets = []vulnsphere.Asset{
		{ID: "a-1", Company: AcmeID, Name: "Main site", Type: vulnsphere.AssetWebApp, Identifier: "https://acme.test", IsActive: true},
		{ID: "a-2", Company: AcmeID, Name: "Public API", Type: vulnsphere.AssetAPI, Identifier: "https://api.acme.test", IsActive: true},
		{ID: "a-3", Company: GlobexID, Name: "Edge router", Type: vulnsphere.AssetNetwork, Identifier: "203.0.113.10", IsActive: true},
	}
	f.Templates = []vulnsphere.ReportTemplate{
		{ID: "t-docx", Name: "Standard DOCX", Description: "Default Word report", File: "/media/templates/standard.docx", CreatedAt: seedTime, UpdatedAt: seedTime},
		{ID: "t-html", Name: "HTML Summary", Description: "Web summary", File: "/media/templates/summary.html", CreatedAt: seedTime, UpdatedAt: seedTime},
		{ID: "t-odd", Name: "Legacy", File: "/media/templates/legacy.odt", CreatedAt: seedTime, UpdatedAt: seedTime},
	}
	f.Reports = []vulnsphere.GeneratedReport{
		{ID: "r-1", Template: "t-docx", TemplateName: "Standard DOCX", Project: AcmeWebID, ProjectTitle: "Acme Web App",
			Company: AcmeID, CompanyName: "Acme Corp", Format: vulnsphere.FormatDOCX, CreatedAt: seedTime},
		{ID: "r-2", Template: "t-html", TemplateName: "HTML Summary", Company: GlobexID, CompanyName: "Globex",
			Format: vulnsphere.FormatHTML, IsFailed: true, ErrorMessage: "template error", CreatedAt: seedTime},
	}
	f.Users = []vulnsphere.User{
		{ID: AdminID, Email: "admin@vulnsphere.test", Username: "admin", Name: "Ada Admin", Role: vulnsphere.RoleAdmin, IsActive: true},
		{ID: TesterID, Email: "tess@vulnsphere.test", Username: "tess", Name: "Tess Tester", Role: vulnsphere.RoleTester, IsActive: true, Companies: []string{AcmeID}},
		{ID: ClientID, Email: "cli@acme.test", Username: "acme_client", Name: "", Role: vulnsphere.RoleClient, IsActive: true, Companies: []string{AcmeID, GlobexID}},
	}
	f.Me = f.Users[0]
	return f
}

// SeedLogs replaces the activity log with n entries, newest first.
func (f *FakeAPI) SeedLogs(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	admin := AdminID
	f.Logs = make([]vulnsphere.ActivityLog, n)
	for i := range n {
		f.Logs[i] = vulnsphere.ActivityLog{
			ID:          fmt.Sprintf("log-%02d", i+1),
			Company:     AcmeID,
			CompanyName: "Acme Corp",
			User:        &admin,
			UserName:    "Ada Admin",
			EntityType:  "VULNERABILITY",
			EntityID:    fmt.Sprintf("v-%d", i+1),
			Action:      vulnsphere.ActionUpdated,
			Metadata:    map[string]any{"title": fmt.Sprintf("Finding %d", i+1)},
			CreatedAt:   seedTime.Add(-time.Duration(i) * time.Minute),
		}
	}
}

// SetMe switches the caller to the seeded user with the given id.
func (f *FakeAPI) SetMe(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.Users {
		if u.ID == id {
			f.Me = u
			return
		}
	}
}

func vuln(id, project, title string, sev vulnsphere.Severity, status vulnsphere.VulnStatus, score float64) vulnsphere.Vulnerability {
	return vulnsphere.Vulnerability{
		ID:        id,
		Project:   project,
		Title:     title,
		Severity:  sev,
		Status:    status,
		CVSSScore: vulnsphere.Score{Value: score, Set: score > 0},
		CreatedAt: seedTime,
	}
}
