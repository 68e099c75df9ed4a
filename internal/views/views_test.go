package views_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnsphere/console/internal/report"
	"github.com/vulnsphere/console/internal/session"
	"github.com/vulnsphere/console/internal/telemetry"
	"github.com/vulnsphere/console/internal/testutil"
	"github.com/vulnsphere/console/internal/views"
	"github.com/vulnsphere/console/internal/vulnsphere"
)

func newViews(t *testing.T, fake *testutil.FakeAPI) *views.Views {
	t.Helper()
	m, err := telemetry.NewMetrics()
	require.NoError(t, err)
	return views.New(fake.API(), views.WithMetrics(m), views.WithFanout(4, 0))
}

func TestActivityLogsSecondPage(t *testing.T) {
	fake := testutil.New(t).Seed()
	fake.SeedLogs(32)
	v := newViews(t, fake)

	l, err := v.Activity(context.Background(), views.ActivityQuery().WithPage(2))
	require.NoError(t, err)
	require.Len(t, l.Items, 15)
	assert.Equal(t, "log-16", l.Items[0].ID)
	assert.Equal(t, 32, l.Total)
	assert.Equal(t, "Showing 16 to 30 of 32 entries", l.Pager.Summary())
	assert.Equal(t, 3, l.Pager.TotalPages)
}

func TestActivityLogsForbidden(t *testing.T) {
	fake := testutil.New(t).Seed()
	fake.SeedLogs(3)
	fake.SetMe(testutil.TesterID)

	_, err := newViews(t, fake).Activity(context.Background(), views.ActivityQuery())
	require.ErrorIs(t, err, views.ErrAdminOnly)
	assert.Equal(t, "Access denied. Only administrators can view activity logs.", views.ActivityMessage(err))
}

func TestActivityLogsOtherFailure(t *testing.T) {
	fake := testutil.New(t).Seed()
	fake.Fail["GET /activity-logs/"] = http.StatusBadGateway

	_, err := newViews(t, fake).Activity(context.Background(), views.ActivityQuery())
	require.Error(t, err)
	assert.NotErrorIs(t, err, views.ErrAdminOnly)
	assert.Equal(t, "Failed to load activity logs", views.ActivityMessage(err))
}

func TestEntityName(t *testing.T) {
	tests := []struct {
		name string
		log  vulnsphere.ActivityLog
		want string
	}{
		{
			name: "comment on finding",
			log:  vulnsphere.ActivityLog{EntityType: "COMMENT", Metadata: map[string]any{"vulnerability_title": "XSS", "project_title": "Web"}},
			want: "Comment on XSS",
		},
		{
			name: "comment on project",
			log:  vulnsphere.ActivityLog{EntityType: "COMMENT", Metadata: map[string]any{"project_title": "Web"}},
			want: "Comment on Web",
		},
		{
			name: "bare comment",
			log:  vulnsphere.ActivityLog{EntityType: "COMMENT", EntityID: "c-9"},
			want: "Comment",
		},
		{
			name: "retest",
			log:  vulnsphere.ActivityLog{EntityType: "RETEST", Metadata: map[string]any{"vulnerability_title": "SQLi"}},
			want: "Retest for SQLi",
		},
		{
			name: "retest without title falls through",
			log:  vulnsphere.ActivityLog{EntityType: "RETEST", EntityID: "r-1"},
			want: "r-1",
		},
		{
			name: "title",
			log:  vulnsphere.ActivityLog{EntityType: "PROJECT", Metadata: map[string]any{"title": "Acme Web", "name": "x"}},
			want: "Acme Web",
		},
		{
			name: "name",
			log:  vulnsphere.ActivityLog{EntityType: "COMPANY", Metadata: map[string]any{"name": "Acme"}},
			want: "Acme",
		},
		{
			name: "username",
			log:  vulnsphere.ActivityLog{EntityType: "USER", Metadata: map[string]any{"username": "tess"}},
			want: "tess",
		},
		{
			name: "entity id",
			log:  vulnsphere.ActivityLog{EntityType: "ASSET", EntityID: "a-7", Metadata: map[string]any{"title": 4}},
			want: "a-7",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, views.EntityName(tt.log))
		})
	}
}

func TestVisibleMetadata(t *testing.T) {
	l := vulnsphere.ActivityLog{Metadata: map[string]any{
		"title":        "Finding",
		"project_id":   "p-1",
		"object_pk":    "9",
		"record_uuid":  "abc",
		"old_status":   "OPEN",
		"new_status":   "RESOLVED",
		"requested_by": "u-1",
		"cvss":         9.8,
	}}
	assert.Equal(t, []views.MetadataEntry{
		{Label: "cvss", Value: "9.8"},
		{Label: "new status", Value: "RESOLVED"},
		{Label: "old status", Value: "OPEN"},
	}, views.VisibleMetadata(l))
	assert.Equal(t, "status changed", views.Verb(vulnsphere.ActionStatusChanged))
}

func TestCompaniesHidesInactiveFromNonEditors(t *testing.T) {
	fake := testutil.New(t).Seed()
	v := newViews(t, fake)
	ctx := context.Background()

	admin, err := fake.API().Me(ctx)
	require.NoError(t, err)
	l, err := v.Companies(ctx, session.Known(admin), views.CompaniesQuery())
	require.NoError(t, err)
	assert.Len(t, l.Items, 3)

	client := vulnsphere.User{ID: testutil.ClientID, Role: vulnsphere.RoleClient}
	l, err = v.Companies(ctx, session.Known(client), views.CompaniesQuery())
	require.NoError(t, err)
	require.Len(t, l.Items, 2)
	for _, c := range l.Items {
		assert.True(t, c.IsActive)
	}
}

func TestCompaniesSearchIsSentToServer(t *testing.T) {
	fake := testutil.New(t).Seed()
	admin := vulnsphere.User{Role: vulnsphere.RoleAdmin}

	l, err := newViews(t, fake).Companies(context.Background(), session.Known(admin), views.CompaniesQuery().With("search", "glob"))
	require.NoError(t, err)
	require.Len(t, l.Items, 1)
	assert.Equal(t, "Globex", l.Items[0].Name)
	assert.Equal(t, 1, l.Total)
}

func TestCompanyDetailCounts(t *testing.T) {
	fake := testutil.New(t).Seed()
	d, err := newViews(t, fake).CompanyDetail(context.Background(), testutil.AcmeID, 1, 1)
	require.NoError(t, err)

	assert.Equal(t, "Acme Corp", d.Company.Name)
	require.Len(t, d.Projects, 2)
	counts := map[string]int{}
	for _, p := range d.Projects {
		assert.True(t, p.VulnsKnown)
		counts[p.ID] = p.Vulns
	}
	assert.Equal(t, map[string]int{testutil.AcmeWebID: 3, testutil.AcmeAPIID: 1}, counts)
	assert.Len(t, d.Assets, 2)
	assert.Zero(t, d.Unavailable)
}

func TestCompanyDetailDerivedFailureDegrades(t *testing.T) {
	fake := testutil.New(t).Seed()
	fake.Fail["GET /companies/c-acme/projects/p-acme-api/vulnerabilities/"] = http.StatusInternalServerError

	d, err := newViews(t, fake).CompanyDetail(context.Background(), testutil.AcmeID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Unavailable)
	for _, p := range d.Projects {
		if p.ID == testutil.AcmeAPIID {
			assert.False(t, p.VulnsKnown)
			assert.Zero(t, p.Vulns)
		} else {
			assert.Equal(t, 3, p.Vulns)
		}
	}
}

func TestCompanyDetailPrimaryFailureFailsPage(t *testing.T) {
	fake := testutil.New(t).Seed()
	fake.Fail["GET /companies/c-acme/assets/"] = http.StatusInternalServerError

	_, err := newViews(t, fake).CompanyDetail(context.Background(), testutil.AcmeID, 1, 1)
	assert.Error(t, err)
}

func TestProjectsLocalFilters(t *testing.T) {
	fake := testutil.New(t).Seed()
	v := newViews(t, fake)

	p, err := v.Projects(context.Background(), views.ProjectsQuery().With("company", testutil.GlobexID))
	require.NoError(t, err)
	require.Len(t, p.Items, 1)
	assert.Equal(t, "Globex External", p.Items[0].Title)
	assert.Len(t, p.Companies, 3)

	p, err = v.Projects(context.Background(), views.ProjectsQuery().With("search", "acme").With("status", string(vulnsphere.ProjectStatusDraft)))
	require.NoError(t, err)
	require.Len(t, p.Items, 1)
	assert.Equal(t, testutil.AcmeAPIID, p.Items[0].ID)
}

func TestProjectDetail(t *testing.T) {
	fake := testutil.New(t).Seed()
	d, err := newViews(t, fake).ProjectDetail(context.Background(), testutil.AcmeID, testutil.AcmeWebID, views.ProjectVulnsQuery())
	require.NoError(t, err)
	assert.Equal(t, "Acme Web App", d.Project.Title)
	assert.Equal(t, 3, d.Vulns.Total)
	assert.Equal(t, "Showing 1 to 3 of 3 entries", d.Vulns.Pager.Summary())
}

func TestVulnerabilityBoard(t *testing.T) {
	fake := testutil.New(t).Seed()
	b, err := newViews(t, fake).Vulnerabilities(context.Background(), views.VulnsQuery())
	require.NoError(t, err)
	require.Len(t, b.Items, 6)
	assert.Equal(t, vulnsphere.SeverityCritical, b.Items[0].Severity)
	assert.Equal(t, vulnsphere.SeverityInfo, b.Items[5].Severity)
	assert.Equal(t, "Globex", b.Items[5].CompanyName)
	assert.Zero(t, b.Unavailable)
}

func TestVulnerabilityBoardSkipsFailingProject(t *testing.T) {
	fake := testutil.New(t).Seed()
	fake.Fail["GET /companies/c-globex/projects/p-globex-ext/vulnerabilities/"] = http.StatusInternalServerError

	b, err := newViews(t, fake).Vulnerabilities(context.Background(), views.VulnsQuery())
	require.NoError(t, err)
	assert.Equal(t, 1, b.Unavailable)
	assert.Equal(t, 4, b.Total)
	for _, r := range b.Items {
		assert.Equal(t, testutil.AcmeID, r.CompanyID)
	}
}

func TestVulnerabilityBoardFilters(t *testing.T) {
	fake := testutil.New(t).Seed()
	v := newViews(t, fake)
	q := views.VulnsQuery().FromURL(url.Values{"severity": {"HIGH"}, "company": {testutil.AcmeID}})

	b, err := v.Vulnerabilities(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Total)

	b, err = v.Vulnerabilities(context.Background(), views.VulnsQuery().With("search", "acme public"))
	require.NoError(t, err)
	require.Len(t, b.Items, 1)
	assert.Equal(t, "v-4", b.Items[0].ID)
}

func TestReportsCompanyFilter(t *testing.T) {
	fake := testutil.New(t).Seed()
	l, err := newViews(t, fake).Reports(context.Background(), views.ReportsQuery().With("company", "Globex"))
	require.NoError(t, err)
	require.Len(t, l.Items, 1)
	assert.Equal(t, "r-2", l.Items[0].ID)
	assert.Equal(t, "Globex", l.Items[0].ScopeLabel())
}

func TestTemplatesAnnotated(t *testing.T) {
	fake := testutil.New(t).Seed()
	tpl, err := newViews(t, fake).Templates(context.Background(), views.TemplatesQuery())
	require.NoError(t, err)
	require.Len(t, tpl.Items, 3)
	assert.Equal(t, report.TypeDOCX, tpl.Items[0].Type)
	assert.Equal(t, report.TypeHTML, tpl.Items[1].Type)
	assert.Equal(t, report.TypeUnknown, tpl.Items[2].Type)

	tpl, err = newViews(t, fake).Templates(context.Background(), views.TemplatesQuery().With("search", "summary"))
	require.NoError(t, err)
	assert.Equal(t, 1, tpl.Total)
}

func TestUsersRoleFilterAndCompanyNames(t *testing.T) {
	fake := testutil.New(t).Seed()
	u, err := newViews(t, fake).Users(context.Background(), views.UsersQuery().With("role", string(vulnsphere.RoleClient)))
	require.NoError(t, err)
	require.Len(t, u.Items, 1)
	assert.Equal(t, []string{"Acme Corp", "Globex"}, u.CompanyNames(u.Items[0].Companies))
	assert.Equal(t, []string{"c-gone"}, u.CompanyNames([]string{"c-gone"}))
}

func TestVulnerabilityDetail(t *testing.T) {
	fake := testutil.New(t).Seed()
	d, err := newViews(t, fake).VulnerabilityDetail(context.Background(), testutil.AcmeID, testutil.AcmeWebID, "v-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Web App", d.Project.Title)
	assert.Equal(t, "SQL Injection in login", d.Vuln.Title)
	require.Len(t, d.Retests, 1)
	assert.Equal(t, "Patched in 2.4.1", d.Retests[0].Notes)
	assert.False(t, d.RetestsUnavailable)
}

func TestVulnerabilityDetailRetestsUnavailable(t *testing.T) {
	fake := testutil.New(t).Seed()
	fake.Fail["GET /companies/c-acme/projects/p-acme-web/vulnerabilities/v-1/retests/"] = http.StatusInternalServerError

	d, err := newViews(t, fake).VulnerabilityDetail(context.Background(), testutil.AcmeID, testutil.AcmeWebID, "v-1")
	require.NoError(t, err)
	assert.Equal(t, "SQL Injection in login", d.Vuln.Title)
	assert.Empty(t, d.Retests)
	assert.True(t, d.RetestsUnavailable)
}

func TestVulnerabilityDetailMissing(t *testing.T) {
	fake := testutil.New(t).Seed()
	_, err := newViews(t, fake).VulnerabilityDetail(context.Background(), testutil.AcmeID, testutil.AcmeWebID, "v-404")
	require.Error(t, err)
}
