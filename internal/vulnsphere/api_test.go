package vulnsphere_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnsphere/console/internal/apiclient"
	"github.com/vulnsphere/console/internal/testutil"
	"github.com/vulnsphere/console/internal/vulnsphere"
)

func TestListCompaniesSearch(t *testing.T) {
	fake := testutil.New(t).Seed()
	api := fake.API()

	page, err := api.ListCompanies(context.Background(), url.Values{"search": {"glob"}})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "Globex", page.Results[0].Name)
}

func TestActivityLogsPaging(t *testing.T) {
	fake := testutil.New(t).Seed()
	fake.SeedLogs(32)

	page, err := fake.API().ListActivityLogs(context.Background(), vulnsphere.PageQuery(2, 15))
	require.NoError(t, err)
	assert.Equal(t, 32, page.Count)
	assert.Len(t, page.Results, 15)
	assert.Equal(t, "log-16", page.Results[0].ID)
	assert.NotNil(t, page.Next)
	assert.NotNil(t, page.Previous)
}

func TestActivityLogsForbiddenForNonAdmin(t *testing.T) {
	fake := testutil.New(t).Seed()
	fake.SetMe(testutil.TesterID)

	_, err := fake.API().ListActivityLogs(context.Background(), vulnsphere.PageQuery(1, 15))
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, apiclient.StatusOf(err))
}

func TestImportAssetsPartialSuccess(t *testing.T) {
	fake := testutil.New(t).Seed()
	csv := "name,type,identifier\nPortal,WEB_APP,https://portal.acme.test\n,API,https://broken\nVPN,NETWORK,198.51.100.4\n,SERVER,10.0.0.1\n"

	res, err := fake.API().ImportAssets(context.Background(), testutil.AcmeID, "assets.csv", []byte(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 3, res.Errors[0].Row)
	assert.Equal(t, 5, res.Errors[1].Row)
	assert.Len(t, res.Items, 2)
}

func TestUploadTemplateMultipart(t *testing.T) {
	fake := testutil.New(t).Seed()

	tmpl, err := fake.API().UploadTemplate(context.Background(), vulnsphere.TemplateDraft{
		Name:        "Quarterly",
		Description: "Quarterly summary",
		Filename:    "quarterly.html",
		File:        []byte("<html>{{ project.title }}</html>"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Quarterly", tmpl.Name)
	assert.Equal(t, "/media/templates/quarterly.html", tmpl.File)
}

func TestUpdateUserNeverSendsUsername(t *testing.T) {
	fake := testutil.New(t).Seed()
	api := fake.API()

	u, err := api.GetUser(context.Background(), testutil.ClientID)
	require.NoError(t, err)
	patch := vulnsphere.UserPatchFrom(u)
	patch.Name = "Acme Client"

	_, err = api.UpdateUser(context.Background(), u.ID, patch)
	require.NoError(t, err)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(fake.Patches["/users/"+testutil.ClientID+"/"], &sent))
	assert.NotContains(t, sent, "username")
	assert.Equal(t, "Acme Client", sent["name"])
}

func TestDownloadReportUsesServerFilename(t *testing.T) {
	fake := testutil.New(t).Seed()

	blob, err := fake.API().DownloadReport(context.Background(), vulnsphere.GeneratedReport{ID: "r-1", Format: vulnsphere.FormatDOCX})
	require.NoError(t, err)
	assert.Equal(t, "report_r-1.docx", blob.Filename)
	assert.Equal(t, "report:r-1", string(blob.Data))
}

func TestExpiredAccessTokenRefreshesTransparently(t *testing.T) {
	fake := testutil.New(t).Seed()
	api := fake.API()
	fake.RotateAccess()

	me, err := api.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testutil.AdminID, me.ID)
	assert.Equal(t, 1, fake.Calls("POST /auth/refresh/"))
	assert.Equal(t, 2, fake.Calls("GET /users/me/"))
}
