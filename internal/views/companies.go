package views

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/vulnsphere/console/internal/listing"
	"github.com/vulnsphere/console/internal/pagination"
	"github.com/vulnsphere/console/internal/session"
	"github.com/vulnsphere/console/internal/vulnsphere"
)

func CompaniesQuery() listing.Query[vulnsphere.Company] {
	return listing.NewQuery(listing.ServerPaged, CompaniesPageSize,
		listing.Field[vulnsphere.Company]{Name: "search", Placement: listing.Server},
	)
}

// Companies lists companies. Callers who cannot edit only see active ones.
func (v *Views) Companies(ctx context.Context, id session.Identity, q listing.Query[vulnsphere.Company]) (List[vulnsphere.Company], error) {
	l, err := load(ctx, v.api.ListCompanies, q)
	if err != nil {
		return l, fmt.Errorf("listing companies: %w", err)
	}
	if !id.CanEdit() {
		l.Items = slices.DeleteFunc(l.Items, func(c vulnsphere.Company) bool { return !c.IsActive })
	}
	return l, nil
}

// ProjectRow is a project with its derived vulnerability count.
type ProjectRow struct {
	vulnsphere.Project
	Vulns      int
	VulnsKnown bool
}

type CompanyDetail struct {
	Company      vulnsphere.Company
	Projects     []ProjectRow
	ProjectPager pagination.Model
	Assets       []vulnsphere.Asset
	AssetPager   pagination.Model
	// Unavailable counts projects whose vulnerability count could not be
	// fetched.
	Unavailable int
}

// CompanyDetail fetches the company, its projects and its assets together;
// any of them failing fails the page. Vulnerability counts for the visible
// projects are derived afterwards and fall back to 0.
func (v *Views) CompanyDetail(ctx context.Context, companyID string, projectPage, assetPage int) (CompanyDetail, error) {
	var (
		d        CompanyDetail
		projects []vulnsphere.Project
		assets   []vulnsphere.Asset
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := v.api.GetCompany(gctx, companyID)
		d.Company = c
		return err
	})
	g.Go(func() error {
		p, err := v.api.ListCompanyProjects(gctx, companyID, nil)
		projects = p.Results
		return err
	})
	g.Go(func() error {
		p, err := v.api.ListAssets(gctx, companyID, nil)
		assets = p.Results
		return err
	})
	if err := g.Wait(); err != nil {
		return CompanyDetail{}, fmt.Errorf("loading company %s: %w", companyID, err)
	}

	pq := listing.NewQuery[vulnsphere.Project](listing.LocalPaged, CompanyDetailPageSize).WithPage(projectPage)
	aq := listing.NewQuery[vulnsphere.Asset](listing.LocalPaged, CompanyDetailPageSize).WithPage(assetPage)
	d.ProjectPager = pagination.New(pq.Page(), len(projects), CompanyDetailPageSize, false)
	d.AssetPager = pagination.New(aq.Page(), len(assets), CompanyDetailPageSize, false)
	d.Assets = aq.Paginate(assets)

	visible := pq.Paginate(projects)
	var missing []string
	for _, p := range visible {
		if p.VulnerabilityCount == nil {
			missing = append(missing, p.ID)
		}
	}
	counts := listing.Fanout(ctx, missing, func(ctx context.Context, projectID string) (int, error) {
		page, err := v.api.ListVulnerabilities(ctx, companyID, projectID, vulnsphere.PageQuery(1, 1))
		return page.Count, err
	}, v.fanout)
	d.Unavailable = counts.Unavailable()
	v.metrics.ObserveUnavailable("company_detail", d.Unavailable)

	d.Projects = make([]ProjectRow, len(visible))
	for i, p := range visible {
		row := ProjectRow{Project: p}
		if p.VulnerabilityCount != nil {
			row.Vulns, row.VulnsKnown = *p.VulnerabilityCount, true
		} else if r, ok := counts[p.ID]; ok && !r.Unavailable() {
			row.Vulns, row.VulnsKnown = r.Value, true
		}
		d.Projects[i] = row
	}
	return d, nil
}
