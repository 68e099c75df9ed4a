package views

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/vulnsphere/console/internal/listing"
	"github.com/vulnsphere/console/internal/vulnsphere"
)

// ProjectsQuery searches on the server; company and status narrow the
// returned page locally.
func ProjectsQuery() listing.Query[vulnsphere.Project] {
	return listing.NewQuery(listing.ServerPaged, ProjectsPageSize,
		listing.Field[vulnsphere.Project]{Name: "search", Placement: listing.Server},
		listing.Field[vulnsphere.Project]{Name: "company", Placement: listing.Local, Match: func(p vulnsphere.Project, v string) bool {
			return p.Company == v
		}},
		listing.Field[vulnsphere.Project]{Name: "status", Placement: listing.Local, Match: func(p vulnsphere.Project, v string) bool {
			return string(p.Status) == v
		}},
	)
}

// Projects is the projects page together with the company filter options.
type Projects struct {
	List[vulnsphere.Project]
	Companies []vulnsphere.Company
}

func (v *Views) Projects(ctx context.Context, q listing.Query[vulnsphere.Project]) (Projects, error) {
	var out Projects
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l, err := load(gctx, v.api.ListProjects, q)
		out.List = l
		return err
	})
	g.Go(func() error {
		p, err := v.api.ListCompanies(gctx, nil)
		out.Companies = p.Results
		return err
	})
	if err := g.Wait(); err != nil {
		return out, fmt.Errorf("listing projects: %w", err)
	}
	return out, nil
}

// ProjectDetail is one project with a server-paged page of its findings.
type ProjectDetail struct {
	Project vulnsphere.Project
	Vulns   List[vulnsphere.Vulnerability]
}

func ProjectVulnsQuery() listing.Query[vulnsphere.Vulnerability] {
	return listing.NewQuery(listing.ServerPaged, VulnsPageSize,
		listing.Field[vulnsphere.Vulnerability]{Name: "severity", Placement: listing.Local, Match: func(x vulnsphere.Vulnerability, v string) bool {
			return string(x.Severity) == v
		}},
		listing.Field[vulnsphere.Vulnerability]{Name: "status", Placement: listing.Local, Match: func(x vulnsphere.Vulnerability, v string) bool {
			return string(x.Status) == v
		}},
	)
}

func (v *Views) ProjectDetail(ctx context.Context, companyID, projectID string, q listing.Query[vulnsphere.Vulnerability]) (ProjectDetail, error) {
	var out ProjectDetail
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := v.api.GetProject(gctx, companyID, projectID)
		out.Project = p
		return err
	})
	g.Go(func() error {
		l, err := load(gctx, func(ctx context.Context, params url.Values) (vulnsphere.Page[vulnsphere.Vulnerability], error) {
			return v.api.ListVulnerabilities(ctx, companyID, projectID, params)
		}, q)
		out.Vulns = l
		return err
	})
	if err := g.Wait(); err != nil {
		return out, fmt.Errorf("loading project %s: %w", projectID, err)
	}
	return out, nil
}

// VulnDetail is one finding with its retest history. Retests are secondary:
// when they fail to load the page still shows the finding.
type VulnDetail struct {
	Project            vulnsphere.Project
	Vuln               vulnsphere.Vulnerability
	Retests            []vulnsphere.Retest
	RetestsUnavailable bool
}

func (v *Views) VulnerabilityDetail(ctx context.Context, companyID, projectID, vulnID string) (VulnDetail, error) {
	var out VulnDetail
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := v.api.GetProject(gctx, companyID, projectID)
		out.Project = p
		return err
	})
	g.Go(func() error {
		x, err := v.api.GetVulnerability(gctx, companyID, projectID, vulnID)
		out.Vuln = x
		return err
	})
	g.Go(func() error {
		page, err := v.api.ListRetests(gctx, companyID, projectID, vulnID)
		out.Retests, out.RetestsUnavailable = page.Results, err != nil
		return nil
	})
	if err := g.Wait(); err != nil {
		return out, fmt.Errorf("loading vulnerability %s: %w", vulnID, err)
	}
	unavailable := 0
	if out.RetestsUnavailable {
		unavailable = 1
	}
	v.metrics.ObserveUnavailable("vulnerability", unavailable)
	return out, nil
}

// VulnRow is a finding on the cross-project board.
type VulnRow struct {
	vulnsphere.Vulnerability
	CompanyID    string
	CompanyName  string
	ProjectTitle string
}

// VulnsQuery filters the whole board locally.
func VulnsQuery() listing.Query[VulnRow] {
	return listing.NewQuery(listing.LocalPaged, VulnsPageSize,
		listing.Field[VulnRow]{Name: "search", Placement: listing.Local, Match: func(r VulnRow, v string) bool {
			return contains(r.Title, v) || contains(r.ProjectTitle, v)
		}},
		listing.Field[VulnRow]{Name: "company", Placement: listing.Local, Match: func(r VulnRow, v string) bool {
			return r.CompanyID == v
		}},
		listing.Field[VulnRow]{Name: "severity", Placement: listing.Local, Match: func(r VulnRow, v string) bool {
			return string(r.Severity) == v
		}},
		listing.Field[VulnRow]{Name: "status", Placement: listing.Local, Match: func(r VulnRow, v string) bool {
			return string(r.Status) == v
		}},
	)
}

type Board struct {
	List[VulnRow]
	Companies []vulnsphere.Company
	// Unavailable counts projects whose findings could not be loaded. Their
	// rows are missing from the board.
	Unavailable int
}

// Vulnerabilities builds the board: companies and projects are primary,
// each project's findings are fetched concurrently and a failing project is
// skipped.
func (v *Views) Vulnerabilities(ctx context.Context, q listing.Query[VulnRow]) (Board, error) {
	var (
		out      Board
		projects []vulnsphere.Project
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := v.api.ListCompanies(gctx, nil)
		out.Companies = p.Results
		return err
	})
	g.Go(func() error {
		p, err := v.api.ListProjects(gctx, nil)
		projects = p.Results
		return err
	})
	if err := g.Wait(); err != nil {
		return out, fmt.Errorf("loading vulnerability board: %w", err)
	}

	names := make(map[string]string, len(out.Companies))
	for _, c := range out.Companies {
		names[c.ID] = c.Name
	}
	byID := make(map[string]vulnsphere.Project, len(projects))
	ids := make([]string, len(projects))
	for i, p := range projects {
		byID[p.ID] = p
		ids[i] = p.ID
	}

	batch := listing.Fanout(ctx, ids, func(ctx context.Context, id string) ([]vulnsphere.Vulnerability, error) {
		p := byID[id]
		page, err := v.api.ListVulnerabilities(ctx, p.Company, p.ID, nil)
		return page.Results, err
	}, v.fanout)
	out.Unavailable = batch.Unavailable()
	v.metrics.ObserveUnavailable("vulnerabilities", out.Unavailable)

	var rows []VulnRow
	for _, id := range ids {
		p := byID[id]
		company := p.CompanyName
		if company == "" {
			company = names[p.Company]
		}
		for _, x := range batch.Get(id, nil) {
			rows = append(rows, VulnRow{Vulnerability: x, CompanyID: p.Company, CompanyName: company, ProjectTitle: p.Title})
		}
	}
	slices.SortStableFunc(rows, func(a, b VulnRow) int {
		if d := a.Severity.Rank() - b.Severity.Rank(); d != 0 {
			return d
		}
		return strings.Compare(a.Title, b.Title)
	})

	l, err := load(ctx, func(context.Context, url.Values) (vulnsphere.Page[VulnRow], error) {
		return vulnsphere.Page[VulnRow]{Count: len(rows), Results: rows}, nil
	}, q)
	out.List = l
	return out, err
}
