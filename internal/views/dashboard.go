package views

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/vulnsphere/console/internal/vulnsphere"
)

const recentProjects = 5

type Dashboard struct {
	Companies int
	Projects  int
	Recent    []vulnsphere.Project
}

func (v *Views) Dashboard(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := v.api.ListCompanies(gctx, vulnsphere.PageQuery(1, 1))
		d.Companies = p.Count
		return err
	})
	g.Go(func() error {
		p, err := v.api.ListProjects(gctx, vulnsphere.PageQuery(1, recentProjects))
		d.Projects = p.Count
		d.Recent = p.Results
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, fmt.Errorf("loading dashboard: %w", err)
	}
	return d, nil
}
