package views

import (
	"context"
	"fmt"
	"net/url"

	"github.com/vulnsphere/console/internal/listing"
	"github.com/vulnsphere/console/internal/pagination"
	"github.com/vulnsphere/console/internal/report"
	"github.com/vulnsphere/console/internal/vulnsphere"
)

// ReportsQuery filters generated reports on the server by free text and by
// exact company name.
func ReportsQuery() listing.Query[vulnsphere.GeneratedReport] {
	return listing.NewQuery(listing.ServerPaged, ReportsPageSize,
		listing.Field[vulnsphere.GeneratedReport]{Name: "search", Placement: listing.Server},
		listing.Field[vulnsphere.GeneratedReport]{Name: "company", Param: "company__name", Placement: listing.Server},
	)
}

// ReportsFetcher is the list source for the reports page, shared with the
// live view.
func (v *Views) ReportsFetcher() listing.Fetcher[vulnsphere.GeneratedReport] {
	return v.api.ListReports
}

func (v *Views) Reports(ctx context.Context, q listing.Query[vulnsphere.GeneratedReport]) (List[vulnsphere.GeneratedReport], error) {
	l, err := load(ctx, v.ReportsFetcher(), q)
	if err != nil {
		return l, fmt.Errorf("listing reports: %w", err)
	}
	return l, nil
}

func TemplatesQuery() listing.Query[vulnsphere.ReportTemplate] {
	return listing.NewQuery(listing.LocalPaged, TemplatesPageSize,
		listing.Field[vulnsphere.ReportTemplate]{Name: "search", Placement: listing.Local, Match: func(t vulnsphere.ReportTemplate, v string) bool {
			return contains(t.Name, v) || contains(t.Description, v)
		}},
	)
}

// Templates is the template library; every entry carries its rendered type.
type Templates struct {
	Query listing.Query[vulnsphere.ReportTemplate]
	Items []report.Option
	Total int
	Pager pagination.Model
}

func (v *Views) Templates(ctx context.Context, q listing.Query[vulnsphere.ReportTemplate]) (Templates, error) {
	l, err := load(ctx, func(ctx context.Context, _ url.Values) (vulnsphere.Page[vulnsphere.ReportTemplate], error) {
		return v.api.ListTemplates(ctx, nil)
	}, q)
	out := Templates{Query: l.Query, Items: report.Annotate(l.Items), Total: l.Total, Pager: l.Pager}
	if err != nil {
		return out, fmt.Errorf("listing templates: %w", err)
	}
	return out, nil
}
