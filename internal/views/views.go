// Package views assembles the data behind each console page: primary list
// fetches, derived per-row lookups and the pager shown beneath them.
package views

import (
	"context"
	"strings"

	"golang.org/x/time/rate"

	"github.com/vulnsphere/console/internal/listing"
	"github.com/vulnsphere/console/internal/pagination"
	"github.com/vulnsphere/console/internal/telemetry"
	"github.com/vulnsphere/console/internal/vulnsphere"
)

// Page sizes per view.
const (
	CompaniesPageSize     = 12
	CompanyDetailPageSize = 10
	ProjectsPageSize      = 20
	VulnsPageSize         = 20
	ReportsPageSize       = 15
	TemplatesPageSize     = 12
	UsersPageSize         = 10
	ActivityPageSize      = 15
)

// Views is bound to one caller's API session.
type Views struct {
	api     *vulnsphere.API
	metrics *telemetry.Metrics
	fanout  listing.FanoutOptions
}

type Option func(*Views)

func WithMetrics(m *telemetry.Metrics) Option {
	return func(v *Views) { v.metrics = m }
}

// WithFanout bounds derived per-row fetches. perSecond <= 0 disables pacing.
func WithFanout(limit int, perSecond float64) Option {
	return func(v *Views) {
		v.fanout.Limit = limit
		if perSecond > 0 {
			v.fanout.Limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, limit))
		}
	}
}

func New(api *vulnsphere.API, opts ...Option) *Views {
	v := &Views{api: api, fanout: listing.FanoutOptions{Limit: 8}}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Views) API() *vulnsphere.API { return v.api }

// List is one rendered list: the query that produced it, the visible rows
// and the pager.
type List[T any] struct {
	Query listing.Query[T]
	Items []T
	Total int
	Pager pagination.Model
}

func load[T any](ctx context.Context, fetch listing.Fetcher[T], q listing.Query[T]) (List[T], error) {
	st, err := listing.NewController(fetch).Load(ctx, q)
	if err != nil {
		return List[T]{Query: q, Items: []T{}, Pager: pagination.New(q.Page(), 0, q.PageSize(), false)}, err
	}
	return FromState(st), nil
}

// FromState renders a controller snapshot.
func FromState[T any](st listing.State[T]) List[T] {
	q := st.Query
	return List[T]{
		Query: q,
		Items: st.Items,
		Total: st.Total,
		Pager: pagination.New(q.Page(), st.Total, q.PageSize(), st.Loading()),
	}
}

func contains(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
