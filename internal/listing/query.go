// Package listing implements the list-page pattern shared by every entity
// view: declared filters, server or local paging, derived per-row fetches.
package listing

import (
	"maps"
	"net/url"
	"strconv"
)

// Placement says where a filter is evaluated.
type Placement int

const (
	// Server filters are sent as query parameters and are authoritative.
	Server Placement = iota
	// Local filters run in memory over fetched items.
	Local
)

// Mode says where paging happens.
type Mode int

const (
	// ServerPaged asks the API for one page and its total count.
	ServerPaged Mode = iota
	// LocalPaged fetches everything, filters, then slices a page.
	LocalPaged
)

// Field declares one filter. Match is required for Local fields.
type Field[T any] struct {
	Name      string
	Param     string
	Placement Placement
	Match     func(item T, value string) bool
}

func (f Field[T]) param() string {
	if f.Param != "" {
		return f.Param
	}
	return f.Name
}

// Query is an immutable list request: filter values, page and page size.
// Every setter returns a copy.
type Query[T any] struct {
	mode     Mode
	pageSize int
	page     int
	fields   []Field[T]
	values   map[string]string
}

func NewQuery[T any](mode Mode, pageSize int, fields ...Field[T]) Query[T] {
	if pageSize <= 0 {
		pageSize = 10
	}
	return Query[T]{
		mode:     mode,
		pageSize: pageSize,
		page:     1,
		fields:   fields,
		values:   map[string]string{},
	}
}

func (q Query[T]) Mode() Mode               { return q.mode }
func (q Query[T]) Page() int                { return q.page }
func (q Query[T]) PageSize() int            { return q.pageSize }
func (q Query[T]) Value(name string) string { return q.values[name] }

// With sets a filter and returns to page 1. Empty and "all" clear it.
// Unknown names are ignored.
func (q Query[T]) With(name, value string) Query[T] {
	if _, ok := q.field(name); !ok {
		return q
	}
	out := q.clone()
	if unset(value) {
		delete(out.values, name)
	} else {
		out.values[name] = value
	}
	out.page = 1
	return out
}

func (q Query[T]) WithPage(page int) Query[T] {
	out := q.clone()
	out.page = max(1, page)
	return out
}

// FromURL reads declared filters and the page from request parameters.
// Filters are applied before the page so the page survives.
func (q Query[T]) FromURL(v url.Values) Query[T] {
	out := q
	for _, f := range q.fields {
		if val := v.Get(f.Name); val != "" {
			out = out.With(f.Name, val)
		}
	}
	if p, err := strconv.Atoi(v.Get("page")); err == nil {
		out = out.WithPage(p)
	}
	return out
}

// URLValues encodes the query for links, using field names.
func (q Query[T]) URLValues() url.Values {
	v := url.Values{}
	for name, val := range q.values {
		v.Set(name, val)
	}
	if q.page > 1 {
		v.Set("page", strconv.Itoa(q.page))
	}
	return v
}

// ServerParams is what the API sees: server-placed filters and, when
// server-paged, page and page_size.
func (q Query[T]) ServerParams() url.Values {
	v := url.Values{}
	for _, f := range q.fields {
		if f.Placement != Server {
			continue
		}
		if val, ok := q.values[f.Name]; ok {
			v.Set(f.param(), val)
		}
	}
	if q.mode == ServerPaged {
		v.Set("page", strconv.Itoa(q.page))
		v.Set("page_size", strconv.Itoa(q.pageSize))
	}
	return v
}

// Apply runs the local filters over items.
func (q Query[T]) Apply(items []T) []T {
	var active []Field[T]
	for _, f := range q.fields {
		if f.Placement == Local && f.Match != nil && q.values[f.Name] != "" {
			active = append(active, f)
		}
	}
	if len(active) == 0 {
		return items
	}
	out := make([]T, 0, len(items))
next:
	for _, it := range items {
		for _, f := range active {
			if !f.Match(it, q.values[f.Name]) {
				continue next
			}
		}
		out = append(out, it)
	}
	return out
}

// Paginate slices the current page out of items.
func (q Query[T]) Paginate(items []T) []T {
	start := min((q.page-1)*q.pageSize, len(items))
	end := min(start+q.pageSize, len(items))
	return items[start:end]
}

// Filtered reports whether any filter is set.
func (q Query[T]) Filtered() bool { return len(q.values) > 0 }

func (q Query[T]) field(name string) (Field[T], bool) {
	for _, f := range q.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field[T]{}, false
}

func (q Query[T]) clone() Query[T] {
	out := q
	out.values = maps.Clone(q.values)
	if out.values == nil {
		out.values = map[string]string{}
	}
	return out
}

func unset(v string) bool {
	return v == "" || v == "all"
}
