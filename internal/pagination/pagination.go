// Package pagination builds the page-button model shown under every list.
package pagination

import (
	"fmt"
	"net/url"
	"strconv"
)

// Item is one entry in the page-button row: a page number or an ellipsis.
type Item struct {
	Page     int
	Ellipsis bool
	Current  bool
}

type Model struct {
	Current      int
	TotalPages   int
	TotalItems   int
	PerPage      int
	Items        []Item
	PrevDisabled bool
	NextDisabled bool
	// From and To are the 1-indexed bounds of the items on the current page.
	From int
	To   int
}

const window = 2

// New computes the model. It never mutates anything; the caller owns the
// current page and requests a change through the page links.
func New(current, totalItems, perPage int, loading bool) Model {
	if perPage <= 0 {
		perPage = 1
	}
	if totalItems < 0 {
		totalItems = 0
	}
	totalPages := (totalItems + perPage - 1) / perPage

	if current > totalPages {
		current = totalPages
	}
	if current < 1 {
		current = 1
	}

	m := Model{
		Current:    current,
		TotalPages: totalPages,
		TotalItems: totalItems,
		PerPage:    perPage,
	}
	m.PrevDisabled = loading || current <= 1
	m.NextDisabled = loading || current >= totalPages
	if totalItems > 0 {
		m.From = (current-1)*perPage + 1
		m.To = min(current*perPage, totalItems)
	}
	m.Items = items(current, totalPages)
	return m
}

func items(current, total int) []Item {
	if total == 0 {
		return nil
	}
	start := max(1, current-window)
	end := min(total, current+window)

	var out []Item
	if start > 1 {
		out = append(out, Item{Page: 1})
		if start > 2 {
			out = append(out, Item{Ellipsis: true})
		}
	}
	for p := start; p <= end; p++ {
		out = append(out, Item{Page: p, Current: p == current})
	}
	if end < total {
		if end < total-1 {
			out = append(out, Item{Ellipsis: true})
		}
		out = append(out, Item{Page: total})
	}
	return out
}

// Visible reports whether the widget should render at all.
func (m Model) Visible() bool { return m.TotalPages > 1 }

func (m Model) Prev() int { return max(1, m.Current-1) }
func (m Model) Next() int { return min(m.TotalPages, m.Current+1) }

// Summary is the footer line, e.g. "Showing 16 to 30 of 32 entries".
func (m Model) Summary() string {
	if m.TotalItems == 0 {
		return "No entries"
	}
	return fmt.Sprintf("Showing %d to %d of %d entries", m.From, m.To, m.TotalItems)
}

// Pages lists the page numbers present in Items.
func (m Model) Pages() []int {
	var out []int
	for _, it := range m.Items {
		if !it.Ellipsis {
			out = append(out, it.Page)
		}
	}
	return out
}

// PageURL returns the query string for page, keeping the other filters.
func PageURL(base url.Values, page int) string {
	q := url.Values{}
	for k, v := range base {
		q[k] = append([]string(nil), v...)
	}
	q.Set("page", strconv.Itoa(page))
	return "?" + q.Encode()
}

// ParsePage reads a 1-indexed page number, defaulting to 1.
func ParsePage(v string) int {
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 {
		return 1
	}
	return p
}
