package pagination

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTotalPagesAndEndpoints(t *testing.T) {
	for total := 0; total <= 120; total++ {
		for _, per := range []int{10, 12, 15, 20} {
			for _, cur := range []int{-1, 0, 1, 2, 3, 5, 7, 50} {
				m := New(cur, total, per, false)
				want := (total + per - 1) / per
				assert.Equal(t, want, m.TotalPages, "total=%d per=%d", total, per)
				if m.TotalPages > 1 {
					pages := m.Pages()
					assert.Contains(t, pages, 1)
					assert.Contains(t, pages, m.TotalPages)
				}
				if m.TotalPages > 0 {
					assert.GreaterOrEqual(t, m.Current, 1)
					assert.LessOrEqual(t, m.Current, m.TotalPages)
				}
			}
		}
	}
}

func TestZeroItems(t *testing.T) {
	m := New(1, 0, 15, false)
	assert.Equal(t, 0, m.TotalPages)
	assert.Empty(t, m.Items)
	assert.False(t, m.Visible())
	assert.True(t, m.PrevDisabled)
	assert.True(t, m.NextDisabled)
	assert.Equal(t, "No entries", m.Summary())
}

func TestSummaryActivityExample(t *testing.T) {
	m := New(2, 32, 15, false)
	assert.Equal(t, 3, m.TotalPages)
	assert.Equal(t, "Showing 16 to 30 of 32 entries", m.Summary())

	last := New(3, 32, 15, false)
	assert.Equal(t, "Showing 31 to 32 of 32 entries", last.Summary())
}

func TestItemsWithEllipsis(t *testing.T) {
	tests := []struct {
		name    string
		current int
		total   int
		want    []Item
	}{
		{
			name:    "middle",
			current: 6,
			total:   200,
			want: []Item{
				{Page: 1}, {Ellipsis: true},
				{Page: 4}, {Page: 5}, {Page: 6, Current: true}, {Page: 7}, {Page: 8},
				{Ellipsis: true}, {Page: 20},
			},
		},
		{
			name:    "first",
			current: 1,
			total:   200,
			want: []Item{
				{Page: 1, Current: true}, {Page: 2}, {Page: 3},
				{Ellipsis: true}, {Page: 20},
			},
		},
		{
			name:    "window abuts edges",
			current: 3,
			total:   50,
			want: []Item{
				{Page: 1}, {Page: 2}, {Page: 3, Current: true}, {Page: 4}, {Page: 5},
			},
		},
		{
			name:    "gap of one page",
			current: 4,
			total:   70,
			want: []Item{
				{Page: 1}, {Page: 2}, {Page: 3}, {Page: 4, Current: true}, {Page: 5}, {Page: 6}, {Page: 7},
			},
		},
		{
			name:    "last",
			current: 20,
			total:   200,
			want: []Item{
				{Page: 1}, {Ellipsis: true},
				{Page: 18}, {Page: 19}, {Page: 20, Current: true},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.current, tt.total, 10, false)
			assert.Equal(t, tt.want, m.Items)
		})
	}
}

func TestPrevNextDisabled(t *testing.T) {
	first := New(1, 100, 10, false)
	assert.True(t, first.PrevDisabled)
	assert.False(t, first.NextDisabled)

	last := New(10, 100, 10, false)
	assert.False(t, last.PrevDisabled)
	assert.True(t, last.NextDisabled)

	loading := New(5, 100, 10, true)
	assert.True(t, loading.PrevDisabled)
	assert.True(t, loading.NextDisabled)
	assert.Equal(t, 4, loading.Prev())
	assert.Equal(t, 6, loading.Next())
}

func TestClampsCurrentPage(t *testing.T) {
	m := New(9, 32, 15, false)
	assert.Equal(t, 3, m.Current)
	assert.Equal(t, 31, m.From)
}

func TestPageURLKeepsFilters(t *testing.T) {
	base := url.Values{"search": {"acme"}, "page": {"1"}}
	assert.Equal(t, "?page=4&search=acme", PageURL(base, 4))
	assert.Equal(t, []string{"1"}, base["page"], "input must not change")
}

func TestParsePage(t *testing.T) {
	assert.Equal(t, 1, ParsePage(""))
	assert.Equal(t, 1, ParsePage("0"))
	assert.Equal(t, 1, ParsePage("x"))
	assert.Equal(t, 7, ParsePage("7"))
}
