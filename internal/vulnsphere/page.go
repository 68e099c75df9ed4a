package vulnsphere

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Page is one page of a list endpoint. Paginated endpoints return the
// {count, next, previous, results} envelope; unpaginated ones return a bare
// array, which decodes as a single page holding every item.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

func (p *Page[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var items []T
		if err := json.Unmarshal(b, &items); err != nil {
			return fmt.Errorf("decoding list: %w", err)
		}
		*p = Page[T]{Count: len(items), Results: items}
		return nil
	}

	var env struct {
		Count    int     `json:"count"`
		Next     *string `json:"next"`
		Previous *string `json:"previous"`
		Results  []T     `json:"results"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("decoding page: %w", err)
	}
	*p = Page[T]{Count: env.Count, Next: env.Next, Previous: env.Previous, Results: env.Results}
	if p.Results == nil {
		p.Results = []T{}
	}
	return nil
}
