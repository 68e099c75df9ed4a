package listing

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/vulnsphere/console/internal/vulnsphere"
)

// ErrStale is returned by Load when a newer Load or a Cancel superseded it.
// The superseded response is discarded.
var ErrStale = errors.New("listing: superseded by a newer load")

type Status int

const (
	Idle Status = iota
	Loading
	Failed
	Ready
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Failed:
		return "failed"
	case Ready:
		return "ready"
	}
	return "unknown"
}

// State is a snapshot of a list view.
type State[T any] struct {
	Status Status
	Query  Query[T]
	Items  []T
	Total  int
	Err    error
	// Generation identifies the Load that produced this state.
	Generation uint64
}

func (s State[T]) Loading() bool { return s.Status == Loading }

// Empty is a successful load with nothing to show.
func (s State[T]) Empty() bool { return s.Status == Ready && len(s.Items) == 0 }

// Fetcher loads one page (server paged) or everything (local paged) for the
// given API parameters.
type Fetcher[T any] func(ctx context.Context, params url.Values) (vulnsphere.Page[T], error)

// Controller drives one list view. Each Load bumps a generation counter so
// that a response arriving after a newer Load, or after Cancel, is dropped.
type Controller[T any] struct {
	fetch Fetcher[T]

	mu    sync.Mutex
	gen   uint64
	state State[T]
}

func NewController[T any](fetch Fetcher[T]) *Controller[T] {
	return &Controller[T]{fetch: fetch}
}

func (c *Controller[T]) Load(ctx context.Context, q Query[T]) (State[T], error) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.state.Status = Loading
	c.state.Query = q
	c.state.Err = nil
	c.mu.Unlock()

	page, err := c.fetch(ctx, q.ServerParams())

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return State[T]{}, ErrStale
	}
	if err != nil {
		c.state = State[T]{Status: Failed, Query: q, Err: err, Generation: gen}
		return c.state, err
	}

	next := State[T]{Status: Ready, Query: q, Generation: gen}
	switch q.Mode() {
	case ServerPaged:
		next.Items = q.Apply(page.Results)
		next.Total = page.Count
	case LocalPaged:
		filtered := q.Apply(page.Results)
		next.Total = len(filtered)
		next.Items = q.Paginate(filtered)
	}
	if next.Items == nil {
		next.Items = []T{}
	}
	c.state = next
	return next, nil
}

// Cancel invalidates any in-flight Load, as when the view goes away.
func (c *Controller[T]) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.state.Status == Loading {
		c.state.Status = Idle
	}
}

// Current reports whether gen is still the newest Load. A caller that
// publishes a result after Load returned checks this first.
func (c *Controller[T]) Current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

func (c *Controller[T]) State() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
