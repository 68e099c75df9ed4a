package listing

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Result is one derived value or the reason it is unavailable.
type Result[V any] struct {
	Value V
	Err   error
}

func (r Result[V]) Unavailable() bool { return r.Err != nil }

// Batch maps each row key to its derived result. Every requested key is
// present.
type Batch[K comparable, V any] map[K]Result[V]

// Get returns the value for k, or fallback when it is unavailable.
func (b Batch[K, V]) Get(k K, fallback V) V {
	if r, ok := b[k]; ok && r.Err == nil {
		return r.Value
	}
	return fallback
}

func (b Batch[K, V]) Unavailable() int {
	n := 0
	for _, r := range b {
		if r.Err != nil {
			n++
		}
	}
	return n
}

type FanoutOptions struct {
	// Limit caps concurrent calls; 0 means unbounded.
	Limit int
	// Limiter paces call starts when set.
	Limiter *rate.Limiter
}

// Fanout runs fn once per distinct key concurrently and waits for all of
// them. A failing key is marked unavailable; the batch itself never fails.
func Fanout[K comparable, V any](ctx context.Context, keys []K, fn func(context.Context, K) (V, error), opts FanoutOptions) Batch[K, V] {
	out := make(Batch[K, V], len(keys))
	var mu sync.Mutex

	var g errgroup.Group
	if opts.Limit > 0 {
		g.SetLimit(opts.Limit)
	}
	seen := make(map[K]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		g.Go(func() error {
			r := run(ctx, k, fn, opts.Limiter)
			mu.Lock()
			out[k] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func run[K comparable, V any](ctx context.Context, k K, fn func(context.Context, K) (V, error), lim *rate.Limiter) (r Result[V]) {
	defer func() {
		if p := recover(); p != nil {
			r = Result[V]{Err: fmt.Errorf("derived fetch panicked: %v", p)}
		}
	}()
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return Result[V]{Err: err}
		}
	}
	v, err := fn(ctx, k)
	if err != nil {
		return Result[V]{Err: err}
	}
	return Result[V]{Value: v}
}
