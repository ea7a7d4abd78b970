// Package dispatcher fans per-item work out over a bounded number of goroutines.
package dispatcher

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is used when a non-positive limit is requested.
const DefaultConcurrency = 5

// Dispatcher runs tasks with at most Limit of them in flight.
type Dispatcher struct {
	limit int
}

// New creates a Dispatcher. Limits below one fall back to one.
func New(limit int) *Dispatcher {
	if limit < 1 {
		limit = 1
	}
	return &Dispatcher{limit: limit}
}

// Limit returns the number of permits.
func (d *Dispatcher) Limit() int {
	return d.limit
}

// Each calls fn for every item, holding one permit per call, and returns once
// every call has finished. Tasks own their error handling; a failing item never
// stops its siblings.
func Each[T any](ctx context.Context, d *Dispatcher, items []T, fn func(ctx context.Context, item T)) {
	var g errgroup.Group
	g.SetLimit(d.limit)
	for _, item := range items {
		g.Go(func() error {
			fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
}
