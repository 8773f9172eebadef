// Package parallel runs a uniform operation over a slice with a
// bounded number of goroutines. It is the concurrency primitive behind
// log collection, where one fetch per node file is in flight up to a
// limit.
package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEach invokes fn for every item with at most limit calls in
// flight. The first error cancels the context handed to the remaining
// calls and is returned. A limit below 1 means no bound.
func ForEach[E any](ctx context.Context, limit int, items []E, fn func(context.Context, E) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, item)
		})
	}
	return g.Wait()
}
