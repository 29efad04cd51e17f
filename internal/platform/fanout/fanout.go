// Package fanout runs independent branches concurrently and joins on all of them.
// A failing or panicking branch contributes nothing and never cancels its siblings.
package fanout

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

type Result[T any] struct {
	Value T
	Err   error
}

// Join runs every fn and returns one Result per fn, in input order.
func Join[T any](ctx context.Context, fns ...func(context.Context) (T, error)) []Result[T] {
	out := make([]Result[T], len(fns))
	var g errgroup.Group
	for i, fn := range fns {
		i, fn := i, fn
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					out[i] = Result[T]{Err: fmt.Errorf("fanout: branch %d panicked: %v", i, rec)}
				}
			}()
			v, err := fn(ctx)
			out[i] = Result[T]{Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Values keeps the successful results, in input order.
func Values[T any](rs []Result[T]) []T {
	return lo.FilterMap(rs, func(r Result[T], _ int) (T, bool) {
		return r.Value, r.Err == nil
	})
}

// All is Join followed by Values.
func All[T any](ctx context.Context, fns ...func(context.Context) (T, error)) []T {
	return Values(Join(ctx, fns...))
}
