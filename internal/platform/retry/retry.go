// Package retry re-runs a failing call with linear backoff.
package retry

import (
	"context"
	"time"
)

// Policy describes how often and how patiently a call is retried.
// Attempt n (1-based) that fails waits Step*n before attempt n+1.
type Policy struct {
	Attempts int
	Step     time.Duration
	// Sleep waits for d or until ctx ends. nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default is the policy used around provider scrapers and catalog page fetches.
var Default = Policy{Attempts: 2, Step: 500 * time.Millisecond}

// Do runs fn until it succeeds or the attempts are exhausted, returning the last error.
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var (
		v   T
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err = fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt == attempts {
			break
		}
		if serr := sleep(ctx, p.Step*time.Duration(attempt)); serr != nil {
			return v, err
		}
	}
	return v, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
