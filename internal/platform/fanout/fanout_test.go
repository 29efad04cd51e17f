package fanout

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestJoin_PreservesOrderAndIsolatesFailures(t *testing.T) {
	rs := Join(context.Background(),
		func(context.Context) (string, error) { time.Sleep(10 * time.Millisecond); return "slow", nil },
		func(context.Context) (string, error) { return "", errors.New("boom") },
		func(context.Context) (string, error) { return "fast", nil },
	)
	if len(rs) != 3 {
		t.Fatalf("expected 3 results, got %d", len(rs))
	}
	if rs[0].Value != "slow" || rs[2].Value != "fast" {
		t.Fatalf("unexpected order: %+v", rs)
	}
	if rs[1].Err == nil {
		t.Fatal("expected error for failing branch")
	}
}

func TestAll_DropsFailuresAndPanics(t *testing.T) {
	got := All(context.Background(),
		func(context.Context) (int, error) { return 1, nil },
		func(context.Context) (int, error) { panic("scraper exploded") },
		func(context.Context) (int, error) { return 0, errors.New("timeout") },
		func(context.Context) (int, error) { return 4, nil },
	)
	if len(got) != 2 || got[0] != 1 || got[1] != 4 {
		t.Fatalf("unexpected values: %v", got)
	}
}

func TestAll_NoBranches(t *testing.T) {
	if got := All[int](context.Background()); len(got) != 0 {
		t.Fatalf("expected no values, got %v", got)
	}
}
