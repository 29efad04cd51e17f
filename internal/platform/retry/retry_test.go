package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func recordingPolicy(attempts int, slept *[]time.Duration) Policy {
	return Policy{
		Attempts: attempts,
		Step:     500 * time.Millisecond,
		Sleep: func(_ context.Context, d time.Duration) error {
			*slept = append(*slept, d)
			return nil
		},
	}
}

func TestDo_LinearBackoff(t *testing.T) {
	var slept []time.Duration
	calls := 0
	_, err := Do(context.Background(), recordingPolicy(3, &slept), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("unavailable")
	})
	if err == nil {
		t.Fatal("expected last error")
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if len(slept) != 2 || slept[0] != 500*time.Millisecond || slept[1] != time.Second {
		t.Fatalf("unexpected backoff: %v", slept)
	}
}

func TestDo_StopsOnSuccess(t *testing.T) {
	var slept []time.Duration
	calls := 0
	v, err := Do(context.Background(), recordingPolicy(2, &slept), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Fatalf("unexpected result %q %v", v, err)
	}
	if len(slept) != 1 {
		t.Fatalf("expected one backoff, got %v", slept)
	}
}

func TestDo_CancelledContextStopsWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Do(ctx, Policy{Attempts: 3, Step: time.Hour}, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("down")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected a single attempt with error, got calls=%d err=%v", calls, err)
	}
}
