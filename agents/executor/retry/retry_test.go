/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package retry_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/smartfix/agents/executor/retry"
	"github.com/google/go-cmp/cmp"
)

// recordingPolicy returns a policy whose sleeps are recorded instead of taken.
func recordingPolicy(p retry.Policy, slept *[]time.Duration) retry.Policy {
	return retry.WithSleep(p, func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return ctx.Err()
	})
}

func alwaysRetryable(err error) bool {
	return err != nil
}

func TestDo_Success(t *testing.T) {
	t.Parallel()
	var slept []time.Duration
	var attempts atomic.Int32
	result, err := retry.Do(context.Background(), recordingPolicy(retry.DefaultPolicy(), &slept), "test_op", alwaysRetryable, func() (string, error) {
		attempts.Add(1)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected result %q, got %q", "ok", result)
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
	if len(slept) != 0 {
		t.Fatalf("expected no backoff, got %v", slept)
	}
}

func TestDo_SuccessAfterTwoFailures(t *testing.T) {
	t.Parallel()
	var slept []time.Duration
	var attempts atomic.Int32
	retryableErr := errors.New("429 rate limit exceeded")

	p := recordingPolicy(retry.Policy{InitialDelay: time.Second, Multiplier: 2, MaxRetries: 3}, &slept)
	result, err := retry.Do(context.Background(), p, "test_op", retry.IsRetryable, func() (string, error) {
		if attempts.Add(1) < 3 {
			return "", retryableErr
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "recovered" {
		t.Fatalf("expected result %q, got %q", "recovered", result)
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if diff := cmp.Diff([]time.Duration{time.Second, 2 * time.Second}, slept); diff != "" {
		t.Errorf("backoff schedule (-want, +got): %s", diff)
	}
}

func TestDo_ExhaustedReturnsOriginalError(t *testing.T) {
	t.Parallel()
	var slept []time.Duration
	var attempts atomic.Int32
	retryableErr := errors.New("503 service unavailable")

	p := recordingPolicy(retry.Policy{InitialDelay: 2 * time.Second, Multiplier: 3, MaxRetries: 4}, &slept)
	_, err := retry.Do(context.Background(), p, "test_op", alwaysRetryable, func() (int, error) {
		attempts.Add(1)
		return 0, retryableErr
	})
	if err != retryableErr {
		t.Fatalf("expected the original error value, got: %v", err)
	}
	if got := attempts.Load(); got != 4 {
		t.Fatalf("expected 4 attempts in total, got %d", got)
	}
	want := []time.Duration{2 * time.Second, 6 * time.Second, 18 * time.Second}
	if diff := cmp.Diff(want, slept); diff != "" {
		t.Errorf("backoff schedule (-want, +got): %s", diff)
	}
}

func TestDo_NonRetryableError(t *testing.T) {
	t.Parallel()
	var slept []time.Duration
	var attempts atomic.Int32
	permErr := errors.New("400 invalid request: unknown parameter")

	_, err := retry.Do(context.Background(), recordingPolicy(retry.DefaultPolicy(), &slept), "test_op", retry.IsRetryable, func() (string, error) {
		attempts.Add(1)
		return "", permErr
	})
	if err != permErr {
		t.Fatalf("expected original error unchanged, got: %v", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	var slept []time.Duration
	var attempts atomic.Int32

	_, err := retry.Do(ctx, recordingPolicy(retry.DefaultPolicy(), &slept), "test_op", alwaysRetryable, func() (string, error) {
		if attempts.Add(1) == 1 {
			cancel()
		}
		return "", errors.New("429")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("expected 1 attempt before cancellation, got %d", got)
	}
}

func TestDo_OnRetry(t *testing.T) {
	t.Parallel()
	var slept []time.Duration
	var seen []int
	p := retry.Policy{
		MaxRetries: 3,
		OnRetry: func(_ context.Context, op string, attempt int, _ error) {
			if op != "stream" {
				t.Errorf("operation = %q, want stream", op)
			}
			seen = append(seen, attempt)
		},
	}
	_, _ = retry.Do(context.Background(), recordingPolicy(p, &slept), "stream", alwaysRetryable, func() (bool, error) {
		return false, errors.New("timeout")
	})
	if diff := cmp.Diff([]int{1, 2}, seen); diff != "" {
		t.Errorf("OnRetry attempts (-want, +got): %s", diff)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   retry.Policy
		want retry.Policy
	}{{
		name: "zero values clamp to minimums",
		in:   retry.Policy{},
		want: retry.Policy{InitialDelay: time.Second, Multiplier: 2, MaxRetries: 1},
	}, {
		name: "negative values clamp to minimums",
		in:   retry.Policy{InitialDelay: -time.Second, Multiplier: -1, MaxRetries: -5},
		want: retry.Policy{InitialDelay: time.Second, Multiplier: 2, MaxRetries: 1},
	}, {
		name: "sub-second delay and small multiplier",
		in:   retry.Policy{InitialDelay: 10 * time.Millisecond, Multiplier: 1.5, MaxRetries: 4},
		want: retry.Policy{InitialDelay: time.Second, Multiplier: 2, MaxRetries: 4},
	}, {
		name: "valid values are kept",
		in:   retry.Policy{InitialDelay: 3 * time.Second, Multiplier: 2.5, MaxRetries: 7},
		want: retry.Policy{InitialDelay: 3 * time.Second, Multiplier: 2.5, MaxRetries: 7},
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tt.in.Normalize()
			if got.InitialDelay != tt.want.InitialDelay || got.Multiplier != tt.want.Multiplier || got.MaxRetries != tt.want.MaxRetries {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDelay(t *testing.T) {
	t.Parallel()
	p := retry.Policy{InitialDelay: time.Second, Multiplier: 2, MaxRetries: 5}
	for attempt, want := range map[int]time.Duration{
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		4: 8 * time.Second,
	} {
		if got := p.Delay(attempt); got != want {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestDefaultPolicy(t *testing.T) {
	t.Parallel()
	p := retry.DefaultPolicy()
	if p.InitialDelay != time.Second {
		t.Errorf("InitialDelay = %v, want %v", p.InitialDelay, time.Second)
	}
	if p.Multiplier != 2 {
		t.Errorf("Multiplier = %v, want 2", p.Multiplier)
	}
	if p.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", p.MaxRetries)
	}
}
