/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package retry

import (
	"context"
	"math"
	"time"

	"github.com/chainguard-dev/clog"
)

const (
	// MinInitialDelay is the smallest delay allowed before the first retry.
	MinInitialDelay = time.Second
	// MinMultiplier is the smallest growth factor allowed between retries.
	MinMultiplier = 2.0
	// MinRetries is the smallest number of attempts a policy makes.
	MinRetries = 1
)

// Policy configures bounded exponential backoff for calls to a language
// model completion service.
type Policy struct {
	// InitialDelay is the delay after the first failed attempt (min: 1s).
	InitialDelay time.Duration
	// Multiplier is the growth factor applied to the delay (min: 2).
	Multiplier float64
	// MaxRetries is the total number of attempts, including the first (min: 1).
	MaxRetries int

	// OnRetry, when set, is called before each backoff sleep.
	OnRetry func(ctx context.Context, operation string, attempt int, err error)

	sleep func(context.Context, time.Duration) error
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: MinInitialDelay,
		Multiplier:   MinMultiplier,
		MaxRetries:   3,
	}
}

// Normalize returns a copy of the policy with every field clamped to its minimum.
func (p Policy) Normalize() Policy {
	p.InitialDelay = max(p.InitialDelay, MinInitialDelay)
	if p.Multiplier < MinMultiplier || math.IsNaN(p.Multiplier) {
		p.Multiplier = MinMultiplier
	}
	p.MaxRetries = max(p.MaxRetries, MinRetries)
	return p
}

// Delay returns the backoff that follows the given failed attempt (1-indexed).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.Normalize()
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Do executes fn until it succeeds, fails with an error isRetryable rejects,
// or the policy runs out of attempts. The error from the last attempt is
// returned as is so callers can still inspect it.
func Do[T any](ctx context.Context, p Policy, operation string, isRetryable func(error) bool, fn func() (T, error)) (T, error) {
	p = p.Normalize()
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var result T
	var err error
	for attempt := 1; attempt <= p.MaxRetries; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}
		if !isRetryable(err) || attempt == p.MaxRetries {
			return result, err
		}

		backoff := p.Delay(attempt)
		clog.FromContext(ctx).With("operation", operation).
			With("attempt", attempt).
			With("max_retries", p.MaxRetries).
			With("backoff", backoff).
			With("error", err.Error()).
			Warn("Retryable error from completion call, backing off")
		if p.OnRetry != nil {
			p.OnRetry(ctx, operation, attempt, err)
		}

		if serr := sleep(ctx, backoff); serr != nil {
			return result, serr
		}
	}
	return result, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
