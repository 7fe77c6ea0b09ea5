/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package retry

import (
	"context"
	"time"
)

// WithSleep replaces the backoff sleep of a policy.
func WithSleep(p Policy, sleep func(context.Context, time.Duration) error) Policy {
	p.sleep = sleep
	return p
}
