/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package claudeexecutor

import (
	"errors"
	"strings"

	"chainguard.dev/smartfix/agents/executor/retry"
	"github.com/anthropics/anthropic-sdk-go"
)

// isRetryableClaudeError checks if an error is a retryable Claude API error.
// Overloaded and rate limit errors can also arrive as an SSE error event
// that carries no status code.
func isRetryableClaudeError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 503, 504, 529:
			return true
		}
	}
	msg := err.Error()
	if strings.Contains(msg, "overloaded_error") || strings.Contains(msg, "rate_limit_error") {
		return true
	}
	return retry.IsRetryable(err)
}
