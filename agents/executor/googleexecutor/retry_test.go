/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package googleexecutor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"chainguard.dev/smartfix/agents/executor"
	"google.golang.org/genai"
)

func TestIsRetryableVertexError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "resource exhausted", err: errors.New("Error 429, Message: Resource exhausted, Status: RESOURCE_EXHAUSTED"), want: true},
		{name: "api 503", err: withStatus(genai.APIError{Code: 503, Message: "unavailable"}), want: true},
		{name: "api 400", err: withStatus(genai.APIError{Code: 400, Message: "bad request"}), want: false},
		{name: "canceled", err: fmt.Errorf("send: %w", context.Canceled), want: false},
		{name: "plain invalid argument", err: errors.New("invalid argument"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isRetryableVertexError(tt.err); got != tt.want {
				t.Errorf("isRetryableVertexError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWithStatusInvalidConfig(t *testing.T) {
	t.Parallel()
	err := withStatus(genai.APIError{Code: 403, Message: "forbidden", Status: "PERMISSION_DENIED"})
	if !executor.IsInvalidConfig(err) {
		t.Errorf("IsInvalidConfig(%v) = false, want true", err)
	}
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 403 {
		t.Errorf("wrapped error lost the API error: %v", err)
	}
}
