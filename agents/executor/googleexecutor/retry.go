/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package googleexecutor

import (
	"errors"
	"strings"

	"chainguard.dev/smartfix/agents/executor/retry"
	"google.golang.org/genai"
)

// statusError exposes the HTTP status of a genai.APIError to the shared
// retry and configuration classifiers.
type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string       { return e.err.Error() }
func (e *statusError) Unwrap() error       { return e.err }
func (e *statusError) HTTPStatusCode() int { return e.code }

// withStatus wraps genai API errors so their status code is visible.
func withStatus(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &statusError{code: apiErr.Code, err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &statusError{code: apiErrPtr.Code, err: err}
	}
	return err
}

// isRetryableVertexError checks if an error is a retryable Gemini or Vertex AI error.
func isRetryableVertexError(err error) bool {
	if err == nil {
		return false
	}
	if strings.Contains(err.Error(), "RESOURCE_EXHAUSTED") {
		return true
	}
	return retry.IsRetryable(err)
}
