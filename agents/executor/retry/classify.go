/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// statusCoder is implemented by SDK errors that expose the HTTP status.
type statusCoder interface {
	HTTPStatusCode() int
}

// transientMessages are matched against error text for SDKs that do not
// expose a typed error, such as genai.
var transientMessages = []string{
	"429",
	"resource exhausted",
	"resource_exhausted",
	"rate limit",
	"ratelimit",
	"too many requests",
	"overloaded",
	"503",
	"unavailable",
	"quota exceeded",
	"internal error",
	"server error",
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"broken pipe",
}

// IsRetryable reports whether err is a rate-limit, timeout, connectivity or
// server-side failure worth retrying. Client errors other than 429 are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	if code, ok := StatusCode(err); ok {
		return IsRetryableStatus(code)
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// IsRetryableStatus reports whether an HTTP status code is transient.
func IsRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500 && code <= 599
}

// StatusCode extracts an HTTP status code from a provider error.
func StatusCode(err error) (int, bool) {
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode, true
	}
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return openaiErr.StatusCode, true
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatusCode(), true
	}
	return 0, false
}
