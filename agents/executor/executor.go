/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package executor defines the provider-independent contract for invoking a
// coding agent, plus the event budget and teardown helpers every provider
// shares.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chainguard.dev/smartfix/agents/executor/retry"
	"github.com/chainguard-dev/clog"
)

// Role selects which agent is invoked.
type Role string

const (
	// RoleFix is the agent that writes the vulnerability fix.
	RoleFix Role = "fix"
	// RoleQA is the agent that repairs the build after a fix.
	RoleQA Role = "qa"
)

// Request is one invocation of the agent runtime.
type Request struct {
	Role         Role
	SystemPrompt string
	Query        string
	// MaxEvents bounds model turns plus tool results (0 means DefaultMaxEvents).
	MaxEvents int
}

// Usage is the token and cost accounting of an invocation.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	CostUSD          float64
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.CostUSD += other.CostUSD
}

// Total returns the total token count.
func (u Usage) Total() int64 {
	return u.PromptTokens + u.CompletionTokens
}

// ToolCall summarizes one tool invocation for telemetry.
type ToolCall struct {
	Name   string
	Result string
}

// Response is the outcome of an invocation.
type Response struct {
	// Text is the final text produced by the agent.
	Text      string
	Usage     Usage
	Model     string
	Events    int
	Truncated bool
	ToolCalls []ToolCall
}

// Interface invokes a coding agent.
type Interface interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

const (
	// DefaultMaxEvents is used when a request does not set MaxEvents.
	DefaultMaxEvents = 120
	// MinMaxEvents and MaxMaxEvents bound MaxEvents.
	MinMaxEvents = 10
	MaxMaxEvents = 500
	// StreamCloseTimeout bounds teardown of an abandoned response stream.
	StreamCloseTimeout = 5 * time.Second
)

// ClampMaxEvents applies the default and bounds to a configured event cap.
func ClampMaxEvents(n int) int {
	if n == 0 {
		return DefaultMaxEvents
	}
	return min(max(n, MinMaxEvents), MaxMaxEvents)
}

// ErrInvalidLLMConfig marks errors caused by credential or model misconfiguration.
var ErrInvalidLLMConfig = errors.New("invalid LLM configuration")

// InvalidConfigError wraps err so that it matches ErrInvalidLLMConfig.
func InvalidConfigError(err error) error {
	if err == nil || errors.Is(err, ErrInvalidLLMConfig) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInvalidLLMConfig, err)
}

var invalidConfigMessages = []string{
	"api key",
	"api_key",
	"apikey",
	"authentication",
	"unauthorized",
	"invalid x-api-key",
	"permission denied",
	"permission_denied",
	"model not found",
	"model_not_found",
	"unknown model",
	"invalid model",
	"not_found_error",
	"credentials",
}

// IsInvalidConfig reports whether err indicates that the model or its
// credentials are misconfigured rather than a transient service problem.
func IsInvalidConfig(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidLLMConfig) {
		return true
	}
	if code, ok := retry.StatusCode(err); ok {
		switch code {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return true
		}
		if retry.IsRetryableStatus(code) {
			return false
		}
	}
	msg := strings.ToLower(err.Error())
	for _, m := range invalidConfigMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// TruncationNote is appended to the text of an invocation stopped by its event budget.
func TruncationNote(maxEvents int) string {
	return fmt.Sprintf("\n\n⚠️ Note: Agent execution was terminated early after reaching the maximum limit of %d events. The solution may be incomplete.", maxEvents)
}

// Budget counts events against the cap of one invocation.
type Budget struct {
	max  int
	used int
}

// NewBudget creates a budget for maxEvents events.
func NewBudget(maxEvents int) *Budget {
	return &Budget{max: ClampMaxEvents(maxEvents)}
}

// Spend records one event and reports whether the budget is now exhausted.
func (b *Budget) Spend() bool {
	b.used++
	return b.Exhausted()
}

// Exhausted reports whether the cap has been reached.
func (b *Budget) Exhausted() bool {
	return b.used >= b.max
}

// Used returns the number of events recorded.
func (b *Budget) Used() int { return b.used }

// Max returns the cap.
func (b *Budget) Max() int { return b.max }

// Truncate marks resp as stopped by the budget and appends the note.
func (b *Budget) Truncate(resp *Response) {
	resp.Events = b.used
	resp.Truncated = true
	resp.Text += TruncationNote(b.max)
}

// CloseWithTimeout closes c in the background and waits at most d for it.
// It never blocks longer than d, and a close that outlives the wait is left
// to finish on its own.
func CloseWithTimeout(ctx context.Context, c io.Closer, d time.Duration) {
	if c == nil {
		return
	}
	done := make(chan error, 1)
	go func() {
		done <- c.Close()
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()
	log := clog.FromContext(ctx)
	select {
	case err := <-done:
		if err != nil {
			log.With("error", err).Debug("Error closing response stream")
		}
	case <-timer.C:
		log.With("timeout", d).Warn("Timed out closing response stream, continuing")
	case <-ctx.Done():
		log.Debug("Context done while closing response stream, continuing")
	}
}
