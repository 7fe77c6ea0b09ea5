/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package executor_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chainguard.dev/smartfix/agents/executor"
	"github.com/anthropics/anthropic-sdk-go"
)

func TestClampMaxEvents(t *testing.T) {
	t.Parallel()
	for in, want := range map[int]int{0: 120, 1: 10, 10: 10, 120: 120, 500: 500, 9000: 500, -4: 10} {
		if got := executor.ClampMaxEvents(in); got != want {
			t.Errorf("ClampMaxEvents(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestBudget(t *testing.T) {
	t.Parallel()
	b := executor.NewBudget(10)
	for i := 1; i < 10; i++ {
		if b.Spend() {
			t.Fatalf("budget exhausted after %d events, want 10", i)
		}
	}
	if !b.Spend() {
		t.Fatal("budget not exhausted after 10 events")
	}

	resp := &executor.Response{Text: "partial fix"}
	b.Truncate(resp)
	if !resp.Truncated || resp.Events != 10 {
		t.Errorf("Truncate() = %+v", resp)
	}
	want := "partial fix\n\n⚠️ Note: Agent execution was terminated early after reaching the maximum limit of 10 events. The solution may be incomplete."
	if resp.Text != want {
		t.Errorf("Text = %q, want %q", resp.Text, want)
	}
}

func TestUsage(t *testing.T) {
	t.Parallel()
	var u executor.Usage
	u.Add(executor.Usage{PromptTokens: 10, CompletionTokens: 2, CostUSD: 0.25})
	u.Add(executor.Usage{PromptTokens: 5, CompletionTokens: 3, CostUSD: 0.5})
	if u.Total() != 20 || u.CostUSD != 0.75 {
		t.Errorf("Usage = %+v", u)
	}
}

func anthropicErr(code int) error {
	req := httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil)
	return &anthropic.Error{StatusCode: code, Request: req, Response: &http.Response{StatusCode: code, Request: req}}
}

func TestIsInvalidConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", executor.InvalidConfigError(errors.New("unsupported provider")), true},
		{"wrapped sentinel", fmt.Errorf("creating agent: %w", executor.ErrInvalidLLMConfig), true},
		{"401", anthropicErr(http.StatusUnauthorized), true},
		{"403", anthropicErr(http.StatusForbidden), true},
		{"404", anthropicErr(http.StatusNotFound), true},
		{"429", anthropicErr(http.StatusTooManyRequests), false},
		{"500", anthropicErr(http.StatusInternalServerError), false},
		{"gemini api key", errors.New("Error 400, Message: API key not valid. Please pass a valid API key."), true},
		{"model not found", errors.New("model not found: gpt-9"), true},
		{"build failure text", errors.New("exit status 1"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := executor.IsInvalidConfig(tt.err); got != tt.want {
				t.Errorf("IsInvalidConfig() = %v, want %v", got, tt.want)
			}
		})
	}
}

type slowCloser struct {
	delay  time.Duration
	closed chan struct{}
}

func (s *slowCloser) Close() error {
	time.Sleep(s.delay)
	close(s.closed)
	return nil
}

func TestCloseWithTimeout(t *testing.T) {
	t.Parallel()

	t.Run("fast close", func(t *testing.T) {
		t.Parallel()
		c := &slowCloser{closed: make(chan struct{})}
		executor.CloseWithTimeout(context.Background(), c, time.Second)
		select {
		case <-c.closed:
		default:
			t.Error("closer did not finish before CloseWithTimeout returned")
		}
	})

	t.Run("stuck close does not block", func(t *testing.T) {
		t.Parallel()
		c := &slowCloser{delay: 5 * time.Second, closed: make(chan struct{})}
		start := time.Now()
		executor.CloseWithTimeout(context.Background(), c, 20*time.Millisecond)
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("CloseWithTimeout blocked for %v", elapsed)
		}
	})

	t.Run("nil closer", func(t *testing.T) {
		t.Parallel()
		executor.CloseWithTimeout(context.Background(), nil, time.Millisecond)
	})
}

func TestTruncationNote(t *testing.T) {
	t.Parallel()
	if !strings.Contains(executor.TruncationNote(42), "maximum limit of 42 events") {
		t.Error("TruncationNote() does not name the limit")
	}
}
