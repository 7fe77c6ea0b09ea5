/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package claudeexecutor

import (
	"fmt"
	"strings"

	"chainguard.dev/smartfix/agents/executor/retry"
	"chainguard.dev/smartfix/agents/metrics"
)

// Option is a functional option for configuring the executor
type Option func(*claudeExecutor) error

// WithMaxTokens sets the maximum tokens for each model turn
func WithMaxTokens(tokens int64) Option {
	return func(e *claudeExecutor) error {
		if tokens <= 0 {
			return fmt.Errorf("max tokens must be positive, got %d", tokens)
		}
		if tokens > 64000 {
			return fmt.Errorf("max tokens %d exceeds maximum of 64000", tokens)
		}
		e.maxTokens = tokens
		return nil
	}
}

// WithTemperature sets the sampling temperature (0.0 to 1.0)
func WithTemperature(temp float64) Option {
	return func(e *claudeExecutor) error {
		if temp < 0.0 || temp > 1.0 {
			return fmt.Errorf("temperature must be between 0.0 and 1.0, got %f", temp)
		}
		e.temperature = temp
		return nil
	}
}

// WithModel overrides the model name
func WithModel(model string) Option {
	return func(e *claudeExecutor) error {
		if !strings.HasPrefix(model, "claude-") {
			return fmt.Errorf("model %q does not appear to be a Claude model (expected claude-* format)", model)
		}
		e.modelName = model
		return nil
	}
}

// WithThinking enables extended thinking with the given budget.
// The budget must be at least 1024 tokens and below max tokens.
func WithThinking(budgetTokens int64) Option {
	return func(e *claudeExecutor) error {
		if budgetTokens < 1024 {
			return fmt.Errorf("thinking budget_tokens must be at least 1024, got %d", budgetTokens)
		}
		if budgetTokens >= e.maxTokens {
			return fmt.Errorf("thinking budget_tokens (%d) must be less than max_tokens (%d)", budgetTokens, e.maxTokens)
		}
		e.thinkingBudgetTokens = &budgetTokens
		return nil
	}
}

// WithRetryPolicy sets the backoff used for every completion call.
func WithRetryPolicy(p retry.Policy) Option {
	return func(e *claudeExecutor) error {
		e.retryPolicy = p.Normalize()
		return nil
	}
}

// WithAttributeEnricher sets a custom attribute enricher for metrics.
func WithAttributeEnricher(enricher metrics.AttributeEnricher) Option {
	return func(e *claudeExecutor) error {
		e.genaiMetrics.SetAttributeEnricher(enricher)
		return nil
	}
}
