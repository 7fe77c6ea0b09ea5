/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package googleexecutor

import (
	"fmt"
	"strings"

	"chainguard.dev/smartfix/agents/executor/retry"
	"chainguard.dev/smartfix/agents/metrics"
)

// Option is a functional option for configuring an executor
type Option func(*googleExecutor) error

// WithModel sets the model to use for generation
func WithModel(model string) Option {
	return func(e *googleExecutor) error {
		if !strings.HasPrefix(model, "gemini-") {
			return fmt.Errorf("model %q does not appear to be a Gemini model (expected gemini-* format)", model)
		}
		e.model = model
		return nil
	}
}

// WithTemperature sets the temperature for generation.
// Gemini accepts values from 0.0 to 2.0.
func WithTemperature(temperature float32) Option {
	return func(e *googleExecutor) error {
		if temperature < 0.0 || temperature > 2.0 {
			return fmt.Errorf("temperature must be between 0.0 and 2.0, got %f", temperature)
		}
		e.temperature = temperature
		return nil
	}
}

// WithMaxOutputTokens sets the maximum output tokens per model turn
func WithMaxOutputTokens(tokens int32) Option {
	return func(e *googleExecutor) error {
		if tokens <= 0 {
			return fmt.Errorf("max output tokens must be positive, got %d", tokens)
		}
		if tokens > 65536 {
			return fmt.Errorf("max output tokens %d exceeds maximum of 65536", tokens)
		}
		e.maxOutputTokens = tokens
		return nil
	}
}

// WithThinking enables thought output with the given token budget.
func WithThinking(budget int32) Option {
	return func(e *googleExecutor) error {
		if budget < 0 {
			return fmt.Errorf("thinking budget must not be negative, got %d", budget)
		}
		e.thinkingBudget = &budget
		return nil
	}
}

// WithRetryPolicy sets the backoff used for every completion call.
func WithRetryPolicy(p retry.Policy) Option {
	return func(e *googleExecutor) error {
		e.retryPolicy = p.Normalize()
		return nil
	}
}

// WithAttributeEnricher sets a custom attribute enricher for metrics.
func WithAttributeEnricher(enricher metrics.AttributeEnricher) Option {
	return func(e *googleExecutor) error {
		e.genaiMetrics.SetAttributeEnricher(enricher)
		return nil
	}
}
