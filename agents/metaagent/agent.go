/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metaagent

import (
	"context"
	"fmt"
	"strings"

	"chainguard.dev/smartfix/agents/executor"
)

// Provider identifies the SDK and endpoint serving a model.
type Provider string

const (
	ProviderAnthropic     Provider = "anthropic"
	ProviderClaudeVertex  Provider = "vertex_ai/claude"
	ProviderClaudeBedrock Provider = "bedrock/claude"
	ProviderGemini        Provider = "gemini"
	ProviderGeminiVertex  Provider = "vertex_ai/gemini"
	ProviderOpenAI        Provider = "openai"
)

// Route is a resolved model name.
type Route struct {
	Provider Provider
	// Model is the name passed to the provider SDK, without the provider prefix.
	Model string
}

// Resolve maps a configured model name to its provider.
func Resolve(model string) (Route, error) {
	name := strings.TrimSpace(model)
	lower := strings.ToLower(name)
	prefix, rest, hasPrefix := strings.Cut(name, "/")
	if hasPrefix && rest == "" {
		return Route{}, unsupported(model)
	}

	switch {
	case hasPrefix && strings.EqualFold(prefix, "anthropic"):
		return Route{Provider: ProviderAnthropic, Model: rest}, nil
	case hasPrefix && strings.EqualFold(prefix, "vertex_ai"):
		r := strings.ToLower(rest)
		switch {
		case strings.HasPrefix(r, "claude-"):
			return Route{Provider: ProviderClaudeVertex, Model: rest}, nil
		case strings.HasPrefix(r, "gemini-"):
			return Route{Provider: ProviderGeminiVertex, Model: rest}, nil
		}
		return Route{}, unsupported(model)
	case hasPrefix && strings.EqualFold(prefix, "bedrock"):
		// Bedrock model IDs may carry a cross-region prefix such as "us.".
		if strings.Contains(strings.ToLower(rest), "anthropic.claude") {
			return Route{Provider: ProviderClaudeBedrock, Model: rest}, nil
		}
		return Route{}, unsupported(model)
	case hasPrefix && strings.EqualFold(prefix, "gemini"):
		return Route{Provider: ProviderGemini, Model: rest}, nil
	case hasPrefix && strings.EqualFold(prefix, "openai"):
		return Route{Provider: ProviderOpenAI, Model: rest}, nil
	case hasPrefix:
		return Route{}, unsupported(model)
	case strings.HasPrefix(lower, "claude-"):
		return Route{Provider: ProviderAnthropic, Model: name}, nil
	case strings.HasPrefix(lower, "gemini-"):
		return Route{Provider: ProviderGemini, Model: name}, nil
	case strings.HasPrefix(lower, "gpt-") || isOpenAIReasoningModel(lower):
		return Route{Provider: ProviderOpenAI, Model: name}, nil
	}
	return Route{}, unsupported(model)
}

// isOpenAIReasoningModel matches o1, o3, o4-mini and the like.
func isOpenAIReasoningModel(m string) bool {
	return len(m) >= 2 && m[0] == 'o' && m[1] >= '1' && m[1] <= '9'
}

func unsupported(model string) error {
	return fmt.Errorf("%w: unsupported model %q (expected provider/model such as anthropic/claude-sonnet-4-5, gemini/gemini-2.5-pro or openai/gpt-4.1)",
		executor.ErrInvalidLLMConfig, model)
}

func missing(what string, r Route) error {
	return fmt.Errorf("%w: %s is required for %s models", executor.ErrInvalidLLMConfig, what, r.Provider)
}

// New creates the executor for cfg.Model.
func New(ctx context.Context, cfg Config) (executor.Interface, error) {
	r, err := Resolve(cfg.Model)
	if err != nil {
		return nil, err
	}
	switch r.Provider {
	case ProviderAnthropic, ProviderClaudeVertex, ProviderClaudeBedrock:
		return newClaudeAgent(ctx, r, cfg)
	case ProviderGemini, ProviderGeminiVertex:
		return newGoogleAgent(ctx, r, cfg)
	default:
		return newOpenAIAgent(r, cfg)
	}
}
