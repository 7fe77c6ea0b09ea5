/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metaagent

import (
	"context"
	"fmt"

	"chainguard.dev/smartfix/agents/executor"
	"chainguard.dev/smartfix/agents/executor/googleexecutor"
	"google.golang.org/genai"
)

func newGoogleAgent(ctx context.Context, r Route, cfg Config) (executor.Interface, error) {
	cc := &genai.ClientConfig{}
	switch r.Provider {
	case ProviderGeminiVertex:
		if cfg.Project == "" || cfg.Region == "" {
			return nil, missing("GOOGLE_CLOUD_PROJECT and VERTEX_REGION", r)
		}
		cc.Project, cc.Location, cc.Backend = cfg.Project, cfg.Region, genai.BackendVertexAI
	default:
		if cfg.GeminiAPIKey == "" {
			return nil, missing("GEMINI_API_KEY", r)
		}
		cc.APIKey, cc.Backend = cfg.GeminiAPIKey, genai.BackendGeminiAPI
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, executor.InvalidConfigError(fmt.Errorf("creating Google AI client: %w", err))
	}
	exec, err := googleexecutor.New(client, cfg.Tools,
		googleexecutor.WithModel(r.Model),
		googleexecutor.WithTemperature(0.2),
		googleexecutor.WithRetryPolicy(cfg.Retry),
	)
	if err != nil {
		return nil, executor.InvalidConfigError(fmt.Errorf("creating Google executor: %w", err))
	}
	return exec, nil
}
