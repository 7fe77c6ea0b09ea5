/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metaagent

import (
	"fmt"

	"chainguard.dev/smartfix/agents/executor"
	"chainguard.dev/smartfix/agents/executor/openaiexecutor"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

func newOpenAIAgent(r Route, cfg Config) (executor.Interface, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, missing("OPENAI_API_KEY", r)
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.OpenAIAPIKey)}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAIBaseURL))
	}
	exec, err := openaiexecutor.New(openai.NewClient(opts...), cfg.Tools,
		openaiexecutor.WithModel(r.Model),
		openaiexecutor.WithRetryPolicy(cfg.Retry),
	)
	if err != nil {
		return nil, executor.InvalidConfigError(fmt.Errorf("creating OpenAI executor: %w", err))
	}
	return exec, nil
}
