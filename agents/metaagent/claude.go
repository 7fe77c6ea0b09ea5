/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metaagent

import (
	"context"
	"fmt"

	"chainguard.dev/smartfix/agents/executor"
	"chainguard.dev/smartfix/agents/executor/claudeexecutor"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/vertex"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"golang.org/x/oauth2/google"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

func newClaudeAgent(ctx context.Context, r Route, cfg Config) (executor.Interface, error) {
	var opts []option.RequestOption
	switch r.Provider {
	case ProviderClaudeVertex:
		if cfg.Project == "" || cfg.Region == "" {
			return nil, missing("GOOGLE_CLOUD_PROJECT and VERTEX_REGION", r)
		}
		creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
		if err != nil {
			return nil, executor.InvalidConfigError(fmt.Errorf("finding Google credentials: %w", err))
		}
		opts = append(opts, vertex.WithCredentials(ctx, cfg.Region, cfg.Project, creds))
	case ProviderClaudeBedrock:
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, executor.InvalidConfigError(fmt.Errorf("loading AWS configuration: %w", err))
		}
		if awsCfg.Region == "" {
			return nil, missing("AWS_REGION", r)
		}
		opts = append(opts, bedrock.WithConfig(awsCfg))
	default:
		if cfg.AnthropicAPIKey == "" {
			return nil, missing("ANTHROPIC_API_KEY", r)
		}
		opts = append(opts, option.WithAPIKey(cfg.AnthropicAPIKey))
	}

	exec, err := claudeexecutor.New(anthropic.NewClient(opts...), cfg.Tools,
		claudeexecutor.WithModel(r.Model),
		claudeexecutor.WithTemperature(0.2),
		claudeexecutor.WithRetryPolicy(cfg.Retry),
	)
	if err != nil {
		return nil, executor.InvalidConfigError(fmt.Errorf("creating Claude executor: %w", err))
	}
	return exec, nil
}
