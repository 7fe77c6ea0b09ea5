/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metaagent

import (
	"chainguard.dev/smartfix/agents/executor/retry"
	"chainguard.dev/smartfix/agents/toolcall"
)

// Config defines the configuration for an agent executor.
type Config struct {
	// Model is the "provider/model" name to route.
	Model string

	AnthropicAPIKey string
	GeminiAPIKey    string
	OpenAIAPIKey    string
	// OpenAIBaseURL points the OpenAI client at a compatible server.
	OpenAIBaseURL string

	// Project and Region are used by the Vertex AI providers.
	Project string
	Region  string
	// AWSRegion overrides the region of the AWS configuration used for
	// Bedrock models.
	AWSRegion string

	// Retry is applied to every completion call.
	Retry retry.Policy

	// Tools are exposed to the model.
	Tools *toolcall.Set
}
