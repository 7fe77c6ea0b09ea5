/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metaagent selects and constructs the agent executor for a
// configured model.
//
// # Model Support
//
// Models are named "provider/model", with a few bare forms accepted:
//   - "anthropic/claude-…" and "claude-…" use the Anthropic API
//   - "vertex_ai/claude-…" uses Claude on Vertex AI
//   - "bedrock/…anthropic.claude-…" uses Claude on Amazon Bedrock with the
//     default AWS configuration
//   - "gemini/gemini-…" and "gemini-…" use the Gemini API
//   - "vertex_ai/gemini-…" uses Gemini on Vertex AI
//   - "openai/…", "gpt-…" and "o1"/"o3"/"o4-…" use the OpenAI API
//
// Anything else, and any provider whose credentials are missing, fails with
// an error wrapping executor.ErrInvalidLLMConfig.
//
// # Usage
//
//	tools, _ := toolcall.WorktreeTools(repo.WorktreeCallbacks())
//	agent, err := metaagent.New(ctx, metaagent.Config{
//	    Model:           "anthropic/claude-sonnet-4-5",
//	    AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	    Tools:           tools,
//	})
//	resp, err := agent.Invoke(ctx, executor.Request{...})
package metaagent
