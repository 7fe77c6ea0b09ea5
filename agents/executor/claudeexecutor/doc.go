/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package claudeexecutor runs the remediation agents on Anthropic Claude,
// either with an API key or through Vertex AI.
//
// The executor streams each model turn, dispatches tool_use blocks to the
// worktree tools it was built with, and feeds the results back until the
// model stops calling tools or the event budget runs out:
//
//	client := anthropic.NewClient(option.WithAPIKey(key))
//	tools, _ := toolcall.WorktreeTools(repo.WorktreeCallbacks())
//	exec, err := claudeexecutor.New(client, tools,
//	    claudeexecutor.WithModel("claude-sonnet-4-5"),
//	    claudeexecutor.WithRetryPolicy(policy),
//	)
//	resp, err := exec.Invoke(ctx, executor.Request{
//	    Role:         executor.RoleFix,
//	    SystemPrompt: system,
//	    Query:        user,
//	    MaxEvents:    120,
//	})
//
// Every completion call is wrapped in retry.Do. Credential and model errors
// are returned wrapped in executor.ErrInvalidLLMConfig.
package claudeexecutor
