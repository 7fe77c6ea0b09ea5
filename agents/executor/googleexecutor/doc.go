/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package googleexecutor runs the remediation agents on Gemini through the
// google.golang.org/genai chat API, against either the Gemini API or Vertex AI.
//
//	client, _ := genai.NewClient(ctx, &genai.ClientConfig{
//	    APIKey:  key,
//	    Backend: genai.BackendGeminiAPI,
//	})
//	exec, err := googleexecutor.New(client, tools, googleexecutor.WithModel("gemini-2.5-pro"))
//
// Function calls are dispatched to the worktree tools and their responses
// sent back on the same chat. A malformed function call costs one event
// and the model is asked to try again.
package googleexecutor
