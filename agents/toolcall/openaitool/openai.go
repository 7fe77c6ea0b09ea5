/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package openaitool adapts toolcall definitions and calls to the OpenAI SDK.
package openaitool

import (
	"encoding/json"
	"fmt"

	"chainguard.dev/smartfix/agents/schema"
	"chainguard.dev/smartfix/agents/toolcall"
	"github.com/openai/openai-go"
)

// Tools converts the set to chat completion tools.
func Tools(set *toolcall.Set) ([]openai.ChatCompletionToolParam, error) {
	defs := set.Definitions()
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		params, err := schema.ToMap(def.Schema)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", def.Name, err)
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  openai.FunctionParameters(params),
			},
		})
	}
	return out, nil
}

// Call decodes a function tool call.
func Call(tc openai.ChatCompletionMessageToolCall) (toolcall.Call, error) {
	call := toolcall.Call{ID: tc.ID, Name: tc.Function.Name, Args: map[string]any{}}
	if tc.Function.Arguments == "" {
		return call, nil
	}
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &call.Args); err != nil {
		return call, fmt.Errorf("failed to parse tool arguments: %w", err)
	}
	return call, nil
}

// Result encodes a tool result message.
func Result(id string, result map[string]any) (openai.ChatCompletionMessageParamUnion, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return openai.ToolMessage(string(raw), id), nil
}
