/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package claudetool adapts toolcall definitions and calls to the Anthropic SDK.
package claudetool

import (
	"encoding/json"
	"fmt"

	"chainguard.dev/smartfix/agents/schema"
	"chainguard.dev/smartfix/agents/toolcall"
	"github.com/anthropics/anthropic-sdk-go"
)

// ToolParam converts a definition to an Anthropic tool.
func ToolParam(def toolcall.Definition) (anthropic.ToolParam, error) {
	props, err := schema.PropertiesMap(def.Schema)
	if err != nil {
		return anthropic.ToolParam{}, fmt.Errorf("tool %s: %w", def.Name, err)
	}
	var required []string
	if def.Schema != nil {
		required = def.Schema.Required
	}
	return anthropic.ToolParam{
		Name:        def.Name,
		Description: anthropic.String(def.Description),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: props,
			Required:   required,
		},
	}, nil
}

// Tools converts the whole set to tool unions for a message request.
func Tools(set *toolcall.Set) ([]anthropic.ToolUnionParam, error) {
	defs := set.Definitions()
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		p, err := ToolParam(def)
		if err != nil {
			return nil, err
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &p})
	}
	return out, nil
}

// Call decodes a tool_use block.
func Call(block anthropic.ToolUseBlock) (toolcall.Call, error) {
	call := toolcall.Call{ID: block.ID, Name: block.Name, Args: map[string]any{}}
	if len(block.Input) == 0 {
		return call, nil
	}
	if err := json.Unmarshal(block.Input, &call.Args); err != nil {
		return call, fmt.Errorf("failed to parse tool input: %w", err)
	}
	return call, nil
}

// Result encodes a tool result block for the next user message.
func Result(id string, result map[string]any) (anthropic.ContentBlockParamUnion, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return anthropic.ContentBlockParamUnion{}, fmt.Errorf("failed to marshal tool result: %w", err)
	}
	_, isErr := result["error"]
	return anthropic.ContentBlockParamUnion{
		OfToolResult: &anthropic.ToolResultBlockParam{
			ToolUseID: id,
			IsError:   anthropic.Bool(isErr),
			Content: []anthropic.ToolResultBlockParamContentUnion{{
				OfText: &anthropic.TextBlockParam{Text: string(raw)},
			}},
		},
	}, nil
}
