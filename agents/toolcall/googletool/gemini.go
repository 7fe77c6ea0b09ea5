/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package googletool adapts toolcall definitions and calls to the Gemini SDK.
package googletool

import (
	"fmt"
	"strings"

	"chainguard.dev/smartfix/agents/toolcall"
	"github.com/invopop/jsonschema"
	"google.golang.org/genai"
)

// Declaration converts a definition to a Gemini function declaration.
func Declaration(def toolcall.Definition) *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        def.Name,
		Description: def.Description,
		Parameters:  Schema(def.Schema),
	}
}

// Tools bundles the whole set as one Gemini tool.
func Tools(set *toolcall.Set) []*genai.Tool {
	defs := set.Definitions()
	if len(defs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		decls = append(decls, Declaration(def))
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// Schema converts a reflected JSON schema to the Gemini schema subset.
func Schema(s *jsonschema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(s.Type)),
		Description: s.Description,
		Required:    s.Required,
		Items:       Schema(s.Items),
	}
	if out.Type == "" && s.Properties != nil {
		out.Type = genai.TypeObject
	}
	for _, e := range s.Enum {
		out.Enum = append(out.Enum, fmt.Sprint(e))
	}
	if s.Properties != nil && s.Properties.Len() > 0 {
		out.Properties = make(map[string]*genai.Schema, s.Properties.Len())
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			out.Properties[pair.Key] = Schema(pair.Value)
			out.PropertyOrdering = append(out.PropertyOrdering, pair.Key)
		}
	}
	return out
}

// Call converts a Gemini function call.
func Call(fc *genai.FunctionCall) toolcall.Call {
	args := fc.Args
	if args == nil {
		args = map[string]any{}
	}
	return toolcall.Call{ID: fc.ID, Name: fc.Name, Args: args}
}

// Response wraps a tool result for the next chat turn.
func Response(call toolcall.Call, result map[string]any) *genai.Part {
	return &genai.Part{FunctionResponse: &genai.FunctionResponse{
		ID:       call.ID,
		Name:     call.Name,
		Response: result,
	}}
}
