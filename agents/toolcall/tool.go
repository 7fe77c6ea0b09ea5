/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolcall

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"chainguard.dev/smartfix/agents/agenttrace"
	"chainguard.dev/smartfix/agents/schema"
	"github.com/chainguard-dev/clog"
	"github.com/invopop/jsonschema"
)

// Call is a provider-independent tool call.
type Call struct {
	ID   string
	Name string
	Args map[string]any
}

// Definition describes a tool to the model.
type Definition struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
}

// Handler runs a tool call and returns the result sent back to the model.
type Handler func(ctx context.Context, call Call, trace *agenttrace.Trace) map[string]any

// Tool is a definition with its handler.
type Tool struct {
	Def     Definition
	Handler Handler
}

// NewTool builds a tool whose input schema is reflected from Args.
func NewTool[Args any](name, description string, handler Handler) Tool {
	return Tool{
		Def: Definition{
			Name:        name,
			Description: description,
			Schema:      schema.ReflectType[Args](),
		},
		Handler: handler,
	}
}

// Set is an ordered collection of tools addressed by name.
type Set struct {
	order []string
	tools map[string]Tool
}

// NewSet creates a set from tools. Names must be unique.
func NewSet(tools ...Tool) (*Set, error) {
	s := &Set{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := s.Add(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add registers a tool.
func (s *Set) Add(t Tool) error {
	if t.Def.Name == "" {
		return errors.New("tool has no name")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Def.Name)
	}
	if _, dup := s.tools[t.Def.Name]; dup {
		return fmt.Errorf("duplicate tool %q", t.Def.Name)
	}
	s.order = append(s.order, t.Def.Name)
	s.tools[t.Def.Name] = t
	return nil
}

// Names returns tool names in registration order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.order)
}

// Definitions returns the tool definitions in registration order.
func (s *Set) Definitions() []Definition {
	if s == nil {
		return nil
	}
	defs := make([]Definition, 0, len(s.order))
	for _, name := range s.order {
		defs = append(defs, s.tools[name].Def)
	}
	return defs
}

// Dispatch runs call against the matching tool. Unknown tools produce an
// error result rather than failing the invocation.
func (s *Set) Dispatch(ctx context.Context, call Call, trace *agenttrace.Trace) map[string]any {
	log := clog.FromContext(ctx).With("tool", call.Name).With("id", call.ID)
	var t Tool
	var ok bool
	if s != nil {
		t, ok = s.tools[call.Name]
	}
	if !ok {
		log.Error("Unknown tool requested")
		err := fmt.Errorf("unknown tool: %q", call.Name)
		trace.BadToolCall(call.ID, call.Name, call.Args, err)
		return Error("%s", err)
	}
	log.Info("Executing tool call")
	return t.Handler(ctx, call, trace)
}

// Summarize condenses a tool result to the short outcome recorded in telemetry.
func Summarize(result map[string]any) string {
	if msg, ok := result["error"]; ok {
		return fmt.Sprintf("error: %v", msg)
	}
	return "success"
}
