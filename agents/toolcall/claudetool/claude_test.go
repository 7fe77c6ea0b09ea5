/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package claudetool_test

import (
	"context"
	"encoding/json"
	"testing"

	"chainguard.dev/smartfix/agents/agenttrace"
	"chainguard.dev/smartfix/agents/toolcall"
	"chainguard.dev/smartfix/agents/toolcall/claudetool"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/go-cmp/cmp"
)

type echoArgs struct {
	Text string `json:"text" jsonschema:"required,description=Text to echo"`
}

func echoSet(t *testing.T) *toolcall.Set {
	t.Helper()
	set, err := toolcall.NewSet(toolcall.NewTool[echoArgs]("echo", "Echo text back.",
		func(_ context.Context, call toolcall.Call, trace *agenttrace.Trace) map[string]any {
			text, errResp := toolcall.Param[string](call, trace, "text")
			if errResp != nil {
				return errResp
			}
			return map[string]any{"text": text}
		}))
	if err != nil {
		t.Fatal(err)
	}
	return set
}

func TestTools(t *testing.T) {
	tools, err := claudetool.Tools(echoSet(t))
	if err != nil {
		t.Fatalf("Tools() error: %v", err)
	}
	if len(tools) != 1 || tools[0].OfTool == nil {
		t.Fatalf("Tools() = %+v", tools)
	}
	tool := tools[0].OfTool
	if tool.Name != "echo" {
		t.Errorf("Name = %q", tool.Name)
	}
	if diff := cmp.Diff([]string{"text"}, tool.InputSchema.Required); diff != "" {
		t.Errorf("Required (-want, +got): %s", diff)
	}
	props, ok := tool.InputSchema.Properties.(map[string]any)
	if !ok {
		t.Fatalf("Properties type = %T", tool.InputSchema.Properties)
	}
	want := map[string]any{"text": map[string]any{"type": "string", "description": "Text to echo"}}
	if diff := cmp.Diff(want, props); diff != "" {
		t.Errorf("Properties (-want, +got): %s", diff)
	}
}

func TestCallAndResult(t *testing.T) {
	call, err := claudetool.Call(anthropic.ToolUseBlock{ID: "tu_1", Name: "echo", Input: json.RawMessage(`{"text":"hi"}`)})
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if diff := cmp.Diff(toolcall.Call{ID: "tu_1", Name: "echo", Args: map[string]any{"text": "hi"}}, call); diff != "" {
		t.Errorf("Call (-want, +got): %s", diff)
	}

	if _, err := claudetool.Call(anthropic.ToolUseBlock{ID: "tu_2", Input: json.RawMessage(`{not json`)}); err == nil {
		t.Error("Call() accepted malformed input")
	}

	block, err := claudetool.Result("tu_1", map[string]any{"error": "boom"})
	if err != nil {
		t.Fatalf("Result() error: %v", err)
	}
	if block.OfToolResult == nil || block.OfToolResult.ToolUseID != "tu_1" {
		t.Fatalf("Result() = %+v", block)
	}
	if got := block.OfToolResult.Content[0].OfText.Text; got != `{"error":"boom"}` {
		t.Errorf("result text = %q", got)
	}
}
