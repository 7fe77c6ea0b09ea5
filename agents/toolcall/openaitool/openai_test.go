/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package openaitool_test

import (
	"context"
	"testing"

	"chainguard.dev/smartfix/agents/agenttrace"
	"chainguard.dev/smartfix/agents/toolcall"
	"chainguard.dev/smartfix/agents/toolcall/openaitool"
	"github.com/google/go-cmp/cmp"
	"github.com/openai/openai-go"
)

type pingArgs struct {
	Host string `json:"host" jsonschema:"required"`
}

func TestTools(t *testing.T) {
	set, err := toolcall.NewSet(toolcall.NewTool[pingArgs]("ping", "Ping a host.",
		func(context.Context, toolcall.Call, *agenttrace.Trace) map[string]any { return nil }))
	if err != nil {
		t.Fatal(err)
	}
	tools, err := openaitool.Tools(set)
	if err != nil {
		t.Fatalf("Tools() error: %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("len(tools) = %d, want 1", len(tools))
	}
	fn := tools[0].Function
	if fn.Name != "ping" {
		t.Errorf("Name = %q", fn.Name)
	}
	if got := fn.Parameters["type"]; got != "object" {
		t.Errorf("parameters type = %v, want object", got)
	}
}

func TestCall(t *testing.T) {
	tc := openai.ChatCompletionMessageToolCall{ID: "call_1"}
	tc.Function.Name = "ping"
	tc.Function.Arguments = `{"host":"example.com"}`

	call, err := openaitool.Call(tc)
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	want := toolcall.Call{ID: "call_1", Name: "ping", Args: map[string]any{"host": "example.com"}}
	if diff := cmp.Diff(want, call); diff != "" {
		t.Errorf("Call (-want, +got): %s", diff)
	}

	tc.Function.Arguments = "{"
	if _, err := openaitool.Call(tc); err == nil {
		t.Error("Call() accepted malformed arguments")
	}
}
