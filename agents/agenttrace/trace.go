/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "chainguard.dev/smartfix/agents/agenttrace"

func tracer() oteltrace.Tracer {
	return otel.Tracer(instrumentationName, oteltrace.WithInstrumentationVersion("1.0.0"))
}

// ReasoningContent is internal reasoning emitted by a model.
type ReasoningContent struct {
	Thinking string `json:"thinking"`
}

// ToolCall is a single tool invocation within a trace.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Params    map[string]any `json:"params"`
	Result    any            `json:"result"`
	Error     error          `json:"error,omitempty"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`

	trace *Trace
	mu    sync.Mutex
	span  oteltrace.Span
}

// Trace is one agent invocation from prompt to final text.
type Trace struct {
	ID               string             `json:"id"`
	InputPrompt      string             `json:"input_prompt"`
	ExecContext      ExecutionContext   `json:"exec_context,omitempty"`
	Model            string             `json:"model,omitempty"`
	ToolCalls        []*ToolCall        `json:"tool_calls"`
	Reasoning        []ReasoningContent `json:"reasoning,omitempty"`
	Result           string             `json:"result"`
	Error            error              `json:"error,omitempty"`
	Events           int                `json:"events"`
	Truncated        bool               `json:"truncated,omitempty"`
	PromptTokens     int64              `json:"prompt_tokens"`
	CompletionTokens int64              `json:"completion_tokens"`
	StartTime        time.Time          `json:"start_time"`
	EndTime          time.Time          `json:"end_time"`

	tracer Tracer
	mu     sync.Mutex
	ctx    context.Context
	span   oteltrace.Span
}

func newTrace(ctx context.Context, t Tracer, prompt string) *Trace {
	execCtx := GetExecutionContext(ctx)
	attrs := append(execCtx.spanAttributes(), attribute.Int("agent.prompt_length", len(prompt)))
	ctx, span := tracer().Start(ctx, "agent.execution", oteltrace.WithAttributes(attrs...))

	return &Trace{
		ID:          generateTraceID(),
		InputPrompt: prompt,
		ExecContext: execCtx,
		ToolCalls:   []*ToolCall{},
		StartTime:   time.Now(),
		tracer:      t,
		ctx:         ctx,
		span:        span,
	}
}

// Context returns the context carrying the trace span.
func (t *Trace) Context() context.Context {
	return t.ctx
}

// StartToolCall starts a tool call span.
func (t *Trace) StartToolCall(id, name string, params map[string]any) *ToolCall {
	_, span := tracer().Start(t.ctx, "agent.tool_call", oteltrace.WithAttributes(
		attribute.String("tool.name", name),
		attribute.String("tool.id", id),
	))
	return &ToolCall{
		ID:        id,
		Name:      name,
		Params:    params,
		StartTime: time.Now(),
		trace:     t,
		span:      span,
	}
}

// BadToolCall records a call that failed before running, such as an unknown
// tool or a missing parameter.
func (t *Trace) BadToolCall(id, name string, params map[string]any, err error) {
	_, span := tracer().Start(t.ctx, "agent.tool_call", oteltrace.WithAttributes(
		attribute.String("tool.name", name),
		attribute.String("tool.id", id),
		attribute.String("error", err.Error()),
	))
	span.SetStatus(codes.Error, err.Error())
	span.End()

	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ToolCalls = append(t.ToolCalls, &ToolCall{
		ID:        id,
		Name:      name,
		Params:    params,
		Error:     err,
		StartTime: now,
		EndTime:   now,
		trace:     t,
	})
}

// RecordTokenUsage accumulates token usage and mirrors it on the span.
func (t *Trace) RecordTokenUsage(model string, promptTokens, completionTokens int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Model = model
	t.PromptTokens += promptTokens
	t.CompletionTokens += completionTokens
	if t.span != nil {
		t.span.SetAttributes(
			attribute.String("model", model),
			attribute.Int64("tokens.input", t.PromptTokens),
			attribute.Int64("tokens.output", t.CompletionTokens),
			attribute.Int64("tokens.total", t.PromptTokens+t.CompletionTokens),
		)
	}
}

// RecordEvents stores how many events the invocation consumed.
func (t *Trace) RecordEvents(events int, truncated bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Events = events
	t.Truncated = truncated
	if t.span != nil {
		t.span.SetAttributes(attribute.Int("agent.events", events), attribute.Bool("agent.truncated", truncated))
	}
}

// AddReasoning appends a reasoning block.
func (t *Trace) AddReasoning(thinking string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Reasoning = append(t.Reasoning, ReasoningContent{Thinking: thinking})
}

// Complete ends the tool call and attaches it to its trace.
func (tc *ToolCall) Complete(result any, err error) {
	tc.mu.Lock()
	tc.Result = result
	tc.Error = err
	tc.EndTime = time.Now()
	trace, span := tc.trace, tc.span
	tc.mu.Unlock()

	endSpan(span, err)

	trace.mu.Lock()
	defer trace.mu.Unlock()
	trace.ToolCalls = append(trace.ToolCalls, tc)
}

// Duration returns how long the tool call took.
func (tc *ToolCall) Duration() time.Duration {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return elapsed(tc.StartTime, tc.EndTime)
}

// Complete ends the trace and hands it to the tracer.
func (t *Trace) Complete(result string, err error) {
	t.mu.Lock()
	t.Result = result
	t.Error = err
	t.EndTime = time.Now()
	tr, span := t.tracer, t.span
	t.mu.Unlock()

	endSpan(span, err)
	if tr != nil {
		tr.RecordTrace(t)
	}
}

// Duration returns the total duration of the trace.
func (t *Trace) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return elapsed(t.StartTime, t.EndTime)
}

// String renders the trace for logs.
func (t *Trace) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Trace %s (%s) ===\n", t.ID, t.ExecContext.Role)
	fmt.Fprintf(&sb, "Prompt: %q\n", clip(t.InputPrompt, 200))
	fmt.Fprintf(&sb, "Duration: %v\n", elapsed(t.StartTime, t.EndTime))
	fmt.Fprintf(&sb, "Events: %d (truncated: %t)\n", t.Events, t.Truncated)
	fmt.Fprintf(&sb, "Tokens: %d prompt, %d completion\n", t.PromptTokens, t.CompletionTokens)

	if len(t.ToolCalls) == 0 {
		sb.WriteString("\nNo tool calls\n")
	} else {
		fmt.Fprintf(&sb, "\nTool Calls (%d):\n", len(t.ToolCalls))
		for i, tc := range t.ToolCalls {
			fmt.Fprintf(&sb, "  [%d] %s (ID: %s) %v\n", i+1, tc.Name, tc.ID, elapsed(tc.StartTime, tc.EndTime))
			if tc.Error != nil {
				fmt.Fprintf(&sb, "      Error: %v\n", tc.Error)
			}
		}
	}

	sb.WriteString("\nCompletion:\n")
	if t.Error != nil {
		fmt.Fprintf(&sb, "  Error: %v\n", t.Error)
	} else {
		fmt.Fprintf(&sb, "  Result: %s\n", clip(t.Result, 500))
	}
	return sb.String()
}

func endSpan(span oteltrace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func elapsed(start, end time.Time) time.Duration {
	if end.IsZero() {
		return time.Since(start)
	}
	return end.Sub(start)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// generateTraceID returns YYYYMMDD-HHMMSS-RRRRRRRR with a random hex suffix.
func generateTraceID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102-150405.000000")
	}
	return fmt.Sprintf("%s-%s", time.Now().Format("20060102-150405"), hex.EncodeToString(b))
}
