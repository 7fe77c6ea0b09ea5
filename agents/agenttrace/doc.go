/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package agenttrace records what an agent did during one invocation.

A Trace spans a single call into the agent runtime: the prompt it was given,
each tool call it made, token usage and the final text. Traces are exported
as OpenTelemetry spans ("agent.execution" and "agent.tool_call") and handed
to a Tracer when they complete.

Set execution context so traces and metrics carry the remediation:

	ctx = agenttrace.WithExecutionContext(ctx, agenttrace.ExecutionContext{
		RemediationID: "rem-123",
		SessionID:     "5f0c...",
		Role:          "fix",
	})

Install a tracer and start a trace:

	ctx = agenttrace.WithTracer(ctx, agenttrace.ByCode(func(tr *agenttrace.Trace) {
		log.Printf("agent finished after %d events", tr.Events)
	}))

	trace := agenttrace.StartTrace(ctx, "Fix vulnerability: SQL injection")
	tc := trace.StartToolCall("tc1", "read_file", map[string]any{"path": "app.go"})
	tc.Complete(map[string]any{"size": 120}, nil)
	trace.Complete("<pr_body>...</pr_body>", nil)
*/
package agenttrace
