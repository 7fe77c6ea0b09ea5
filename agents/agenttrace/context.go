/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// ExecutionContext identifies the remediation an agent invocation belongs to.
type ExecutionContext struct {
	RemediationID     string `json:"remediation_id,omitempty"`
	SessionID         string `json:"session_id,omitempty"`
	VulnerabilityUUID string `json:"vulnerability_uuid,omitempty"`
	Role              string `json:"role,omitempty"`       // "fix" or "qa"
	QAAttempt         int    `json:"qa_attempt,omitempty"` // 0 for the fix agent
}

// EnrichAttributes adds the bounded execution context labels to baseAttrs.
// Remediation and session identifiers stay on spans only.
func (e ExecutionContext) EnrichAttributes(baseAttrs []attribute.KeyValue) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, len(baseAttrs), len(baseAttrs)+2)
	copy(attrs, baseAttrs)
	if e.Role != "" {
		attrs = append(attrs, attribute.String("agent_role", e.Role))
	}
	attrs = append(attrs, attribute.Int("qa_attempt", e.QAAttempt))
	return attrs
}

func (e ExecutionContext) spanAttributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if e.RemediationID != "" {
		attrs = append(attrs, attribute.String("remediation_id", e.RemediationID))
	}
	if e.SessionID != "" {
		attrs = append(attrs, attribute.String("session_id", e.SessionID))
	}
	if e.VulnerabilityUUID != "" {
		attrs = append(attrs, attribute.String("vulnerability_uuid", e.VulnerabilityUUID))
	}
	if e.Role != "" {
		attrs = append(attrs, attribute.String("agent_role", e.Role))
	}
	return attrs
}

type contextKey string

const executionContextKey contextKey = "execution_context"

// WithExecutionContext adds execution context to the Go context.
func WithExecutionContext(ctx context.Context, execCtx ExecutionContext) context.Context {
	return context.WithValue(ctx, executionContextKey, execCtx)
}

// GetExecutionContext retrieves execution context from the Go context.
func GetExecutionContext(ctx context.Context) ExecutionContext {
	if execCtx, ok := ctx.Value(executionContextKey).(ExecutionContext); ok {
		return execCtx
	}
	return ExecutionContext{}
}
