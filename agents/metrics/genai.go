/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName is shared by every executor; the model is a dimension.
const MeterName = "chainguard.dev/smartfix/agents"

// GenAI provides OpenTelemetry metrics for completion calls. Counters that
// fail to initialize degrade to no-ops.
type GenAI struct {
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	toolCalls        metric.Int64Counter
	retries          metric.Int64Counter
	cost             metric.Float64Counter
	attrEnricher     AttributeEnricher
}

// NewGenAI creates GenAI metrics on the named meter. Attributes are enriched
// from the agenttrace execution context unless SetAttributeEnricher overrides it.
func NewGenAI(meterName string) *GenAI {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))

	int64Counter := func(name, desc, unit string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		if err != nil {
			slog.Warn("Failed to create counter, metric will be disabled", "error", err, "meter", meterName, "counter", name)
			return noop.Int64Counter{}
		}
		return c
	}

	cost, err := meter.Float64Counter("genai.cost",
		metric.WithDescription("Estimated cost of completion calls"),
		metric.WithUnit("USD"))
	if err != nil {
		slog.Warn("Failed to create cost counter, metric will be disabled", "error", err, "meter", meterName)
		cost = noop.Float64Counter{}
	}

	return &GenAI{
		promptTokens:     int64Counter("genai.token.prompt", "The number of prompt tokens used", "{tokens}"),
		completionTokens: int64Counter("genai.token.completion", "The number of completion tokens used", "{tokens}"),
		toolCalls:        int64Counter("genai.tool.calls", "The number of tool calls made during execution", "{calls}"),
		retries:          int64Counter("genai.retries", "The number of retried completion calls", "{retries}"),
		cost:             cost,
		attrEnricher:     executionContextEnricher,
	}
}

// SetAttributeEnricher replaces the attribute enricher.
func (m *GenAI) SetAttributeEnricher(enricher AttributeEnricher) {
	m.attrEnricher = enricher
}

func (m *GenAI) attrs(ctx context.Context, base []attribute.KeyValue, extra []attribute.KeyValue) metric.MeasurementOption {
	if m.attrEnricher != nil {
		base = m.attrEnricher(ctx, base)
	}
	return metric.WithAttributes(append(base, extra...)...)
}

// RecordTokens records prompt and completion token usage and the derived cost.
func (m *GenAI) RecordTokens(ctx context.Context, model string, promptTokens, completionTokens int64, attrs ...attribute.KeyValue) {
	opt := m.attrs(ctx, []attribute.KeyValue{attribute.String("model", model)}, attrs)
	m.promptTokens.Add(ctx, promptTokens, opt)
	m.completionTokens.Add(ctx, completionTokens, opt)
	if c := Cost(model, promptTokens, completionTokens); c > 0 {
		m.cost.Add(ctx, c, opt)
	}
}

// RecordToolCall records a tool invocation.
func (m *GenAI) RecordToolCall(ctx context.Context, model, toolName string, attrs ...attribute.KeyValue) {
	m.toolCalls.Add(ctx, 1, m.attrs(ctx, []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("tool", toolName),
	}, attrs))
}

// RecordRetry records a retried completion call.
func (m *GenAI) RecordRetry(ctx context.Context, model, operation string) {
	m.retries.Add(ctx, 1, m.attrs(ctx, []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("operation", operation),
	}, nil))
}
