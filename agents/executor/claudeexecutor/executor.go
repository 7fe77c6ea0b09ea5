/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package claudeexecutor

import (
	"context"
	"fmt"

	"chainguard.dev/smartfix/agents/agenttrace"
	"chainguard.dev/smartfix/agents/executor"
	"chainguard.dev/smartfix/agents/executor/retry"
	"chainguard.dev/smartfix/agents/metrics"
	"chainguard.dev/smartfix/agents/toolcall"
	"chainguard.dev/smartfix/agents/toolcall/claudetool"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/chainguard-dev/clog"
)

// DefaultModel is used when WithModel is not given.
const DefaultModel = "claude-sonnet-4-5"

type claudeExecutor struct {
	client               anthropic.Client
	modelName            string
	maxTokens            int64
	temperature          float64
	thinkingBudgetTokens *int64 // nil = disabled
	tools                *toolcall.Set
	toolParams           []anthropic.ToolUnionParam
	genaiMetrics         *metrics.GenAI
	retryPolicy          retry.Policy
}

var _ executor.Interface = (*claudeExecutor)(nil)

// New creates a Claude executor that exposes tools to the model.
func New(client anthropic.Client, tools *toolcall.Set, opts ...Option) (executor.Interface, error) {
	e := &claudeExecutor{
		client:       client,
		modelName:    DefaultModel,
		maxTokens:    16384,
		temperature:  0.1,
		tools:        tools,
		genaiMetrics: metrics.NewGenAI(metrics.MeterName),
		retryPolicy:  retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	params, err := claudetool.Tools(tools)
	if err != nil {
		return nil, fmt.Errorf("building tool definitions: %w", err)
	}
	e.toolParams = params
	return e, nil
}

// Invoke runs the conversation loop until the model stops calling tools or
// the event budget is spent.
func (e *claudeExecutor) Invoke(ctx context.Context, req executor.Request) (resp *executor.Response, err error) {
	log := clog.FromContext(ctx).With("model", e.modelName).With("role", string(req.Role))

	trace := agenttrace.StartTrace(ctx, req.Query)
	defer func() {
		result := ""
		if resp != nil {
			result = resp.Text
			trace.RecordEvents(resp.Events, resp.Truncated)
		}
		trace.Complete(result, err)
	}()

	budget := executor.NewBudget(req.MaxEvents)
	resp = &executor.Response{Model: e.modelName}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.modelName),
		MaxTokens: e.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Query)),
		},
		Tools:       e.toolParams,
		Temperature: anthropic.Float(e.temperature),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if e.thinkingBudgetTokens != nil {
		// Extended thinking requires a temperature of 1.
		params.Temperature = anthropic.Float(1.0)
		params.Thinking = anthropic.ThinkingConfigParamUnion{
			OfEnabled: &anthropic.ThinkingConfigEnabledParam{BudgetTokens: *e.thinkingBudgetTokens},
		}
	}

	log.With("prompt_length", len(req.Query)).With("max_events", budget.Max()).Info("Starting Claude agent execution")

	policy := e.retryPolicy
	policy.OnRetry = func(ctx context.Context, operation string, _ int, _ error) {
		e.genaiMetrics.RecordRetry(ctx, e.modelName, operation)
	}

	for {
		message, err := retry.Do(ctx, policy, "stream_message", isRetryableClaudeError, func() (anthropic.Message, error) {
			return e.stream(ctx, params)
		})
		if err != nil {
			log.With("error", err).Error("Claude completion failed")
			if executor.IsInvalidConfig(err) {
				return nil, executor.InvalidConfigError(err)
			}
			return nil, fmt.Errorf("failed to stream Claude response: %w", err)
		}

		e.recordUsage(ctx, trace, resp, message.Usage.InputTokens, message.Usage.OutputTokens)

		var toolUses []anthropic.ToolUseBlock
		for _, block := range message.Content {
			switch block := block.AsAny().(type) {
			case anthropic.TextBlock:
				if block.Text != "" {
					resp.Text = block.Text
				}
			case anthropic.ToolUseBlock:
				toolUses = append(toolUses, block)
			case anthropic.ThinkingBlock:
				trace.AddReasoning(block.Thinking)
			}
		}

		if budget.Spend() {
			log.With("events", budget.Used()).Warn("Agent reached its event limit")
			budget.Truncate(resp)
			return resp, nil
		}
		if len(toolUses) == 0 {
			resp.Events = budget.Used()
			log.With("events", resp.Events).Info("Successfully completed Claude agent execution")
			return resp, nil
		}

		params.Messages = append(params.Messages, message.ToParam())
		results := make([]anthropic.ContentBlockParamUnion, 0, len(toolUses))
		exhausted := false
		for _, use := range toolUses {
			block, err := e.runTool(ctx, trace, resp, use)
			if err != nil {
				return nil, err
			}
			results = append(results, block)
			if budget.Spend() {
				exhausted = true
				break
			}
		}
		if exhausted {
			log.With("events", budget.Used()).Warn("Agent reached its event limit")
			budget.Truncate(resp)
			return resp, nil
		}
		params.Messages = append(params.Messages, anthropic.NewUserMessage(results...))
	}
}

// stream consumes one streamed model turn. The stream is always closed with
// a bounded wait so an abandoned connection cannot stall the caller.
func (e *claudeExecutor) stream(ctx context.Context, params anthropic.MessageNewParams) (anthropic.Message, error) {
	stream := e.client.Messages.NewStreaming(ctx, params)
	defer executor.CloseWithTimeout(ctx, stream, executor.StreamCloseTimeout)

	var msg anthropic.Message
	for stream.Next() {
		if err := msg.Accumulate(stream.Current()); err != nil {
			return msg, fmt.Errorf("failed to accumulate event: %w", err)
		}
	}
	return msg, stream.Err()
}

func (e *claudeExecutor) runTool(ctx context.Context, trace *agenttrace.Trace, resp *executor.Response, use anthropic.ToolUseBlock) (anthropic.ContentBlockParamUnion, error) {
	e.genaiMetrics.RecordToolCall(ctx, e.modelName, use.Name)

	call, err := claudetool.Call(use)
	var result map[string]any
	if err != nil {
		trace.BadToolCall(use.ID, use.Name, map[string]any{"input": string(use.Input)}, err)
		result = toolcall.Error("%s", err)
	} else {
		result = e.tools.Dispatch(ctx, call, trace)
	}
	resp.ToolCalls = append(resp.ToolCalls, executor.ToolCall{Name: use.Name, Result: toolcall.Summarize(result)})
	return claudetool.Result(use.ID, result)
}

func (e *claudeExecutor) recordUsage(ctx context.Context, trace *agenttrace.Trace, resp *executor.Response, prompt, completion int64) {
	if prompt == 0 && completion == 0 {
		return
	}
	e.genaiMetrics.RecordTokens(ctx, e.modelName, prompt, completion)
	trace.RecordTokenUsage(e.modelName, prompt, completion)
	resp.Usage.Add(executor.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		CostUSD:          metrics.Cost(e.modelName, prompt, completion),
	})
}
