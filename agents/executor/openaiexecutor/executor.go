/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package openaiexecutor runs the remediation agents on the OpenAI chat
// completions API or any server compatible with it.
package openaiexecutor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chainguard.dev/smartfix/agents/agenttrace"
	"chainguard.dev/smartfix/agents/executor"
	"chainguard.dev/smartfix/agents/executor/retry"
	"chainguard.dev/smartfix/agents/metrics"
	"chainguard.dev/smartfix/agents/toolcall"
	"chainguard.dev/smartfix/agents/toolcall/openaitool"
	"github.com/chainguard-dev/clog"
	"github.com/openai/openai-go"
)

// DefaultModel is used when WithModel is not given.
const DefaultModel = "gpt-4.1"

type openaiExecutor struct {
	client       openai.Client
	model        string
	temperature  *float64
	tools        *toolcall.Set
	toolParams   []openai.ChatCompletionToolParam
	genaiMetrics *metrics.GenAI
	retryPolicy  retry.Policy
}

var _ executor.Interface = (*openaiExecutor)(nil)

// Option configures the executor.
type Option func(*openaiExecutor) error

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(e *openaiExecutor) error {
		if strings.TrimSpace(model) == "" {
			return errors.New("model cannot be empty")
		}
		e.model = model
		return nil
	}
}

// WithTemperature sets the sampling temperature (0.0 to 2.0). Reasoning
// models reject the parameter, so it is only sent when set.
func WithTemperature(temp float64) Option {
	return func(e *openaiExecutor) error {
		if temp < 0 || temp > 2 {
			return fmt.Errorf("temperature must be between 0.0 and 2.0, got %f", temp)
		}
		e.temperature = &temp
		return nil
	}
}

// WithRetryPolicy sets the backoff used for every completion call.
func WithRetryPolicy(p retry.Policy) Option {
	return func(e *openaiExecutor) error {
		e.retryPolicy = p.Normalize()
		return nil
	}
}

// New creates an OpenAI executor that exposes tools to the model.
func New(client openai.Client, tools *toolcall.Set, opts ...Option) (executor.Interface, error) {
	e := &openaiExecutor{
		client:       client,
		model:        DefaultModel,
		tools:        tools,
		genaiMetrics: metrics.NewGenAI(metrics.MeterName),
		retryPolicy:  retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	params, err := openaitool.Tools(tools)
	if err != nil {
		return nil, fmt.Errorf("building tool definitions: %w", err)
	}
	e.toolParams = params
	return e, nil
}

// Invoke runs the completion loop until the model answers without tool
// calls or the event budget is spent.
func (e *openaiExecutor) Invoke(ctx context.Context, req executor.Request) (resp *executor.Response, err error) {
	log := clog.FromContext(ctx).With("model", e.model).With("role", string(req.Role))

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
	resp = &executor.Response{Model: e.model}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Query))
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(e.model),
		Messages: messages,
		Tools:    e.toolParams,
	}
	if e.temperature != nil {
		params.Temperature = openai.Float(*e.temperature)
	}

	policy := e.retryPolicy
	policy.OnRetry = func(ctx context.Context, operation string, _ int, _ error) {
		e.genaiMetrics.RecordRetry(ctx, e.model, operation)
	}

	log.With("prompt_length", len(req.Query)).Info("Starting OpenAI agent execution")
	for {
		completion, err := retry.Do(ctx, policy, "chat_completion", retry.IsRetryable, func() (*openai.ChatCompletion, error) {
			return e.client.Chat.Completions.New(ctx, params)
		})
		if err != nil {
			log.With("error", err).Error("OpenAI completion failed")
			if executor.IsInvalidConfig(err) {
				return nil, executor.InvalidConfigError(err)
			}
			return nil, fmt.Errorf("chat completion: %w", err)
		}
		e.recordUsage(ctx, trace, resp, completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
		if len(completion.Choices) == 0 {
			return nil, errors.New("no choices in completion")
		}
		message := completion.Choices[0].Message
		if message.Content != "" {
			resp.Text = message.Content
		}

		if budget.Spend() {
			log.With("events", budget.Used()).Warn("Agent reached its event limit")
			budget.Truncate(resp)
			return resp, nil
		}
		if len(message.ToolCalls) == 0 {
			resp.Events = budget.Used()
			log.With("events", resp.Events).Info("Successfully completed OpenAI agent execution")
			return resp, nil
		}

		params.Messages = append(params.Messages, message.ToParam())
		for _, tc := range message.ToolCalls {
			e.genaiMetrics.RecordToolCall(ctx, e.model, tc.Function.Name)
			call, err := openaitool.Call(tc)
			var result map[string]any
			if err != nil {
				trace.BadToolCall(tc.ID, tc.Function.Name, map[string]any{"arguments": tc.Function.Arguments}, err)
				result = toolcall.Error("%s", err)
			} else {
				result = e.tools.Dispatch(ctx, call, trace)
			}
			resp.ToolCalls = append(resp.ToolCalls, executor.ToolCall{Name: tc.Function.Name, Result: toolcall.Summarize(result)})

			msg, err := openaitool.Result(tc.ID, result)
			if err != nil {
				return nil, err
			}
			params.Messages = append(params.Messages, msg)
			if budget.Spend() {
				log.With("events", budget.Used()).Warn("Agent reached its event limit")
				budget.Truncate(resp)
				return resp, nil
			}
		}
	}
}

func (e *openaiExecutor) recordUsage(ctx context.Context, trace *agenttrace.Trace, resp *executor.Response, prompt, completion int64) {
	if prompt == 0 && completion == 0 {
		return
	}
	e.genaiMetrics.RecordTokens(ctx, e.model, prompt, completion)
	trace.RecordTokenUsage(e.model, prompt, completion)
	resp.Usage.Add(executor.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		CostUSD:          metrics.Cost(e.model, prompt, completion),
	})
}
