/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package googleexecutor

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/smartfix/agents/agenttrace"
	"chainguard.dev/smartfix/agents/executor"
	"chainguard.dev/smartfix/agents/executor/retry"
	"chainguard.dev/smartfix/agents/metrics"
	"chainguard.dev/smartfix/agents/toolcall"
	"chainguard.dev/smartfix/agents/toolcall/googletool"
	"github.com/chainguard-dev/clog"
	"google.golang.org/genai"
)

// DefaultModel is used when WithModel is not given.
const DefaultModel = "gemini-2.5-pro"

type googleExecutor struct {
	client          *genai.Client
	model           string
	temperature     float32
	maxOutputTokens int32
	thinkingBudget  *int32
	tools           *toolcall.Set
	genaiMetrics    *metrics.GenAI
	retryPolicy     retry.Policy
}

var _ executor.Interface = (*googleExecutor)(nil)

// New creates a Gemini executor that exposes tools to the model.
func New(client *genai.Client, tools *toolcall.Set, opts ...Option) (executor.Interface, error) {
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}
	e := &googleExecutor{
		client:          client,
		model:           DefaultModel,
		temperature:     0.1,
		maxOutputTokens: 16384,
		tools:           tools,
		genaiMetrics:    metrics.NewGenAI(metrics.MeterName),
		retryPolicy:     retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return e, nil
}

// Invoke runs the chat until the model answers without function calls or
// the event budget is spent.
func (e *googleExecutor) Invoke(ctx context.Context, req executor.Request) (resp *executor.Response, err error) {
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

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(e.temperature),
		MaxOutputTokens: e.maxOutputTokens,
		Tools:           googletool.Tools(e.tools),
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if e.thinkingBudget != nil {
		config.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  e.thinkingBudget,
		}
	}

	log.Info("Creating Google AI chat session")
	chat, err := e.client.Chats.Create(ctx, e.model, config, nil)
	if err != nil {
		return nil, e.fail(fmt.Errorf("failed to create chat with model %q: %w", e.model, withStatus(err)))
	}

	policy := e.retryPolicy
	policy.OnRetry = func(ctx context.Context, operation string, _ int, _ error) {
		e.genaiMetrics.RecordRetry(ctx, e.model, operation)
	}
	send := func(operation string, parts ...*genai.Part) (*genai.GenerateContentResponse, error) {
		out, err := retry.Do(ctx, policy, operation, isRetryableVertexError, func() (*genai.GenerateContentResponse, error) {
			r, err := chat.Send(ctx, parts...)
			return r, withStatus(err)
		})
		if err != nil {
			log.With("operation", operation).With("error", err).Error("Gemini completion failed")
			return nil, e.fail(fmt.Errorf("%s: %w", operation, err))
		}
		e.recordUsage(ctx, trace, resp, out.UsageMetadata)
		return out, nil
	}

	response, err := send("send_initial_message", &genai.Part{Text: req.Query})
	if err != nil {
		return nil, err
	}

	for {
		if len(response.Candidates) == 0 {
			return nil, errors.New("no content generated - no candidates")
		}
		candidate := response.Candidates[0]

		if budget.Spend() {
			collect(candidate, resp, trace)
			log.With("events", budget.Used()).Warn("Agent reached its event limit")
			budget.Truncate(resp)
			return resp, nil
		}

		if candidate.FinishReason == genai.FinishReasonMalformedFunctionCall {
			log.With("finish_message", candidate.FinishMessage).
				Warn("Model attempted a malformed function call, asking it to retry")
			response, err = send("send_malformed_retry", &genai.Part{
				Text: fmt.Sprintf("The function call was malformed. Please try again using the available functions: %v", e.tools.Names()),
			})
			if err != nil {
				return nil, err
			}
			continue
		}

		calls := collect(candidate, resp, trace)
		if len(calls) == 0 {
			resp.Events = budget.Used()
			log.With("events", resp.Events).Info("Successfully completed Gemini agent execution")
			return resp, nil
		}

		parts := make([]*genai.Part, 0, len(calls))
		exhausted := false
		for _, fc := range calls {
			e.genaiMetrics.RecordToolCall(ctx, e.model, fc.Name)
			call := googletool.Call(fc)
			result := e.tools.Dispatch(ctx, call, trace)
			resp.ToolCalls = append(resp.ToolCalls, executor.ToolCall{Name: call.Name, Result: toolcall.Summarize(result)})
			parts = append(parts, googletool.Response(call, result))
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

		response, err = send("send_tool_responses", parts...)
		if err != nil {
			return nil, err
		}
	}
}

func partsOf(c *genai.Candidate) []*genai.Part {
	if c == nil || c.Content == nil {
		return nil
	}
	return c.Content.Parts
}

// collect keeps the last answer text of the candidate on resp, records
// thoughts on trace and returns the function calls.
func collect(c *genai.Candidate, resp *executor.Response, trace *agenttrace.Trace) []*genai.FunctionCall {
	var calls []*genai.FunctionCall
	for _, part := range partsOf(c) {
		switch {
		case part.Thought:
			trace.AddReasoning(part.Text)
		case part.FunctionCall != nil:
			calls = append(calls, part.FunctionCall)
		case part.Text != "":
			resp.Text = part.Text
		}
	}
	return calls
}

func (e *googleExecutor) fail(err error) error {
	if executor.IsInvalidConfig(err) {
		return executor.InvalidConfigError(err)
	}
	return err
}

func (e *googleExecutor) recordUsage(ctx context.Context, trace *agenttrace.Trace, resp *executor.Response, usage *genai.GenerateContentResponseUsageMetadata) {
	if usage == nil {
		return
	}
	prompt, completion := int64(usage.PromptTokenCount), int64(usage.CandidatesTokenCount)
	e.genaiMetrics.RecordTokens(ctx, e.model, prompt, completion)
	trace.RecordTokenUsage(e.model, prompt, completion)
	resp.Usage.Add(executor.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		CostUSD:          metrics.Cost(e.model, prompt, completion),
	})
}
