/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package claudeexecutor_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"chainguard.dev/smartfix/agents/executor"
	"chainguard.dev/smartfix/agents/executor/claudeexecutor"
	"chainguard.dev/smartfix/agents/executor/retry"
	"chainguard.dev/smartfix/agents/toolcall"
	"chainguard.dev/smartfix/agents/toolcall/callbacks"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type turn struct {
	text    string
	toolUse string // tool name; empty for a final answer
	status  int
}

func sse(w io.Writer, event string, data any) {
	raw, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, raw)
}

func writeTurn(w http.ResponseWriter, n int, tr turn) {
	if tr.status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(tr.status)
		fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	sse(w, "message_start", map[string]any{"type": "message_start", "message": map[string]any{
		"id": fmt.Sprintf("msg_%d", n), "type": "message", "role": "assistant", "model": "claude-sonnet-4-5",
		"content": []any{}, "stop_reason": nil, "stop_sequence": nil,
		"usage": map[string]any{"input_tokens": 10, "output_tokens": 1},
	}})
	idx := 0
	if tr.text != "" {
		sse(w, "content_block_start", map[string]any{"type": "content_block_start", "index": idx, "content_block": map[string]any{"type": "text", "text": ""}})
		sse(w, "content_block_delta", map[string]any{"type": "content_block_delta", "index": idx, "delta": map[string]any{"type": "text_delta", "text": tr.text}})
		sse(w, "content_block_stop", map[string]any{"type": "content_block_stop", "index": idx})
		idx++
	}
	stop := "end_turn"
	if tr.toolUse != "" {
		stop = "tool_use"
		input, _ := json.Marshal(map[string]any{"reasoning": "inspect", "path": "main.go"})
		sse(w, "content_block_start", map[string]any{"type": "content_block_start", "index": idx, "content_block": map[string]any{
			"type": "tool_use", "id": fmt.Sprintf("tu_%d", n), "name": tr.toolUse, "input": map[string]any{},
		}})
		sse(w, "content_block_delta", map[string]any{"type": "content_block_delta", "index": idx, "delta": map[string]any{"type": "input_json_delta", "partial_json": string(input)}})
		sse(w, "content_block_stop", map[string]any{"type": "content_block_stop", "index": idx})
	}
	sse(w, "message_delta", map[string]any{"type": "message_delta", "delta": map[string]any{"stop_reason": stop, "stop_sequence": nil}, "usage": map[string]any{"output_tokens": 5}})
	sse(w, "message_stop", map[string]any{"type": "message_stop"})
}

// fakeAnthropic serves turns in order, repeating the last one.
func fakeAnthropic(t *testing.T, turns ...turn) (*httptest.Server, *atomic.Int32, func(int) string) {
	t.Helper()
	var calls atomic.Int32
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()
		n := int(calls.Add(1))
		writeTurn(w, n, turns[min(n, len(turns))-1])
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, func(i int) string {
		mu.Lock()
		defer mu.Unlock()
		return bodies[i]
	}
}

func worktreeTools(t *testing.T) *toolcall.Set {
	t.Helper()
	set, err := toolcall.WorktreeTools(callbacks.WorktreeCallbacks{
		ReadFile:      func(context.Context, string) (string, error) { return "package main\n", nil },
		WriteFile:     func(context.Context, string, string, os.FileMode) error { return nil },
		DeleteFile:    func(context.Context, string) error { return nil },
		ListDirectory: func(context.Context, string) ([]string, error) { return nil, nil },
		SearchCodebase: func(context.Context, string) ([]callbacks.Match, error) {
			return nil, nil
		},
	})
	require.NoError(t, err)
	return set
}

func newExecutor(t *testing.T, srv *httptest.Server, opts ...claudeexecutor.Option) executor.Interface {
	t.Helper()
	client := anthropic.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(srv.URL),
		option.WithMaxRetries(0),
	)
	exec, err := claudeexecutor.New(client, worktreeTools(t), opts...)
	require.NoError(t, err)
	return exec
}

func TestInvokeTextOnly(t *testing.T) {
	srv, calls, body := fakeAnthropic(t, turn{text: "Done. <pr_body>fixed</pr_body>"})
	exec := newExecutor(t, srv)

	resp, err := exec.Invoke(context.Background(), executor.Request{Role: executor.RoleFix, SystemPrompt: "be careful", Query: "fix it"})
	require.NoError(t, err)
	assert.Equal(t, "Done. <pr_body>fixed</pr_body>", resp.Text)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, resp.Events)
	assert.False(t, resp.Truncated)
	assert.Equal(t, int64(10), resp.Usage.PromptTokens)
	assert.Equal(t, int64(5), resp.Usage.CompletionTokens)
	assert.Greater(t, resp.Usage.CostUSD, 0.0)
	assert.Contains(t, body(0), `"be careful"`)
	assert.Contains(t, body(0), `"read_file"`)
}

func TestInvokeToolLoop(t *testing.T) {
	srv, calls, body := fakeAnthropic(t,
		turn{text: "Let me look.", toolUse: toolcall.ToolReadFile},
		turn{text: "All fixed."},
	)
	exec := newExecutor(t, srv)

	resp, err := exec.Invoke(context.Background(), executor.Request{Role: executor.RoleQA, Query: "review"})
	require.NoError(t, err)
	assert.Equal(t, "All fixed.", resp.Text)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 3, resp.Events)
	assert.Equal(t, []executor.ToolCall{{Name: toolcall.ToolReadFile, Result: "success"}}, resp.ToolCalls)
	assert.Equal(t, int64(20), resp.Usage.PromptTokens)
	assert.Contains(t, body(1), `"tool_result"`)
	assert.Contains(t, body(1), `package main`)
}

func TestInvokeEventLimit(t *testing.T) {
	srv, calls, _ := fakeAnthropic(t, turn{text: "still working", toolUse: toolcall.ToolReadFile})
	exec := newExecutor(t, srv)

	resp, err := exec.Invoke(context.Background(), executor.Request{Query: "loop", MaxEvents: 10})
	require.NoError(t, err)
	assert.True(t, resp.Truncated)
	assert.Equal(t, 10, resp.Events)
	assert.Equal(t, int32(5), calls.Load())
	assert.True(t, strings.HasPrefix(resp.Text, "still working"))
	assert.True(t, strings.HasSuffix(resp.Text, executor.TruncationNote(10)))
}

func TestInvokeInvalidConfig(t *testing.T) {
	srv, calls, _ := fakeAnthropic(t, turn{status: http.StatusUnauthorized})
	exec := newExecutor(t, srv)

	_, err := exec.Invoke(context.Background(), executor.Request{Query: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, executor.ErrInvalidLLMConfig), "got %v", err)
	assert.Equal(t, int32(1), calls.Load(), "401 must not be retried")
}

func TestInvokeRetriesOverloaded(t *testing.T) {
	srv, calls, _ := fakeAnthropic(t, turn{status: 529}, turn{text: "recovered"})
	exec := newExecutor(t, srv, claudeexecutor.WithRetryPolicy(retry.Policy{MaxRetries: 2}))

	resp, err := exec.Invoke(context.Background(), executor.Request{Query: "x"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOptions(t *testing.T) {
	t.Parallel()
	client := anthropic.NewClient(option.WithAPIKey("k"))
	for name, opt := range map[string]claudeexecutor.Option{
		"non-claude model": claudeexecutor.WithModel("gpt-4o"),
		"zero max tokens":  claudeexecutor.WithMaxTokens(0),
		"hot temperature":  claudeexecutor.WithTemperature(1.5),
		"tiny thinking":    claudeexecutor.WithThinking(100),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := claudeexecutor.New(client, nil, opt)
			assert.Error(t, err)
		})
	}
}
