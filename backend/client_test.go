/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/smartfix/backend"
	"chainguard.dev/smartfix/remediation/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const basePath = "/api/v4/aiml-remediation/organizations/org-1/applications/app-1"

type request struct {
	Method  string
	Path    string
	Header  http.Header
	Payload map[string]any
}

type fakeService struct {
	mu       sync.Mutex
	requests []request
	status   int
	body     string
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	var payload map[string]any
	if len(data) > 0 {
		json.Unmarshal(data, &payload)
	}
	f.mu.Lock()
	f.requests = append(f.requests, request{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Payload: payload})
	status, body := f.status, f.body
	f.mu.Unlock()
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func newClient(t *testing.T, h http.Handler) *backend.Client {
	t.Helper()
	srv := httptest.NewTLSServer(h)
	t.Cleanup(srv.Close)
	c, err := backend.New(backend.Config{
		Host:             srv.URL + "/",
		OrgID:            "org-1",
		AppID:            "app-1",
		AuthorizationKey: "auth-key",
		APIKey:           "api-key",
	}, backend.WithHTTPClient(srv.Client()), backend.WithRetries(2, time.Millisecond, time.Millisecond))
	require.NoError(t, err)
	return c
}

const promptDetails = `{
	"remediationId": "REM-1",
	"vulnerabilityUuid": "1234-ABCD",
	"vulnerabilityTitle": "SQL Injection in UserDAO",
	"vulnerabilityRuleName": "sql-injection",
	"vulnerabilityStatus": "REPORTED",
	"vulnerabilitySeverity": "CRITICAL",
	"fixSystemPrompt": "You fix code.",
	"fixUserPrompt": "Fix {vuln_uuid}",
	"qaSystemPrompt": "You repair builds.",
	"qaUserPrompt": "Build output: {build_output}"
}`

func TestFetchPromptDetails(t *testing.T) {
	t.Parallel()
	f := &fakeService{status: http.StatusOK, body: promptDetails}
	c := newClient(t, f)

	got, err := c.FetchPromptDetails(context.Background(), backend.PromptRequest{
		RepoRootDir:     "/work/shop",
		RepoURL:         "https://github.com/acme/shop",
		MaxPullRequests: 5,
		Severities:      []string{"CRITICAL", "HIGH"},
	})
	require.NoError(t, err)
	assert.Equal(t, &backend.PromptDetails{
		RemediationID:         "REM-1",
		VulnerabilityUUID:     "1234-ABCD",
		VulnerabilityTitle:    "SQL Injection in UserDAO",
		VulnerabilityRuleName: "sql-injection",
		VulnerabilityStatus:   "REPORTED",
		VulnerabilitySeverity: "CRITICAL",
		FixSystemPrompt:       "You fix code.",
		FixUserPrompt:         "Fix {vuln_uuid}",
		QASystemPrompt:        "You repair builds.",
		QAUserPrompt:          "Build output: {build_output}",
	}, got)

	require.Len(t, f.requests, 1)
	req := f.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, basePath+"/prompt-details", req.Path)
	assert.Equal(t, "auth-key", req.Header.Get("Authorization"))
	assert.Equal(t, "api-key", req.Header.Get("API-Key"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, backend.DefaultUserAgent, req.Header.Get("User-Agent"))
	assert.Equal(t, "https://"+c.Host(), req.Payload["teamserverHost"])
	assert.Equal(t, "/work/shop", req.Payload["repoRootDir"])
	assert.Equal(t, "https://github.com/acme/shop", req.Payload["repoUrl"])
	assert.Equal(t, float64(5), req.Payload["maxPullRequests"])
	assert.Equal(t, []any{"CRITICAL", "HIGH"}, req.Payload["severities"])
}

func TestFetchPromptDetailsStatuses(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantMsg string
	}{{
		name:    "nothing to do",
		status:  http.StatusNoContent,
		wantErr: backend.ErrNoVulnerability,
	}, {
		name:    "pr limit",
		status:  http.StatusConflict,
		wantErr: backend.ErrPRLimit,
	}, {
		name:    "missing keys",
		status:  http.StatusOK,
		body:    `{"remediationId": "REM-1", "vulnerabilityUuid": "x"}`,
		wantMsg: "response is missing vulnerabilityTitle",
	}, {
		name:    "bad request",
		status:  http.StatusBadRequest,
		body:    `{"messages": ["invalid severity"]}`,
		wantMsg: "unexpected status 400: invalid severity",
	}, {
		name:    "not json",
		status:  http.StatusOK,
		body:    `<html>`,
		wantMsg: "decoding response",
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newClient(t, &fakeService{status: tt.status, body: tt.body})
			_, err := c.FetchPromptDetails(context.Background(), backend.PromptRequest{})
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestRetries(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	require.NoError(t, c.NotifyMerged(context.Background(), "REM-1"))
	assert.Equal(t, int32(3), calls.Load())

	calls.Store(-10)
	err := c.NotifyMerged(context.Background(), "REM-1")
	var se *backend.StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}

func TestNotify(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := &fakeService{status: http.StatusNoContent}
	c := newClient(t, f)

	require.NoError(t, c.NotifyOpen(ctx, "REM-1", 17, "https://github.com/acme/shop/pull/17"))
	require.NoError(t, c.NotifyMerged(ctx, "REM-1"))
	require.NoError(t, c.NotifyClosed(ctx, "REM-1"))
	require.NoError(t, c.NotifyFailed(ctx, "REM-1", session.ExceededQAAttempts))

	require.Len(t, f.requests, 4)
	for _, r := range f.requests {
		assert.Equal(t, http.MethodPut, r.Method)
	}
	assert.Equal(t, basePath+"/remediations/REM-1/open", f.requests[0].Path)
	assert.Equal(t, map[string]any{"pullRequestNumber": float64(17), "pullRequestUrl": "https://github.com/acme/shop/pull/17"}, f.requests[0].Payload)
	assert.Equal(t, basePath+"/remediations/REM-1/merged", f.requests[1].Path)
	assert.Nil(t, f.requests[1].Payload)
	assert.Equal(t, basePath+"/remediations/REM-1/closed", f.requests[2].Path)
	assert.Equal(t, basePath+"/remediations/REM-1/failed", f.requests[3].Path)
	assert.Equal(t, map[string]any{"failureCategory": "EXCEEDED_QA_ATTEMPTS"}, f.requests[3].Payload)

	assert.Error(t, c.NotifyMerged(ctx, ""))
}

func TestNotifyUnexpectedStatus(t *testing.T) {
	t.Parallel()
	c := newClient(t, &fakeService{status: http.StatusOK, body: `{"messages": ["already open"]}`})
	err := c.NotifyOpen(context.Background(), "REM-1", 1, "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already open")
}

func TestSendTelemetry(t *testing.T) {
	t.Parallel()
	f := &fakeService{status: http.StatusAccepted}
	c := newClient(t, f)

	tel := backend.NewTelemetry(backend.TelemetryConfig{Host: "app.contrast.example", AgentModel: "anthropic/claude-sonnet-4-5"})
	tel.SetVulnerability("REM-1", "1234-ABCD", "sql-injection")
	tel.AdditionalAttributes.FullLog = "secret log"
	require.NoError(t, c.SendTelemetry(context.Background(), "REM-1", tel))

	require.Len(t, f.requests, 1)
	r := f.requests[0]
	assert.Equal(t, http.MethodPost, r.Method)
	assert.Equal(t, basePath+"/remediations/REM-1/telemetry", r.Path)
	assert.Equal(t, map[string]any{"vulnId": "1234-ABCD", "vulnRule": "sql-injection"}, r.Payload["vulnInfo"])
	attrs := r.Payload["additionalAttributes"].(map[string]any)
	assert.NotContains(t, attrs, "fullLog")
	assert.Equal(t, "REM-1", attrs["remediationId"])

	assert.Error(t, c.SendTelemetry(context.Background(), "", tel))
	assert.Error(t, c.SendTelemetry(context.Background(), "REM-1", nil))
}

func TestNew(t *testing.T) {
	t.Parallel()
	_, err := backend.New(backend.Config{OrgID: "o", AppID: "a"})
	assert.Error(t, err)
	_, err = backend.New(backend.Config{Host: "h"})
	assert.Error(t, err)

	c, err := backend.New(backend.Config{Host: " https://app.contrast.example// ", OrgID: "o", AppID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "app.contrast.example", c.Host())
	assert.True(t, strings.HasPrefix(backend.NormalizeHost("http://h:8080/"), "h:8080"))
}
