/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package github_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"chainguard.dev/smartfix/scm/github"
	gogithub "github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIssues records the issue API calls of a client.
type fakeIssues struct {
	mu        sync.Mutex
	hasIssues bool
	issues    []map[string]any
	pulls     []map[string]any
	labels    map[int][]string
	comments  []map[string]any
	calls     []string
	created   map[string]any
	known     map[string]bool
}

func (f *fakeIssues) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
}

func (f *fakeIssues) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/shop", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"has_issues": f.hasIssues})
	})
	mux.HandleFunc("GET /repos/acme/shop/issues", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		json.NewEncoder(w).Encode(f.issues)
	})
	mux.HandleFunc("POST /repos/acme/shop/issues", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.created = body
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"number": 7, "html_url": "https://github.com/acme/shop/issues/7"})
	})
	mux.HandleFunc("GET /repos/acme/shop/labels/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !f.known[r.PathValue("name")] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"name": r.PathValue("name")})
	})
	mux.HandleFunc("POST /repos/acme/shop/labels", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.known[body["name"].(string)] = true
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("GET /repos/acme/shop/issues/7/labels", func(w http.ResponseWriter, r *http.Request) {
		var out []map[string]any
		for _, l := range f.labels[7] {
			out = append(out, map[string]any{"name": l})
		}
		json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("POST /repos/acme/shop/issues/{number}/labels", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		json.NewEncoder(w).Encode([]map[string]any{})
	})
	mux.HandleFunc("DELETE /repos/acme/shop/issues/7/labels/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls = append(f.calls, "DELETE label "+r.PathValue("name"))
		f.mu.Unlock()
		json.NewEncoder(w).Encode([]map[string]any{})
	})
	mux.HandleFunc("/repos/acme/shop/issues/7/assignees", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		json.NewEncoder(w).Encode(map[string]any{"number": 7})
	})
	mux.HandleFunc("/repos/acme/shop/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{"id": 1})
			return
		}
		json.NewEncoder(w).Encode(f.comments)
	})
	mux.HandleFunc("GET /repos/acme/shop/pulls", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(f.pulls)
	})
	return mux
}

func newIssueClient(t *testing.T, f *fakeIssues) *github.Client {
	t.Helper()
	if f.known == nil {
		f.known = map[string]bool{}
	}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	rest := gogithub.NewClient(srv.Client())
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	rest.BaseURL = base
	return github.NewWithClients(rest, githubv4.NewEnterpriseClient(srv.URL+"/graphql", srv.Client()), "acme", "shop")
}

func TestIssuesEnabled(t *testing.T) {
	t.Parallel()
	for _, want := range []bool{true, false} {
		c := newIssueClient(t, &fakeIssues{hasIssues: want})
		got, err := c.IssuesEnabled(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestFindIssueWithLabel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := newIssueClient(t, &fakeIssues{issues: []map[string]any{
		{"number": 3, "pull_request": map[string]any{"url": "x"}},
		{"number": 5},
	}})
	n, err := c.FindIssueWithLabel(ctx, "contrast-vuln-id:VULN-1")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	c = newIssueClient(t, &fakeIssues{issues: []map[string]any{}})
	n, err = c.FindIssueWithLabel(ctx, "contrast-vuln-id:VULN-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateIssue(t *testing.T) {
	t.Parallel()
	f := &fakeIssues{}
	c := newIssueClient(t, f)

	n, err := c.CreateIssue(context.Background(), github.NewIssue{
		Title:     "SQL Injection",
		Body:      "details",
		Labels:    []string{"contrast-vuln-id:VULN-1", "smartfix-id:REM-1"},
		Assignees: []string{"Copilot"},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.True(t, f.known["contrast-vuln-id:VULN-1"])
	assert.True(t, f.known["smartfix-id:REM-1"])
	assert.Equal(t, "SQL Injection", f.created["title"])
	assert.Equal(t, []any{"contrast-vuln-id:VULN-1", "smartfix-id:REM-1"}, f.created["labels"])
	assert.Equal(t, []any{"Copilot"}, f.created["assignees"])
}

func TestResetIssue(t *testing.T) {
	t.Parallel()
	f := &fakeIssues{
		labels: map[int][]string{7: {"contrast-vuln-id:VULN-1", "smartfix-id:OLD", "bug"}},
		known:  map[string]bool{"smartfix-id:NEW": true},
	}
	c := newIssueClient(t, f)

	require.NoError(t, c.ResetIssue(context.Background(), 7, github.IssueReset{
		RemediationLabel: "smartfix-id:NEW",
		Assignee:         "Copilot",
		Comment:          "@claude reprocess this issue",
	}))
	assert.Equal(t, []string{
		"DELETE label smartfix-id:OLD",
		"POST /repos/acme/shop/issues/7/labels",
		"DELETE /repos/acme/shop/issues/7/assignees",
		"POST /repos/acme/shop/issues/7/assignees",
		"POST /repos/acme/shop/issues/7/comments",
	}, f.calls)
}

func TestFindOpenPRForIssue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pulls := []map[string]any{
		{"number": 10, "title": "Unrelated", "body": "nothing", "html_url": "https://github.com/acme/shop/pull/10"},
		{"number": 11, "title": "Fix SQL injection", "body": "Fixes #7", "html_url": "https://github.com/acme/shop/pull/11"},
	}
	c := newIssueClient(t, &fakeIssues{pulls: pulls})

	pr, err := c.FindOpenPRForIssue(ctx, 7, "Anything")
	require.NoError(t, err)
	assert.Equal(t, &github.PullRequest{Number: 11, URL: "https://github.com/acme/shop/pull/11"}, pr)

	pr, err = c.FindOpenPRForIssue(ctx, 8, "unrelated")
	require.NoError(t, err)
	assert.Equal(t, 10, pr.Number)

	pr, err = c.FindOpenPRForIssue(ctx, 9, "Path Traversal")
	require.NoError(t, err)
	assert.Nil(t, pr)
}

func TestIssueComments(t *testing.T) {
	t.Parallel()
	c := newIssueClient(t, &fakeIssues{comments: []map[string]any{
		{"body": "done", "user": map[string]any{"login": "claude[bot]"}, "created_at": "2026-01-02T03:04:05Z"},
	}})
	got, err := c.IssueComments(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "claude[bot]", got[0].Author)
	assert.Equal(t, "done", got[0].Body)
	assert.Equal(t, 2026, got[0].CreatedAt.Year())
}
