/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package external

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"chainguard.dev/smartfix/backend"
	"chainguard.dev/smartfix/remediation/session"
	"chainguard.dev/smartfix/scm/github"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHost struct {
	mu sync.Mutex

	issuesDisabled bool
	existing       int
	// prAfter is the number of pull request lookups that find nothing.
	prAfter  int
	prErr    error
	pr       *github.PullRequest
	comments []github.Comment
	labelErr error

	lookups  int
	created  []github.NewIssue
	resets   []github.IssueReset
	opened   []github.NewPullRequest
	labelled map[int][]string
}

func (f *fakeHost) IssuesEnabled(context.Context) (bool, error) { return !f.issuesDisabled, nil }

func (f *fakeHost) FindIssueWithLabel(context.Context, string) (int, error) { return f.existing, nil }

func (f *fakeHost) CreateIssue(_ context.Context, issue github.NewIssue) (int, error) {
	f.created = append(f.created, issue)
	return 7, nil
}

func (f *fakeHost) ResetIssue(_ context.Context, _ int, reset github.IssueReset) error {
	f.resets = append(f.resets, reset)
	return nil
}

func (f *fakeHost) FindOpenPRForIssue(context.Context, int, string) (*github.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.prErr != nil {
		return nil, f.prErr
	}
	if f.pr == nil || f.lookups <= f.prAfter {
		return nil, nil
	}
	return f.pr, nil
}

func (f *fakeHost) IssueComments(context.Context, int) ([]github.Comment, error) {
	return f.comments, nil
}

func (f *fakeHost) CreatePR(_ context.Context, pr github.NewPullRequest) (*github.PullRequest, error) {
	f.opened = append(f.opened, pr)
	return &github.PullRequest{Number: 12, URL: "https://github.com/acme/shop/pull/12"}, nil
}

func (f *fakeHost) AddLabels(_ context.Context, number int, labels []string) error {
	if f.labelErr != nil {
		return f.labelErr
	}
	if f.labelled == nil {
		f.labelled = map[int][]string{}
	}
	f.labelled[number] = append(f.labelled[number], labels...)
	return nil
}

var details = &backend.PromptDetails{
	RemediationID:         "REM-1",
	VulnerabilityUUID:     "VULN-1",
	VulnerabilityTitle:    "SQL Injection in UserDAO",
	VulnerabilityRuleName: "sql-injection",
	VulnerabilityStatus:   "Reported",
	VulnerabilitySeverity: "CRITICAL",
}

func newAgent(t *testing.T, kind Kind, host Host, attempts int, opts ...Option) *Agent {
	t.Helper()
	opts = append([]Option{
		WithPolling(attempts, time.Millisecond),
		WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
		WithClock(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }),
	}, opts...)
	a, err := New(kind, host, "main", opts...)
	require.NoError(t, err)
	return a
}

func TestNewRejectsUnknownKind(t *testing.T) {
	t.Parallel()
	_, err := New("SMARTFIX", &fakeHost{}, "main")
	assert.Error(t, err)
}

func TestRemediateCopilot(t *testing.T) {
	t.Parallel()
	host := &fakeHost{prAfter: 2, pr: &github.PullRequest{Number: 11, URL: "https://github.com/acme/shop/pull/11"}}
	a := newAgent(t, Copilot, host, 5, WithVulnerabilityURLs(func(uuid string) string { return "https://contrast/vulns/" + uuid }))

	out, err := a.Remediate(context.Background(), Request{SessionID: "s1", Details: details})
	require.NoError(t, err)

	assert.Equal(t, session.Success, out.Session.Status())
	assert.Equal(t, "External agent successfully created PR", out.Session.FinalPRBody())
	assert.Equal(t, 7, out.Issue)
	assert.Equal(t, host.pr, out.PR)
	assert.Equal(t, 3, host.lookups)

	require.Len(t, host.created, 1)
	if diff := cmp.Diff(github.NewIssue{
		Title:     "SQL Injection in UserDAO",
		Body:      IssueBody(details, "https://contrast/vulns/VULN-1"),
		Labels:    []string{"contrast-vuln-id:VULN-1", "smartfix-id:REM-1"},
		Assignees: []string{"Copilot"},
	}, host.created[0]); diff != "" {
		t.Errorf("created issue (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"contrast-vuln-id:VULN-1", "smartfix-id:REM-1"}, host.labelled[11])
}

func TestRemediateResetsExistingIssue(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		kind Kind
		want github.IssueReset
	}{{
		name: "copilot is reassigned",
		kind: Copilot,
		want: github.IssueReset{
			RemediationLabel: "smartfix-id:REM-1",
			Assignee:         "Copilot",
			Comment:          "Issue #4 has been reset. Previous work may have failed or been abandoned.",
		},
	}, {
		name: "claude is mentioned",
		kind: ClaudeCode,
		want: github.IssueReset{
			RemediationLabel: "smartfix-id:REM-1",
			Comment:          "@claude reprocess this issue with the new remediation label: smartfix-id:REM-1 and attempt a fix.",
		},
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			// The first lookup is the check for a pull request left open on the issue.
			host := &fakeHost{existing: 4, prAfter: 1, pr: &github.PullRequest{Number: 11}}
			out, err := newAgent(t, tt.kind, host, 3).Remediate(context.Background(), Request{SessionID: "s1", Details: details})
			require.NoError(t, err)

			assert.Equal(t, session.Success, out.Session.Status())
			assert.Equal(t, 4, out.Issue)
			assert.Empty(t, host.created)
			if diff := cmp.Diff([]github.IssueReset{tt.want}, host.resets); diff != "" {
				t.Errorf("resets (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRemediateExistingIssueWithOpenPR(t *testing.T) {
	t.Parallel()
	host := &fakeHost{existing: 4, pr: &github.PullRequest{Number: 11, URL: "https://github.com/acme/shop/pull/11"}}
	out, err := newAgent(t, Copilot, host, 3).Remediate(context.Background(), Request{SessionID: "s1", Details: details})
	require.NoError(t, err)

	assert.Equal(t, session.AgentFailure, out.Session.FailureCategory())
	assert.Contains(t, out.Session.FinalPRBody(), "already has open PR #11")
	assert.Empty(t, host.resets)
}

func TestRemediateIssuesDisabled(t *testing.T) {
	t.Parallel()
	host := &fakeHost{issuesDisabled: true}
	out, err := newAgent(t, Copilot, host, 3).Remediate(context.Background(), Request{SessionID: "s1", Details: details})
	require.NoError(t, err)

	assert.Equal(t, session.GitCommandFailure, out.Session.FailureCategory())
	assert.Zero(t, out.Issue)
	assert.Empty(t, host.created)
}

func TestRemediateTimesOut(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		host *fakeHost
	}{
		{name: "no pull request", host: &fakeHost{}},
		{name: "listing keeps failing", host: &fakeHost{prErr: errors.New("502 bad gateway")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, err := newAgent(t, Copilot, tt.host, 4).Remediate(context.Background(), Request{SessionID: "s1", Details: details})
			require.NoError(t, err)

			assert.Equal(t, session.AgentFailure, out.Session.FailureCategory())
			assert.Equal(t, "External agent failed to create PR", out.Session.FinalPRBody())
			assert.Equal(t, 4, tt.host.lookups)
			assert.Equal(t, 7, out.Issue)
		})
	}
}

func TestRemediateLabelFailure(t *testing.T) {
	t.Parallel()
	host := &fakeHost{pr: &github.PullRequest{Number: 11}, labelErr: errors.New("403")}
	out, err := newAgent(t, Copilot, host, 2).Remediate(context.Background(), Request{SessionID: "s1", Details: details})
	require.NoError(t, err)

	assert.Equal(t, session.AgentFailure, out.Session.FailureCategory())
	assert.Contains(t, out.Session.FinalPRBody(), "Failed to label PR #11")
	assert.Nil(t, out.PR)
}

func TestRemediateCanceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	host := &fakeHost{}
	_, err := newAgent(t, Copilot, host, 5).Remediate(ctx, Request{SessionID: "s1", Details: details})
	assert.ErrorIs(t, err, context.Canceled)
}

func claudeComment(title, body string) string {
	q := url.Values{"title": {title}, "body": {body}}
	return "Claude finished @dev's task\n\n[`claude/issue-7-20260101-1200`](https://github.com/acme/shop/tree/claude/issue-7-20260101-1200) " +
		"[Create PR ➔](https://github.com/acme/shop/compare/main...claude/issue-7-20260101-1200?" + q.Encode() + ")\n\n---\nfooter"
}

func TestRemediateClaudeCode(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	host := &fakeHost{comments: []github.Comment{{
		Author:    "claude[bot]",
		Body:      claudeComment("Fix SQL injection", "Uses a prepared statement"),
		CreatedAt: start.Add(time.Minute),
	}, {
		Author:    "claude[bot]",
		Body:      claudeComment("Stale fix", "From an earlier run"),
		CreatedAt: start.Add(-time.Hour),
	}}}
	out, err := newAgent(t, ClaudeCode, host, 3).Remediate(context.Background(), Request{SessionID: "s1", Details: details})
	require.NoError(t, err)

	assert.Equal(t, session.Success, out.Session.Status())
	require.Len(t, host.created, 1)
	assert.Equal(t, "@claude Fix: SQL Injection in UserDAO", host.created[0].Title)
	assert.Empty(t, host.created[0].Assignees)
	if diff := cmp.Diff([]github.NewPullRequest{{
		Title: "Fix SQL injection",
		Body:  "Uses a prepared statement\n Powered by Contrast AI SmartFix",
		Head:  "claude/issue-7-20260101-1200",
		Base:  "main",
	}}, host.opened); diff != "" {
		t.Errorf("opened (-want +got):\n%s", diff)
	}
	assert.Equal(t, 12, out.PR.Number)
	assert.Equal(t, []string{"contrast-vuln-id:VULN-1", "smartfix-id:REM-1"}, host.labelled[12])
}

func TestRemediateClaudeCodeIgnoresOldComments(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	host := &fakeHost{comments: []github.Comment{{
		Author:    "claude[bot]",
		Body:      claudeComment("Stale fix", "From an earlier run"),
		CreatedAt: start.Add(-time.Hour),
	}, {
		Author:    "someone",
		Body:      claudeComment("Not claude", "Posted by a person"),
		CreatedAt: start.Add(time.Minute),
	}}}
	out, err := newAgent(t, ClaudeCode, host, 2).Remediate(context.Background(), Request{SessionID: "s1", Details: details})
	require.NoError(t, err)

	assert.Equal(t, session.AgentFailure, out.Session.FailureCategory())
	assert.Empty(t, host.opened)
}

func TestStepBackOff(t *testing.T) {
	t.Parallel()
	b := &stepBackOff{initial: 5 * time.Second, max: 60 * time.Second, jitter: func() float64 { return 1 }}
	var got []time.Duration
	for range 22 {
		got = append(got, b.NextBackOff())
	}
	want := []time.Duration{
		5 * time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second,
		10 * time.Second, 10 * time.Second, 10 * time.Second, 10 * time.Second, 10 * time.Second,
		20 * time.Second, 20 * time.Second, 20 * time.Second, 20 * time.Second, 20 * time.Second,
		40 * time.Second, 40 * time.Second, 40 * time.Second, 40 * time.Second, 40 * time.Second,
		60 * time.Second, 60 * time.Second, 60 * time.Second,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("delays (-want +got):\n%s", diff)
	}

	b.Reset()
	assert.Equal(t, 5*time.Second, b.NextBackOff())

	for range 100 {
		f := jitter()
		assert.True(t, f >= 0.8 && f <= 1.2, "jitter %v", f)
	}
}
