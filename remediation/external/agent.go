/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package external hands vulnerabilities to a coding agent hosted by GitHub,
// GitHub Copilot or Claude Code, instead of running the SmartFix engine.
//
// The agent is asked to work through an issue labelled with the
// vulnerability. Copilot is assigned the issue and opens the pull request on
// its own. Claude Code is mentioned in the issue title and answers with a
// comment linking the branch it pushed, from which the pull request is
// opened. Either way the pull request is polled for, then labelled with the
// vulnerability and remediation labels so the merge and close handlers can
// find it.
package external

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"chainguard.dev/smartfix/backend"
	"chainguard.dev/smartfix/remediation/session"
	"chainguard.dev/smartfix/scm"
	"chainguard.dev/smartfix/scm/github"
	"github.com/cenkalti/backoff/v4"
	"github.com/chainguard-dev/clog"
)

// Kind names an external coding agent.
type Kind string

const (
	Copilot    Kind = "GITHUB_COPILOT"
	ClaudeCode Kind = "CLAUDE_CODE"
)

const (
	// copilotLogin is the assignee that starts GitHub Copilot.
	copilotLogin = "Copilot"
	// claudeLogin is the default author of Claude Code comments.
	claudeLogin = "claude"

	// DefaultPollAttempts and DefaultPollDelay give roughly eight minutes
	// for the agent to open its pull request.
	DefaultPollAttempts = 22
	DefaultPollDelay    = 5 * time.Second
	maxPollDelay        = 60 * time.Second
	// pollStep is the number of attempts after which the delay doubles.
	pollStep = 5
)

// ErrIssuesDisabled is reported when the repository has issues turned off.
var ErrIssuesDisabled = errors.New("GitHub Issues are disabled for this repository")

// Host is the part of GitHub an external agent is driven through.
type Host interface {
	IssuesEnabled(ctx context.Context) (bool, error)
	FindIssueWithLabel(ctx context.Context, label string) (int, error)
	CreateIssue(ctx context.Context, issue github.NewIssue) (int, error)
	ResetIssue(ctx context.Context, number int, reset github.IssueReset) error
	FindOpenPRForIssue(ctx context.Context, number int, title string) (*github.PullRequest, error)
	IssueComments(ctx context.Context, number int) ([]github.Comment, error)
	CreatePR(ctx context.Context, pr github.NewPullRequest) (*github.PullRequest, error)
	AddLabels(ctx context.Context, number int, labels []string) error
}

// Request is one vulnerability to hand to the agent.
type Request struct {
	SessionID string
	Details   *backend.PromptDetails
}

// Outcome is the result of one remediation by an external agent.
type Outcome struct {
	Session *session.Session
	// Issue is the number of the issue the agent worked on, or 0.
	Issue int
	// PR is the pull request the agent produced, set on success.
	PR *github.PullRequest
}

// Agent drives one kind of external coding agent.
type Agent struct {
	kind       Kind
	host       Host
	baseBranch string

	attempts int
	delay    time.Duration
	newDelay func() backoff.BackOff
	now      func() time.Time
	vulnURL  func(vulnUUID string) string
}

// Option configures an Agent.
type Option func(*Agent)

// WithPolling sets the number of polls and the initial delay between them.
func WithPolling(attempts int, delay time.Duration) Option {
	return func(a *Agent) {
		a.attempts, a.delay = attempts, delay
	}
}

// WithBackOff overrides the delay schedule between polls.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(a *Agent) { a.newDelay = fn }
}

// WithVulnerabilityURLs sets the link to a vulnerability written into the
// issues.
func WithVulnerabilityURLs(fn func(vulnUUID string) string) Option {
	return func(a *Agent) { a.vulnURL = fn }
}

// WithClock overrides the clock used to ignore comments older than a run.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// New creates an Agent of the given kind. Pull requests it opens target
// baseBranch.
func New(kind Kind, host Host, baseBranch string, opts ...Option) (*Agent, error) {
	switch kind {
	case Copilot, ClaudeCode:
	default:
		return nil, fmt.Errorf("unsupported external coding agent %q", kind)
	}
	a := &Agent{
		kind:       kind,
		host:       host,
		baseBranch: baseBranch,
		attempts:   DefaultPollAttempts,
		delay:      DefaultPollDelay,
		now:        time.Now,
		vulnURL:    func(string) string { return "" },
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.newDelay == nil {
		a.newDelay = func() backoff.BackOff {
			return &stepBackOff{initial: a.delay, max: maxPollDelay, jitter: jitter}
		}
	}
	return a, nil
}

// Kind returns the kind of coding agent.
func (a *Agent) Kind() Kind { return a.kind }

// Remediate opens or resets the issue of the vulnerability and waits for the
// agent's pull request. Failures are reported on the session; the returned
// error is set only when ctx ends.
func (a *Agent) Remediate(ctx context.Context, req Request) (*Outcome, error) {
	d := req.Details
	log := clog.FromContext(ctx).With("coding_agent", string(a.kind))
	ctx = clog.WithLogger(ctx, log)
	start := a.now()

	out := &Outcome{Session: session.New(req.SessionID, 0, 0)}
	sess := out.Session
	vulnLabel := scm.LabelName(d.VulnerabilityUUID)
	remLabel := scm.RemediationLabelName(d.RemediationID)
	title := d.VulnerabilityTitle
	if a.kind == ClaudeCode {
		title = "@claude Fix: " + title
	}

	issue, existing, err := a.openIssue(ctx, title, IssueBody(d, a.vulnURL(d.VulnerabilityUUID)), vulnLabel, remLabel)
	switch {
	case errors.Is(err, ErrIssuesDisabled):
		log.Error("External coding agents require GitHub Issues to be enabled")
		return out, sess.Fail(session.GitCommandFailure, err.Error())
	case err != nil:
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		log.With("error", err).Error("Could not prepare the issue for the coding agent")
		return out, sess.Fail(session.AgentFailure, err.Error())
	}
	out.Issue = issue
	sess.AddEvent(fmt.Sprintf("Issue #%d assigned to %s", issue, a.kind), "", map[string]string{
		"existing": fmt.Sprint(existing),
	})
	log = log.With("issue", issue)
	ctx = clog.WithLogger(ctx, log)
	log.Info("Waiting for the coding agent to open a pull request")

	pr, err := a.poll(ctx, issue, title, start)
	switch {
	case ctx.Err() != nil:
		return out, ctx.Err()
	case err != nil:
		log.With("error", err).Error("Coding agent did not produce a pull request")
		return out, sess.Fail(session.AgentFailure, err.Error())
	case pr == nil:
		log.With("attempts", a.attempts).Error("No pull request found for the issue")
		return out, sess.Fail(session.AgentFailure, "External agent failed to create PR")
	}

	if err := a.host.AddLabels(ctx, pr.Number, []string{vulnLabel, remLabel}); err != nil {
		log.With("error", err).Error("Could not label the coding agent's pull request")
		return out, sess.Fail(session.AgentFailure, fmt.Sprintf("Failed to label PR #%d: %v", pr.Number, err))
	}
	out.PR = pr
	sess.AddEvent(fmt.Sprintf("Pull request #%d opened", pr.Number), pr.URL, nil)
	log.With("pr", pr.Number).With("url", pr.URL).Info("Coding agent opened a pull request")
	return out, sess.Succeed("External agent successfully created PR")
}

// openIssue creates the issue of a vulnerability, or resets the existing
// one. It reports whether the issue already existed.
func (a *Agent) openIssue(ctx context.Context, title, body, vulnLabel, remLabel string) (int, bool, error) {
	number, err := a.host.FindIssueWithLabel(ctx, vulnLabel)
	if err != nil {
		return 0, false, fmt.Errorf("finding issue: %w", err)
	}

	if number == 0 {
		enabled, err := a.host.IssuesEnabled(ctx)
		if err != nil {
			return 0, false, fmt.Errorf("checking issues: %w", err)
		}
		if !enabled {
			return 0, false, ErrIssuesDisabled
		}
		issue := github.NewIssue{
			Title:  title,
			Body:   body,
			Labels: []string{vulnLabel, remLabel},
		}
		if a.kind == Copilot {
			issue.Assignees = []string{copilotLogin}
		}
		if number, err = a.host.CreateIssue(ctx, issue); err != nil {
			return 0, false, fmt.Errorf("failed to create issue with labels %s, %s: %w", vulnLabel, remLabel, err)
		}
		return number, false, nil
	}

	if pr, err := a.host.FindOpenPRForIssue(ctx, number, title); err != nil {
		return number, true, fmt.Errorf("checking pull requests of issue #%d: %w", number, err)
	} else if pr != nil {
		return number, true, fmt.Errorf("issue #%d already has open PR #%d: %s", number, pr.Number, pr.URL)
	}

	reset := github.IssueReset{RemediationLabel: remLabel}
	switch a.kind {
	case Copilot:
		reset.Assignee = copilotLogin
		reset.Comment = fmt.Sprintf("Issue #%d has been reset. Previous work may have failed or been abandoned.", number)
	case ClaudeCode:
		reset.Comment = fmt.Sprintf("@claude reprocess this issue with the new remediation label: %s and attempt a fix.", remLabel)
	}
	if err := a.host.ResetIssue(ctx, number, reset); err != nil {
		return number, true, fmt.Errorf("failed to reset issue #%d: %w", number, err)
	}
	return number, true, nil
}

// errPending marks a poll that found nothing yet.
var errPending = errors.New("pull request not ready")

// poll waits for the pull request of issue. It returns nil without error
// when the agent made none within the allotted attempts.
func (a *Agent) poll(ctx context.Context, issue int, title string, since time.Time) (*github.PullRequest, error) {
	log := clog.FromContext(ctx)
	attempt := 0
	var pr *github.PullRequest

	op := func() error {
		attempt++
		log.With("attempt", attempt).With("max_attempts", a.attempts).Debug("Polling for the coding agent's pull request")
		found, err := a.host.FindOpenPRForIssue(ctx, issue, title)
		if err != nil {
			// Listing failures are transient for the purpose of polling.
			log.With("error", err).Warn("Could not list pull requests")
			return errPending
		}
		if found == nil && a.kind == ClaudeCode {
			if found, err = a.claudePR(ctx, issue, since); err != nil {
				return backoff.Permanent(err)
			}
		}
		if found == nil {
			return errPending
		}
		pr = found
		return nil
	}

	tries := uint64(max(a.attempts, 1) - 1)
	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(a.newDelay(), tries), ctx),
		func(_ error, d time.Duration) {
			log.With("attempt", attempt).With("backoff", d.Round(100*time.Millisecond)).Debug("Backing off")
		})
	if errors.Is(err, errPending) {
		return nil, nil
	}
	return pr, err
}

// claudePR opens the pull request proposed by the newest Claude Code comment
// on issue posted after since. It returns nil when there is none yet.
func (a *Agent) claudePR(ctx context.Context, issue int, since time.Time) (*github.PullRequest, error) {
	comments, err := a.host.IssueComments(ctx, issue)
	if err != nil {
		clog.FromContext(ctx).With("error", err).Warn("Could not list issue comments")
		return nil, nil
	}
	for _, c := range comments {
		if c.CreatedAt.Before(since) || !strings.Contains(strings.ToLower(c.Author), claudeLogin) {
			continue
		}
		proposal, ok := parseClaudeComment(c.Body, issue)
		if !ok {
			// Claude posts progress comments before the final one.
			continue
		}
		if proposal.Head == "" {
			return nil, errors.New("could not extract Claude head branch needed for PR creation")
		}
		pr, err := a.host.CreatePR(ctx, github.NewPullRequest{
			Title: proposal.Title,
			Body:  proposal.Body,
			Head:  proposal.Head,
			Base:  a.baseBranch,
		})
		if err != nil && pr == nil {
			return nil, fmt.Errorf("could not create Claude PR: %w", err)
		}
		return pr, nil
	}
	return nil, nil
}

// stepBackOff doubles its delay every pollStep attempts up to max, with
// jitter applied to each delay.
type stepBackOff struct {
	initial time.Duration
	max     time.Duration
	jitter  func() float64
	attempt int
}

var _ backoff.BackOff = (*stepBackOff)(nil)

func (b *stepBackOff) NextBackOff() time.Duration {
	b.attempt++
	d := b.initial << (b.attempt / pollStep)
	if d > b.max || d <= 0 {
		d = b.max
	}
	return time.Duration(float64(d) * b.jitter())
}

func (b *stepBackOff) Reset() { b.attempt = 0 }

// jitter returns a factor within 20% of one.
func jitter() float64 {
	return 0.8 + rand.Float64()*0.4
}
