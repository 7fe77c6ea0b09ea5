/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package pipeline drives a SmartFix run: it asks the remediation service
// for vulnerabilities one at a time, runs the workflow engine on each, and
// turns successful sessions into pull requests.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chainguard.dev/smartfix/agents/metrics"
	"chainguard.dev/smartfix/backend"
	"chainguard.dev/smartfix/remediation/report"
	"chainguard.dev/smartfix/remediation/session"
	"chainguard.dev/smartfix/remediation/smartfix"
	"chainguard.dev/smartfix/scm"
	"chainguard.dev/smartfix/scm/github"
	"chainguard.dev/smartfix/scm/gitrepo"
	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
)

// DefaultMaxRuntime bounds a generate_fix run when Settings.MaxRuntime is zero.
const DefaultMaxRuntime = 3 * time.Hour

// Backend is the remediation service.
type Backend interface {
	FetchPromptDetails(ctx context.Context, req backend.PromptRequest) (*backend.PromptDetails, error)
	NotifyOpen(ctx context.Context, remediationID string, prNumber int, prURL string) error
	NotifyMerged(ctx context.Context, remediationID string) error
	NotifyClosed(ctx context.Context, remediationID string) error
	NotifyFailed(ctx context.Context, remediationID string, category session.FailureCategory) error
	SendTelemetry(ctx context.Context, remediationID string, t *backend.Telemetry) error
}

// Host is the code host the pull requests are opened on.
type Host interface {
	CountOpenPRs(ctx context.Context, labelPrefix string) (int, error)
	PRStatusForLabel(ctx context.Context, label string) (github.PRStatus, error)
	EnsureLabel(ctx context.Context, name, description, color string) error
	CreatePR(ctx context.Context, pr github.NewPullRequest) (*github.PullRequest, error)
}

// Repository is the local checkout the engine edits.
type Repository interface {
	PrepareBranch(ctx context.Context, base, name string) error
	ChangedFiles(ctx context.Context) ([]string, error)
	CommitAll(ctx context.Context, message string) (string, error)
	Push(ctx context.Context, branch string) error
	Cleanup(ctx context.Context, base, branch string) error
	DiffStats(ctx context.Context, base string) (gitrepo.DiffStats, error)
}

// Remediator runs the workflow engine for one vulnerability.
type Remediator interface {
	Remediate(ctx context.Context, rc smartfix.Context) (*session.Session, error)
}

// Archiver stores completed sessions.
type Archiver interface {
	Archive(ctx context.Context, remediationID string, s *session.Session) (string, error)
}

// Settings are the run parameters shared by every remediation.
type Settings struct {
	BaseBranch        string
	BuildCommand      string
	FormattingCommand string
	RepoRoot          string
	RepoURL           string

	MaxOpenPRs     int
	MaxQAAttempts  int
	MaxAgentEvents int
	MaxRuntime     time.Duration
	Severities     []string

	SkipWritingSecurityTest bool
	SkipQAReview            bool
}

// Pipeline processes the vulnerabilities handed out by the backend.
type Pipeline struct {
	backend   Backend
	host      Host
	repo      Repository
	engine    Remediator
	delegate  Delegate
	telemetry *backend.Telemetry
	settings  Settings

	archiver  Archiver
	summary   *report.Summary
	outcomes  *metrics.Outcomes
	fullLog   func() string
	sessionID func() string
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithArchiver stores every completed session with a.
func WithArchiver(a Archiver) Option {
	return func(p *Pipeline) { p.archiver = a }
}

// WithSummary records a row per vulnerability on s.
func WithSummary(s *report.Summary) Option {
	return func(p *Pipeline) { p.summary = s }
}

// WithOutcomes counts opened pull requests on o.
func WithOutcomes(o *metrics.Outcomes) Option {
	return func(p *Pipeline) { p.outcomes = o }
}

// WithFullLog attaches the output of fn to every telemetry upload.
func WithFullLog(fn func() string) Option {
	return func(p *Pipeline) { p.fullLog = fn }
}

// WithSessionIDs overrides the generator of session IDs.
func WithSessionIDs(fn func() string) Option {
	return func(p *Pipeline) { p.sessionID = fn }
}

// WithClock overrides the clock used for the runtime limit.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline. telemetry may be nil, in which case an empty
// report is used. repo and engine may be nil when WithExternalAgent is set.
func New(b Backend, host Host, repo Repository, engine Remediator, telemetry *backend.Telemetry, settings Settings, opts ...Option) *Pipeline {
	if telemetry == nil {
		telemetry = backend.NewTelemetry(backend.TelemetryConfig{})
	}
	if settings.MaxRuntime <= 0 {
		settings.MaxRuntime = DefaultMaxRuntime
	}
	p := &Pipeline{
		backend:   b,
		host:      host,
		repo:      repo,
		engine:    engine,
		telemetry: telemetry,
		settings:  settings,
		sessionID: uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// StopReason says why a generate_fix run ended.
type StopReason string

const (
	StopNoVulnerabilities StopReason = "no_vulnerabilities"
	StopPRLimit           StopReason = "pr_limit"
	StopTimeout           StopReason = "timeout"
	StopRepeatedSkip      StopReason = "repeated_skip"
	StopFailed            StopReason = "failed"
)

// Result summarizes a generate_fix run.
type Result struct {
	Processed int
	PRsOpened int
	Stop      StopReason
}

// GenerateFix remediates vulnerabilities until the backend has none left,
// the open pull request limit or the runtime limit is reached, or a git or
// pull request operation fails. The last case is returned as an error.
func (p *Pipeline) GenerateFix(ctx context.Context) (*Result, error) {
	log := clog.FromContext(ctx)
	start := p.now()
	res := &Result{}
	skipped := map[string]bool{}
	var lastRemediation string

	for {
		if err := ctx.Err(); err != nil {
			res.Stop = StopFailed
			return res, err
		}
		p.telemetry.Reset()

		if elapsed := p.now().Sub(start); elapsed > p.settings.MaxRuntime {
			log.With("elapsed", elapsed.String()).Warn("Maximum runtime exceeded, stopping")
			if lastRemediation != "" {
				p.notifyFailed(ctx, lastRemediation, session.ExceededTimeout)
			}
			res.Stop = StopTimeout
			return res, nil
		}

		open, err := p.host.CountOpenPRs(ctx, scm.LabelPrefix)
		if err != nil {
			res.Stop = StopFailed
			return res, fmt.Errorf("counting open pull requests: %w", err)
		}
		if open >= p.settings.MaxOpenPRs {
			log.With("open", open).With("max", p.settings.MaxOpenPRs).Info("Open pull request limit reached")
			res.Stop = StopPRLimit
			return res, nil
		}

		details, err := p.backend.FetchPromptDetails(ctx, backend.PromptRequest{
			RepoRootDir:     p.settings.RepoRoot,
			RepoURL:         p.settings.RepoURL,
			MaxPullRequests: p.settings.MaxOpenPRs,
			Severities:      p.settings.Severities,
		})
		switch {
		case errors.Is(err, backend.ErrNoVulnerability):
			log.Info("No more vulnerabilities to remediate")
			res.Stop = StopNoVulnerabilities
			return res, nil
		case errors.Is(err, backend.ErrPRLimit):
			log.Info("Remediation service reports the open pull request limit was reached")
			res.Stop = StopPRLimit
			return res, nil
		case err != nil:
			res.Stop = StopFailed
			return res, err
		}
		lastRemediation = details.RemediationID

		next, err := p.remediate(ctx, details, skipped, res)
		if err != nil {
			res.Stop = StopFailed
			return res, err
		}
		if !next {
			res.Stop = StopRepeatedSkip
			return res, nil
		}
	}
}

func (p *Pipeline) notifyFailed(ctx context.Context, remediationID string, category session.FailureCategory) {
	if err := p.backend.NotifyFailed(ctx, remediationID, category); err != nil {
		clog.FromContext(ctx).With("remediation_id", remediationID).With("error", err).Warn("Failed to notify remediation failure")
	}
}

func (p *Pipeline) sendTelemetry(ctx context.Context, remediationID string) {
	if p.fullLog != nil {
		p.telemetry.AdditionalAttributes.FullLog = p.fullLog()
	}
	if err := p.backend.SendTelemetry(ctx, remediationID, p.telemetry); err != nil {
		clog.FromContext(ctx).With("remediation_id", remediationID).With("error", err).Warn("Failed to send telemetry")
	}
}

func (p *Pipeline) addRow(r report.Row) {
	if p.summary != nil {
		p.summary.Add(r)
	}
}
