/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/smartfix/agents/executor"
	"chainguard.dev/smartfix/backend"
	"chainguard.dev/smartfix/remediation/report"
	"chainguard.dev/smartfix/remediation/session"
	"chainguard.dev/smartfix/remediation/sessionhandler"
	"chainguard.dev/smartfix/remediation/smartfix"
	"chainguard.dev/smartfix/scm"
	"chainguard.dev/smartfix/scm/github"
	"github.com/chainguard-dev/clog"
	"github.com/hashicorp/go-multierror"
)

// remediate handles one vulnerability. It returns false when the run should
// stop because the backend handed out a vulnerability that was already
// skipped, and an error when a git or pull request operation failed.
func (p *Pipeline) remediate(ctx context.Context, d *backend.PromptDetails, skipped map[string]bool, res *Result) (bool, error) {
	log := clog.FromContext(ctx).
		With("remediation_id", d.RemediationID).
		With("vulnerability_uuid", d.VulnerabilityUUID)
	ctx = clog.WithLogger(ctx, log)
	res.Processed++

	p.telemetry.SetVulnerability(d.RemediationID, d.VulnerabilityUUID, d.VulnerabilityRuleName)
	row := report.Row{
		Title:             d.VulnerabilityTitle,
		VulnerabilityUUID: d.VulnerabilityUUID,
		RemediationID:     d.RemediationID,
	}

	label := scm.LabelName(d.VulnerabilityUUID)
	status, err := p.host.PRStatusForLabel(ctx, label)
	if err != nil {
		log.With("error", err).Warn("Could not check for an existing pull request")
		status = github.PRNone
	}
	if status == github.PROpen {
		if skipped[d.VulnerabilityUUID] {
			log.Warn("Vulnerability was already skipped, stopping")
			return false, nil
		}
		skipped[d.VulnerabilityUUID] = true
		log.Info("An open pull request already exists for this vulnerability, skipping")
		row.Outcome = "Skipped: open PR exists"
		p.addRow(row)
		return true, nil
	}

	if p.delegate != nil {
		return true, p.delegateRemediation(ctx, d, row, res)
	}

	base := p.settings.BaseBranch
	branch := scm.BranchName(d.RemediationID)
	if err := p.repo.PrepareBranch(ctx, base, branch); err != nil {
		log.With("error", err).Error("Failed to prepare branch, skipping vulnerability")
		row.Outcome = "Skipped: branch setup failed"
		p.addRow(row)
		return true, nil
	}

	sess, err := p.engine.Remediate(ctx, smartfix.Context{
		RemediationID:           d.RemediationID,
		SessionID:               p.sessionID(),
		VulnerabilityUUID:       d.VulnerabilityUUID,
		VulnerabilityTitle:      d.VulnerabilityTitle,
		VulnerabilityRule:       d.VulnerabilityRuleName,
		FixSystemPrompt:         d.FixSystemPrompt,
		FixUserPrompt:           d.FixUserPrompt,
		QASystemPrompt:          d.QASystemPrompt,
		QAUserPrompt:            d.QAUserPrompt,
		BuildCommand:            p.settings.BuildCommand,
		FormattingCommand:       p.settings.FormattingCommand,
		RepoPath:                p.settings.RepoRoot,
		MaxQAAttempts:           p.settings.MaxQAAttempts,
		MaxAgentEvents:          p.settings.MaxAgentEvents,
		SkipWritingSecurityTest: p.settings.SkipWritingSecurityTest,
		SkipQAReview:            p.settings.SkipQAReview,
	})
	if err != nil {
		category := session.GeneralFailure
		if errors.Is(err, executor.ErrInvalidLLMConfig) {
			category = session.InvalidLLMConfig
		}
		row.Outcome, row.FailureCategory = "Failed", category.String()
		p.addRow(row)
		return false, p.abort(ctx, d.RemediationID, branch, category, fmt.Errorf("remediating %s: %w", d.RemediationID, err))
	}
	p.archive(ctx, d.RemediationID, sess)
	p.telemetry.RecordSession(sess)
	fillRow(&row, sess)

	decision := sessionhandler.Handle(ctx, sess, sessionhandler.Config{
		SkipQAReview: p.settings.SkipQAReview,
		BuildCommand: p.settings.BuildCommand,
	})
	if !decision.ShouldContinue {
		p.notifyFailed(ctx, d.RemediationID, decision.FailureCategory)
		p.cleanup(ctx, branch)
		p.sendTelemetry(ctx, d.RemediationID)
		row.Outcome, row.FailureCategory = "Failed", decision.FailureCategory.String()
		p.addRow(row)
		return true, nil
	}

	changed, err := p.repo.ChangedFiles(ctx)
	if err != nil {
		row.Outcome, row.FailureCategory = "Failed", session.GitCommandFailure.String()
		p.addRow(row)
		return false, p.abort(ctx, d.RemediationID, branch, session.GitCommandFailure, fmt.Errorf("listing changes: %w", err))
	}
	if len(changed) == 0 {
		log.Warn("Remediation succeeded without changing any files, skipping pull request")
		p.cleanup(ctx, branch)
		row.Outcome = "No changes"
		p.addRow(row)
		return true, nil
	}

	pr, err := p.publish(ctx, d, branch, decision, len(changed))
	if err != nil {
		category := session.GitCommandFailure
		if errors.Is(err, errPullRequest) {
			category = session.GeneratePRFailure
		}
		row.Outcome, row.FailureCategory = "Failed", category.String()
		p.addRow(row)
		return false, p.abort(ctx, d.RemediationID, branch, category, err)
	}

	p.telemetry.ResultInfo.PRCreated = true
	if p.outcomes != nil {
		p.outcomes.PullRequestCreated()
	}
	if err := p.backend.NotifyOpen(ctx, d.RemediationID, pr.Number, pr.URL); err != nil {
		log.With("error", err).Warn("Failed to notify the remediation service of the pull request")
	}
	p.sendTelemetry(ctx, d.RemediationID)
	res.PRsOpened++
	row.Outcome, row.PRURL = "PR opened", pr.URL
	p.addRow(row)
	return true, nil
}

var errPullRequest = errors.New("pull request")

// publish commits the changes, pushes the branch and opens the pull request.
func (p *Pipeline) publish(ctx context.Context, d *backend.PromptDetails, branch string, decision sessionhandler.Result, changed int) (*github.PullRequest, error) {
	log := clog.FromContext(ctx)

	sha, err := p.repo.CommitAll(ctx, scm.CommitMessage(d.VulnerabilityTitle, d.VulnerabilityUUID))
	if err != nil {
		return nil, fmt.Errorf("committing changes: %w", err)
	}
	log.With("commit", sha).Info("Committed changes")

	p.telemetry.ResultInfo.FilesModified = changed
	if stats, err := p.repo.DiffStats(ctx, p.settings.BaseBranch); err != nil {
		log.With("error", err).Warn("Could not compute diff stats")
	} else if n := stats.FilesModified(); n > 0 {
		p.telemetry.ResultInfo.FilesModified = n
	}

	if err := p.repo.Push(ctx, branch); err != nil {
		return nil, fmt.Errorf("pushing %s: %w", branch, err)
	}

	label := scm.LabelName(d.VulnerabilityUUID)
	labels := []string{label}
	if err := p.host.EnsureLabel(ctx, label, scm.LabelDescription, scm.LabelColor); err != nil {
		log.With("error", err).Warn("Could not create the vulnerability label, opening the pull request without it")
		labels = nil
	}

	p.telemetry.ResultInfo.AISummaryReport = backend.SummaryReport(decision.Summary)
	pr, err := p.host.CreatePR(ctx, github.NewPullRequest{
		Title:  scm.PRTitle(d.VulnerabilityTitle),
		Body:   decision.Summary + decision.QASection,
		Head:   branch,
		Base:   p.settings.BaseBranch,
		Labels: labels,
	})
	switch {
	case err != nil && pr == nil:
		return nil, fmt.Errorf("%w: %w", errPullRequest, err)
	case err != nil:
		log.With("error", err).Warn("Pull request was created but could not be labelled")
	}
	return pr, nil
}

// abort reports a failure that ends the run and returns err.
func (p *Pipeline) abort(ctx context.Context, remediationID, branch string, category session.FailureCategory, err error) error {
	clog.FromContext(ctx).With("error", err).With("failure_category", category.String()).Error("Remediation failed, stopping the run")
	p.notifyFailed(ctx, remediationID, category)
	if cerr := p.repo.Cleanup(ctx, p.settings.BaseBranch, branch); cerr != nil {
		err = multierror.Append(err, fmt.Errorf("cleaning up %s: %w", branch, cerr))
	}
	p.sendTelemetry(ctx, remediationID)
	return err
}

func (p *Pipeline) cleanup(ctx context.Context, branch string) {
	if err := p.repo.Cleanup(ctx, p.settings.BaseBranch, branch); err != nil {
		clog.FromContext(ctx).With("branch", branch).With("error", err).Warn("Failed to clean up branch")
	}
}

func (p *Pipeline) archive(ctx context.Context, remediationID string, s *session.Session) {
	if p.archiver == nil {
		return
	}
	name, err := p.archiver.Archive(ctx, remediationID, s)
	if err != nil {
		clog.FromContext(ctx).With("error", err).Warn("Failed to archive session")
		return
	}
	clog.FromContext(ctx).With("object", name).Debug("Archived session")
}

func fillRow(row *report.Row, s *session.Session) {
	row.QAAttempts = s.QAAttempts()
	row.Duration = s.Duration()
	if c := s.CostMetrics(); c != nil {
		row.Tokens, row.CostUSD = c.TotalTokens, c.TotalCostUSD
	}
}
