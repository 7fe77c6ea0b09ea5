/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"context"
	"fmt"

	"chainguard.dev/smartfix/backend"
	"chainguard.dev/smartfix/remediation/external"
	"chainguard.dev/smartfix/remediation/report"
	"chainguard.dev/smartfix/remediation/session"
	"github.com/chainguard-dev/clog"
)

// Delegate hands vulnerabilities to an external coding agent in place of
// the workflow engine.
type Delegate interface {
	Kind() external.Kind
	Remediate(ctx context.Context, req external.Request) (*external.Outcome, error)
}

// WithExternalAgent routes every vulnerability to d. The local repository
// and the workflow engine are not used.
func WithExternalAgent(d Delegate) Option {
	return func(p *Pipeline) { p.delegate = d }
}

// delegateRemediation lets the external coding agent remediate d. It
// returns an error when the run cannot continue.
func (p *Pipeline) delegateRemediation(ctx context.Context, d *backend.PromptDetails, row report.Row, res *Result) error {
	log := clog.FromContext(ctx)
	p.telemetry.AdditionalAttributes.CodingAgent = "EXTERNAL-" + string(p.delegate.Kind())

	out, err := p.delegate.Remediate(ctx, external.Request{SessionID: p.sessionID(), Details: d})
	if err != nil {
		p.notifyFailed(ctx, d.RemediationID, session.GeneralFailure)
		p.sendTelemetry(ctx, d.RemediationID)
		row.Outcome, row.FailureCategory = "Failed", session.GeneralFailure.String()
		p.addRow(row)
		return fmt.Errorf("delegating %s: %w", d.RemediationID, err)
	}
	sess := out.Session
	p.archive(ctx, d.RemediationID, sess)
	p.telemetry.RecordSession(sess)
	p.telemetry.AdditionalAttributes.ExternalIssueNumber = out.Issue
	fillRow(&row, sess)

	if sess.Status() != session.Success {
		category := sess.FailureCategory()
		p.telemetry.ResultInfo.FailureReason = sess.FinalPRBody()
		p.telemetry.ResultInfo.FailureCategory = category.String()
		p.notifyFailed(ctx, d.RemediationID, category)
		p.sendTelemetry(ctx, d.RemediationID)
		row.Outcome, row.FailureCategory = "Failed", category.String()
		p.addRow(row)
		if category == session.GitCommandFailure {
			return fmt.Errorf("delegating %s: %s", d.RemediationID, sess.FinalPRBody())
		}
		return nil
	}

	pr := out.PR
	p.telemetry.ResultInfo.PRCreated = true
	p.telemetry.AdditionalAttributes.PRStatus = "OPEN"
	p.telemetry.AdditionalAttributes.PRNumber = pr.Number
	p.telemetry.AdditionalAttributes.PRURL = pr.URL
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
	return nil
}
