/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"context"
	"fmt"

	"chainguard.dev/smartfix/scm/github"
	"github.com/chainguard-dev/clog"
)

// HandleMerged reports a merged remediation pull request. Events for pull
// requests that were closed without merging are ignored.
func (p *Pipeline) HandleMerged(ctx context.Context, ev *github.PREvent) error {
	log := clog.FromContext(ctx).With("pr", ev.Number).With("remediation_id", ev.RemediationID)
	if ev.Action != "closed" {
		log.With("action", ev.Action).Info("Pull request was not closed, skipping")
		return nil
	}
	if !ev.Merged {
		log.Info("Pull request was closed without merging, skipping")
		return nil
	}
	return p.handleClose(clog.WithLogger(ctx, log), ev, "MERGED", p.backend.NotifyMerged)
}

// HandleClosed reports a remediation pull request closed without merging.
func (p *Pipeline) HandleClosed(ctx context.Context, ev *github.PREvent) error {
	log := clog.FromContext(ctx).With("pr", ev.Number).With("remediation_id", ev.RemediationID)
	if ev.Action != "closed" {
		log.With("action", ev.Action).Info("Pull request was not closed, skipping")
		return nil
	}
	if ev.Merged {
		log.Info("Pull request was merged, skipping")
		return nil
	}
	return p.handleClose(clog.WithLogger(ctx, log), ev, "CLOSED", p.backend.NotifyClosed)
}

func (p *Pipeline) handleClose(ctx context.Context, ev *github.PREvent, status string, notify func(context.Context, string) error) error {
	log := clog.FromContext(ctx)
	if ev.RemediationID == "" {
		return fmt.Errorf("no remediation ID in branch %q", ev.HeadBranch)
	}

	p.telemetry.Reset()
	p.telemetry.SetVulnerability(ev.RemediationID, ev.VulnerabilityUUID, "unknown")
	p.telemetry.AdditionalAttributes.PRStatus = status
	if ev.VulnerabilityUUID == "unknown" {
		log.Debug("No vulnerability label on the pull request, telemetry will be incomplete")
	}

	err := notify(ctx, ev.RemediationID)
	if err != nil {
		log.With("error", err).Error("Failed to notify the remediation service")
	} else {
		log.With("status", status).Info("Notified the remediation service")
	}
	p.sendTelemetry(ctx, ev.RemediationID)
	return err
}
