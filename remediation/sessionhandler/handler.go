/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package sessionhandler turns a completed remediation session into the
// decision the pipeline acts on.
package sessionhandler

import (
	"context"
	"fmt"
	"strings"

	"chainguard.dev/smartfix/remediation/build"
	"chainguard.dev/smartfix/remediation/session"
	"github.com/chainguard-dev/clog"
)

// DefaultSummary is used when a successful session has no PR body.
const DefaultSummary = "Fix completed successfully"

// Config describes how QA was configured for the run.
type Config struct {
	SkipQAReview bool
	BuildCommand string
}

// Result is the pipeline decision for a session.
type Result struct {
	// ShouldContinue is true when a pull request should be opened.
	ShouldContinue bool
	// Summary is the fix summary used as the PR body.
	Summary string
	// QASection is appended to the PR body.
	QASection string
	// FailureCategory is set when ShouldContinue is false.
	FailureCategory session.FailureCategory
}

// Handle inspects a completed session.
func Handle(ctx context.Context, s *session.Session, cfg Config) Result {
	log := clog.FromContext(ctx).With("session_id", s.ID)

	if s.Status() != session.Success || s.FailureCategory() != session.None {
		category := s.FailureCategory()
		if category == session.None {
			category = session.AgentFailure
		}
		log.With("status", s.Status().String()).
			With("failure_category", category.String()).
			Warn("Remediation did not succeed")
		return Result{FailureCategory: category}
	}

	summary := s.FinalPRBody()
	if strings.TrimSpace(summary) == "" {
		summary = DefaultSummary
	}
	return Result{
		ShouldContinue: true,
		Summary:        summary,
		QASection:      qaSection(ctx, s, cfg),
	}
}

func qaSection(ctx context.Context, s *session.Session, cfg Config) string {
	log := clog.FromContext(ctx)
	switch {
	case cfg.SkipQAReview:
		log.Info("QA Review was skipped based on SKIP_QA_REVIEW setting")
		return ""
	case strings.TrimSpace(cfg.BuildCommand) == "":
		log.Info("QA Review was skipped as no BUILD_COMMAND was provided")
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n\n---\n\n## Review \n\n")
	fmt.Fprintf(&sb, "*   **Build Run:** Yes (`%s`)\n", build.Sanitize(cfg.BuildCommand))
	if n := s.QAAttempts(); n == 0 {
		sb.WriteString("*   **Final Build Status:** Success (passed on first attempt)\n")
	} else {
		fmt.Fprintf(&sb, "*   **Final Build Status:** Success (passed after %d QA attempts)\n", n)
	}
	return sb.String()
}
