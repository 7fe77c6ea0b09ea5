/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"

	"chainguard.dev/smartfix/agents/metaagent"
	"chainguard.dev/smartfix/agents/metrics"
	"chainguard.dev/smartfix/agents/toolcall"
	"chainguard.dev/smartfix/backend"
	"chainguard.dev/smartfix/backend/logcapture"
	"chainguard.dev/smartfix/config"
	"chainguard.dev/smartfix/remediation/audit"
	"chainguard.dev/smartfix/remediation/build"
	"chainguard.dev/smartfix/remediation/external"
	"chainguard.dev/smartfix/remediation/pipeline"
	"chainguard.dev/smartfix/remediation/report"
	"chainguard.dev/smartfix/remediation/smartfix"
	"chainguard.dev/smartfix/scm/github"
	"chainguard.dev/smartfix/scm/gitrepo"
	"github.com/chainguard-dev/clog"
)

const pushJob = "smartfix"

func newBackend(cfg *config.Config) (*backend.Client, *backend.Telemetry, error) {
	b, err := backend.New(backend.Config{
		Host:             cfg.ContrastHost,
		OrgID:            cfg.ContrastOrgID,
		AppID:            cfg.ContrastAppID,
		AuthorizationKey: cfg.ContrastAuthorizationKey,
		APIKey:           cfg.ContrastAPIKey,
	})
	if err != nil {
		return nil, nil, err
	}
	tel := backend.NewTelemetry(backend.TelemetryConfig{
		Host:              b.Host(),
		BuildCommand:      cfg.BuildCommand,
		FormattingCommand: cfg.FormattingCommand,
		AgentModel:        cfg.AgentModel,
		ScriptVersion:     config.Version,
		Full:              cfg.EnableFullTelemetry,
	})
	return b, tel, nil
}

func generateFix(ctx context.Context, cfg *config.Config, capture *logcapture.Buffer) error {
	log := clog.FromContext(ctx)

	b, tel, err := newBackend(cfg)
	if err != nil {
		return err
	}

	hc, ts, err := github.Auth{
		Token:          cfg.GitHubToken,
		AppID:          cfg.GitHubAppID,
		InstallationID: cfg.GitHubAppInstallationID,
		PrivateKeyPath: cfg.GitHubAppPrivateKeyPath,
	}.HTTPClient(ctx, cfg.GitHubServerURL)
	if err != nil {
		return err
	}
	gh, err := github.New(hc, cfg.GitHubRepository, cfg.GitHubServerURL)
	if err != nil {
		return err
	}

	outcomes := metrics.NewOutcomes()
	summary := &report.Summary{}
	opts := []pipeline.Option{
		pipeline.WithSummary(summary),
		pipeline.WithOutcomes(outcomes),
		pipeline.WithFullLog(capture.String),
	}

	var (
		repo   pipeline.Repository
		engine pipeline.Remediator
	)
	if kind, ok := cfg.ExternalAgent(); ok {
		agent, err := external.New(kind, gh, cfg.BaseBranch, external.WithVulnerabilityURLs(func(uuid string) string {
			return external.VulnerabilityURL(b.Host(), cfg.ContrastOrgID, cfg.ContrastAppID, uuid)
		}))
		if err != nil {
			return err
		}
		log.With("coding_agent", string(kind)).Info("Handing remediations to an external coding agent")
		opts = append(opts, pipeline.WithExternalAgent(agent))
	} else {
		local, err := gitrepo.Open(cfg.RepoRoot(), gitrepo.WithTokenSource(ts))
		if err != nil {
			return err
		}
		tools, err := toolcall.WorktreeTools(local.WorktreeCallbacks())
		if err != nil {
			return fmt.Errorf("building agent tools: %w", err)
		}
		agentCfg := cfg.Agent()
		agentCfg.Tools = tools
		invoker, err := metaagent.New(ctx, agentCfg)
		if err != nil {
			return err
		}
		repo = local
		engine = smartfix.New(invoker, &build.ShellRunner{}, local, smartfix.WithOutcomes(outcomes))
	}

	if cfg.AuditBucket != "" {
		store, err := audit.NewGCS(ctx, cfg.AuditBucket)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, pipeline.WithArchiver(audit.New(store)))
	}

	p := pipeline.New(b, gh, repo, engine, tel, pipeline.Settings{
		BaseBranch:              cfg.BaseBranch,
		BuildCommand:            cfg.BuildCommand,
		FormattingCommand:       cfg.FormattingCommand,
		RepoRoot:                cfg.RepoRoot(),
		RepoURL:                 cfg.RepoURL(),
		MaxOpenPRs:              cfg.MaxOpenPRs,
		MaxQAAttempts:           cfg.MaxQAAttempts,
		MaxAgentEvents:          cfg.MaxEventsPerAgent,
		MaxRuntime:              cfg.MaxRuntime,
		Severities:              cfg.VulnerabilitySeverities,
		SkipWritingSecurityTest: cfg.SkipWritingSecurityTest,
		SkipQAReview:            cfg.SkipQAReview,
	}, opts...)

	res, runErr := p.GenerateFix(ctx)
	if res != nil {
		log.With("processed", res.Processed).
			With("prs_opened", res.PRsOpened).
			With("stop", string(res.Stop)).
			Info("SmartFix run finished")
	}

	if cfg.StepSummaryPath != "" {
		if err := summary.AppendTo(cfg.StepSummaryPath); err != nil {
			log.With("error", err).Warn("Failed to write the step summary")
		}
	}
	if cfg.PushgatewayURL != "" {
		if err := outcomes.Push(ctx, cfg.PushgatewayURL, pushJob, map[string]string{"repository": cfg.GitHubRepository}); err != nil {
			log.With("error", err).Warn("Failed to push metrics")
		}
	}
	return runErr
}

func handleEvent(ctx context.Context, cfg *config.Config, task config.Task, capture *logcapture.Buffer) error {
	ev, err := github.ReadEvent(cfg.GitHubEventPath)
	if err != nil {
		return err
	}
	b, tel, err := newBackend(cfg)
	if err != nil {
		return err
	}
	p := pipeline.New(b, nil, nil, nil, tel, pipeline.Settings{}, pipeline.WithFullLog(capture.String))
	if task == config.TaskMerge {
		return p.HandleMerged(ctx, ev)
	}
	return p.HandleClosed(ctx, ev)
}
