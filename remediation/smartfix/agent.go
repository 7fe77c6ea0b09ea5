/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package smartfix

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chainguard.dev/smartfix/agents/agenttrace"
	"chainguard.dev/smartfix/agents/executor"
	"chainguard.dev/smartfix/agents/metrics"
	"chainguard.dev/smartfix/agents/promptbuilder"
	"chainguard.dev/smartfix/agents/result"
	"chainguard.dev/smartfix/remediation/build"
	"chainguard.dev/smartfix/remediation/session"
	"github.com/chainguard-dev/clog"
)

const (
	// DefaultMaxQAAttempts is used when a context does not set MaxQAAttempts.
	DefaultMaxQAAttempts = 6
	// MaxQAAttemptsCap is the largest number of QA attempts allowed.
	MaxQAAttemptsCap = 10

	// buildOutputLimit is the number of trailing characters of build output
	// given to the QA agent.
	buildOutputLimit = 15000

	initialBuildFailureBody = "Build failed before any changes were made"
)

// Context describes the vulnerability to remediate and how to validate the fix.
type Context struct {
	RemediationID      string
	SessionID          string
	VulnerabilityUUID  string
	VulnerabilityTitle string
	VulnerabilityRule  string

	FixSystemPrompt string
	FixUserPrompt   string
	QASystemPrompt  string
	QAUserPrompt    string

	BuildCommand      string
	FormattingCommand string
	RepoPath          string

	// MaxQAAttempts defaults to DefaultMaxQAAttempts and is capped at MaxQAAttemptsCap.
	MaxQAAttempts int
	// MaxAgentEvents bounds each agent invocation, see executor.ClampMaxEvents.
	MaxAgentEvents int

	SkipWritingSecurityTest bool
	SkipQAReview            bool
}

func (c Context) normalize() Context {
	if c.MaxQAAttempts <= 0 {
		c.MaxQAAttempts = DefaultMaxQAAttempts
	}
	c.MaxQAAttempts = min(c.MaxQAAttempts, MaxQAAttemptsCap)
	c.MaxAgentEvents = executor.ClampMaxEvents(c.MaxAgentEvents)
	if c.SessionID == "" {
		c.SessionID = c.RemediationID
	}
	return c
}

// Agent runs remediation attempts.
type Agent struct {
	invoker  executor.Interface
	runner   build.Runner
	changes  build.ChangeLister
	outcomes *metrics.Outcomes
	now      func() time.Time
}

// Option configures an Agent.
type Option func(*Agent)

// WithOutcomes records the outcome of every attempt on o.
func WithOutcomes(o *metrics.Outcomes) Option {
	return func(a *Agent) { a.outcomes = o }
}

// New creates an Agent. changes may be nil, in which case the QA agent is
// not told which files were modified.
func New(invoker executor.Interface, runner build.Runner, changes build.ChangeLister, opts ...Option) *Agent {
	a := &Agent{
		invoker: invoker,
		runner:  runner,
		changes: changes,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Remediate runs one remediation attempt and returns its completed session.
func (a *Agent) Remediate(ctx context.Context, rc Context) (*session.Session, error) {
	rc = rc.normalize()
	sess := session.New(rc.SessionID, rc.MaxQAAttempts, rc.MaxAgentEvents)

	ctx = agenttrace.WithExecutionContext(ctx, agenttrace.ExecutionContext{
		RemediationID:     rc.RemediationID,
		SessionID:         rc.SessionID,
		VulnerabilityUUID: rc.VulnerabilityUUID,
	})
	log := clog.FromContext(ctx).
		With("remediation_id", rc.RemediationID).
		With("vulnerability_uuid", rc.VulnerabilityUUID)
	ctx = clog.WithLogger(ctx, log)
	log.With("max_qa_attempts", rc.MaxQAAttempts).
		With("max_agent_events", rc.MaxAgentEvents).
		Info("Starting remediation")

	r := &attempt{
		Agent: a,
		rc:    rc,
		sess:  sess,
		validator: &build.Validator{
			Runner:  a.runner,
			Command: rc.BuildCommand,
			Dir:     rc.RepoPath,
		},
		formatter: &build.Formatter{
			Runner:  a.runner,
			Command: rc.FormattingCommand,
			Dir:     rc.RepoPath,
			Changes: a.changes,
		},
	}
	if err := r.run(ctx); err != nil {
		log.With("error", err).Error("Remediation aborted")
		return nil, err
	}

	if err := sess.SetCostMetrics(session.CostMetrics{
		PromptTokens:     r.usage.PromptTokens,
		CompletionTokens: r.usage.CompletionTokens,
		TotalTokens:      r.usage.Total(),
		TotalCostUSD:     r.usage.CostUSD,
	}); err != nil {
		return nil, err
	}
	if a.outcomes != nil {
		a.outcomes.Observe(sess.Status().String(), sess.FailureCategory().String(), sess.QAAttempts(), sess.Duration())
	}

	log.With("status", sess.Status().String()).
		With("failure_category", sess.FailureCategory().String()).
		With("qa_attempts", sess.QAAttempts()).
		With("total_tokens", r.usage.Total()).
		Info("Remediation finished")
	return sess, nil
}

// attempt holds the state of one Remediate call.
type attempt struct {
	*Agent
	rc        Context
	sess      *session.Session
	validator *build.Validator
	formatter *build.Formatter
	usage     executor.Usage
}

func (r *attempt) run(ctx context.Context) error {
	ok, err := r.initialBuildCheck(ctx)
	if err != nil || !ok {
		return err
	}
	if ok, err = r.fix(ctx); err != nil || !ok {
		return err
	}

	log := clog.FromContext(ctx)
	switch {
	case !r.validator.Enabled():
		log.Info("No build command configured, skipping QA review")
		return r.sess.Succeed(r.sess.FinalPRBody())
	case r.rc.SkipQAReview:
		log.Info("QA review disabled, skipping QA loop")
		return r.sess.Succeed(r.sess.FinalPRBody())
	}
	return r.qaLoop(ctx)
}

func (r *attempt) initialBuildCheck(ctx context.Context) (bool, error) {
	if !r.validator.Enabled() {
		clog.FromContext(ctx).Info("No build command configured, skipping initial build check")
		return true, nil
	}

	r.sess.AddEvent("Running build command", "", map[string]string{
		"phase":         "initial",
		"build_command": build.Sanitize(r.rc.BuildCommand),
	})
	ok, output, err := r.validator.Validate(ctx)
	if err != nil {
		return false, fmt.Errorf("initial build check: %w", err)
	}
	if !ok {
		r.sess.AddEvent("Initial build failed", build.ExtractErrors(output), nil)
		return false, r.sess.Fail(session.InitialBuildFailure, initialBuildFailureBody)
	}
	r.sess.AddEvent("Initial build validation passed successfully", "", nil)
	return true, nil
}

func (r *attempt) fix(ctx context.Context) (bool, error) {
	log := clog.FromContext(ctx)

	prompt := r.rc.FixUserPrompt
	if r.rc.SkipWritingSecurityTest {
		var removed bool
		if prompt, removed = withoutSecurityTest(prompt); !removed {
			log.Warn("Security test instructions not found in fix prompt, leaving it unchanged")
		}
	}
	query, err := promptbuilder.Render(prompt, fixRequest{VulnerabilityUUID: r.rc.VulnerabilityUUID})
	if err != nil {
		return false, r.sess.Fail(session.AgentFailure, fmt.Sprintf("Error preparing fix prompt: %v", err))
	}

	r.sess.AddEvent(fmt.Sprintf("Fix vulnerability: %s", r.rc.VulnerabilityTitle), "", map[string]string{
		"role": string(executor.RoleFix),
	})
	resp, err := r.invoke(ctx, executor.RoleFix, 0, r.rc.FixSystemPrompt, query)
	if err != nil {
		category := session.AgentFailure
		if executor.IsInvalidConfig(err) {
			category = session.InvalidLLMConfig
		}
		log.With("error", err).With("failure_category", category.String()).Error("Fix agent failed")
		return false, r.sess.Fail(category, fmt.Sprintf("Error during fix agent execution: %v", err))
	}
	if text := strings.TrimSpace(resp.Text); text == "" || strings.HasPrefix(text, "Error") {
		log.With("response", clip(text, 500)).Error("Fix agent did not produce a fix")
		body := text
		if body == "" {
			body = "Fix agent returned an empty response"
		}
		return false, r.sess.Fail(session.AgentFailure, body)
	}

	r.sess.SetPRBody(result.PRBody(resp.Text))
	return true, nil
}

func (r *attempt) qaLoop(ctx context.Context) error {
	log := clog.FromContext(ctx)

	if failed, err := r.format(ctx); failed || err != nil {
		return err
	}
	r.sess.AddEvent("Running build command", "", map[string]string{"phase": "post_fix"})
	ok, output, err := r.validator.Validate(ctx)
	if err != nil {
		return fmt.Errorf("build check after fix: %w", err)
	}
	if ok {
		r.sess.AddEvent("Build passed after fix", "", nil)
		return r.sess.Succeed(r.sess.FinalPRBody())
	}

	var history []string
	for r.sess.QAAttempts() < r.sess.MaxQAAttempts {
		n, err := r.sess.BeginQAAttempt()
		if err != nil {
			return err
		}
		log := log.With("qa_attempt", n)
		r.sess.AddEvent(fmt.Sprintf("QA Loop Attempt %d", n), build.ExtractErrors(output), nil)

		changed, err := r.changedFiles(ctx)
		if err != nil {
			log.With("error", err).Error("Could not list changed files for QA")
			return r.sess.Fail(session.QAAgentFailure, fmt.Sprintf("Error preparing QA context: %v", err))
		}
		query, err := promptbuilder.Render(r.rc.QAUserPrompt, qaRequest{
			ChangedFiles: changed,
			BuildOutput:  build.TruncateTail(output, buildOutputLimit),
			History:      history,
		})
		if err != nil {
			return r.sess.Fail(session.QAAgentFailure, fmt.Sprintf("Error preparing QA prompt: %v", err))
		}

		resp, err := r.invoke(ctx, executor.RoleQA, n, r.rc.QASystemPrompt, query)
		if err != nil {
			category := session.QAAgentFailure
			if executor.IsInvalidConfig(err) {
				category = session.InvalidLLMConfig
			}
			log.With("error", err).With("failure_category", category.String()).Error("QA agent failed")
			return r.sess.Fail(category, fmt.Sprintf("Error during QA agent execution: %v", err))
		}
		history = append(history, resp.Text)

		if failed, err := r.format(ctx); failed || err != nil {
			return err
		}
		r.sess.AddEvent("Running build command", "", map[string]string{
			"phase":      "qa",
			"qa_attempt": fmt.Sprint(n),
		})
		if ok, output, err = r.validator.Validate(ctx); err != nil {
			return fmt.Errorf("build check after QA attempt %d: %w", n, err)
		}
		if ok {
			log.Info("Build passed after QA fix")
			r.sess.AddEvent(fmt.Sprintf("Build passed after QA attempt %d", n), "", nil)
			return r.sess.Succeed(r.sess.FinalPRBody())
		}
		log.Warn("Build still failing after QA fix")
		r.sess.RecordBuildFailure(output)
	}

	log.With("qa_attempts", r.sess.QAAttempts()).Error("Build still failing after all QA attempts")
	r.sess.AddEvent(fmt.Sprintf("Build failed after %d QA attempts", r.sess.QAAttempts()), "", nil)
	return r.sess.Fail(session.ExceededQAAttempts, fmt.Sprintf("Build failed after %d QA attempts.\n\n%s",
		r.sess.QAAttempts(), build.Summary(false, output)))
}

// invoke calls the agent runtime and records the invocation on the session.
func (r *attempt) invoke(ctx context.Context, role executor.Role, qaAttempt int, system, query string) (*executor.Response, error) {
	ctx = agenttrace.WithExecutionContext(ctx, agenttrace.ExecutionContext{
		RemediationID:     r.rc.RemediationID,
		SessionID:         r.rc.SessionID,
		VulnerabilityUUID: r.rc.VulnerabilityUUID,
		Role:              string(role),
		QAAttempt:         qaAttempt,
	})

	start := r.now()
	resp, err := r.invoker.Invoke(ctx, executor.Request{
		Role:         role,
		SystemPrompt: system,
		Query:        query,
		MaxEvents:    r.rc.MaxAgentEvents,
	})
	if err == nil && resp == nil {
		resp = &executor.Response{}
	}

	inv := session.Invocation{
		Role:     string(role),
		Start:    start,
		Duration: r.now().Sub(start),
	}
	metadata := map[string]string{"role": string(role)}
	if err != nil {
		inv.Result = err.Error()
		inv.Failed = true
		metadata["error"] = err.Error()
	} else {
		r.usage.Add(resp.Usage)
		inv.Result = resp.Text
		inv.Tokens = resp.Usage.Total()
		inv.CostUSD = resp.Usage.CostUSD
		inv.Truncated = resp.Truncated
		inv.EventCount = resp.Events
		for _, tc := range resp.ToolCalls {
			inv.ToolCalls = append(inv.ToolCalls, session.ToolCall{Tool: tc.Name, Result: tc.Result})
		}
		metadata["events"] = fmt.Sprint(resp.Events)
		if resp.Truncated {
			metadata["truncated"] = "true"
		}
	}
	r.sess.RecordInvocation(inv)
	r.sess.AddEvent(query, inv.Result, metadata)
	return resp, err
}

// format runs the formatting command. It reports failed when the session
// was closed because the working tree changes could not be listed.
func (r *attempt) format(ctx context.Context) (failed bool, err error) {
	_, err = r.formatter.Format(ctx)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, build.ErrListChanges):
		clog.FromContext(ctx).With("error", err).Error("Could not list changes around formatting")
		return true, r.sess.Fail(session.QAAgentFailure, fmt.Sprintf("Error running formatting command: %v", err))
	default:
		return false, err
	}
}

func (r *attempt) changedFiles(ctx context.Context) ([]string, error) {
	if r.changes == nil {
		return nil, nil
	}
	files, err := r.changes.ChangedFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", build.ErrListChanges, err)
	}
	return files, nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
