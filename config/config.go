/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package config loads the settings of a SmartFix run from the environment.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"chainguard.dev/smartfix/agents/executor"
	"chainguard.dev/smartfix/agents/executor/retry"
	"chainguard.dev/smartfix/agents/metaagent"
	"chainguard.dev/smartfix/remediation/external"
	"chainguard.dev/smartfix/remediation/smartfix"
	"github.com/chainguard-dev/clog"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Version is reported to the remediation service with every run.
const Version = "v1.0.4"

const (
	// DefaultMaxOpenPRs is used when MAX_OPEN_PRS is negative.
	DefaultMaxOpenPRs = 5
	// DefaultModel is used when AGENT_MODEL is not set.
	DefaultModel = "anthropic/claude-sonnet-4-5"
)

// Task selects what a run does.
type Task string

const (
	TaskGenerateFix Task = "generate_fix"
	TaskMerge       Task = "merge"
	TaskClosed      Task = "closed"
)

// ParseTask validates a RUN_TASK value.
func ParseTask(s string) (Task, error) {
	switch t := Task(strings.TrimSpace(s)); t {
	case TaskGenerateFix, TaskMerge, TaskClosed:
		return t, nil
	case "":
		return TaskGenerateFix, nil
	default:
		return "", fmt.Errorf("unknown RUN_TASK %q (want generate_fix, merge or closed)", s)
	}
}

// CodingAgentSmartFix runs the built-in workflow engine.
const CodingAgentSmartFix = "SMARTFIX"

// ValidSeverities lists the severities the remediation service understands.
var ValidSeverities = []string{"CRITICAL", "HIGH", "MEDIUM", "LOW", "NOTE"}

// DefaultSeverities are requested when no valid severity is configured.
var DefaultSeverities = []string{"CRITICAL", "HIGH"}

// Severities is a list of severity names given either as a JSON array or
// as comma separated values.
type Severities []string

// EnvDecode implements envconfig.Decoder.
func (s *Severities) EnvDecode(val string) error {
	val = strings.TrimSpace(val)
	var items []string
	if strings.HasPrefix(val, "[") {
		var raw []any
		if err := json.Unmarshal([]byte(val), &raw); err != nil {
			return fmt.Errorf("parsing severities %q: %w", val, err)
		}
		for _, r := range raw {
			items = append(items, fmt.Sprint(r))
		}
	} else {
		items = strings.Split(val, ",")
	}

	out := Severities{}
	for _, it := range items {
		if it = strings.ToUpper(strings.TrimSpace(it)); it != "" {
			out = append(out, it)
		}
	}
	*s = out
	return nil
}

// Config is the environment of a SmartFix run.
type Config struct {
	DebugMode bool   `env:"DEBUG_MODE,default=false"`
	RunTask   string `env:"RUN_TASK,default=generate_fix"`

	// CodingAgent is SMARTFIX, GITHUB_COPILOT or CLAUDE_CODE.
	CodingAgent string `env:"CODING_AGENT,default=SMARTFIX"`

	BaseBranch        string `env:"BASE_BRANCH"`
	BuildCommand      string `env:"BUILD_COMMAND"`
	FormattingCommand string `env:"FORMATTING_COMMAND"`

	MaxQAAttempts     int           `env:"MAX_QA_ATTEMPTS,default=6"`
	MaxOpenPRs        int           `env:"MAX_OPEN_PRS,default=5"`
	MaxEventsPerAgent int           `env:"MAX_EVENTS_PER_AGENT,default=120"`
	MaxRuntime        time.Duration `env:"MAX_RUNTIME,default=3h"`

	GitHubToken      string `env:"GITHUB_TOKEN"`
	GitHubRepository string `env:"GITHUB_REPOSITORY"`
	GitHubServerURL  string `env:"GITHUB_SERVER_URL,default=https://github.com"`
	GitHubEventPath  string `env:"GITHUB_EVENT_PATH"`
	StepSummaryPath  string `env:"GITHUB_STEP_SUMMARY"`
	Workspace        string `env:"GITHUB_WORKSPACE"`
	RepoRootOverride string `env:"REPO_ROOT"`

	GitHubAppID             int64  `env:"GITHUB_APP_ID"`
	GitHubAppInstallationID int64  `env:"GITHUB_APP_INSTALLATION_ID"`
	GitHubAppPrivateKeyPath string `env:"GITHUB_APP_PRIVATE_KEY_PATH"`

	ContrastHost             string `env:"CONTRAST_HOST"`
	ContrastOrgID            string `env:"CONTRAST_ORG_ID"`
	ContrastAppID            string `env:"CONTRAST_APP_ID"`
	ContrastAuthorizationKey string `env:"CONTRAST_AUTHORIZATION_KEY"`
	ContrastAPIKey           string `env:"CONTRAST_API_KEY"`

	AgentModel      string `env:"AGENT_MODEL,default=anthropic/claude-sonnet-4-5"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	GeminiAPIKey    string `env:"GEMINI_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `env:"OPENAI_BASE_URL"`
	GoogleProject   string `env:"GOOGLE_CLOUD_PROJECT"`
	VertexRegion    string `env:"VERTEX_REGION,default=us-east5"`
	AWSRegion       string `env:"AWS_REGION"`

	RetryInitialDelay time.Duration `env:"LLM_RETRY_INITIAL_DELAY,default=1s"`
	RetryMultiplier   float64       `env:"LLM_RETRY_MULTIPLIER,default=2"`
	MaxRetries        int           `env:"LLM_MAX_RETRIES,default=3"`

	SkipWritingSecurityTest bool       `env:"SKIP_WRITING_SECURITY_TEST,default=false"`
	SkipQAReview            bool       `env:"SKIP_QA_REVIEW,default=false"`
	EnableFullTelemetry     bool       `env:"ENABLE_FULL_TELEMETRY,default=true"`
	VulnerabilitySeverities Severities `env:"VULNERABILITY_SEVERITIES,default=CRITICAL,HIGH"`

	AuditBucket    string `env:"AUDIT_BUCKET"`
	PushgatewayURL string `env:"PUSHGATEWAY_URL"`
}

// LoadDotEnv reads variables from the .env files that exist into the
// process environment, without overriding variables already set.
func LoadDotEnv(ctx context.Context, files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("loading %s: %w", strings.Join(present, ", "), err)
	}
	clog.FromContext(ctx).With("files", present).Debug("Loaded environment files")
	return nil
}

// Load reads the configuration through l, or the process environment when
// l is nil, and applies defaults and bounds.
func Load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	if l == nil {
		l = envconfig.OsLookuper()
	}
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}
	cfg.normalize(ctx)
	return &cfg, nil
}

func (c *Config) normalize(ctx context.Context) {
	log := clog.FromContext(ctx)

	switch {
	case c.MaxQAAttempts <= 0:
		log.With("value", c.MaxQAAttempts).Warnf("MAX_QA_ATTEMPTS must be positive, using %d", smartfix.DefaultMaxQAAttempts)
		c.MaxQAAttempts = smartfix.DefaultMaxQAAttempts
	case c.MaxQAAttempts > smartfix.MaxQAAttemptsCap:
		log.With("value", c.MaxQAAttempts).Warnf("MAX_QA_ATTEMPTS is above the cap, using %d", smartfix.MaxQAAttemptsCap)
		c.MaxQAAttempts = smartfix.MaxQAAttemptsCap
	}

	if c.MaxOpenPRs < 0 {
		log.With("value", c.MaxOpenPRs).Warnf("MAX_OPEN_PRS cannot be negative, using %d", DefaultMaxOpenPRs)
		c.MaxOpenPRs = DefaultMaxOpenPRs
	}

	switch {
	case c.MaxEventsPerAgent < executor.MinMaxEvents:
		log.With("value", c.MaxEventsPerAgent).Warnf("MAX_EVENTS_PER_AGENT is too low, using %d", executor.MinMaxEvents)
		c.MaxEventsPerAgent = executor.MinMaxEvents
	case c.MaxEventsPerAgent > executor.MaxMaxEvents:
		log.With("value", c.MaxEventsPerAgent).Warnf("MAX_EVENTS_PER_AGENT is too high, using %d", executor.MaxMaxEvents)
		c.MaxEventsPerAgent = executor.MaxMaxEvents
	}

	valid := Severities{}
	for _, s := range c.VulnerabilitySeverities {
		if !slices.Contains(ValidSeverities, s) {
			log.With("severity", s).Warnf("Ignoring invalid severity, must be one of %v", ValidSeverities)
			continue
		}
		if !slices.Contains(valid, s) {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		log.Warnf("No valid severity levels configured, using %v", DefaultSeverities)
		valid = append(valid, DefaultSeverities...)
	}
	c.VulnerabilitySeverities = valid

	if strings.TrimSpace(c.AgentModel) == "" {
		c.AgentModel = DefaultModel
	}

	switch agent := strings.ToUpper(strings.TrimSpace(c.CodingAgent)); agent {
	case CodingAgentSmartFix, string(external.Copilot), string(external.ClaudeCode):
		c.CodingAgent = agent
	default:
		log.With("value", c.CodingAgent).Warnf("Unknown CODING_AGENT, using %s", CodingAgentSmartFix)
		c.CodingAgent = CodingAgentSmartFix
	}
	c.GitHubServerURL = strings.TrimSuffix(c.GitHubServerURL, "/")
}

// Validate reports every setting missing for task.
func (c *Config) Validate(task Task) error {
	var errs *multierror.Error
	require := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			errs = multierror.Append(errs, fmt.Errorf("%s is required", name))
		}
	}

	require("GITHUB_REPOSITORY", c.GitHubRepository)
	require("CONTRAST_HOST", c.ContrastHost)
	require("CONTRAST_ORG_ID", c.ContrastOrgID)
	require("CONTRAST_APP_ID", c.ContrastAppID)
	require("CONTRAST_AUTHORIZATION_KEY", c.ContrastAuthorizationKey)
	require("CONTRAST_API_KEY", c.ContrastAPIKey)
	if c.GitHubAppID != 0 {
		if c.GitHubAppInstallationID == 0 {
			errs = multierror.Append(errs, errors.New("GITHUB_APP_INSTALLATION_ID is required with GITHUB_APP_ID"))
		}
		require("GITHUB_APP_PRIVATE_KEY_PATH", c.GitHubAppPrivateKeyPath)
	} else {
		require("GITHUB_TOKEN", c.GitHubToken)
	}

	switch task {
	case TaskGenerateFix:
		require("BASE_BRANCH", c.BaseBranch)
		if _, ok := c.ExternalAgent(); ok {
			// The external agent builds and edits the code in its own environment.
			break
		}
		require("BUILD_COMMAND", c.BuildCommand)
		if c.RepoRoot() == "" {
			errs = multierror.Append(errs, errors.New("GITHUB_WORKSPACE is required"))
		}
		if _, err := metaagent.Resolve(c.AgentModel); err != nil {
			errs = multierror.Append(errs, err)
		}
	case TaskMerge, TaskClosed:
		require("GITHUB_EVENT_PATH", c.GitHubEventPath)
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown task %q", task))
	}
	return errs.ErrorOrNil()
}

// ExternalAgent returns the external coding agent the remediations are
// handed to, if any.
func (c *Config) ExternalAgent() (external.Kind, bool) {
	if c.CodingAgent == "" || c.CodingAgent == CodingAgentSmartFix {
		return "", false
	}
	return external.Kind(c.CodingAgent), true
}

// RepoRoot returns the checkout the run operates on.
func (c *Config) RepoRoot() string {
	if c.RepoRootOverride != "" {
		return c.RepoRootOverride
	}
	return c.Workspace
}

// RepoURL returns the web URL of the repository.
func (c *Config) RepoURL() string {
	return c.GitHubServerURL + "/" + c.GitHubRepository
}

// Retry returns the backoff applied to model calls.
func (c *Config) Retry() retry.Policy {
	return retry.Policy{
		InitialDelay: c.RetryInitialDelay,
		Multiplier:   c.RetryMultiplier,
		MaxRetries:   c.MaxRetries,
	}.Normalize()
}

// Agent returns the model settings for the agent executors.
func (c *Config) Agent() metaagent.Config {
	return metaagent.Config{
		Model:           c.AgentModel,
		AnthropicAPIKey: c.AnthropicAPIKey,
		GeminiAPIKey:    c.GeminiAPIKey,
		OpenAIAPIKey:    c.OpenAIAPIKey,
		OpenAIBaseURL:   c.OpenAIBaseURL,
		Project:         c.GoogleProject,
		Region:          c.VertexRegion,
		AWSRegion:       c.AWSRegion,
		Retry:           c.Retry(),
	}
}
