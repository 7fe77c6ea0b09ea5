/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package backend

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"chainguard.dev/smartfix/agents/result"
	"chainguard.dev/smartfix/remediation/build"
	"chainguard.dev/smartfix/remediation/session"
)

const (
	maxEventField = 5000
	maxFullLog    = 20000
	maxAISummary  = 10000

	// SummaryReportLength is the longest aiSummaryReport produced by SummaryReport.
	SummaryReportLength = 255
)

// Telemetry is the run report uploaded for each remediation.
type Telemetry struct {
	TeamServerHost       string       `json:"teamServerHost"`
	VulnInfo             VulnInfo     `json:"vulnInfo"`
	AppInfo              AppInfo      `json:"appInfo"`
	ConfigInfo           ConfigInfo   `json:"configInfo"`
	ResultInfo           ResultInfo   `json:"resultInfo"`
	AgentEvents          []AgentEvent `json:"agentEvents"`
	AdditionalAttributes Attributes   `json:"additionalAttributes"`

	full bool
}

type VulnInfo struct {
	VulnID   string `json:"vulnId"`
	VulnRule string `json:"vulnRule"`
}

type AppInfo struct {
	ProgrammingLanguage    string   `json:"programmingLanguage"`
	TechnicalStackInfo     string   `json:"technicalStackInfo"`
	FrameworksAndLibraries []string `json:"frameworksAndLibraries"`
}

type ConfigInfo struct {
	SanitizedBuildCommand        string `json:"sanitizedBuildCommand"`
	BuildCommandRunTestsIncluded bool   `json:"buildCommandRunTestsIncluded"`
	SanitizedFormatCommand       string `json:"sanitizedFormatCommand"`
	AIProvider                   string `json:"aiProvider"`
	AIModel                      string `json:"aiModel"`
}

type ResultInfo struct {
	PRCreated       bool   `json:"prCreated"`
	Confidence      string `json:"confidence"`
	FilesModified   int    `json:"filesModified"`
	AISummaryReport string `json:"aiSummaryReport"`
	FailureReason   string `json:"failureReason,omitempty"`
	FailureCategory string `json:"failureCategory,omitempty"`
}

// AgentEvent describes one agent invocation.
type AgentEvent struct {
	StartTime   string        `json:"startTime"`
	DurationMs  float64       `json:"durationMs"`
	AgentType   string        `json:"agentType"`
	Result      string        `json:"result"`
	Actions     []AgentAction `json:"actions"`
	TotalTokens int64         `json:"totalTokens"`
	TotalCost   float64       `json:"totalCost"`
}

type AgentAction struct {
	LLMAction LLMAction       `json:"llmAction"`
	ToolCalls []ToolCallEvent `json:"toolCalls"`
}

type LLMAction struct {
	Summary string `json:"summary"`
}

type ToolCallEvent struct {
	Tool   string `json:"tool"`
	Result string `json:"result"`
}

type Attributes struct {
	FullLog       string `json:"fullLog,omitempty"`
	ScriptVersion string `json:"scriptVersion"`
	RemediationID string `json:"remediationId"`
	PRStatus      string `json:"prStatus,omitempty"`
	// CodingAgent is "EXTERNAL-<agent>" when an external coding agent
	// handles the remediations.
	CodingAgent         string `json:"codingAgent,omitempty"`
	ExternalIssueNumber int    `json:"externalIssueNumber,omitempty"`
	PRNumber            int    `json:"prNumber,omitempty"`
	PRURL               string `json:"prUrl,omitempty"`
}

// TelemetryConfig holds the run settings reported with every remediation.
type TelemetryConfig struct {
	Host              string
	BuildCommand      string
	FormattingCommand string
	// AgentModel is "provider/model"; a value without a slash is used for both.
	AgentModel    string
	ScriptVersion string
	// Full includes the captured log and the build commands.
	Full bool
}

// NewTelemetry starts an empty report for cfg.
func NewTelemetry(cfg TelemetryConfig) *Telemetry {
	t := &Telemetry{
		TeamServerHost: cfg.Host,
		ConfigInfo: ConfigInfo{
			SanitizedBuildCommand:  build.Sanitize(cfg.BuildCommand),
			SanitizedFormatCommand: build.Sanitize(cfg.FormattingCommand),
		},
		AdditionalAttributes: Attributes{ScriptVersion: cfg.ScriptVersion},
		full:                 cfg.Full,
	}
	t.Reset()
	if cfg.AgentModel != "" {
		provider, model, ok := strings.Cut(cfg.AgentModel, "/")
		if !ok {
			model = provider
		}
		t.ConfigInfo.AIProvider, t.ConfigInfo.AIModel = provider, model
	}
	return t
}

// Reset clears the fields that describe a single vulnerability.
func (t *Telemetry) Reset() {
	t.VulnInfo = VulnInfo{}
	t.AppInfo = AppInfo{FrameworksAndLibraries: []string{}}
	t.ResultInfo = ResultInfo{}
	t.AgentEvents = []AgentEvent{}
	t.AdditionalAttributes.RemediationID = ""
	t.AdditionalAttributes.PRStatus = ""
	t.AdditionalAttributes.ExternalIssueNumber = 0
	t.AdditionalAttributes.PRNumber = 0
	t.AdditionalAttributes.PRURL = ""
}

// SetVulnerability records the vulnerability being remediated.
func (t *Telemetry) SetVulnerability(remediationID, uuid, rule string) {
	t.VulnInfo = VulnInfo{VulnID: uuid, VulnRule: rule}
	t.AdditionalAttributes.RemediationID = remediationID
}

// ApplyAnalytics copies the self-assessment of the fix agent.
func (t *Telemetry) ApplyAnalytics(a result.Analytics) {
	if a.Confidence != "" {
		t.ResultInfo.Confidence = a.Confidence
	}
	if a.ProgrammingLanguage != "" {
		t.AppInfo.ProgrammingLanguage = a.ProgrammingLanguage
	}
	if a.TechnicalStack != "" {
		t.AppInfo.TechnicalStackInfo = a.TechnicalStack
	}
	if len(a.Frameworks) > 0 {
		t.AppInfo.FrameworksAndLibraries = append([]string(nil), a.Frameworks...)
	}
}

// RecordSession adds an agent event for every invocation of s, and the
// analytics reported by its fix agent.
func (t *Telemetry) RecordSession(s *session.Session) {
	for _, inv := range s.Invocations() {
		ev := AgentEvent{
			StartTime:   inv.Start.UTC().Format(time.RFC3339Nano),
			DurationMs:  float64(inv.Duration) / float64(time.Millisecond),
			AgentType:   strings.ToUpper(inv.Role),
			Result:      "SUCCESS",
			TotalTokens: inv.Tokens,
			TotalCost:   inv.CostUSD,
		}
		if inv.Failed {
			ev.Result = "FAILURE"
		}
		action := AgentAction{
			LLMAction: LLMAction{Summary: inv.Result},
			ToolCalls: []ToolCallEvent{},
		}
		for _, tc := range inv.ToolCalls {
			action.ToolCalls = append(action.ToolCalls, ToolCallEvent{Tool: tc.Tool, Result: toolStatus(tc.Result)})
		}
		ev.Actions = []AgentAction{action}
		t.AgentEvents = append(t.AgentEvents, ev)

		if inv.Role == "fix" && !inv.Failed {
			if a, ok := result.ParseAnalytics(inv.Result); ok {
				t.ApplyAnalytics(a)
			}
		}
	}
}

func toolStatus(summary string) string {
	switch {
	case summary == "success":
		return "SUCCESS"
	case strings.HasPrefix(summary, "error"):
		return "FAILURE"
	default:
		return "UNKNOWN"
	}
}

// Prepare returns a copy of t sized for upload. Large fields are truncated
// and, unless full telemetry is enabled, the log and commands are removed.
func (t *Telemetry) Prepare() *Telemetry {
	out := *t
	out.AppInfo.FrameworksAndLibraries = append([]string{}, t.AppInfo.FrameworksAndLibraries...)
	out.AgentEvents = make([]AgentEvent, 0, len(t.AgentEvents))
	for _, ev := range t.AgentEvents {
		ev.StartTime = middleCut(ev.StartTime, maxEventField)
		ev.AgentType = middleCut(ev.AgentType, maxEventField)
		ev.Result = middleCut(ev.Result, maxEventField)
		actions := make([]AgentAction, 0, len(ev.Actions))
		for _, a := range ev.Actions {
			a.LLMAction.Summary = middleCut(a.LLMAction.Summary, maxEventField)
			calls := make([]ToolCallEvent, 0, len(a.ToolCalls))
			for _, tc := range a.ToolCalls {
				calls = append(calls, ToolCallEvent{
					Tool:   middleCut(tc.Tool, maxEventField),
					Result: middleCut(tc.Result, maxEventField),
				})
			}
			a.ToolCalls = calls
			actions = append(actions, a)
		}
		ev.Actions = actions
		out.AgentEvents = append(out.AgentEvents, ev)
	}

	if log := out.AdditionalAttributes.FullLog; len(log) > maxFullLog {
		out.AdditionalAttributes.FullLog = fmt.Sprintf("...[First %d characters truncated]...\n%s", len(log)-maxFullLog, log[len(log)-maxFullLog:])
	}
	if s := out.ResultInfo.AISummaryReport; len(s) > maxAISummary {
		out.ResultInfo.AISummaryReport = s[:maxAISummary/2] + "...[truncated]..." + s[len(s)-maxAISummary/2:]
	}

	if !t.full {
		out.AdditionalAttributes.FullLog = ""
		out.ConfigInfo.SanitizedBuildCommand = ""
		out.ConfigInfo.SanitizedFormatCommand = ""
	}
	return &out
}

// middleCut keeps the head and tail of a string longer than n.
func middleCut(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n/2] + fmt.Sprintf("...[%d characters truncated]...", len(s)-n) + s[len(s)-n/2:]
}

var (
	summaryHeading = regexp.MustCompile(`(?i)^#+\s*(.*Summary|.*Overview|.*Changes).*$`)
	anyHeading     = regexp.MustCompile(`^#+\s`)
	markdownChars  = regexp.MustCompile("[*_#`]")
	whitespace     = regexp.MustCompile(`\s+`)
)

// SummaryReport condenses a fix summary into a single line of at most
// SummaryReportLength characters. The section under the first summary,
// overview or changes heading is preferred.
func SummaryReport(full string) string {
	summary := result.PRBody(full)

	lines := strings.Split(summary, "\n")
	for i, line := range lines {
		if !summaryHeading.MatchString(line) {
			continue
		}
		section := lines[i+1:]
		for j, next := range section {
			if anyHeading.MatchString(next) {
				section = section[:j]
				break
			}
		}
		summary = strings.TrimSpace(strings.Join(section, "\n"))
		break
	}

	summary = markdownChars.ReplaceAllString(summary, "")
	summary = strings.TrimSpace(whitespace.ReplaceAllString(summary, " "))
	if len(summary) > SummaryReportLength {
		summary = summary[:SummaryReportLength-3] + "..."
	}
	return summary
}
