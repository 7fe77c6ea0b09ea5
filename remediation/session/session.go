/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAlreadyCompleted is returned when a session is completed twice.
	ErrAlreadyCompleted = errors.New("session already completed")
	// ErrQAAttemptsExhausted is returned when a QA attempt would exceed the limit.
	ErrQAAttemptsExhausted = errors.New("qa attempts exhausted")
	// ErrNoCategory is returned when Fail is called without a failure category.
	ErrNoCategory = errors.New("failure requires a category")
	// ErrCostRecorded is returned when cost metrics are set twice.
	ErrCostRecorded = errors.New("cost metrics already recorded")
)

// Event is one entry in the audit trail of a session.
type Event struct {
	Time     time.Time         `json:"timestamp"`
	Prompt   string            `json:"prompt,omitempty"`
	Response string            `json:"response,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CostMetrics holds token and cost totals reported by the agent runtime.
type CostMetrics struct {
	PromptTokens     int64   `json:"promptTokens"`
	CompletionTokens int64   `json:"completionTokens"`
	TotalTokens      int64   `json:"totalTokens"`
	TotalCostUSD     float64 `json:"totalCost"`
}

// ToolCall records one tool invocation made by an agent.
type ToolCall struct {
	Tool   string `json:"tool"`
	Result string `json:"result"`
}

// Invocation records one call into the agent runtime.
type Invocation struct {
	Role       string        `json:"agentType"`
	Start      time.Time     `json:"startTime"`
	Duration   time.Duration `json:"duration"`
	Result     string        `json:"result"`
	Failed     bool          `json:"failed,omitempty"`
	ToolCalls  []ToolCall    `json:"toolCalls,omitempty"`
	Tokens     int64         `json:"totalTokens"`
	CostUSD    float64       `json:"totalCost"`
	Truncated  bool          `json:"truncated,omitempty"`
	EventCount int           `json:"events"`
}

// Session is the record of one remediation attempt. It is mutated only by
// the workflow engine while the run is in progress.
type Session struct {
	ID             string
	StartTime      time.Time
	EndTime        time.Time
	MaxQAAttempts  int
	MaxAgentEvents int

	status      Status
	category    FailureCategory
	qaAttempts  int
	events      []Event
	builds      []string
	prBody      string
	cost        *CostMetrics
	invocations []Invocation

	now func() time.Time
}

// New starts a session in the IN_PROGRESS state.
func New(id string, maxQAAttempts, maxAgentEvents int) *Session {
	s := &Session{
		ID:             id,
		MaxQAAttempts:  maxQAAttempts,
		MaxAgentEvents: maxAgentEvents,
		now:            time.Now,
	}
	s.StartTime = s.now()
	return s
}

// Status returns the current status of the session.
func (s *Session) Status() Status { return s.status }

// FailureCategory returns the category of a failed session, or None.
func (s *Session) FailureCategory() FailureCategory { return s.category }

// QAAttempts returns the number of QA attempts started so far.
func (s *Session) QAAttempts() int { return s.qaAttempts }

// FinalPRBody returns the pull request body, or the failure explanation
// once the session has failed.
func (s *Session) FinalPRBody() string { return s.prBody }

// CostMetrics returns the token and cost totals, or nil until they are set.
func (s *Session) CostMetrics() *CostMetrics { return s.cost }

// Events returns a copy of the audit trail.
func (s *Session) Events() []Event {
	return append([]Event(nil), s.events...)
}

// BuildResults returns the outputs of the failed builds, one per QA attempt.
func (s *Session) BuildResults() []string {
	return append([]string(nil), s.builds...)
}

// Invocations returns a copy of the recorded agent invocations.
func (s *Session) Invocations() []Invocation {
	return append([]Invocation(nil), s.invocations...)
}

// Completed reports whether a terminal status has been set.
func (s *Session) Completed() bool {
	return s.status.Terminal()
}

// AddEvent appends to the audit trail.
func (s *Session) AddEvent(prompt, response string, metadata map[string]string) {
	s.events = append(s.events, Event{
		Time:     s.now(),
		Prompt:   prompt,
		Response: response,
		Metadata: metadata,
	})
}

// RecordInvocation appends telemetry for one agent invocation.
func (s *Session) RecordInvocation(inv Invocation) {
	s.invocations = append(s.invocations, inv)
}

// SetPRBody records the provisional pull request body.
func (s *Session) SetPRBody(body string) {
	s.prBody = body
}

// BeginQAAttempt increments the QA counter and returns the new attempt number.
func (s *Session) BeginQAAttempt() (int, error) {
	if s.qaAttempts >= s.MaxQAAttempts {
		return s.qaAttempts, fmt.Errorf("%w: %d of %d", ErrQAAttemptsExhausted, s.qaAttempts, s.MaxQAAttempts)
	}
	s.qaAttempts++
	return s.qaAttempts, nil
}

// RecordBuildFailure appends the output of a failed build.
func (s *Session) RecordBuildFailure(output string) {
	s.builds = append(s.builds, output)
}

// Succeed completes the session successfully with the given PR body.
func (s *Session) Succeed(prBody string) error {
	return s.complete(None, prBody)
}

// Fail completes the session with a failure category and a diagnostic body.
func (s *Session) Fail(category FailureCategory, body string) error {
	if category == None {
		return ErrNoCategory
	}
	return s.complete(category, body)
}

func (s *Session) complete(category FailureCategory, body string) error {
	if s.Completed() {
		return fmt.Errorf("%w: status %s", ErrAlreadyCompleted, s.status)
	}
	s.category = category
	s.status = statusFor(category)
	s.prBody = body
	s.EndTime = s.now()
	return nil
}

// SetCostMetrics records the token and cost totals of the run.
func (s *Session) SetCostMetrics(m CostMetrics) error {
	if s.cost != nil {
		return ErrCostRecorded
	}
	if m.TotalTokens == 0 {
		m.TotalTokens = m.PromptTokens + m.CompletionTokens
	}
	s.cost = &m
	return nil
}

// Duration is the wall-clock time of the session so far.
func (s *Session) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return s.now().Sub(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

type sessionJSON struct {
	ID              string       `json:"sessionId"`
	StartTime       time.Time    `json:"startTime"`
	EndTime         *time.Time   `json:"endTime,omitempty"`
	Status          Status       `json:"status"`
	FailureCategory *string      `json:"failureCategory"`
	QAAttempts      int          `json:"qaAttempts"`
	MaxQAAttempts   int          `json:"maxQaAttempts"`
	MaxAgentEvents  int          `json:"maxAgentEvents"`
	Events          []Event      `json:"events"`
	BuildResults    []string     `json:"buildResults"`
	FinalPRBody     string       `json:"finalPrBody,omitempty"`
	CostMetrics     *CostMetrics `json:"costMetrics,omitempty"`
	Invocations     []Invocation `json:"agentEvents,omitempty"`
}

// MarshalJSON renders the session for archiving.
func (s *Session) MarshalJSON() ([]byte, error) {
	out := sessionJSON{
		ID:             s.ID,
		StartTime:      s.StartTime,
		Status:         s.status,
		QAAttempts:     s.qaAttempts,
		MaxQAAttempts:  s.MaxQAAttempts,
		MaxAgentEvents: s.MaxAgentEvents,
		Events:         s.events,
		BuildResults:   s.builds,
		FinalPRBody:    s.prBody,
		CostMetrics:    s.cost,
		Invocations:    s.invocations,
	}
	if !s.EndTime.IsZero() {
		out.EndTime = &s.EndTime
	}
	if s.category != None {
		c := s.category.String()
		out.FailureCategory = &c
	}
	if out.Events == nil {
		out.Events = []Event{}
	}
	if out.BuildResults == nil {
		out.BuildResults = []string{}
	}
	return json.Marshal(out)
}
