/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package session

import "fmt"

// FailureCategory explains why a remediation attempt did not succeed.
// The zero value means no failure.
type FailureCategory int

const (
	None FailureCategory = iota
	InitialBuildFailure
	AgentFailure
	QAAgentFailure
	ExceededQAAttempts
	InvalidLLMConfig
	ExceededAgentEvents
	ExceededTimeout
	GitCommandFailure
	GeneratePRFailure
	GeneralFailure
)

var categoryNames = map[FailureCategory]string{
	None:                "",
	InitialBuildFailure: "INITIAL_BUILD_FAILURE",
	AgentFailure:        "AGENT_FAILURE",
	QAAgentFailure:      "QA_AGENT_FAILURE",
	ExceededQAAttempts:  "EXCEEDED_QA_ATTEMPTS",
	InvalidLLMConfig:    "INVALID_LLM_CONFIG",
	ExceededAgentEvents: "EXCEEDED_AGENT_EVENTS",
	ExceededTimeout:     "EXCEEDED_TIMEOUT",
	GitCommandFailure:   "GIT_COMMAND_FAILURE",
	GeneratePRFailure:   "GENERATE_PR_FAILURE",
	GeneralFailure:      "GENERAL_FAILURE",
}

func (c FailureCategory) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("FailureCategory(%d)", int(c))
}

// MarshalText renders the category as the code the backend expects.
func (c FailureCategory) MarshalText() ([]byte, error) {
	if _, ok := categoryNames[c]; !ok {
		return nil, fmt.Errorf("unknown failure category %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText parses a category code.
func (c *FailureCategory) UnmarshalText(text []byte) error {
	parsed, err := ParseFailureCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseFailureCategory parses a category code such as "AGENT_FAILURE".
func ParseFailureCategory(s string) (FailureCategory, error) {
	for c, name := range categoryNames {
		if name == s {
			return c, nil
		}
	}
	return None, fmt.Errorf("unknown failure category %q", s)
}

// Status is the coarse state of a session.
type Status int

const (
	InProgress Status = iota
	Success
	BuildFailure
	MaxAttemptsReached
	Error
)

var statusNames = [...]string{
	InProgress:         "IN_PROGRESS",
	Success:            "SUCCESS",
	BuildFailure:       "BUILD_FAILURE",
	MaxAttemptsReached: "MAX_ATTEMPTS_REACHED",
	Error:              "ERROR",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText renders the status name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether the status ends a session.
func (s Status) Terminal() bool {
	return s != InProgress
}

// statusFor maps a failure category to the terminal status it implies.
func statusFor(c FailureCategory) Status {
	switch c {
	case None:
		return Success
	case InitialBuildFailure:
		return BuildFailure
	case ExceededQAAttempts:
		return MaxAttemptsReached
	default:
		return Error
	}
}
