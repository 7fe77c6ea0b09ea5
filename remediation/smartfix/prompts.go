/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package smartfix

import (
	"fmt"
	"strings"

	"chainguard.dev/smartfix/agents/promptbuilder"
)

const (
	securityTestStart = "4. Where feasible,"
	securityTestEnd   = "   - **CRITICAL: When mocking"

	securityTestReplacement = `
4. Where feasible, add or update tests to verify the fix.
    - **Use the 'Original HTTP Request' provided above as a basis for creating realistic mocked input data or request parameters within your test case.** Adapt the request details (method, path, headers, body) as needed for the test framework (e.g., MockMvc in Spring).
`
)

// withoutSecurityTest replaces the instructions that ask the fix agent to
// write a dedicated security test. The prompt is returned unchanged when
// either marker is missing.
func withoutSecurityTest(prompt string) (string, bool) {
	start := strings.Index(prompt, securityTestStart)
	end := strings.Index(prompt, securityTestEnd)
	if start == -1 || end == -1 || end < start {
		return prompt, false
	}
	return prompt[:start] + securityTestReplacement + prompt[end:], true
}

// fixRequest binds the placeholders of the fix user prompt.
type fixRequest struct {
	VulnerabilityUUID string
}

func (r fixRequest) Bind(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
	return p.BindText("vuln_uuid", r.VulnerabilityUUID)
}

// qaRequest binds the placeholders of the QA user prompt.
type qaRequest struct {
	ChangedFiles []string
	BuildOutput  string
	History      []string
}

func (r qaRequest) Bind(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
	p, err := p.BindText("changed_files", strings.Join(r.ChangedFiles, ", "))
	if err != nil {
		return nil, err
	}
	if p, err = p.BindText("build_output", r.BuildOutput); err != nil {
		return nil, err
	}
	return p.BindText("qa_history_section", historySection(r.History))
}

// historySection lists the summaries of earlier QA attempts.
func historySection(history []string) string {
	if len(history) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\nQA History from previous attempts:\n")
	for i, summary := range history {
		fmt.Fprintf(&sb, "Attempt %d: %s\n", i+1, summary)
	}
	return sb.String()
}
