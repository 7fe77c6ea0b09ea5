/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package external

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"chainguard.dev/smartfix/backend"
	"chainguard.dev/smartfix/remediation/build"
)

// Limits on the vulnerability details copied into an issue, keeping the body
// under GitHub's 64k character limit.
const (
	overviewLimit    = 8000
	eventsLimit      = 20000
	httpDetailsLimit = 4000
)

// IssueBody renders the issue that asks a coding agent to fix a
// vulnerability. vulnURL links the vulnerability in Contrast.
func IssueBody(d *backend.PromptDetails, vulnURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n# Contrast AI SmartFix Issue Report\n\n")
	fmt.Fprintf(&b, "This issue should address a vulnerability identified by the Contrast Security platform (ID: [%s](%s)).\n\n",
		orUnknown(d.VulnerabilityUUID, "UUID"), vulnURL)
	fmt.Fprintf(&b, "# Security Vulnerability: %s\n\n", orUnknown(d.VulnerabilityTitle, "Vulnerability"))
	fmt.Fprintf(&b, "## Vulnerability Details\n\n")
	fmt.Fprintf(&b, "**Rule:** %s\n", orUnknown(d.VulnerabilityRuleName, "Rule"))
	fmt.Fprintf(&b, "**Severity:** %s\n", orUnknown(d.VulnerabilitySeverity, "Severity"))
	fmt.Fprintf(&b, "**Status:** %s  ", orUnknown(d.VulnerabilityStatus, "Status"))

	if strings.TrimSpace(d.VulnerabilityOverviewStory) != "" {
		fmt.Fprintf(&b, "\n\n## Overview\n\n%s", build.TruncateTail(d.VulnerabilityOverviewStory, overviewLimit))
	}

	events := strings.TrimSpace(d.VulnerabilityEventsSummary) != ""
	request := strings.TrimSpace(d.VulnerabilityHTTPRequestDetails) != ""
	if events || request {
		b.WriteString("\n\n## Technical Details")
	}
	if events {
		fmt.Fprintf(&b, "\n\n### Event Summary\n```\n%s\n```", build.TruncateTail(d.VulnerabilityEventsSummary, eventsLimit))
	}
	if request {
		fmt.Fprintf(&b, "\n\n### HTTP Request Details\n```\n%s\n```", build.TruncateTail(d.VulnerabilityHTTPRequestDetails, httpDetailsLimit))
	}

	b.WriteString("\n\n## Action Required\n\n")
	b.WriteString("Please review this security vulnerability and implement appropriate fixes to address the identified issue.\n\n")
	b.WriteString("**Important:** If you cannot find the vulnerability, then take no actions (corrective or otherwise). Simply report that the vulnerability was not found.")
	return b.String()
}

func orUnknown(s, what string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown " + what
	}
	return s
}

// VulnerabilityURL returns the Contrast page of a vulnerability.
func VulnerabilityURL(host, orgID, appID, vulnUUID string) string {
	return fmt.Sprintf("https://%s/Contrast/static/ng/index.html#/%s/applications/%s/vulns/%s", host, orgID, appID, vulnUUID)
}

// claudePR is the pull request Claude Code proposes in an issue comment.
type claudePR struct {
	Head  string
	Title string
	Body  string
}

const (
	createPRMarker  = "[Create PR ➔]("
	commentFooter   = "\n\n---\n"
	poweredBySuffix = "\n Powered by Contrast AI SmartFix"
)

var compareBranch = regexp.MustCompile(`/compare/[^.]+\.\.\.([^?)\s]+)`)

// parseClaudeComment extracts the proposed pull request from a Claude Code
// comment on issue number. It reports false when the comment has no title
// and body to open the pull request with.
func parseClaudeComment(comment string, number int) (claudePR, bool) {
	header, _, _ := strings.Cut(comment, commentFooter)
	var pr claudePR

	branch := regexp.MustCompile(fmt.Sprintf("\\[`(claude/issue-%d-\\d{8}-\\d{4})`\\]", number))
	if m := branch.FindStringSubmatch(header); m != nil {
		pr.Head = m[1]
	}

	if link, ok := createPRLink(header); ok {
		target, query, _ := strings.Cut(link, "?")
		if _, head, ok := strings.Cut(target, "..."); ok && pr.Head == "" {
			pr.Head = head
		}
		if values, err := url.ParseQuery(query); err == nil {
			pr.Title = values.Get("title")
			pr.Body = values.Get("body")
		}
	}
	if pr.Head == "" {
		if m := compareBranch.FindStringSubmatch(header); m != nil {
			pr.Head = m[1]
		}
	}
	if pr.Title == "" || pr.Body == "" {
		return pr, false
	}
	pr.Body += poweredBySuffix
	return pr, true
}

// createPRLink returns the target of the "Create PR" markdown link, which
// may itself contain balanced parentheses.
func createPRLink(s string) (string, bool) {
	i := strings.Index(s, createPRMarker)
	if i < 0 {
		return "", false
	}
	start := i + len(createPRMarker)
	depth := 0
	for j := start; j < len(s); j++ {
		switch s[j] {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return s[start:j], j > start
			}
			depth--
		}
	}
	return "", false
}
