/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package scm holds the naming conventions shared by the git and GitHub
// integrations.
package scm

import (
	"fmt"
	"regexp"
)

const (
	// BranchPrefix prefixes every remediation branch.
	BranchPrefix = "smartfix/remediation-"
	// LabelPrefix prefixes the vulnerability label of every remediation PR.
	LabelPrefix = "contrast-vuln-id:VULN-"
	// LabelDescription is the description of vulnerability labels.
	LabelDescription = "Vulnerability identified by Contrast AI SmartFix"
	// LabelColor is the color of vulnerability labels.
	LabelColor = "ff0000"
	// MaxLabelLength is the longest label name GitHub accepts.
	MaxLabelLength = 50

	// RemediationLabelPrefix prefixes the label that ties an issue or a pull
	// request opened by an external coding agent to its remediation.
	RemediationLabelPrefix = "smartfix-id:"
	// RemediationLabelDescription is the description of remediation labels.
	RemediationLabelDescription = "Remediation ID for Contrast vulnerability"
	// RemediationLabelColor is the color of remediation labels.
	RemediationLabelColor = "0075ca"
)

var branchPattern = regexp.MustCompile(`smartfix/remediation-([^/]+)`)

// BranchName returns the branch used for a remediation.
func BranchName(remediationID string) string {
	return BranchPrefix + remediationID
}

// RemediationIDFromBranch extracts the remediation ID from a branch name.
func RemediationIDFromBranch(branch string) (string, bool) {
	m := branchPattern.FindStringSubmatch(branch)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// LabelName returns the label attached to the PR of a vulnerability.
func LabelName(vulnUUID string) string {
	return LabelPrefix + vulnUUID
}

// RemediationLabelName returns the remediation label of remediationID.
func RemediationLabelName(remediationID string) string {
	return RemediationLabelPrefix + remediationID
}

// CommitMessage returns the message of the fix commit.
func CommitMessage(title, vulnUUID string) string {
	return fmt.Sprintf("Automated fix attempt for: %s (VULN-%s)", prefix(title, 50), vulnUUID)
}

// PRTitle returns the title of the remediation PR.
func PRTitle(title string) string {
	return "Fix: " + prefix(title, 100)
}

// prefix returns at most n runes of s.
func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
