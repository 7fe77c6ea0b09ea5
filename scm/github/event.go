/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package github

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"chainguard.dev/smartfix/scm"
	gogithub "github.com/google/go-github/v84/github"
)

// ErrNotRemediationPR is returned for pull requests whose head branch was not
// created by a remediation run.
var ErrNotRemediationPR = errors.New("pull request is not a remediation pull request")

// PREvent is the part of a pull_request workflow event the close handlers use.
type PREvent struct {
	Action        string
	Number        int
	URL           string
	Merged        bool
	HeadBranch    string
	RemediationID string
	// VulnerabilityUUID is taken from the vulnerability label, or "unknown".
	VulnerabilityUUID string
}

// ReadEvent parses the workflow event file at path.
func ReadEvent(path string) (*PREvent, error) {
	if path == "" {
		return nil, errors.New("GITHUB_EVENT_PATH is not set")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading event: %w", err)
	}
	return ParseEvent(data)
}

// ParseEvent parses a pull_request event payload.
func ParseEvent(payload []byte) (*PREvent, error) {
	var ev gogithub.PullRequestEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}
	pr := ev.GetPullRequest()
	if pr == nil {
		return nil, errors.New("event has no pull_request")
	}

	out := &PREvent{
		Action:            ev.GetAction(),
		Number:            pr.GetNumber(),
		URL:               pr.GetHTMLURL(),
		Merged:            pr.GetMerged(),
		HeadBranch:        pr.GetHead().GetRef(),
		VulnerabilityUUID: "unknown",
	}
	if out.HeadBranch == "" {
		return nil, errors.New("event has no head branch")
	}
	var labelID string
	for _, l := range pr.Labels {
		name := l.GetName()
		if uuid, ok := strings.CutPrefix(name, scm.LabelPrefix); ok && uuid != "" && out.VulnerabilityUUID == "unknown" {
			out.VulnerabilityUUID = uuid
		}
		if id, ok := strings.CutPrefix(name, scm.RemediationLabelPrefix); ok && id != "" && labelID == "" {
			labelID = id
		}
	}

	// Pull requests opened by an external coding agent live on the agent's
	// branch and are tied to the remediation by label.
	id, ok := scm.RemediationIDFromBranch(out.HeadBranch)
	switch {
	case ok:
		out.RemediationID = id
	case labelID != "":
		out.RemediationID = labelID
	default:
		return out, fmt.Errorf("%w: branch %q", ErrNotRemediationPR, out.HeadBranch)
	}
	return out, nil
}
