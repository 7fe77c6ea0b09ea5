/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package github

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chainguard.dev/smartfix/scm"
	"github.com/chainguard-dev/clog"
	gogithub "github.com/google/go-github/v84/github"
)

// NewIssue describes an issue to open.
type NewIssue struct {
	Title     string
	Body      string
	Labels    []string
	Assignees []string
}

// IssueReset re-arms an existing issue for a new remediation.
type IssueReset struct {
	// RemediationLabel replaces every label carrying scm.RemediationLabelPrefix.
	RemediationLabel string
	// Assignee, when set, is removed and assigned again so that the coding
	// agent picks the issue up.
	Assignee string
	// Comment, when set, is posted on the issue.
	Comment string
}

// Comment is an issue comment.
type Comment struct {
	Author    string
	Body      string
	CreatedAt time.Time
}

// IssuesEnabled reports whether the repository has issues enabled.
func (c *Client) IssuesEnabled(ctx context.Context) (bool, error) {
	repo, _, err := c.rest.Repositories.Get(ctx, c.owner, c.repo)
	if err != nil {
		return false, fmt.Errorf("getting repository: %w", err)
	}
	return repo.GetHasIssues(), nil
}

// FindIssueWithLabel returns the number of an open issue carrying label, or
// 0 when there is none.
func (c *Client) FindIssueWithLabel(ctx context.Context, label string) (int, error) {
	opts := &gogithub.IssueListByRepoOptions{
		State:       "open",
		Labels:      []string{label},
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}
	for {
		issues, resp, err := c.rest.Issues.ListByRepo(ctx, c.owner, c.repo, opts)
		if err != nil {
			return 0, fmt.Errorf("listing issues for label %q: %w", label, err)
		}
		for _, is := range issues {
			if !is.IsPullRequest() {
				return is.GetNumber(), nil
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return 0, nil
		}
		opts.ListOptions.Page = resp.NextPage
	}
}

// CreateIssue opens an issue. Its labels are created first when missing.
func (c *Client) CreateIssue(ctx context.Context, issue NewIssue) (int, error) {
	for _, l := range issue.Labels {
		if err := c.ensureKnownLabel(ctx, l); err != nil {
			return 0, err
		}
	}
	req := &gogithub.IssueRequest{
		Title:  gogithub.Ptr(issue.Title),
		Body:   gogithub.Ptr(issue.Body),
		Labels: &issue.Labels,
	}
	if len(issue.Assignees) > 0 {
		req.Assignees = &issue.Assignees
	}
	created, _, err := c.rest.Issues.Create(ctx, c.owner, c.repo, req)
	if err != nil {
		return 0, fmt.Errorf("creating issue: %w", err)
	}
	clog.FromContext(ctx).With("number", created.GetNumber()).With("url", created.GetHTMLURL()).Info("Created issue")
	return created.GetNumber(), nil
}

// ResetIssue swaps the remediation label of issue number and re-triggers its
// coding agent.
func (c *Client) ResetIssue(ctx context.Context, number int, reset IssueReset) error {
	log := clog.FromContext(ctx).With("issue", number)

	labels, _, err := c.rest.Issues.ListLabelsByIssue(ctx, c.owner, c.repo, number, &gogithub.ListOptions{PerPage: 100})
	if err != nil {
		return fmt.Errorf("listing labels of issue #%d: %w", number, err)
	}
	for _, l := range labels {
		name := l.GetName()
		if !strings.HasPrefix(name, scm.RemediationLabelPrefix) || name == reset.RemediationLabel {
			continue
		}
		if _, err := c.rest.Issues.RemoveLabelForIssue(ctx, c.owner, c.repo, number, name); err != nil {
			return fmt.Errorf("removing label %q from issue #%d: %w", name, number, err)
		}
		log.With("label", name).Debug("Removed stale remediation label")
	}

	if reset.RemediationLabel != "" {
		if err := c.AddLabels(ctx, number, []string{reset.RemediationLabel}); err != nil {
			return err
		}
	}
	if reset.Assignee != "" {
		assignees := []string{reset.Assignee}
		if _, _, err := c.rest.Issues.RemoveAssignees(ctx, c.owner, c.repo, number, assignees); err != nil {
			return fmt.Errorf("unassigning issue #%d: %w", number, err)
		}
		if _, _, err := c.rest.Issues.AddAssignees(ctx, c.owner, c.repo, number, assignees); err != nil {
			return fmt.Errorf("assigning issue #%d to %s: %w", number, reset.Assignee, err)
		}
	}
	if reset.Comment != "" {
		if _, _, err := c.rest.Issues.CreateComment(ctx, c.owner, c.repo, number, &gogithub.IssueComment{
			Body: gogithub.Ptr(reset.Comment),
		}); err != nil {
			return fmt.Errorf("commenting on issue #%d: %w", number, err)
		}
	}
	log.Info("Reset issue")
	return nil
}

// FindOpenPRForIssue returns an open pull request whose title or body
// mentions issue number or contains title, or nil.
func (c *Client) FindOpenPRForIssue(ctx context.Context, number int, title string) (*PullRequest, error) {
	refs := []string{"#" + strconv.Itoa(number), "issue " + strconv.Itoa(number)}
	if t := strings.ToLower(strings.TrimSpace(title)); t != "" {
		refs = append(refs, t)
	}

	opts := &gogithub.PullRequestListOptions{
		State:       "open",
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}
	for {
		prs, resp, err := c.rest.PullRequests.List(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing open pull requests: %w", err)
		}
		for _, pr := range prs {
			text := strings.ToLower(pr.GetTitle() + " " + pr.GetBody())
			for _, ref := range refs {
				if strings.Contains(text, ref) {
					return &PullRequest{Number: pr.GetNumber(), URL: pr.GetHTMLURL()}, nil
				}
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return nil, nil
		}
		opts.Page = resp.NextPage
	}
}

// IssueComments returns the comments of issue number, newest first.
func (c *Client) IssueComments(ctx context.Context, number int) ([]Comment, error) {
	opts := &gogithub.IssueListCommentsOptions{
		Sort:        gogithub.Ptr("created"),
		Direction:   gogithub.Ptr("desc"),
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}
	comments, _, err := c.rest.Issues.ListComments(ctx, c.owner, c.repo, number, opts)
	if err != nil {
		return nil, fmt.Errorf("listing comments of issue #%d: %w", number, err)
	}
	out := make([]Comment, 0, len(comments))
	for _, cm := range comments {
		out = append(out, Comment{
			Author:    cm.GetUser().GetLogin(),
			Body:      cm.GetBody(),
			CreatedAt: cm.GetCreatedAt().Time,
		})
	}
	return out, nil
}

// AddLabels applies labels to an issue or pull request, creating the
// SmartFix labels among them when missing.
func (c *Client) AddLabels(ctx context.Context, number int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	for _, l := range labels {
		if err := c.ensureKnownLabel(ctx, l); err != nil {
			return err
		}
	}
	if _, _, err := c.rest.Issues.AddLabelsToIssue(ctx, c.owner, c.repo, number, labels); err != nil {
		return fmt.Errorf("labelling #%d: %w", number, err)
	}
	return nil
}

func (c *Client) ensureKnownLabel(ctx context.Context, name string) error {
	switch {
	case strings.HasPrefix(name, scm.LabelPrefix):
		return c.EnsureLabel(ctx, name, scm.LabelDescription, scm.LabelColor)
	case strings.HasPrefix(name, scm.RemediationLabelPrefix):
		return c.EnsureLabel(ctx, name, scm.RemediationLabelDescription, scm.RemediationLabelColor)
	}
	return nil
}
