/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chainguard.dev/smartfix/scm"
	"github.com/chainguard-dev/clog"
	gogithub "github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
)

const (
	// MaxPRBodySize is the longest PR body sent before the disclaimer.
	MaxPRBodySize = 32000

	truncatedNotice = "\n\n...[Content truncated due to size limits]..."
	disclaimer      = "\n\n*Contrast AI SmartFix is powered by AI, so mistakes are possible.  Review before merging.*\n\n"
)

// PRStatus is the state of the pull request of a vulnerability.
type PRStatus string

const (
	PRNone   PRStatus = "NONE"
	PROpen   PRStatus = "OPEN"
	PRMerged PRStatus = "MERGED"
)

// ErrLabelTooLong is returned for label names GitHub would reject.
var ErrLabelTooLong = errors.New("label name exceeds 50 characters")

// EnsureLabel creates the label unless it already exists.
func (c *Client) EnsureLabel(ctx context.Context, name, description, color string) error {
	if len(name) > scm.MaxLabelLength {
		return fmt.Errorf("%w: %q", ErrLabelTooLong, name)
	}
	log := clog.FromContext(ctx).With("label", name)

	_, resp, err := c.rest.Issues.GetLabel(ctx, c.owner, c.repo, name)
	if err == nil {
		log.Debug("Label already exists")
		return nil
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("getting label %q: %w", name, err)
	}

	_, resp, err = c.rest.Issues.CreateLabel(ctx, c.owner, c.repo, &gogithub.Label{
		Name:        gogithub.Ptr(name),
		Description: gogithub.Ptr(description),
		Color:       gogithub.Ptr(color),
	})
	if err != nil {
		// Another run may have created it in the meantime.
		if resp != nil && resp.StatusCode == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(err.Error()), "already_exists") {
			return nil
		}
		return fmt.Errorf("creating label %q: %w", name, err)
	}
	log.Info("Created label")
	return nil
}

// NewPullRequest describes a pull request to open.
type NewPullRequest struct {
	Title  string
	Body   string
	Head   string
	Base   string
	Labels []string
}

// PullRequest identifies an opened pull request.
type PullRequest struct {
	Number int
	URL    string
}

// PRBody caps body at MaxPRBodySize and appends the AI disclaimer.
func PRBody(body string) string {
	if len(body) > MaxPRBodySize {
		body = body[:MaxPRBodySize] + truncatedNotice
	}
	return body + disclaimer
}

// CreatePR opens a pull request and applies its labels.
func (c *Client) CreatePR(ctx context.Context, pr NewPullRequest) (*PullRequest, error) {
	log := clog.FromContext(ctx).With("head", pr.Head).With("base", pr.Base)
	if len(pr.Body) > MaxPRBodySize {
		log.With("size", len(pr.Body)).Warn("PR body is too large, truncating")
	}

	created, _, err := c.rest.PullRequests.Create(ctx, c.owner, c.repo, &gogithub.NewPullRequest{
		Title: gogithub.Ptr(pr.Title),
		Head:  gogithub.Ptr(pr.Head),
		Base:  gogithub.Ptr(pr.Base),
		Body:  gogithub.Ptr(PRBody(pr.Body)),
	})
	if err != nil {
		return nil, fmt.Errorf("creating pull request: %w", err)
	}
	out := &PullRequest{Number: created.GetNumber(), URL: created.GetHTMLURL()}

	if len(pr.Labels) > 0 {
		if _, _, err := c.rest.Issues.AddLabelsToIssue(ctx, c.owner, c.repo, out.Number, pr.Labels); err != nil {
			return out, fmt.Errorf("labelling pull request #%d: %w", out.Number, err)
		}
	}
	log.With("number", out.Number).With("url", out.URL).Info("Created pull request")
	return out, nil
}

// PRStatusForLabel reports whether an open or merged pull request carries label.
func (c *Client) PRStatusForLabel(ctx context.Context, label string) (PRStatus, error) {
	opts := &gogithub.IssueListByRepoOptions{
		State:       "all",
		Labels:      []string{label},
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}
	merged := false
	for {
		issues, resp, err := c.rest.Issues.ListByRepo(ctx, c.owner, c.repo, opts)
		if err != nil {
			return PRNone, fmt.Errorf("listing pull requests for label %q: %w", label, err)
		}
		for _, is := range issues {
			if !is.IsPullRequest() {
				continue
			}
			if is.GetState() == "open" {
				return PROpen, nil
			}
			if merged {
				continue
			}
			pr, _, err := c.rest.PullRequests.Get(ctx, c.owner, c.repo, is.GetNumber())
			if err != nil {
				return PRNone, fmt.Errorf("getting pull request #%d: %w", is.GetNumber(), err)
			}
			merged = pr.GetMerged()
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}
	if merged {
		return PRMerged, nil
	}
	return PRNone, nil
}

// CountOpenPRs counts open pull requests with at least one label starting
// with prefix.
func (c *Client) CountOpenPRs(ctx context.Context, prefix string) (int, error) {
	var query struct {
		Repository struct {
			PullRequests struct {
				Nodes []struct {
					Labels struct {
						Nodes []struct {
							Name string
						}
					} `graphql:"labels(first: 50)"`
				}
				PageInfo struct {
					HasNextPage bool
					EndCursor   githubv4.String
				}
			} `graphql:"pullRequests(states: OPEN, first: 100, after: $cursor)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}
	variables := map[string]any{
		"owner":  githubv4.String(c.owner),
		"repo":   githubv4.String(c.repo),
		"cursor": (*githubv4.String)(nil),
	}

	count := 0
	for {
		if err := c.gql.Query(ctx, &query, variables); err != nil {
			return 0, fmt.Errorf("graphql query: %w", err)
		}
		for _, pr := range query.Repository.PullRequests.Nodes {
			for _, l := range pr.Labels.Nodes {
				if strings.HasPrefix(l.Name, prefix) {
					count++
					break
				}
			}
		}
		if !query.Repository.PullRequests.PageInfo.HasNextPage {
			break
		}
		variables["cursor"] = githubv4.NewString(query.Repository.PullRequests.PageInfo.EndCursor)
	}
	clog.FromContext(ctx).With("prefix", prefix).With("count", count).Debug("Counted open pull requests")
	return count, nil
}
