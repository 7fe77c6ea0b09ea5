/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package github talks to the GitHub API on behalf of a remediation run:
// labels, pull requests and the workflow event that triggered the run.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gogithub "github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

// DefaultServerURL is the public GitHub server.
const DefaultServerURL = "https://github.com"

// Client is a GitHub client bound to one repository.
type Client struct {
	rest  *gogithub.Client
	gql   *githubv4.Client
	owner string
	repo  string
}

// Auth selects the credentials used to call GitHub. Either Token or the
// three App fields must be set.
type Auth struct {
	Token string

	AppID          int64
	InstallationID int64
	PrivateKeyPath string
}

// HTTPClient builds an authenticated HTTP client and a token source usable
// for git pushes.
func (a Auth) HTTPClient(ctx context.Context, serverURL string) (*http.Client, oauth2.TokenSource, error) {
	if a.AppID != 0 {
		if a.InstallationID == 0 || a.PrivateKeyPath == "" {
			return nil, nil, errors.New("github app auth requires an installation ID and a private key path")
		}
		itr, err := ghinstallation.NewKeyFromFile(http.DefaultTransport, a.AppID, a.InstallationID, a.PrivateKeyPath)
		if err != nil {
			return nil, nil, fmt.Errorf("loading github app key: %w", err)
		}
		if api := apiBaseURL(serverURL); api != "" {
			itr.BaseURL = strings.TrimSuffix(api, "/")
		}
		return &http.Client{Transport: itr}, &installationTokenSource{ctx: ctx, itr: itr}, nil
	}
	if a.Token == "" {
		return nil, nil, errors.New("github token is required")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: a.Token})
	return oauth2.NewClient(ctx, ts), ts, nil
}

// installationTokenSource exposes GitHub App installation tokens as oauth2 tokens.
type installationTokenSource struct {
	ctx context.Context
	itr *ghinstallation.Transport
}

func (s *installationTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.itr.Token(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: tok}, nil
}

// apiBaseURL returns the REST base URL of a GitHub Enterprise server, or ""
// for github.com.
func apiBaseURL(serverURL string) string {
	serverURL = strings.TrimSuffix(serverURL, "/")
	if serverURL == "" || serverURL == DefaultServerURL {
		return ""
	}
	return serverURL + "/api/v3/"
}

// New creates a client for repository ("owner/name") on serverURL.
func New(httpClient *http.Client, repository, serverURL string) (*Client, error) {
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, fmt.Errorf("invalid repository %q, want owner/name", repository)
	}

	rest := gogithub.NewClient(httpClient)
	gql := githubv4.NewClient(httpClient)
	if api := apiBaseURL(serverURL); api != "" {
		var err error
		server := strings.TrimSuffix(serverURL, "/")
		if rest, err = rest.WithEnterpriseURLs(api, server+"/api/uploads/"); err != nil {
			return nil, fmt.Errorf("configuring enterprise urls: %w", err)
		}
		gql = githubv4.NewEnterpriseClient(server+"/api/graphql", httpClient)
	}
	return &Client{rest: rest, gql: gql, owner: owner, repo: repo}, nil
}

// NewWithClients creates a client from preconfigured API clients.
func NewWithClients(rest *gogithub.Client, gql *githubv4.Client, owner, repo string) *Client {
	return &Client{rest: rest, gql: gql, owner: owner, repo: repo}
}

// Repository returns "owner/name".
func (c *Client) Repository() string { return c.owner + "/" + c.repo }
