/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package backend is the client of the Contrast remediation service: it
// fetches the next vulnerability to fix, reports pull request lifecycle
// changes and uploads run telemetry.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chainguard.dev/smartfix/remediation/session"
	"github.com/chainguard-dev/clog"
	"github.com/hashicorp/go-retryablehttp"
)

// DefaultUserAgent identifies the client to the remediation service.
const DefaultUserAgent = "contrast-smart-fix v1.0.4"

var (
	// ErrNoVulnerability is returned when there is nothing left to remediate.
	ErrNoVulnerability = errors.New("no vulnerability available for remediation")
	// ErrPRLimit is returned when the service refuses to hand out more work
	// because the open pull request limit was reached.
	ErrPRLimit = errors.New("open pull request limit reached")
)

// StatusError is returned for responses with an unexpected status code.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Message)
}

// Config identifies the Contrast organization and application and carries
// the credentials used to call the service.
type Config struct {
	Host             string
	OrgID            string
	AppID            string
	AuthorizationKey string
	APIKey           string
	UserAgent        string
}

// Client calls the remediation service.
type Client struct {
	cfg  Config
	host string
	base string
	http *retryablehttp.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the transport client used underneath the retries.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http.HTTPClient = hc }
}

// WithRetries overrides the retry count and the bounds of the backoff.
func WithRetries(retries int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.http.RetryMax = retries
		c.http.RetryWaitMin = waitMin
		c.http.RetryWaitMax = waitMax
	}
}

// NormalizeHost strips the scheme and trailing slashes from a host setting.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimRight(host, "/")
}

// New creates a client from cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	host := NormalizeHost(cfg.Host)
	switch {
	case host == "":
		return nil, errors.New("contrast host is required")
	case cfg.OrgID == "" || cfg.AppID == "":
		return nil, errors.New("contrast organization and application IDs are required")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 3
	rc.RetryWaitMin = time.Second
	rc.RetryWaitMax = 10 * time.Second
	// Exhausted retries hand back the last response so its status can be reported.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			clog.FromContext(req.Context()).With("url", req.URL.String()).With("attempt", attempt).Warn("Retrying remediation service request")
		}
	}

	c := &Client{
		cfg:  cfg,
		host: host,
		base: fmt.Sprintf("https://%s/api/v4/aiml-remediation/organizations/%s/applications/%s",
			host, url.PathEscape(cfg.OrgID), url.PathEscape(cfg.AppID)),
		http: rc,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Host returns the normalized Contrast host.
func (c *Client) Host() string { return c.host }

// PromptRequest selects the vulnerabilities the service may hand out.
type PromptRequest struct {
	RepoRootDir     string
	RepoURL         string
	MaxPullRequests int
	Severities      []string
}

// PromptDetails is a vulnerability to remediate together with the prompts
// for the fix and QA agents.
type PromptDetails struct {
	RemediationID         string `json:"remediationId"`
	VulnerabilityUUID     string `json:"vulnerabilityUuid"`
	VulnerabilityTitle    string `json:"vulnerabilityTitle"`
	VulnerabilityRuleName string `json:"vulnerabilityRuleName"`
	VulnerabilityStatus   string `json:"vulnerabilityStatus"`
	VulnerabilitySeverity string `json:"vulnerabilitySeverity"`
	FixSystemPrompt       string `json:"fixSystemPrompt"`
	FixUserPrompt         string `json:"fixUserPrompt"`
	QASystemPrompt        string `json:"qaSystemPrompt"`
	QAUserPrompt          string `json:"qaUserPrompt"`

	// The remaining fields are optional and feed the issue opened for an
	// external coding agent.
	VulnerabilityOverviewStory      string `json:"vulnerabilityOverviewStory,omitempty"`
	VulnerabilityEventsSummary      string `json:"vulnerabilityEventsSummary,omitempty"`
	VulnerabilityHTTPRequestDetails string `json:"vulnerabilityHttpRequestDetails,omitempty"`
}

var requiredPromptKeys = []string{
	"remediationId",
	"vulnerabilityUuid",
	"vulnerabilityTitle",
	"vulnerabilityRuleName",
	"vulnerabilityStatus",
	"vulnerabilitySeverity",
	"fixSystemPrompt",
	"fixUserPrompt",
	"qaSystemPrompt",
	"qaUserPrompt",
}

// FetchPromptDetails asks the service for the next vulnerability to fix. It
// returns ErrNoVulnerability or ErrPRLimit when no work is handed out.
func (c *Client) FetchPromptDetails(ctx context.Context, req PromptRequest) (*PromptDetails, error) {
	const op = "fetching prompt details"
	severities := req.Severities
	if severities == nil {
		severities = []string{}
	}
	payload := map[string]any{
		"teamserverHost":  "https://" + c.host,
		"repoRootDir":     req.RepoRootDir,
		"repoUrl":         req.RepoURL,
		"maxPullRequests": req.MaxPullRequests,
		"severities":      severities,
	}
	resp, body, err := c.do(ctx, http.MethodPost, "/prompt-details", payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, ErrNoVulnerability
	case http.StatusConflict:
		return nil, ErrPRLimit
	case http.StatusOK:
	default:
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", op, err)
	}
	var missing []string
	for _, k := range requiredPromptKeys {
		if _, ok := raw[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s: response is missing %s", op, strings.Join(missing, ", "))
	}
	var details PromptDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", op, err)
	}

	clog.FromContext(ctx).
		With("remediation_id", details.RemediationID).
		With("vulnerability_uuid", details.VulnerabilityUUID).
		With("fix_system_prompt", redacted(details.FixSystemPrompt)).
		With("fix_user_prompt", redacted(details.FixUserPrompt)).
		With("qa_system_prompt", redacted(details.QASystemPrompt)).
		With("qa_user_prompt", redacted(details.QAUserPrompt)).
		Debug("Received prompt details")
	return &details, nil
}

// NotifyOpen reports the pull request opened for a remediation.
func (c *Client) NotifyOpen(ctx context.Context, remediationID string, prNumber int, prURL string) error {
	return c.put(ctx, "notifying open pull request", remediationID, "open", map[string]any{
		"pullRequestNumber": prNumber,
		"pullRequestUrl":    prURL,
	})
}

// NotifyMerged reports that the pull request of a remediation was merged.
func (c *Client) NotifyMerged(ctx context.Context, remediationID string) error {
	return c.put(ctx, "notifying merged pull request", remediationID, "merged", nil)
}

// NotifyClosed reports that the pull request of a remediation was closed
// without being merged.
func (c *Client) NotifyClosed(ctx context.Context, remediationID string) error {
	return c.put(ctx, "notifying closed pull request", remediationID, "closed", nil)
}

// NotifyFailed reports a failed remediation and its category.
func (c *Client) NotifyFailed(ctx context.Context, remediationID string, category session.FailureCategory) error {
	return c.put(ctx, "notifying failed remediation", remediationID, "failed", map[string]any{
		"failureCategory": category.String(),
	})
}

// SendTelemetry uploads the prepared form of t for a remediation.
func (c *Client) SendTelemetry(ctx context.Context, remediationID string, t *Telemetry) error {
	const op = "sending telemetry"
	switch {
	case remediationID == "":
		return fmt.Errorf("%s: remediation ID is required", op)
	case t == nil:
		return fmt.Errorf("%s: no telemetry", op)
	}
	resp, body, err := c.do(ctx, http.MethodPost, "/remediations/"+url.PathEscape(remediationID)+"/telemetry", t.Prepare())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	clog.FromContext(ctx).With("remediation_id", remediationID).Debug("Sent telemetry")
	return nil
}

func (c *Client) put(ctx context.Context, op, remediationID, action string, payload any) error {
	if remediationID == "" {
		return fmt.Errorf("%s: remediation ID is required", op)
	}
	resp, body, err := c.do(ctx, http.MethodPut, "/remediations/"+url.PathEscape(remediationID)+"/"+action, payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode != http.StatusNoContent {
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	clog.FromContext(ctx).With("remediation_id", remediationID).With("action", action).Info("Notified remediation service")
	return nil
}

// do sends a JSON request and returns the response with its body read.
func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, []byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", c.cfg.AuthorizationKey)
	req.Header.Set("API-Key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	clog.FromContext(ctx).With("method", method).With("url", req.URL.String()).Debug("Calling remediation service")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp, data, nil
}

// errorMessage extracts the first entry of the "messages" field of an error
// response, falling back to the raw body.
func errorMessage(body []byte) string {
	var parsed struct {
		Messages []string `json:"messages"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Messages) > 0 {
		return parsed.Messages[0]
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return "Unknown error"
}

func redacted(s string) string {
	return fmt.Sprintf("[REDACTED - %d chars]", len(s))
}
