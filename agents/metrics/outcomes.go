/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Outcomes tracks the results of remediation attempts in a Prometheus
// registry. A CI job is short-lived, so the registry is pushed to a
// Pushgateway rather than scraped.
type Outcomes struct {
	registry     *prometheus.Registry
	remediations *prometheus.CounterVec
	qaAttempts   prometheus.Histogram
	duration     prometheus.Histogram
	pullRequests prometheus.Counter
}

// NewOutcomes creates the outcome metrics on a fresh registry.
func NewOutcomes() *Outcomes {
	o := &Outcomes{
		registry: prometheus.NewRegistry(),
		remediations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartfix_remediations_total",
			Help: "Total number of remediation attempts by status and failure category",
		}, []string{"status", "failure_category"}),
		qaAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartfix_qa_attempts",
			Help:    "QA attempts consumed per remediation",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartfix_remediation_duration_seconds",
			Help:    "Wall-clock duration of remediation attempts",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}),
		pullRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartfix_pull_requests_created_total",
			Help: "Pull requests opened for remediations",
		}),
	}
	o.registry.MustRegister(o.remediations, o.qaAttempts, o.duration, o.pullRequests)
	return o
}

// Registry exposes the underlying registry.
func (o *Outcomes) Registry() *prometheus.Registry {
	return o.registry
}

// Observe records a finished remediation.
func (o *Outcomes) Observe(status, category string, qaAttempts int, d time.Duration) {
	o.remediations.WithLabelValues(status, category).Inc()
	o.qaAttempts.Observe(float64(qaAttempts))
	o.duration.Observe(d.Seconds())
}

// PullRequestCreated counts an opened pull request.
func (o *Outcomes) PullRequestCreated() {
	o.pullRequests.Inc()
}

// Push sends the registry to a Pushgateway. An empty URL is a no-op.
func (o *Outcomes) Push(ctx context.Context, url, job string, groupings map[string]string) error {
	if url == "" {
		return nil
	}
	p := push.New(url, job).Gatherer(o.registry)
	for k, v := range groupings {
		p = p.Grouping(k, v)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	clog.FromContext(ctx).With("url", url).With("job", job).Info("Pushed remediation metrics")
	return nil
}
