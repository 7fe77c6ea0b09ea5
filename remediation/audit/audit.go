/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package audit archives completed remediation sessions.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"chainguard.dev/smartfix/remediation/session"
	"cloud.google.com/go/storage"
	"github.com/chainguard-dev/clog"
	"google.golang.org/api/option"
	"gopkg.in/yaml.v3"
)

// Store persists archived objects.
type Store interface {
	Put(ctx context.Context, name, contentType string, data []byte) error
}

// Archiver writes sessions to a Store.
type Archiver struct {
	store Store
}

// New creates an Archiver backed by store.
func New(store Store) *Archiver {
	return &Archiver{store: store}
}

// ObjectName is the name a session is archived under.
func ObjectName(remediationID, sessionID string) string {
	return path.Join("sessions", remediationID, sessionID+".json")
}

// Archive stores the JSON form of s and returns its object name.
func (a *Archiver) Archive(ctx context.Context, remediationID string, s *session.Session) (string, error) {
	if remediationID == "" || s == nil {
		return "", errors.New("archive requires a remediation ID and a session")
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding session: %w", err)
	}
	name := ObjectName(remediationID, s.ID)
	if err := a.store.Put(ctx, name, "application/json", data); err != nil {
		return "", fmt.Errorf("archiving session %s: %w", s.ID, err)
	}
	clog.FromContext(ctx).With("object", name).With("bytes", len(data)).Info("Archived session")
	return name, nil
}

// GCS stores objects in a Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// NewGCS opens bucket with the ambient Google credentials unless opts
// override them.
func NewGCS(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &GCS{client: client, bucket: client.Bucket(bucket)}, nil
}

// Put implements Store.
func (g *GCS) Put(ctx context.Context, name, contentType string, data []byte) error {
	w := g.bucket.Object(name).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// Close releases the storage client.
func (g *GCS) Close() error { return g.client.Close() }

type record struct {
	Session         string       `yaml:"session"`
	Status          string       `yaml:"status"`
	FailureCategory string       `yaml:"failureCategory,omitempty"`
	QAAttempts      int          `yaml:"qaAttempts"`
	Duration        string       `yaml:"duration"`
	Events          int          `yaml:"events"`
	Tokens          int64        `yaml:"tokens,omitempty"`
	CostUSD         float64      `yaml:"costUsd,omitempty"`
	Invocations     []invocation `yaml:"invocations,omitempty"`
	BuildFailures   int          `yaml:"buildFailures,omitempty"`
}

type invocation struct {
	Role      string `yaml:"role"`
	Duration  string `yaml:"duration"`
	Tokens    int64  `yaml:"tokens"`
	ToolCalls int    `yaml:"toolCalls"`
	Failed    bool   `yaml:"failed,omitempty"`
	Truncated bool   `yaml:"truncated,omitempty"`
}

// YAML renders a compact overview of s.
func YAML(s *session.Session) (string, error) {
	r := record{
		Session:       s.ID,
		Status:        s.Status().String(),
		QAAttempts:    s.QAAttempts(),
		Duration:      s.Duration().Round(time.Millisecond).String(),
		Events:        len(s.Events()),
		BuildFailures: len(s.BuildResults()),
	}
	if c := s.FailureCategory(); c != session.None {
		r.FailureCategory = c.String()
	}
	if m := s.CostMetrics(); m != nil {
		r.Tokens, r.CostUSD = m.TotalTokens, m.TotalCostUSD
	}
	for _, inv := range s.Invocations() {
		r.Invocations = append(r.Invocations, invocation{
			Role:      inv.Role,
			Duration:  inv.Duration.Round(time.Millisecond).String(),
			Tokens:    inv.Tokens,
			ToolCalls: len(inv.ToolCalls),
			Failed:    inv.Failed,
			Truncated: inv.Truncated,
		})
	}
	out, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encoding session overview: %w", err)
	}
	return string(out), nil
}
