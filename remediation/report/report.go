/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package report renders the Markdown summary of a run for the GitHub
// Actions step summary.
package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// Row is the outcome of one vulnerability considered by the run.
type Row struct {
	Title             string
	VulnerabilityUUID string
	RemediationID     string
	// Outcome is a short status such as "PR opened" or "Skipped".
	Outcome         string
	FailureCategory string
	QAAttempts      int
	PRURL           string
	Duration        time.Duration
	Tokens          int64
	CostUSD         float64
}

// Detail is a collapsible appendix rendered below the table.
type Detail struct {
	Title string
	// Body is rendered as a fenced block of the given language.
	Language string
	Body     string
}

// Summary accumulates the rows of a run. It is safe for concurrent use.
type Summary struct {
	mu      sync.Mutex
	rows    []Row
	details []Detail
}

// Add records the outcome of a vulnerability.
func (s *Summary) Add(r Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, r)
}

// AddDetail appends a collapsible section.
func (s *Summary) AddDetail(d Detail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.details = append(s.details, d)
}

// Rows returns a copy of the recorded rows.
func (s *Summary) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Row(nil), s.rows...)
}

var headers = []string{"Vulnerability", "Remediation", "Outcome", "QA Attempts", "Pull Request", "Duration", "Tokens", "Cost"}

func newTable(w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{
				Left:   tw.On,
				Top:    tw.Off,
				Right:  tw.On,
				Bottom: tw.Off,
			},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

// Markdown renders the summary.
func (s *Summary) Markdown() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	buf.WriteString("## Contrast AI SmartFix\n\n")
	if len(s.rows) == 0 {
		buf.WriteString("No vulnerabilities were processed in this run.\n")
	} else {
		table := newTable(&buf)
		var tokens int64
		var cost float64
		opened := 0
		for _, r := range s.rows {
			tokens += r.Tokens
			cost += r.CostUSD
			if r.PRURL != "" {
				opened++
			}
			if err := table.Append(row(r)); err != nil {
				return "", fmt.Errorf("appending row: %w", err)
			}
		}
		if err := table.Render(); err != nil {
			return "", fmt.Errorf("rendering table: %w", err)
		}
		fmt.Fprintf(&buf, "\n**%d** vulnerabilities considered, **%d** pull requests opened, **%d** tokens, **$%.4f** total cost.\n",
			len(s.rows), opened, tokens, cost)
	}

	for _, d := range s.details {
		fmt.Fprintf(&buf, "\n<details>\n<summary>%s</summary>\n\n```%s\n%s\n```\n\n</details>\n",
			d.Title, d.Language, strings.TrimRight(d.Body, "\n"))
	}
	return buf.String(), nil
}

func row(r Row) []string {
	vuln := r.Title
	if r.VulnerabilityUUID != "" {
		vuln = fmt.Sprintf("%s (`%s`)", r.Title, r.VulnerabilityUUID)
	}
	outcome := r.Outcome
	if r.FailureCategory != "" {
		outcome = fmt.Sprintf("%s: %s", outcome, r.FailureCategory)
	}
	pr := "-"
	if r.PRURL != "" {
		pr = r.PRURL
	}
	return []string{
		escape(vuln),
		r.RemediationID,
		outcome,
		fmt.Sprint(r.QAAttempts),
		pr,
		r.Duration.Round(time.Second).String(),
		fmt.Sprint(r.Tokens),
		fmt.Sprintf("$%.4f", r.CostUSD),
	}
}

// escape keeps pipes in titles from splitting table cells.
func escape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// AppendTo appends the rendered summary to the file at path, which is
// typically $GITHUB_STEP_SUMMARY. An empty path is a no-op.
func (s *Summary) AppendTo(path string) error {
	if path == "" {
		return nil
	}
	md, err := s.Markdown()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening step summary: %w", err)
	}
	if _, err := f.WriteString(md); err != nil {
		f.Close()
		return fmt.Errorf("writing step summary: %w", err)
	}
	return f.Close()
}
