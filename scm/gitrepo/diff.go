/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitrepo

import (
	"context"
	"fmt"

	"github.com/waigani/diffparser"
)

// FileStat is the change summary of one file.
type FileStat struct {
	Path    string `json:"path"`
	Added   int    `json:"linesAdded"`
	Removed int    `json:"linesRemoved"`
	New     bool   `json:"new,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// DiffStats summarizes the change between two commits.
type DiffStats struct {
	Files   []FileStat `json:"files"`
	Added   int        `json:"linesAdded"`
	Removed int        `json:"linesRemoved"`
}

// FilesModified returns the number of files touched.
func (d DiffStats) FilesModified() int { return len(d.Files) }

// DiffStats compares HEAD with the tip of base.
func (r *Repo) DiffStats(ctx context.Context, base string) (DiffStats, error) {
	baseHash, err := r.resolveBase(base)
	if err != nil {
		return DiffStats{}, err
	}
	head, err := r.repo.Head()
	if err != nil {
		return DiffStats{}, fmt.Errorf("reading HEAD: %w", err)
	}
	from, err := r.repo.CommitObject(baseHash)
	if err != nil {
		return DiffStats{}, fmt.Errorf("loading base commit: %w", err)
	}
	to, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return DiffStats{}, fmt.Errorf("loading HEAD commit: %w", err)
	}
	patch, err := from.PatchContext(ctx, to)
	if err != nil {
		return DiffStats{}, fmt.Errorf("computing patch: %w", err)
	}
	return ParseDiff(patch.String())
}

// ParseDiff summarizes a unified diff.
func ParseDiff(unified string) (DiffStats, error) {
	var stats DiffStats
	if unified == "" {
		return stats, nil
	}
	diff, err := diffparser.Parse(unified)
	if err != nil {
		return stats, fmt.Errorf("parsing diff: %w", err)
	}
	for _, f := range diff.Files {
		fs := FileStat{
			Path:    f.NewName,
			New:     f.Mode == diffparser.NEW,
			Deleted: f.Mode == diffparser.DELETED,
		}
		if fs.Deleted || fs.Path == "" {
			fs.Path = f.OrigName
		}
		for _, h := range f.Hunks {
			for _, l := range h.WholeRange.Lines {
				switch l.Mode {
				case diffparser.ADDED:
					fs.Added++
				case diffparser.REMOVED:
					fs.Removed++
				}
			}
		}
		stats.Added += fs.Added
		stats.Removed += fs.Removed
		stats.Files = append(stats.Files, fs)
	}
	return stats, nil
}
