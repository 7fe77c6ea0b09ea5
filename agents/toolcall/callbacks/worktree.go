/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package callbacks

import (
	"context"
	"errors"
	"os"
)

// Match is one search hit.
type Match struct {
	// Path is relative to the worktree root.
	Path string `json:"path"`
	// Line is 1-based.
	Line    int    `json:"line"`
	Content string `json:"content"`
}

// WorktreeCallbacks are the file operations available to the agents.
// Writes and deletes are staged so the change set can be listed afterwards.
type WorktreeCallbacks struct {
	ReadFile       func(ctx context.Context, path string) (content string, err error)
	WriteFile      func(ctx context.Context, path, content string, mode os.FileMode) error
	DeleteFile     func(ctx context.Context, path string) error
	ListDirectory  func(ctx context.Context, path string) (entries []string, err error)
	SearchCodebase func(ctx context.Context, pattern string) (matches []Match, err error)
}

// Validate reports whether every callback is set.
func (cb WorktreeCallbacks) Validate() error {
	var errs []error
	if cb.ReadFile == nil {
		errs = append(errs, errors.New("ReadFile callback is required"))
	}
	if cb.WriteFile == nil {
		errs = append(errs, errors.New("WriteFile callback is required"))
	}
	if cb.DeleteFile == nil {
		errs = append(errs, errors.New("DeleteFile callback is required"))
	}
	if cb.ListDirectory == nil {
		errs = append(errs, errors.New("ListDirectory callback is required"))
	}
	if cb.SearchCodebase == nil {
		errs = append(errs, errors.New("SearchCodebase callback is required"))
	}
	return errors.Join(errs...)
}
