/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitrepo

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"chainguard.dev/smartfix/agents/toolcall/callbacks"
	"github.com/go-git/go-git/v5/plumbing/format/index"
)

var binaryExts = map[string]struct{}{
	".exe": {}, ".dll": {}, ".so": {}, ".dylib": {}, ".class": {}, ".jar": {},
	".zip": {}, ".tar": {}, ".gz": {}, ".bz2": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".ico": {},
	".pdf": {}, ".bin": {}, ".dat": {},
}

// vendorDirs are skipped by SearchCodebase.
var vendorDirs = map[string]struct{}{
	"node_modules": {}, "vendor": {}, "target": {}, "dist": {},
}

// resolve maps a worktree-relative path to an absolute one, rejecting
// paths that leave the worktree or point into .git.
func (r *Repo) resolve(path string) (string, string, error) {
	rel := filepath.Clean(strings.TrimPrefix(path, "/"))
	full := filepath.Join(r.root, rel)
	back, err := filepath.Rel(r.root, full)
	if err != nil {
		return "", "", fmt.Errorf("path %q: %w", path, err)
	}
	if back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("path %q escapes worktree", path)
	}
	if back == ".git" || strings.HasPrefix(back, ".git"+string(filepath.Separator)) {
		return "", "", fmt.Errorf("path %q is inside the git directory", path)
	}
	return full, filepath.ToSlash(back), nil
}

// WorktreeCallbacks binds the agent file tools to the worktree. Writes and
// deletes are staged immediately.
func (r *Repo) WorktreeCallbacks() callbacks.WorktreeCallbacks {
	return callbacks.WorktreeCallbacks{
		ReadFile: func(_ context.Context, path string) (string, error) {
			full, _, err := r.resolve(path)
			if err != nil {
				return "", err
			}
			data, err := os.ReadFile(full)
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
		WriteFile: func(_ context.Context, path, content string, mode os.FileMode) error {
			full, rel, err := r.resolve(path)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(full, []byte(content), mode); err != nil {
				return err
			}
			// WriteFile keeps the mode of existing files.
			if err := os.Chmod(full, mode); err != nil {
				return err
			}
			wt, err := r.worktree()
			if err != nil {
				return err
			}
			_, err = wt.Add(rel)
			return err
		},
		DeleteFile: func(_ context.Context, path string) error {
			full, rel, err := r.resolve(path)
			if err != nil {
				return err
			}
			if err := os.Remove(full); err != nil {
				return err
			}
			wt, err := r.worktree()
			if err != nil {
				return err
			}
			// Untracked files have nothing to stage.
			if _, err := wt.Remove(rel); err != nil && !errors.Is(err, index.ErrEntryNotFound) {
				return err
			}
			return nil
		},
		ListDirectory: func(_ context.Context, path string) ([]string, error) {
			full, _, err := r.resolve(path)
			if err != nil {
				return nil, err
			}
			entries, err := os.ReadDir(full)
			if err != nil {
				return nil, err
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() {
					if name == ".git" {
						continue
					}
					name += "/"
				}
				names = append(names, name)
			}
			return names, nil
		},
		SearchCodebase: func(ctx context.Context, pattern string) ([]callbacks.Match, error) {
			return r.grep(ctx, pattern)
		},
	}
}

// grep searches every text file of the worktree for pattern.
func (r *Repo) grep(ctx context.Context, pattern string) ([]callbacks.Match, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	var matches []callbacks.Match
	err = filepath.WalkDir(r.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path == r.root {
				return nil
			}
			if _, skip := vendorDirs[d.Name()]; skip || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, binary := binaryExts[strings.ToLower(filepath.Ext(path))]; binary {
			return nil
		}
		found, err := searchFile(path, r.root, re)
		if err != nil {
			return nil
		}
		matches = append(matches, found...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func searchFile(path, root string, re *regexp.Regexp) ([]callbacks.Match, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil, err
	}

	var matches []callbacks.Match
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if text := scanner.Text(); re.MatchString(text) {
			matches = append(matches, callbacks.Match{
				Path:    filepath.ToSlash(rel),
				Line:    line,
				Content: text,
			})
		}
	}
	return matches, scanner.Err()
}
