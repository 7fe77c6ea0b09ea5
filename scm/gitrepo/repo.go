/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package gitrepo manages the checked-out repository a remediation runs in:
// preparing the remediation branch, listing and committing the agent's
// changes, pushing, and restoring the base branch afterwards.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/oauth2"
)

// ErrNothingToCommit is returned by CommitAll when the worktree is clean.
var ErrNothingToCommit = errors.New("no changes to commit")

const (
	defaultAuthorName  = "GitHub Action"
	defaultAuthorEmail = "action@github.com"
)

// Repo is a git repository with a worktree.
type Repo struct {
	repo *git.Repository
	root string

	authorName  string
	authorEmail string
	tokenSource oauth2.TokenSource
	remote      string
	now         func() time.Time
}

// Option configures a Repo.
type Option func(*Repo)

// WithAuthor sets the commit author.
func WithAuthor(name, email string) Option {
	return func(r *Repo) {
		r.authorName = name
		r.authorEmail = email
	}
}

// WithTokenSource authenticates pushes with tokens from ts.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(r *Repo) { r.tokenSource = ts }
}

// Open opens the repository containing path.
func Open(path string, opts ...Option) (*Repo, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository at %s: %w", path, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}
	r := &Repo{
		repo:        repo,
		root:        wt.Filesystem.Root(),
		authorName:  defaultAuthorName,
		authorEmail: defaultAuthorEmail,
		remote:      git.DefaultRemoteName,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Root returns the absolute path of the worktree.
func (r *Repo) Root() string { return r.root }

// Repository returns the underlying go-git repository.
func (r *Repo) Repository() *git.Repository { return r.repo }

func (r *Repo) worktree() (*git.Worktree, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}
	return wt, nil
}

// resolveBase returns the commit of the local base branch, falling back to
// the remote tracking branch.
func (r *Repo) resolveBase(base string) (plumbing.Hash, error) {
	if ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(base), true); err == nil {
		return ref.Hash(), nil
	}
	ref, err := r.repo.Reference(plumbing.NewRemoteReferenceName(r.remote, base), true)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolving base branch %s: %w", base, err)
	}
	return ref.Hash(), nil
}

// discard resets tracked files and removes untracked ones.
func discard(wt *git.Worktree) error {
	if err := wt.Reset(&git.ResetOptions{Mode: git.HardReset}); err != nil {
		return fmt.Errorf("resetting worktree: %w", err)
	}
	if err := wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return fmt.Errorf("cleaning worktree: %w", err)
	}
	return nil
}

// PrepareBranch discards local changes and checks out a fresh branch named
// name at the tip of base.
func (r *Repo) PrepareBranch(ctx context.Context, base, name string) error {
	if name == "" {
		return errors.New("branch name cannot be empty")
	}
	log := clog.FromContext(ctx).With("base_branch", base).With("branch", name)

	wt, err := r.worktree()
	if err != nil {
		return err
	}
	if err := discard(wt); err != nil {
		return err
	}

	hash, err := r.resolveBase(base)
	if err != nil {
		return err
	}
	refName := plumbing.NewBranchReferenceName(name)
	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(refName, hash)); err != nil {
		return fmt.Errorf("setting branch reference: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: refName, Force: true}); err != nil {
		return fmt.Errorf("checking out branch %s: %w", name, err)
	}
	log.With("sha", hash.String()).Info("Prepared remediation branch")
	return nil
}

// CurrentBranch returns the short name of the checked-out branch.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", errors.New("HEAD is detached")
	}
	return head.Name().Short(), nil
}

// ChangedFiles lists the files that differ from HEAD, including untracked
// files, in lexical order.
func (r *Repo) ChangedFiles(context.Context) ([]string, error) {
	wt, err := r.worktree()
	if err != nil {
		return nil, err
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("getting worktree status: %w", err)
	}
	files := make([]string, 0, len(status))
	for path, st := range status {
		if st.Staging == git.Unmodified && st.Worktree == git.Unmodified {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

// stageAll stages every change, including deletions.
func stageAll(wt *git.Worktree) error {
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("getting worktree status: %w", err)
	}
	for path, st := range status {
		switch st.Worktree {
		case git.Unmodified:
			continue
		case git.Deleted:
			if _, err := wt.Remove(path); err != nil {
				return fmt.Errorf("staging deletion of %s: %w", path, err)
			}
		default:
			if _, err := wt.Add(path); err != nil {
				return fmt.Errorf("staging %s: %w", path, err)
			}
		}
	}
	return nil
}

// CommitAll stages every change and commits it. ErrNothingToCommit is
// returned when there is nothing to commit.
func (r *Repo) CommitAll(ctx context.Context, message string) (string, error) {
	if message == "" {
		return "", errors.New("commit message cannot be empty")
	}
	wt, err := r.worktree()
	if err != nil {
		return "", err
	}
	if err := stageAll(wt); err != nil {
		return "", err
	}
	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("getting worktree status: %w", err)
	}
	if status.IsClean() {
		return "", ErrNothingToCommit
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  r.authorName,
			Email: r.authorEmail,
			When:  r.now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("committing: %w", err)
	}
	clog.FromContext(ctx).With("sha", hash.String()).Info("Committed changes")
	return hash.String(), nil
}

// Push force pushes branch to the remote.
func (r *Repo) Push(ctx context.Context, branch string) error {
	log := clog.FromContext(ctx)

	opts := &git.PushOptions{
		RemoteName: r.remote,
		Force:      true,
	}
	ref := plumbing.NewBranchReferenceName(branch)
	opts.RefSpecs = []gitconfig.RefSpec{gitconfig.RefSpec(fmt.Sprintf("%s:%s", ref, ref))}
	if r.tokenSource != nil {
		token, err := r.tokenSource.Token()
		if err != nil {
			return fmt.Errorf("getting token: %w", err)
		}
		opts.Auth = &githttp.BasicAuth{
			Username: "x-access-token",
			Password: token.AccessToken,
		}
	}

	log.With("branch", branch).With("remote", r.remote).Info("Pushing branch")
	if err := r.repo.PushContext(ctx, opts); err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			log.Info("Branch already up to date")
			return nil
		}
		return fmt.Errorf("pushing %s: %w", branch, err)
	}
	return nil
}

// Cleanup discards local changes, checks out base and deletes branch.
// Every step is attempted and their errors are combined.
func (r *Repo) Cleanup(ctx context.Context, base, branch string) error {
	var result *multierror.Error

	wt, err := r.worktree()
	if err != nil {
		return err
	}
	if err := discard(wt); err != nil {
		result = multierror.Append(result, err)
	}

	baseRef := plumbing.NewBranchReferenceName(base)
	if _, err := r.repo.Reference(baseRef, true); err != nil {
		hash, herr := r.resolveBase(base)
		if herr != nil {
			result = multierror.Append(result, herr)
		} else if err := r.repo.Storer.SetReference(plumbing.NewHashReference(baseRef, hash)); err != nil {
			result = multierror.Append(result, fmt.Errorf("creating base branch: %w", err))
		}
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: baseRef, Force: true}); err != nil {
		result = multierror.Append(result, fmt.Errorf("checking out %s: %w", base, err))
	}

	if branch != "" && branch != base {
		if err := r.repo.Storer.RemoveReference(plumbing.NewBranchReferenceName(branch)); err != nil {
			result = multierror.Append(result, fmt.Errorf("deleting branch %s: %w", branch, err))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		clog.FromContext(ctx).With("error", err).Warn("Cleanup was incomplete")
		return err
	}
	clog.FromContext(ctx).With("branch", branch).Info("Cleaned up remediation branch")
	return nil
}
