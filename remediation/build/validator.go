/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package build

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/chainguard-dev/clog"
)

// ErrListChanges means the changed files of the working tree could not be
// listed.
var ErrListChanges = errors.New("listing changed files")

// ChangeLister reports the files changed in the working tree.
type ChangeLister interface {
	ChangedFiles(ctx context.Context) ([]string, error)
}

// Validator runs the build command of a project.
type Validator struct {
	Runner  Runner
	Command string
	Dir     string
}

// Enabled reports whether a build command is configured.
func (v *Validator) Enabled() bool {
	return strings.TrimSpace(v.Command) != ""
}

// Validate runs the build command and reports whether it passed. An error
// is returned only when the command could not be executed.
func (v *Validator) Validate(ctx context.Context) (bool, string, error) {
	log := clog.FromContext(ctx).With("build_command", Sanitize(v.Command))
	log.Info("Running build command")

	code, output, err := v.Runner.Run(ctx, v.Command, v.Dir)
	if err != nil {
		return false, output, fmt.Errorf("running build command: %w", err)
	}
	if code != 0 {
		log.With("exit_code", code).Warn("Build command failed")
		return false, output, nil
	}
	log.Info("Build command succeeded")
	return true, output, nil
}

// Formatter runs an optional formatting command.
type Formatter struct {
	Runner  Runner
	Command string
	Dir     string
	Changes ChangeLister
}

// Format runs the formatting command and returns the files that it changed.
// Without a command it does nothing. A command that exits non-zero is logged
// and otherwise ignored. A failure to list the changes wraps ErrListChanges.
func (f *Formatter) Format(ctx context.Context) ([]string, error) {
	if f == nil || strings.TrimSpace(f.Command) == "" {
		return nil, nil
	}
	log := clog.FromContext(ctx).With("formatting_command", Sanitize(f.Command))

	var before []string
	if f.Changes != nil {
		var err error
		if before, err = f.Changes.ChangedFiles(ctx); err != nil {
			return nil, fmt.Errorf("%w before formatting: %w", ErrListChanges, err)
		}
	}

	log.Info("Running formatting command")
	code, output, err := f.Runner.Run(ctx, f.Command, f.Dir)
	if err != nil {
		return nil, fmt.Errorf("running formatting command: %w", err)
	}
	if code != 0 {
		log.With("exit_code", code).With("output", TruncateTail(output, 2000)).
			Warn("Formatting command failed, continuing")
	}

	if f.Changes == nil {
		return nil, nil
	}
	after, err := f.Changes.ChangedFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w after formatting: %w", ErrListChanges, err)
	}
	var changed []string
	for _, path := range after {
		if !slices.Contains(before, path) {
			changed = append(changed, path)
		}
	}
	if len(changed) == 0 {
		log.Info("Formatting command made no new changes")
	} else {
		log.With("files", changed).Info("Formatting command changed files")
	}
	return changed, nil
}
