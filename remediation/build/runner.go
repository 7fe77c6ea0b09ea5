/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
)

var (
	// ErrCommandNotFound means the command or its shell could not be found.
	ErrCommandNotFound = errors.New("command not found")
	// ErrExecution means the command could not be run for another reason.
	ErrExecution = errors.New("command execution failed")
)

// exitNotFound is the exit status shells use for an unknown command.
const exitNotFound = 127

// Runner executes a command in a directory and captures its output.
type Runner interface {
	Run(ctx context.Context, command, dir string) (exitCode int, output string, err error)
}

// ShellRunner runs commands through a POSIX shell.
type ShellRunner struct {
	// Shell is the interpreter used for commands (default: "sh").
	Shell string
	// Env, when set, replaces the environment of the command.
	Env []string
}

var _ Runner = (*ShellRunner)(nil)

// Run executes command with "<shell> -c" in dir.
func (r *ShellRunner) Run(ctx context.Context, command, dir string) (int, string, error) {
	shell := r.Shell
	if shell == "" {
		shell = "sh"
	}
	log := clog.FromContext(ctx).With("command", command).With("dir", dir)

	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Dir = dir
	if r.Env != nil {
		cmd.Env = r.Env
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	log = log.With("duration", time.Since(start).Round(time.Millisecond))

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		log.Debug("Command completed")
		return 0, out.String(), nil
	case errors.Is(err, exec.ErrNotFound):
		return -1, out.String(), fmt.Errorf("%w: %s: %w", ErrCommandNotFound, shell, err)
	case ctx.Err() != nil:
		return -1, out.String(), fmt.Errorf("%w: %w", ErrExecution, ctx.Err())
	case errors.As(err, &exitErr):
		code := exitErr.ExitCode()
		if code == exitNotFound && !resolvable(command, dir) {
			return code, out.String(), fmt.Errorf("%w: %s", ErrCommandNotFound, command)
		}
		log.With("exit_code", code).Debug("Command exited non-zero")
		return code, out.String(), nil
	default:
		return -1, out.String(), fmt.Errorf("%w: %w", ErrExecution, err)
	}
}

// resolvable reports whether the program named by the first word of command
// exists. Exit status 127 from a program that exists came from something it
// ran, which the build output describes.
func resolvable(command, dir string) bool {
	for _, word := range strings.Fields(command) {
		switch {
		case strings.Contains(word, "="):
			// Environment assignment.
			continue
		case shellBuiltins[word]:
			return true
		case strings.Contains(word, "/"):
			if !filepath.IsAbs(word) {
				word = filepath.Join(dir, word)
			}
			_, err := os.Stat(word)
			return err == nil
		default:
			_, err := exec.LookPath(word)
			return err == nil
		}
	}
	return false
}

var shellBuiltins = map[string]bool{
	"cd": true, ".": true, "source": true, "export": true, "set": true,
}
