/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Command smartfix runs Contrast AI SmartFix inside a GitHub workflow: it
// opens pull requests that fix the vulnerabilities handed out by the
// remediation service, and reports what happens to them afterwards.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chainguard.dev/smartfix/backend/logcapture"
	"chainguard.dev/smartfix/config"
	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFiles []string
	root := &cobra.Command{
		Use:           "smartfix",
		Short:         "Contrast AI SmartFix",
		Long:          "SmartFix remediates vulnerabilities reported by Contrast and opens a pull request per fix.\nWithout a subcommand the task is selected by RUN_TASK.",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), envFiles, "")
		},
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "environment files to load (default .env when present)")

	for _, task := range []struct {
		task  config.Task
		short string
	}{
		{config.TaskGenerateFix, "Remediate vulnerabilities and open pull requests"},
		{config.TaskMerge, "Report a merged remediation pull request"},
		{config.TaskClosed, "Report a remediation pull request closed without merging"},
	} {
		root.AddCommand(&cobra.Command{
			Use:   strings.ReplaceAll(string(task.task), "_", "-"),
			Short: task.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), envFiles, task.task)
			},
		})
	}
	return root
}

// run loads the configuration and executes task, or RUN_TASK when task is
// empty.
func run(ctx context.Context, envFiles []string, task config.Task) error {
	level := new(slog.LevelVar)
	capture := logcapture.NewBuffer(logcapture.DefaultLimit)
	log := clog.New(logcapture.NewHandler(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
		capture, level))
	ctx = clog.WithLogger(ctx, log)

	err := runTask(ctx, envFiles, task, level, capture)
	if err != nil {
		log.With("error", err).Error("SmartFix failed")
	}
	return err
}

func runTask(ctx context.Context, envFiles []string, task config.Task, level *slog.LevelVar, capture *logcapture.Buffer) error {
	if err := config.LoadDotEnv(ctx, envFiles...); err != nil {
		return err
	}
	cfg, err := config.Load(ctx, nil)
	if err != nil {
		return err
	}
	if cfg.DebugMode {
		level.Set(slog.LevelDebug)
	}
	if task == "" {
		if task, err = config.ParseTask(cfg.RunTask); err != nil {
			return err
		}
	}
	if err := cfg.Validate(task); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := clog.FromContext(ctx).With("task", string(task))
	ctx = clog.WithLogger(ctx, log)
	log.With("version", config.Version).Info("Starting Contrast AI SmartFix")

	switch task {
	case config.TaskGenerateFix:
		return generateFix(ctx, cfg, capture)
	default:
		return handleEvent(ctx, cfg, task, capture)
	}
}
