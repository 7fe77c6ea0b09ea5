/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package smartfix drives a single remediation attempt: it checks that the
// project builds, asks the fix agent to patch the vulnerability, and then
// loops the QA agent until the build passes or the attempt budget is spent.
//
// The outcome is always recorded on the returned session. Remediate only
// returns an error when the environment itself is broken, for example when
// the build command cannot be executed at all.
//
//	agent := smartfix.New(invoker, &build.ShellRunner{}, repo)
//	sess, err := agent.Remediate(ctx, smartfix.Context{
//		RemediationID: "rem-1",
//		FixUserPrompt: prompt,
//		BuildCommand:  "go test ./...",
//		RepoPath:      dir,
//	})
package smartfix
