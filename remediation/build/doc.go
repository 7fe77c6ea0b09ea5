/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package build runs a project's build and formatting commands against a
// repository checkout.
//
// A Runner executes a shell command and captures its combined output. The
// Validator turns that into a pass or fail decision and the Formatter runs
// a best-effort formatting command and reports which files it touched.
// Failures to execute a command at all (missing shell or executable) are
// returned as errors wrapping ErrCommandNotFound or ErrExecution; a command
// that runs and exits non-zero is not an error.
package build
