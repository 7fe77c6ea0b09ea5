/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package callbacks holds the file-operation callbacks the agent tools run
// against a repository checkout. It has no AI SDK dependencies, so the SCM
// layer can provide implementations without importing any provider.
package callbacks
