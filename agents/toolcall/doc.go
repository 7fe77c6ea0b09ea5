/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package toolcall defines agent tools once, independent of the model provider.

A Tool pairs a Definition, whose input schema is reflected from a Go struct,
with a Handler that receives the decoded arguments. A Set dispatches calls by
name and records them on the agenttrace.Trace of the running invocation.
Provider packages (claudetool, googletool, openaitool) translate definitions
and calls to and from each SDK's wire types.

The worktree tools give the fix and QA agents access to the checkout:

	tools, err := toolcall.WorktreeTools(cb)
	...
	result := tools.Dispatch(ctx, toolcall.Call{ID: id, Name: "read_file", Args: args}, trace)
*/
package toolcall
