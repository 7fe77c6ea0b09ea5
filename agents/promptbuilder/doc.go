/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package promptbuilder renders the agent prompt templates delivered by the
remediation backend.

Templates use single-brace placeholders such as {build_output}. A
placeholder is only replaced once a value is bound to it, and substitution
is a single pass over the original template, so bound values that contain
placeholder text (build logs, source snippets) are never expanded again.

	p := promptbuilder.Parse(qaUserPrompt)
	p, err := p.BindText("build_output", output)
	if err != nil {
		return err
	}
	prompt := p.Build()

Braces that do not wrap an identifier, such as JSON or code samples in the
template, are left untouched. Unbound placeholders are emitted verbatim and
reported by Unbound.
*/
package promptbuilder
