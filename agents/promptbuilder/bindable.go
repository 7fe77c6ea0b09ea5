/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package promptbuilder

// Bindable represents a type that can bind values to a Prompt.
// Request types implement it so that their data is bound the same way
// every time a template is rendered.
type Bindable interface {
	// Bind takes a prompt and returns a new prompt with bound values.
	Bind(prompt *Prompt) (*Prompt, error)
}

// Render parses template, binds b and builds the result.
func Render(template string, b Bindable) (string, error) {
	p, err := b.Bind(Parse(template))
	if err != nil {
		return "", err
	}
	return p.Build(), nil
}
