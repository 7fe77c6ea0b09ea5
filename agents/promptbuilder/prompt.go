/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package promptbuilder

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Prompt is a parsed template with bound values. Binding returns a new
// Prompt and leaves the receiver unchanged.
type Prompt struct {
	segments []segment
	bindings map[string]string
}

// Parse parses a template.
func Parse(template string) *Prompt {
	return &Prompt{segments: tokenize(template), bindings: map[string]string{}}
}

// Placeholders returns the distinct placeholder names in template order.
func (p *Prompt) Placeholders() []string {
	var names []string
	for _, s := range p.segments {
		if s.placeholder && !slices.Contains(names, s.text) {
			names = append(names, s.text)
		}
	}
	return names
}

// Has reports whether the template contains the placeholder.
func (p *Prompt) Has(name string) bool {
	return slices.Contains(p.Placeholders(), name)
}

// Unbound returns the placeholders that have no value yet.
func (p *Prompt) Unbound() []string {
	var out []string
	for _, name := range p.Placeholders() {
		if _, ok := p.bindings[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// BindText binds a raw string value to a placeholder. Binding a name the
// template does not contain is allowed and has no effect on the output.
func (p *Prompt) BindText(name, value string) (*Prompt, error) {
	return p.bind(name, text(value))
}

// BindJSON binds data marshaled as indented JSON.
func (p *Prompt) BindJSON(name string, data any) (*Prompt, error) {
	return p.bind(name, indentedJSON(data))
}

// BindYAML binds data marshaled as YAML.
func (p *Prompt) BindYAML(name string, data any) (*Prompt, error) {
	return p.bind(name, yamlText(data))
}

func (p *Prompt) bind(name string, enc encoder) (*Prompt, error) {
	if !isValidIdentifier(name) {
		return nil, fmt.Errorf("invalid binding identifier %q", name)
	}
	if _, bound := p.bindings[name]; bound {
		return nil, fmt.Errorf("binding %q already bound", name)
	}
	val, err := enc()
	if err != nil {
		return nil, fmt.Errorf("binding %q: %w", name, err)
	}
	next := &Prompt{segments: p.segments, bindings: maps.Clone(p.bindings)}
	next.bindings[name] = val
	return next, nil
}

// Build renders the prompt. Unbound placeholders are written back as-is.
func (p *Prompt) Build() string {
	var sb strings.Builder
	for _, s := range p.segments {
		switch {
		case !s.placeholder:
			sb.WriteString(s.text)
		default:
			if val, ok := p.bindings[s.text]; ok {
				sb.WriteString(val)
			} else {
				sb.WriteString("{" + s.text + "}")
			}
		}
	}
	return sb.String()
}
