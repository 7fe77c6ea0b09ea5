/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Generator wraps jsonschema.Reflector with the defaults used for tool inputs.
type Generator struct {
	reflector jsonschema.Reflector
}

// NewGenerator constructs a generator for tool argument structs.
func NewGenerator() *Generator {
	return &Generator{
		reflector: jsonschema.Reflector{
			RequiredFromJSONSchemaTags: true,
			ExpandedStruct:             true,
			DoNotReference:             true,
		},
	}
}

// Reflect returns the JSON schema for the provided value.
func (g *Generator) Reflect(v any) *jsonschema.Schema {
	s := g.reflector.Reflect(v)
	// Provider tool schemas reject the draft URL and an explicit false.
	s.Version = ""
	s.AdditionalProperties = nil
	return s
}

// Reflect derives the JSON schema for v using a default generator.
func Reflect(v any) *jsonschema.Schema {
	return NewGenerator().Reflect(v)
}

// ReflectType reflects the zero value of T.
func ReflectType[T any]() *jsonschema.Schema {
	var zero T
	return Reflect(&zero)
}

// PropertyNames returns the property names of s in declaration order.
func PropertyNames(s *jsonschema.Schema) []string {
	if s == nil || s.Properties == nil {
		return nil
	}
	names := make([]string, 0, s.Properties.Len())
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// ToMap renders s as a generic JSON object.
func ToMap(s *jsonschema.Schema) (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshaling schema: %w", err)
	}
	return out, nil
}

// PropertiesMap renders the properties of s keyed by name.
func PropertiesMap(s *jsonschema.Schema) (map[string]any, error) {
	out := make(map[string]any)
	if s == nil || s.Properties == nil {
		return out, nil
	}
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		m, err := ToMap(pair.Value)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", pair.Key, err)
		}
		out[pair.Key] = m
	}
	return out, nil
}
