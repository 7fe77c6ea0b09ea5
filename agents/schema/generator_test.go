/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package schema_test

import (
	"testing"

	"chainguard.dev/smartfix/agents/schema"
	"github.com/google/go-cmp/cmp"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type writeArgs struct {
	Reasoning  string `json:"reasoning" jsonschema:"required,description=Why the file is written"`
	Path       string `json:"path" jsonschema:"required,description=Path relative to the repository root"`
	Content    string `json:"content" jsonschema:"required"`
	Executable bool   `json:"executable,omitempty" jsonschema:"description=Mark the file executable"`
}

func TestReflect(t *testing.T) {
	s := schema.Reflect(&writeArgs{})
	if s.Type != "object" {
		t.Fatalf("expected object type, got %q", s.Type)
	}
	if s.Version != "" {
		t.Errorf("expected no $schema, got %q", s.Version)
	}
	if diff := cmp.Diff([]string{"reasoning", "path", "content"}, s.Required); diff != "" {
		t.Errorf("required (-want, +got): %s", diff)
	}

	path, ok := s.Properties.Get("path")
	if !ok {
		t.Fatal("missing path property")
	}
	if path.Description != "Path relative to the repository root" {
		t.Errorf("unexpected description: %q", path.Description)
	}
	exec, ok := s.Properties.Get("executable")
	if !ok || exec.Type != "boolean" {
		t.Errorf("executable property = %+v", exec)
	}
}

func TestPropertyNamesKeepsOrder(t *testing.T) {
	got := schema.PropertyNames(schema.ReflectType[writeArgs]())
	if diff := cmp.Diff([]string{"reasoning", "path", "content", "executable"}, got); diff != "" {
		t.Errorf("PropertyNames (-want, +got): %s", diff)
	}
	if got := schema.PropertyNames(nil); got != nil {
		t.Errorf("PropertyNames(nil) = %v", got)
	}
}

func TestPropertiesMap(t *testing.T) {
	props := orderedmap.New[string, *jsonschema.Schema]()
	props.Set("pattern", &jsonschema.Schema{Type: "string", Description: "Regex"})
	s := &jsonschema.Schema{Type: "object", Properties: props}

	got, err := schema.PropertiesMap(s)
	if err != nil {
		t.Fatalf("PropertiesMap() error: %v", err)
	}
	want := map[string]any{"pattern": map[string]any{"type": "string", "description": "Regex"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PropertiesMap (-want, +got): %s", diff)
	}
}

func TestToMap(t *testing.T) {
	m, err := schema.ToMap(schema.ReflectType[writeArgs]())
	if err != nil {
		t.Fatalf("ToMap() error: %v", err)
	}
	if m["type"] != "object" {
		t.Errorf("type = %v", m["type"])
	}
	if _, ok := m["properties"].(map[string]any)["content"]; !ok {
		t.Error("content property missing")
	}
}
