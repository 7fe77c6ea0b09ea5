/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package promptbuilder

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// encoder renders a bound value as prompt text.
type encoder func() (string, error)

func text(s string) encoder {
	return func() (string, error) { return s, nil }
}

func indentedJSON(v any) encoder {
	return func() (string, error) {
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encoding JSON: %w", err)
		}
		return string(out), nil
	}
}

func yamlText(v any) encoder {
	return func() (string, error) {
		out, err := yaml.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encoding YAML: %w", err)
		}
		return string(out), nil
	}
}
