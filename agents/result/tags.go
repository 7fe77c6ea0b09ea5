/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package result

import (
	"strings"
)

// Tag returns the trimmed content between the first <name> and the
// following </name>.
func Tag(text, name string) (string, bool) {
	open, closing := "<"+name+">", "</"+name+">"
	start := strings.Index(text, open)
	if start == -1 {
		return "", false
	}
	rest := text[start+len(open):]
	end := strings.Index(rest, closing)
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// PRBody returns the <pr_body> content of an agent answer, or the whole
// answer when the tag is absent.
func PRBody(text string) string {
	if body, ok := Tag(text, "pr_body"); ok {
		return body
	}
	return text
}

// Analytics is the self-assessment reported by the fix agent.
type Analytics struct {
	Confidence          string   `json:"confidence,omitempty"`
	ProgrammingLanguage string   `json:"programmingLanguage,omitempty"`
	TechnicalStack      string   `json:"technicalStackInfo,omitempty"`
	Frameworks          []string `json:"frameworksAndLibraries,omitempty"`
}

// ParseAnalytics reads the <analytics> block of an agent answer. Missing or
// empty keys leave the corresponding field empty.
func ParseAnalytics(text string) (Analytics, bool) {
	block, ok := Tag(text, "analytics")
	if !ok {
		return Analytics{}, false
	}
	var a Analytics
	a.Confidence = field(block, "Confidence_Score")
	a.ProgrammingLanguage = field(block, "Programming_Language")
	a.TechnicalStack = field(block, "Technical_Stack")
	for _, fw := range strings.Split(field(block, "Frameworks"), ",") {
		if fw = strings.TrimSpace(fw); fw != "" {
			a.Frameworks = append(a.Frameworks, fw)
		}
	}
	return a, true
}

// field returns the value after the first "key:" in block, up to the end of its line.
func field(block, key string) string {
	i := strings.Index(block, key+":")
	if i == -1 {
		return ""
	}
	value := block[i+len(key)+1:]
	if nl := strings.IndexByte(value, '\n'); nl != -1 {
		value = value[:nl]
	}
	return strings.TrimSpace(value)
}
