/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package promptbuilder

import (
	"strings"
	"unicode"
)

// segment is either literal text or a placeholder name.
type segment struct {
	text        string
	placeholder bool
}

// tokenize splits template into literal and placeholder segments.
func tokenize(template string) []segment {
	var segs []segment
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{text: lit.String()})
			lit.Reset()
		}
	}

	for len(template) > 0 {
		start := strings.IndexByte(template, '{')
		if start == -1 {
			lit.WriteString(template)
			break
		}
		lit.WriteString(template[:start])
		template = template[start:]

		end := strings.IndexByte(template, '}')
		if end == -1 {
			lit.WriteString(template)
			break
		}
		name := template[1:end]
		if !isValidIdentifier(name) {
			// Not a placeholder; keep the brace and rescan after it.
			lit.WriteByte('{')
			template = template[1:]
			continue
		}
		flush()
		segs = append(segs, segment{text: name, placeholder: true})
		template = template[end+1:]
	}
	flush()
	return segs
}

// isValidIdentifier checks if a string is a valid placeholder name.
// Valid names start with a letter and contain only letters, digits, and underscores.
func isValidIdentifier(s string) bool {
	if len(s) == 0 {
		return false
	}
	runes := []rune(s)
	if !unicode.IsLetter(runes[0]) {
		return false
	}
	for _, r := range runes[1:] {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
