/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package build

import (
	"fmt"
	"regexp"
	"strings"
)

// TruncationMarker prefixes build output that was cut to its tail.
const TruncationMarker = "...build output may be cut off prior to here...\n"

const (
	smallOutputLimit = 2000
	scanLines        = 500
	contextLines     = 5
	mergeGap         = 2
	maxErrorBlocks   = 3
	fallbackLines    = 50
)

var errorIndicator = regexp.MustCompile(`(?i)error|exception|failed|failure|fatal`)

// TruncateTail keeps the last n characters of output, marking the cut.
func TruncateTail(output string, n int) string {
	if n <= 0 || len(output) <= n {
		return output
	}
	tail := output[len(output)-n:]
	// Avoid starting in the middle of a multi-byte rune.
	for i := 0; i < len(tail) && i < 4; i++ {
		if tail[i]&0xC0 != 0x80 {
			tail = tail[i:]
			break
		}
	}
	return TruncationMarker + tail
}

type region struct{ start, end int }

// ExtractErrors condenses long build output to the blocks around error
// indicators near its end.
func ExtractErrors(output string) string {
	if len(output) < smallOutputLimit {
		return output
	}

	lines := strings.Split(output, "\n")
	if len(lines) > scanLines {
		lines = lines[len(lines)-scanLines:]
	}

	var regions []region
	for i, line := range lines {
		if !errorIndicator.MatchString(line) {
			continue
		}
		r := region{start: max(0, i-contextLines), end: min(len(lines)-1, i+contextLines)}
		if n := len(regions); n > 0 && r.start-regions[n-1].end <= mergeGap {
			regions[n-1].end = max(regions[n-1].end, r.end)
			continue
		}
		regions = append(regions, r)
	}

	if len(regions) == 0 {
		tail := lines
		if len(tail) > fallbackLines {
			tail = tail[len(tail)-fallbackLines:]
		}
		return "BUILD FAILURE - LAST OUTPUT:\n" + strings.Join(tail, "\n")
	}

	if len(regions) > maxErrorBlocks {
		regions = regions[len(regions)-maxErrorBlocks:]
	}
	blocks := make([]string, 0, len(regions))
	for _, r := range regions {
		blocks = append(blocks, strings.Join(lines[r.start:r.end+1], "\n"))
	}
	return "BUILD FAILURE - KEY ERRORS:\n" + strings.Join(blocks, "\n\n...\n\n")
}

var secretPatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)(--?(?:password|passwd|token|secret|api[-_]?key)[= ])[^\s'"]+`), "${1}***"},
	{regexp.MustCompile(`(?i)\b((?:password|passwd|token|secret|api[-_]?key)=)[^\s'"]+`), "${1}***"},
	{regexp.MustCompile(`(?i)(bearer\s+)[^\s'"]+`), "${1}***"},
	{regexp.MustCompile(`(https?://)[^/\s:@]+:[^/\s@]+@`), "${1}***:***@"},
}

// Sanitize masks credentials that commonly appear in build commands.
func Sanitize(command string) string {
	for _, p := range secretPatterns {
		command = p.re.ReplaceAllString(command, p.repl)
	}
	return command
}

// Summary renders a short description of a build outcome for logs.
func Summary(ok bool, output string) string {
	if ok {
		return "Build passed"
	}
	return fmt.Sprintf("Build failed:\n%s", ExtractErrors(output))
}
