/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package result extracts the structured sections an agent embeds in its
final answer.

The fix agent is asked to wrap the pull request description in
<pr_body>…</pr_body> and to report an <analytics> block of "Key: value"
lines:

	<analytics>
	Confidence_Score: 85
	Programming_Language: Java
	Technical_Stack: Spring Boot, Maven
	Frameworks: Spring, Hibernate
	</analytics>

Tag returns the trimmed content of the first occurrence of a tag. PRBody
falls back to the whole answer when the tag is missing, and ParseAnalytics
reads the analytics block into an Analytics value.
*/
package result
