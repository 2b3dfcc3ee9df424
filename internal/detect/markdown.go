package detect

import "strings"

// minMarkdownLength below which content is never treated as markdown.
const minMarkdownLength = 5

// markdownScoreThreshold: a heading or fenced block on its own, or any two
// other features, confirms markdown.
const markdownScoreThreshold = 2

// codeLikePatterns veto markdown detection: fenced snippets of real code
// share markdown's surface features but should classify as code (or plain
// text when code detection is off).
var codeLikePatterns = []string{
	"fn ", "function ", "def ", "pub fn ",
	"class ", "public class", "struct ",
	"import ", "#include", "use std::",
	"let mut", "const ", "var ", "public ", "private ",
	"console.log", "System.out.", "printf(", "println!",
	"-> ", "::", "=>",
}

// IsMarkdown scores the content's markdown features. Headings and fenced
// code blocks weigh 2, everything else 1; a total of 2 or more confirms.
func IsMarkdown(content string) bool {
	trimmed := strings.TrimSpace(content)

	if len(trimmed) < minMarkdownLength {
		return false
	}

	if isCodeLike(trimmed) {
		return false
	}

	hasHeading := containsMultiple(trimmed, []string{"\n# ", "\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### "}, 1) ||
		containsMultiple(trimmed, []string{"# ", "## ", "### ", "#### ", "##### ", "###### "}, 2)

	hasFence := containsMultiple(trimmed, []string{"\n```", "\n~~~", "```\n", "~~~\n"}, 1)

	hasLink := containsMultiple(trimmed, []string{"[", "](", ")"}, 3)

	hasBlockquote := containsMultiple(trimmed, []string{"\n> ", "\n>"}, 2) || strings.HasPrefix(trimmed, "> ")

	hasList := containsMultiple(trimmed, []string{"\n- ", "\n* ", "\n+ ", "\n1. ", "\n2. ", "\n3. "}, 2)

	hasHR := containsMultiple(trimmed, []string{"\n---\n", "\n***\n", "\n---\r", "\n***\r"}, 1)

	hasInlineCode := strings.Count(trimmed, "`") >= 2

	hasEmphasis := strings.Contains(trimmed, "**") ||
		strings.Contains(trimmed, "__") ||
		strings.Count(trimmed, "*") >= 2 ||
		strings.Count(trimmed, "_") >= 2

	hasImage := containsMultiple(trimmed, []string{"![", "](", ")"}, 3)

	hasTable := strings.Count(trimmed, "|") >= 4

	var score int
	if hasHeading {
		score += 2
	}
	if hasFence {
		score += 2
	}
	for _, feature := range []bool{hasLink, hasBlockquote, hasList, hasHR, hasInlineCode, hasEmphasis, hasImage, hasTable} {
		if feature {
			score++
		}
	}

	return score >= markdownScoreThreshold
}

// isCodeLike counts code-specific surface patterns; two or more means the
// text is code, not markdown.
func isCodeLike(text string) bool {
	lower := strings.ToLower(text)

	var matches int
	for _, p := range codeLikePatterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			matches++
			if matches >= 2 {
				return true
			}
		}
	}

	return false
}
