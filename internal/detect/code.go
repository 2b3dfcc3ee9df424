package detect

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Language names reported by DetectCode.
const (
	LangJSON       = "JSON"
	LangHTML       = "HTML"
	LangCSS        = "CSS"
	LangSQL        = "SQL"
	LangC          = "C"
	LangCPP        = "C++"
	LangJava       = "Java"
	LangPython     = "Python"
	LangJavaScript = "JavaScript"
	LangTypeScript = "TypeScript"
	LangRust       = "Rust"
	LangGo         = "Go"
	LangCSharp     = "C#"
)

var (
	logTimestampRe = regexp.MustCompile(`\[\d{4}-\d{2}-\d{2}.*?\d{2}:\d{2}:\d{2}`)
	logLevelRe     = regexp.MustCompile(`\[(DEBUG|INFO|WARN|ERROR|FATAL|CRITICAL|TRACE|NOTICE)\]`)
	htmlTagRe      = regexp.MustCompile(`^<\s*(html|head|body|div|script|style|link|meta|span|p|h[1-6])[\s>]`)
	cssSelectorRe  = regexp.MustCompile(`^(\.[a-zA-Z].*\{|#[a-zA-Z].*\{|@media\s)`)
	sqlStructureRe = regexp.MustCompile(`(select\s+.+\s+from|insert\s+into\s+.+\s+values|update\s+.+\s+set|delete\s+from\s+.+\s+where|create\s+table\s+|drop\s+table\s+)`)
)

// stopWords drives the natural-language exclusion: prose has a high density
// of these, code does not.
var stopWords = map[string]bool{
	"the": true, "and": true, "or": true, "but": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "of": true, "with": true, "by": true,
	"from": true, "this": true, "that": true, "which": true, "what": true,
	"when": true, "where": true, "who": true, "how": true, "is": true,
	"are": true, "was": true, "were": true, "have": true, "has": true,
	"had": true, "been": true, "being": true, "can": true, "could": true,
	"will": true, "would": true, "should": true, "may": true,
}

// naturalLanguageRatio is the stop-word density above which text is treated
// as prose rather than code.
const naturalLanguageRatio = 0.3

var sqlKeywords = []string{
	"select", "from", "where", "insert", "update", "delete", "create", "drop",
	"table", "index", "join", "inner", "left", "right", "group", "order",
	"by", "union", "distinct", "primary", "key", "foreign", "references",
	"not", "null", "default",
}

// languageCues pairs a language with its keyword cluster and the minimum
// number of cues that must co-occur. A non-empty also cluster must match
// as well (both clusters ANDed). Order matters: earlier entries win
// (e.g. C++ before C so `cout` snippets don't land on C).
type languageCue struct {
	lang     string
	keywords []string
	min      int
	also     []string // second cluster that must also match
	alsoMin  int
	exclude  string // case-insensitive substring that vetoes the match
}

var languageCues = []languageCue{
	{lang: LangCPP, keywords: []string{"int main", "cout", "cin", "<<", ">>", "using namespace std", "#include"}, min: 2},
	{lang: LangCPP, keywords: []string{"const_cast", "dynamic_cast", "reinterpret_cast", "static_cast"}, min: 2},
	{lang: LangCPP, keywords: []string{"#include", "using namespace", "std::"}, min: 2, also: []string{"int", "main"}, alsoMin: 2},
	{lang: LangC, keywords: []string{"#include", "printf", "scanf", "malloc", "free"}, min: 3, exclude: "cout"},
	{lang: LangJava, keywords: []string{"public class", "public static void main", "System.out.println"}, min: 2, exclude: "console.writeline"},
	{lang: LangPython, keywords: []string{"def ", "import ", "print(", ":"}, min: 2, exclude: "function"},
	{lang: LangJavaScript, keywords: []string{"function ", "const ", "let ", "var ", "console.log", "=>"}, min: 2, exclude: "class main"},
	{lang: LangTypeScript, keywords: []string{"interface ", "type ", "as ", ": string", ": number", ": boolean"}, min: 2},
	{lang: LangRust, keywords: []string{"fn ", "let mut", "println!", "use std::", "-> ", "match ", "impl ", "pub fn"}, min: 2},
	{lang: LangGo, keywords: []string{"func main", "package main", "import \"", "fmt.", "go "}, min: 2},
	{lang: LangCSharp, keywords: []string{"using System", "public class", "Console.WriteLine", "namespace "}, min: 2},
}

// DetectCode reports whether content looks like source code, and if so in
// which language. Content shorter than minLength or classified as natural
// language never matches. Structural detectors (JSON round-trip, HTML tag,
// CSS selector, SQL shape) run before the keyword clusters.
func DetectCode(content string, minLength int) (string, bool) {
	trimmed := strings.TrimSpace(content)

	if len(trimmed) < minLength {
		return "", false
	}

	if isNaturalLanguage(trimmed) {
		return "", false
	}

	if lang, ok := structuralLanguage(trimmed); ok {
		return lang, true
	}

	lower := strings.ToLower(trimmed)
	for _, cue := range languageCues {
		if cue.exclude != "" && strings.Contains(lower, cue.exclude) {
			continue
		}

		if !containsMultiple(trimmed, cue.keywords, cue.min) {
			continue
		}

		if len(cue.also) > 0 && !containsMultiple(trimmed, cue.also, cue.alsoMin) {
			continue
		}

		return cue.lang, true
	}

	return "", false
}

// structuralLanguage checks the formats identifiable by structure alone.
func structuralLanguage(trimmed string) (string, bool) {
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if json.Valid([]byte(trimmed)) {
			return LangJSON, true
		}
	}

	if strings.HasPrefix(trimmed, "<") && htmlTagRe.MatchString(trimmed) {
		return LangHTML, true
	}

	if strings.HasPrefix(trimmed, ".") || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "@") {
		if cssSelectorRe.MatchString(trimmed) {
			return LangCSS, true
		}
	}

	if isSQL(trimmed) {
		return LangSQL, true
	}

	return "", false
}

// isLogFormat matches timestamped or level-tagged log lines, which would
// otherwise trip the keyword clusters.
func isLogFormat(text string) bool {
	return logTimestampRe.MatchString(text) || logLevelRe.MatchString(text)
}

// isNaturalLanguage reports whether text reads as prose: either a log line
// or a high density of English stop words among tokens longer than two
// characters.
func isNaturalLanguage(text string) bool {
	if isLogFormat(text) {
		return true
	}

	var words, common int
	for _, w := range strings.Fields(text) {
		if len(w) <= 2 {
			continue
		}

		words++
		if stopWords[strings.ToLower(w)] {
			common++
		}
	}

	if words == 0 {
		return false
	}

	return float64(common)/float64(words) > naturalLanguageRatio
}

// isSQL requires at least three distinct keywords plus a structural
// statement shape, so prose mentioning "select" and "from" doesn't match.
func isSQL(text string) bool {
	lower := strings.ToLower(text)

	var found int
	for _, kw := range sqlKeywords {
		if strings.Contains(lower, " "+kw+" ") {
			found++
		}
	}

	if found < 3 {
		return false
	}

	return sqlStructureRe.MatchString(lower)
}
