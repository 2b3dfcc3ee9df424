// Package detect classifies clipboard text into a semantic subtype (url,
// email, path, color, code with language, markdown) and normalises colours
// for deduplication. Detection is a pure function over the content string
// plus an Options toggle set; it touches the filesystem only for the path
// probe.
package detect

import (
	"os"
	"regexp"
	"strings"
)

// Subtype values returned by Detect.
const (
	SubtypeURL      = "url"
	SubtypeEmail    = "email"
	SubtypePath     = "path"
	SubtypeColor    = "color"
	SubtypeMarkdown = "markdown"
)

// Options enables or disables individual detectors. Zero value disables
// everything; use DefaultOptions for the shipped defaults.
type Options struct {
	URL           bool
	Email         bool
	Path          bool
	Color         bool
	Code          bool
	Markdown      bool
	CodeMinLength int
}

// DefaultOptions mirrors the shipped defaults: everything on except code
// detection, which is opt-in because keyword clusters misfire on prose-free
// snippets.
func DefaultOptions() Options {
	return Options{
		URL:           true,
		Email:         true,
		Path:          true,
		Color:         true,
		Code:          false,
		Markdown:      true,
		CodeMinLength: 10,
	}
}

// Result is the outcome of one Detect call. At most one of Subtype,
// IsCode, IsMarkdown is meaningful: detectors run in priority order and the
// first match wins.
type Result struct {
	Subtype      string
	IsCode       bool
	CodeLanguage string
	IsMarkdown   bool

	// ColorNormalized is the canonical "R, G, B" string for colour matches,
	// used as the dedup key.
	ColorNormalized string
}

var emailRe = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// urlPrefixes are the recognised URL schemes, checked in order.
var urlPrefixes = []string{"http://", "https://", "ftp://", "file://"}

// Detect classifies text content. Priority: URL, email, path, colour, code,
// markdown; the first detector that matches determines the result.
func Detect(content string, opts Options) Result {
	if content == "" {
		return Result{}
	}

	if opts.URL && IsURL(content) {
		return Result{Subtype: SubtypeURL}
	}

	if opts.Email && IsEmail(content) {
		return Result{Subtype: SubtypeEmail}
	}

	if opts.Path && IsPath(content) {
		return Result{Subtype: SubtypePath}
	}

	if opts.Color {
		if normalized, ok := NormalizeColor(content); ok {
			return Result{Subtype: SubtypeColor, ColorNormalized: normalized}
		}
	}

	if opts.Code {
		if lang, ok := DetectCode(content, opts.CodeMinLength); ok {
			return Result{IsCode: true, CodeLanguage: lang}
		}
	}

	if opts.Markdown && IsMarkdown(content) {
		return Result{Subtype: SubtypeMarkdown, IsMarkdown: true}
	}

	return Result{}
}

// IsURL reports whether s starts with a recognised URL scheme.
func IsURL(s string) bool {
	for _, p := range urlPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}

	return false
}

// IsEmail reports whether s is a plain email address.
func IsEmail(s string) bool {
	return emailRe.MatchString(s)
}

// IsPath reports whether s is a file:// reference or resolves to an
// existing filesystem entry.
func IsPath(s string) bool {
	if strings.HasPrefix(s, "file://") {
		return true
	}

	_, err := os.Stat(s)

	return err == nil
}

// containsMultiple reports whether at least min of the keywords occur in
// text (case-insensitive). Shared by the code and markdown detectors.
func containsMultiple(text string, keywords []string, min int) bool {
	lower := strings.ToLower(text)

	var matches int
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			matches++
			if matches >= min {
				return true
			}
		}
	}

	return false
}
