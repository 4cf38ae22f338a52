package parse

import (
	"regexp"
	"strings"
)

var (
	reWhitespace = regexp.MustCompile(`\s+`)
	reNonWord    = regexp.MustCompile(`[^\w ]+`)
)

// CollapseWhitespace collapses every whitespace run to a single space and
// trims the result.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(reWhitespace.ReplaceAllString(s, " "))
}

// NormalizeText collapses whitespace, lowercases and strips non-word
// characters. Used for fuzzy phrase matching against button/label copy.
func NormalizeText(s string) string {
	s = strings.ToLower(CollapseWhitespace(s))
	s = reNonWord.ReplaceAllString(s, "")
	return CollapseWhitespace(s)
}
