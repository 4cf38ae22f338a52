// Package parse wraps raw HTML into a queryable DOM and harvests the
// JSON blobs merchants embed in product pages. Everything here is
// best-effort: malformed input yields an empty document, never an error
// the caller has to branch on.
package parse

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// MaxHTMLBytes caps the HTML accepted anywhere in the pipeline.
	MaxHTMLBytes = 10 << 20

	// MinBodyChars is the minimum visible body length for a response to
	// count as a complete page.
	MinBodyChars = 100
)

var (
	reCRLF        = regexp.MustCompile(`\r\n?`)
	reBlankRuns   = regexp.MustCompile(`\n{3,}`)
	reScriptBlock = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	reStyleBlock  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
)

// DOMOptions controls LoadDOM behavior.
type DOMOptions struct {
	// StripScriptsAndStyles removes script and style blocks before
	// parsing. Used once embedded JSON has already been harvested, to
	// shrink the parsed tree.
	StripScriptsAndStyles bool
}

// LoadDOM parses HTML into a goquery document. Line endings are
// normalized and runs of more than two blank lines collapsed. Input over
// MaxHTMLBytes is truncated; unparseable input produces an empty
// document rather than an error.
func LoadDOM(html string, opts DOMOptions) *goquery.Document {
	if len(html) > MaxHTMLBytes {
		html = html[:MaxHTMLBytes]
	}

	html = reCRLF.ReplaceAllString(html, "\n")
	html = reBlankRuns.ReplaceAllString(html, "\n\n")

	if opts.StripScriptsAndStyles {
		html = reScriptBlock.ReplaceAllString(html, "")
		html = reStyleBlock.ReplaceAllString(html, "")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		empty, _ := goquery.NewDocumentFromReader(strings.NewReader("<html><body></body></html>"))
		return empty
	}
	return doc
}

// SelectAll runs a selector and returns every match. A bad selector or
// nil document yields an empty slice.
func SelectAll(doc *goquery.Document, selector string) []*goquery.Selection {
	if doc == nil {
		return nil
	}
	var out []*goquery.Selection
	func() {
		defer func() { recover() }() // cascadia panics on some invalid selectors
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			out = append(out, s)
		})
	}()
	return out
}

// FirstText returns the collapsed text of the first selector match, or
// "" when nothing matches.
func FirstText(doc *goquery.Document, selector string) string {
	for _, s := range SelectAll(doc, selector) {
		if text := CollapseWhitespace(s.Text()); text != "" {
			return text
		}
	}
	return ""
}

// FirstAttr returns the named attribute of the first selector match that
// carries it, or "" when nothing does.
func FirstAttr(doc *goquery.Document, selector, attr string) string {
	for _, s := range SelectAll(doc, selector) {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Attr returns an attribute value and whether it was present. Missing
// attributes report ok=false, never a sentinel string.
func Attr(s *goquery.Selection, name string) (string, bool) {
	if s == nil {
		return "", false
	}
	return s.Attr(name)
}

// MetaContent returns the content attribute of a meta tag matched by
// property or name.
func MetaContent(doc *goquery.Document, key string) string {
	if v := FirstAttr(doc, `meta[property="`+key+`"]`, "content"); v != "" {
		return v
	}
	return FirstAttr(doc, `meta[name="`+key+`"]`, "content")
}

// VisibleBodyText returns the collapsed text content of the body with
// scripts and styles removed.
func VisibleBodyText(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	return CollapseWhitespace(body.Text())
}
