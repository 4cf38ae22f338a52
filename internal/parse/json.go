package parse

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	reLDJSONScript = regexp.MustCompile(`(?is)<script\b[^>]*type\s*=\s*["']application/ld\+json["'][^>]*>(.*?)</script>`)
	reJSONScript   = regexp.MustCompile(`(?is)<script\b[^>]*type\s*=\s*["']application/json["'][^>]*>(.*?)</script>`)
	reAnyScript    = regexp.MustCompile(`(?is)<script\b([^>]*)>(.*?)</script>`)
	reScriptSrc    = regexp.MustCompile(`(?i)\bsrc\s*=`)
	reScriptTyped  = regexp.MustCompile(`(?i)\btype\s*=\s*["']`)
	reNextData     = regexp.MustCompile(`__NEXT_DATA__\s*=\s*`)
	reProductJSON  = regexp.MustCompile(`Product\.json\s*=\s*`)
	reCodePrefix   = regexp.MustCompile(`^\s*(?:function|var|let|const|class|import|export)\b`)
)

// ExtractEmbeddedJSON harvests every JSON object a page embeds in script
// tags: JSON-LD blocks (arrays flattened), application/json blocks,
// plausible object literals in untyped scripts, and the __NEXT_DATA__ /
// Product.json assignment patterns. Parse failures are silently dropped.
func ExtractEmbeddedJSON(html string) []any {
	if len(html) > MaxHTMLBytes {
		html = html[:MaxHTMLBytes]
	}

	var blobs []any

	appendValue := func(v any) {
		// JSON-LD frequently wraps several entities in one array.
		if arr, ok := v.([]any); ok {
			blobs = append(blobs, arr...)
			return
		}
		blobs = append(blobs, v)
	}

	for _, m := range reLDJSONScript.FindAllStringSubmatch(html, -1) {
		if v, ok := parseJSON(m[1]); ok {
			appendValue(v)
		}
	}
	for _, m := range reJSONScript.FindAllStringSubmatch(html, -1) {
		if v, ok := parseJSON(m[1]); ok {
			appendValue(v)
		}
	}

	// Inline scripts without a JSON type: accept bodies that are not
	// obviously code and contain a standalone object/array literal.
	for _, m := range reAnyScript.FindAllStringSubmatch(html, -1) {
		attrs, body := m[1], strings.TrimSpace(m[2])
		if reScriptSrc.MatchString(attrs) || reScriptTyped.MatchString(attrs) {
			continue
		}
		if body == "" || reCodePrefix.MatchString(body) {
			continue
		}
		if lit, ok := firstJSONLiteral(body); ok && len(lit) >= 20 {
			if v, ok := parseJSON(lit); ok {
				appendValue(v)
			}
		}
	}

	for _, re := range []*regexp.Regexp{reNextData, reProductJSON} {
		for _, loc := range re.FindAllStringIndex(html, -1) {
			if lit, ok := firstJSONLiteral(html[loc[1]:]); ok {
				if v, ok := parseJSON(lit); ok {
					appendValue(v)
				}
			}
		}
	}

	return blobs
}

func parseJSON(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &v); err != nil {
		return nil, false
	}
	if v == nil {
		return nil, false
	}
	return v, true
}

// firstJSONLiteral finds the first balanced {...} or [...] literal in s,
// respecting strings and escapes.
func firstJSONLiteral(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}

	open := s[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
