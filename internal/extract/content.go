package extract

import (
	"strings"

	"github.com/shelfwatch/shelfwatch/internal/parse"
)

var titleSelectors = []string{
	".product-title",
	".product__title",
	".product-name",
	"[itemprop=name]",
	"h1.product-title",
	"h1.product__title",
	"h1[itemprop=name]",
}

var imageSelectors = []string{
	".product-image img",
	".product__image img",
	".product-photo img",
	"[itemprop=image]",
	".gallery img",
	"[data-product-image]",
}

// extractTitle walks the title waterfall: embedded JSON first, then
// social meta tags, then product selectors, then document fallbacks.
func extractTitle(c *Context) string {
	if p := findLDProduct(c.Blobs); p != nil {
		if name := str(p, "name"); name != "" {
			return name
		}
	}
	if p := findShopifyProduct(c.Blobs); p != nil {
		if title := str(p, "title"); title != "" {
			return title
		}
	}
	// Any blob with a plain title field that is not a typed entity.
	for _, blob := range c.Blobs {
		if m, ok := asMap(blob); ok {
			if _, typed := m["@type"]; !typed {
				if title := str(m, "title"); title != "" {
					return title
				}
			}
		}
	}

	if v := parse.MetaContent(c.Doc, "og:title"); v != "" {
		return parse.CollapseWhitespace(v)
	}
	if v := parse.MetaContent(c.Doc, "twitter:title"); v != "" {
		return parse.CollapseWhitespace(v)
	}

	for _, sel := range titleSelectors {
		if v := parse.FirstText(c.Doc, sel); v != "" {
			return v
		}
	}
	if v := parse.FirstText(c.Doc, "h1"); v != "" {
		return v
	}
	if v := parse.FirstAttr(c.Doc, `meta[name="title"]`, "content"); v != "" {
		return parse.CollapseWhitespace(v)
	}

	if title := parse.FirstText(c.Doc, "title"); title != "" {
		// Site names are usually appended after a separator.
		if i := strings.IndexAny(title, "|-"); i > 0 {
			title = title[:i]
		}
		return parse.CollapseWhitespace(title)
	}
	return ""
}

func extractDescription(c *Context) string {
	if v := parse.FirstAttr(c.Doc, `meta[name="description"]`, "content"); v != "" {
		return parse.CollapseWhitespace(v)
	}
	if v := parse.MetaContent(c.Doc, "og:description"); v != "" {
		return parse.CollapseWhitespace(v)
	}
	if v := parse.MetaContent(c.Doc, "twitter:description"); v != "" {
		return parse.CollapseWhitespace(v)
	}
	return ""
}

// extractImages accumulates an ordered, deduplicated image list from
// meta tags, embedded JSON and the DOM, capped at MaxImages.
func extractImages(c *Context) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(raw string) {
		u := normalizeImageURL(raw)
		if u == "" || seen[u] || len(out) >= MaxImages {
			return
		}
		seen[u] = true
		out = append(out, u)
	}

	add(parse.MetaContent(c.Doc, "og:image"))
	add(parse.MetaContent(c.Doc, "twitter:image"))

	if p := findLDProduct(c.Blobs); p != nil {
		for _, u := range imageURLsFromJSON(p["image"]) {
			add(u)
		}
	}
	for _, blob := range c.Blobs {
		m, ok := asMap(blob)
		if !ok {
			continue
		}
		if inner, ok := asMap(m["product"]); ok {
			for _, u := range imageURLsFromJSON(inner["image"]) {
				add(u)
			}
			for _, u := range imageURLsFromJSON(inner["images"]) {
				add(u)
			}
		}
		for _, u := range imageURLsFromJSON(m["images"]) {
			add(u)
		}
	}
	if p := findShopifyProduct(c.Blobs); p != nil {
		for _, u := range imageURLsFromJSON(p["images"]) {
			add(u)
		}
	}

	for _, sel := range imageSelectors {
		for _, s := range parse.SelectAll(c.Doc, sel) {
			if src, ok := parse.Attr(s, "src"); ok {
				add(src)
			}
		}
	}

	for _, s := range parse.SelectAll(c.Doc, "img") {
		if src, ok := parse.Attr(s, "src"); ok {
			add(src)
		}
		if src, ok := parse.Attr(s, "data-src"); ok {
			add(src)
		}
		if srcset, ok := parse.Attr(s, "srcset"); ok {
			for _, cand := range strings.Split(srcset, ",") {
				fields := strings.Fields(strings.TrimSpace(cand))
				if len(fields) > 0 {
					add(fields[0])
				}
			}
		}
	}

	return out
}

// imageURLsFromJSON flattens the JSON-LD image shapes: a bare string,
// an array of either, or an object keyed url/contentUrl/src/originalSrc.
func imageURLsFromJSON(v any) []string {
	var out []string
	switch node := v.(type) {
	case string:
		out = append(out, node)
	case []any:
		for _, item := range node {
			out = append(out, imageURLsFromJSON(item)...)
		}
	case map[string]any:
		for _, key := range []string{"url", "contentUrl", "src", "originalSrc"} {
			if u := str(node, key); u != "" {
				out = append(out, u)
				break
			}
		}
	}
	return out
}

func normalizeImageURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	if strings.HasPrefix(u, "http") || strings.HasPrefix(u, "/") {
		return u
	}
	return ""
}
