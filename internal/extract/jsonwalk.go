package extract

import (
	"strconv"
	"strings"
)

// maxWalkDepth bounds every recursive walk over embedded JSON.
const maxWalkDepth = 10

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

// str returns the string value of a map key, or "".
func str(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// asNumber coerces JSON numbers and numeric strings to float64.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// isLDType reports whether a JSON-LD object's @type matches want.
// @type may be a string or an array of strings.
func isLDType(m map[string]any, want string) bool {
	switch t := m["@type"].(type) {
	case string:
		return strings.EqualFold(t, want)
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && strings.EqualFold(s, want) {
				return true
			}
		}
	}
	return false
}

// findLDProduct locates the first JSON-LD Product object among the
// blobs, descending through @graph and mainEntity wrappers.
func findLDProduct(blobs []any) map[string]any {
	for _, blob := range blobs {
		if p := findLDProductIn(blob, 0); p != nil {
			return p
		}
	}
	return nil
}

func findLDProductIn(v any, depth int) map[string]any {
	if depth > maxWalkDepth {
		return nil
	}
	switch node := v.(type) {
	case map[string]any:
		if isLDType(node, "Product") {
			return node
		}
		for _, key := range []string{"@graph", "mainEntity", "mainEntityOfPage"} {
			if inner, ok := node[key]; ok {
				if p := findLDProductIn(inner, depth+1); p != nil {
					return p
				}
			}
		}
	case []any:
		for _, item := range node {
			if p := findLDProductIn(item, depth+1); p != nil {
				return p
			}
		}
	}
	return nil
}

// findShopifyProduct locates a Shopify-style product object: either a
// top-level {"product": {...}} wrapper or a bare object carrying both
// title and variants.
func findShopifyProduct(blobs []any) map[string]any {
	for _, blob := range blobs {
		m, ok := asMap(blob)
		if !ok {
			continue
		}
		if p, ok := asMap(m["product"]); ok {
			if _, hasVariants := p["variants"]; hasVariants || str(p, "title") != "" {
				return p
			}
		}
		if _, hasVariants := m["variants"]; hasVariants && str(m, "title") != "" {
			return m
		}
	}
	return nil
}

// walkJSON visits every map in the blob up to maxWalkDepth, calling fn
// with each. fn returning false stops the walk.
func walkJSON(v any, depth int, fn func(m map[string]any) bool) bool {
	if depth > maxWalkDepth {
		return true
	}
	switch node := v.(type) {
	case map[string]any:
		if !fn(node) {
			return false
		}
		for _, child := range node {
			if !walkJSON(child, depth+1, fn) {
				return false
			}
		}
	case []any:
		for _, child := range node {
			if !walkJSON(child, depth+1, fn) {
				return false
			}
		}
	}
	return true
}
