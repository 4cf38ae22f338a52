package parse

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// Currency-symbol prefixed: $1,299.00, €45, £9.99
	rePriceSymbol = regexp.MustCompile(`[\$€£¥₹]\s?\d{1,3}(?:[,.]\d{3})*(?:[.,]\d{2})?`)
	// Decimal with exactly two fraction digits: 1299.00, 45,99
	rePriceDecimal = regexp.MustCompile(`\b\d{1,6}[.,]\d{2}\b`)
	// Currency-code prefixed: USD 129.99, EUR45
	rePriceCode = regexp.MustCompile(`\b(?:USD|EUR|GBP|JPY|INR|AUD|CAD)\s?\d{1,6}(?:[.,]\d{2})?\b`)
	// Bare whole numbers, 2-6 digits, filtered to a plausible range below
	rePriceWhole = regexp.MustCompile(`\b\d{2,6}\b`)

	reStockPhrases = regexp.MustCompile(`(?i)\b(?:` +
		`in stock|out of stock|sold out|back ?ordered?|pre-?order|pre-?sale|` +
		`available|unavailable|currently unavailable|` +
		`only \d+ left|low stock|limited stock|` +
		`availability\s*:\s*[\w -]+` +
		`)\b`)
)

// ExtractPriceLikeStrings scans raw HTML for strings that look like
// prices. Whole numbers without currency markers are kept only in a
// plausible range to avoid matching ids and years.
func ExtractPriceLikeStrings(html string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(match string) {
		match = strings.TrimSpace(match)
		if match != "" && !seen[match] {
			seen[match] = true
			out = append(out, match)
		}
	}

	for _, m := range rePriceSymbol.FindAllString(html, -1) {
		add(m)
	}
	for _, m := range rePriceDecimal.FindAllString(html, -1) {
		add(m)
	}
	for _, m := range rePriceCode.FindAllString(html, -1) {
		add(m)
	}
	for _, m := range rePriceWhole.FindAllString(html, -1) {
		if n, err := strconv.Atoi(m); err == nil && n >= 10 && n <= 100000 {
			add(m)
		}
	}
	return out
}

// ExtractStockLikeStrings scans raw HTML for availability phrases.
func ExtractStockLikeStrings(html string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range reStockPhrases.FindAllString(html, -1) {
		m = CollapseWhitespace(m)
		key := strings.ToLower(m)
		if !seen[key] {
			seen[key] = true
			out = append(out, m)
		}
	}
	return out
}
