package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// currencySymbols maps glyph prefixes to ISO codes. Multi-rune prefixes
// are checked before their single-rune fallbacks.
var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"A$", "AUD"},
	{"C$", "CAD"},
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"₹", "INR"},
}

var knownCurrencyCodes = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true,
	"INR": true, "AUD": true, "CAD": true, "NZD": true,
	"CHF": true, "SEK": true, "NOK": true, "DKK": true,
}

var (
	reCurrencyCode = regexp.MustCompile(`\b([A-Z]{3})\b`)
	reAmountChars  = regexp.MustCompile(`[-\d.,]+`)
)

// parseAmount extracts a decimal amount from a price-like string.
// Currency glyphs and codes are stripped first. When both separators
// appear the comma is thousands; a lone comma is a decimal separator.
func parseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	for _, cs := range currencySymbols {
		s = strings.ReplaceAll(s, cs.symbol, "")
	}
	s = reAmountChars.FindString(s)
	if s == "" {
		return decimal.Zero, false
	}

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		s = strings.ReplaceAll(s, ",", "")
	case hasComma:
		// 1,299 is ambiguous; treat a single comma followed by exactly
		// three digits at the end as thousands, anything else decimal.
		if i := strings.LastIndex(s, ","); strings.Count(s, ",") == 1 && len(s)-i-1 == 3 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ",", ".")
			if strings.Count(s, ".") > 1 {
				return decimal.Zero, false
			}
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

// detectCurrency returns the ISO code implied by a raw price string, or
// "" when nothing recognizable is present.
func detectCurrency(raw string) string {
	for _, cs := range currencySymbols {
		if strings.Contains(raw, cs.symbol) {
			return cs.code
		}
	}
	for _, m := range reCurrencyCode.FindAllString(raw, -1) {
		if knownCurrencyCodes[m] {
			return m
		}
	}
	return ""
}

// normalizeCurrency validates a currency value from structured data.
func normalizeCurrency(raw string) string {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if knownCurrencyCodes[code] {
		return code
	}
	return detectCurrency(raw)
}

func plausiblePrice(d decimal.Decimal) bool {
	return d.GreaterThanOrEqual(decimal.NewFromFloat(0.01)) &&
		d.LessThanOrEqual(decimal.NewFromInt(100000))
}
