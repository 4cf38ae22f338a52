package extract

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/parse"
)

var priceKeyNames = map[string]bool{
	"price":         true,
	"price_amount":  true,
	"pricevalue":    true,
	"amount":        true,
	"cost":          true,
	"value":         true,
	"current_price": true,
	"sale_price":    true,
	"regular_price": true,
	"final_price":   true,
}

type priceCandidate struct {
	amount   decimal.Decimal
	currency string
	raw      string
	score    int
}

func scorePriceCandidate(cand *priceCandidate, key string, fromOffers bool) {
	if cand.currency != "" {
		cand.score += 10
	}
	if plausiblePrice(cand.amount) {
		cand.score += 5
	}
	lk := strings.ToLower(key)
	if strings.Contains(lk, "current") || strings.Contains(lk, "sale") {
		cand.score += 3
	}
	if fromOffers {
		cand.score += 2
	}
}

func bestPrice(cands []priceCandidate) *PriceShell {
	if len(cands) == 0 {
		return nil
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.score > best.score {
			best = c
		}
	}
	return &PriceShell{Amount: best.amount, Currency: best.currency, Raw: best.raw}
}

// jsonPriceStrategy walks every harvested JSON blob collecting price-ish
// key/value pairs and offers entries, returning the top-scoring one.
type jsonPriceStrategy struct{}

func (s *jsonPriceStrategy) Name() string { return "json-price-strategy" }

func (s *jsonPriceStrategy) Extract(c *Context) (*PriceShell, []string) {
	var cands []priceCandidate

	for _, blob := range c.Blobs {
		walkJSON(blob, 0, func(m map[string]any) bool {
			// offers carry the most reliable price+currency pairs.
			if offers, ok := m["offers"]; ok {
				for _, offer := range offersList(offers) {
					if cand, ok := offerCandidate(offer); ok {
						cands = append(cands, cand)
					}
				}
			}
			for key, val := range m {
				if !priceKeyNames[strings.ToLower(key)] {
					continue
				}
				n, ok := asNumber(val)
				if !ok || n <= 0 {
					continue
				}
				cand := priceCandidate{
					amount:   decimal.NewFromFloat(n),
					currency: currencyNear(m),
					raw:      fmt.Sprintf("%s: %v", key, val),
				}
				scorePriceCandidate(&cand, key, false)
				cands = append(cands, cand)
			}
			return true
		})
	}

	if len(cands) == 0 {
		return nil, []string{s.Name() + ": no price-like keys in json"}
	}
	return bestPrice(cands), nil
}

func offersList(v any) []map[string]any {
	var out []map[string]any
	switch node := v.(type) {
	case map[string]any:
		out = append(out, node)
		// AggregateOffer nests the individual offers.
		if inner, ok := asSlice(node["offers"]); ok {
			for _, item := range inner {
				if m, ok := asMap(item); ok {
					out = append(out, m)
				}
			}
		}
	case []any:
		for _, item := range node {
			if m, ok := asMap(item); ok {
				out = append(out, m)
			}
		}
	}
	return out
}

func offerCandidate(offer map[string]any) (priceCandidate, bool) {
	var n float64
	var ok bool
	var key string
	for _, k := range []string{"price", "priceAmount", "lowPrice"} {
		if n, ok = asNumber(offer[k]); ok && n > 0 {
			key = k
			break
		}
	}
	if !ok || n <= 0 {
		return priceCandidate{}, false
	}
	currency := normalizeCurrency(str(offer, "priceCurrency"))
	if currency == "" {
		currency = normalizeCurrency(str(offer, "currency"))
	}
	cand := priceCandidate{
		amount:   decimal.NewFromFloat(n),
		currency: currency,
		raw:      fmt.Sprintf("offers.%s: %v", key, offer[key]),
	}
	scorePriceCandidate(&cand, key, true)
	return cand, true
}

// currencyNear picks up a currency field on the same object as a price
// key.
func currencyNear(m map[string]any) string {
	for _, k := range []string{"priceCurrency", "currency", "currency_code", "currencyCode"} {
		if v := normalizeCurrency(str(m, k)); v != "" {
			return v
		}
	}
	return ""
}

var domPriceSelectors = []string{
	"[data-price]",
	".current-price",
	".sale-price",
	".product-price",
	".price",
	"[class*=price]",
	"[id*=price]",
	"[itemprop=price]",
}

var priceContextWords = []string{"price", "cost", "total", "now", "sale"}

// domPriceStrategy aggregates candidates from price-ish selectors, the
// product meta tags and body text.
type domPriceStrategy struct{}

func (s *domPriceStrategy) Name() string { return "dom-price-strategy" }

func (s *domPriceStrategy) Extract(c *Context) (*PriceShell, []string) {
	var cands []priceCandidate

	metaCurrency := normalizeCurrency(parse.MetaContent(c.Doc, "product:price:currency"))
	if amount := parse.MetaContent(c.Doc, "product:price:amount"); amount != "" {
		if d, ok := parseAmount(amount); ok {
			cand := priceCandidate{amount: d, currency: metaCurrency, raw: amount, score: 8}
			if cand.currency != "" {
				cand.score += 10
			}
			if plausiblePrice(d) {
				cand.score += 5
			}
			cands = append(cands, cand)
		}
	}

	for _, sel := range domPriceSelectors {
		for _, node := range parse.SelectAll(c.Doc, sel) {
			text := parse.CollapseWhitespace(node.Text())
			if text == "" {
				if v, ok := parse.Attr(node, "data-price"); ok {
					text = v
				}
			}
			if text == "" || len(text) > 80 {
				continue
			}
			d, ok := parseAmount(text)
			if !ok || d.IsZero() {
				continue
			}
			cand := priceCandidate{
				amount:   d,
				currency: detectCurrency(text),
				raw:      text,
				score:    5, // matched a price-ish selector
			}
			if cand.currency != "" {
				cand.score += 10
			}
			if plausiblePrice(d) {
				cand.score += 5
			}
			parentText := strings.ToLower(parse.CollapseWhitespace(node.Parent().Text()))
			for _, word := range priceContextWords {
				if strings.Contains(parentText, word) {
					cand.score += 2
					break
				}
			}
			cands = append(cands, cand)
		}
	}

	if len(cands) == 0 {
		return nil, []string{s.Name() + ": no price-like dom nodes"}
	}
	return bestPrice(cands), nil
}

// heuristicPriceStrategy regex-scans the raw document as a last resort.
type heuristicPriceStrategy struct{}

func (s *heuristicPriceStrategy) Name() string { return "heuristic-price-strategy" }

func (s *heuristicPriceStrategy) Extract(c *Context) (*PriceShell, []string) {
	var cands []priceCandidate
	lo := decimal.NewFromFloat(0.1)
	hi := decimal.NewFromInt(10000)

	for _, raw := range parse.ExtractPriceLikeStrings(c.HTML) {
		d, ok := parseAmount(raw)
		if !ok || d.LessThan(lo) || d.GreaterThan(hi) {
			continue
		}
		cand := priceCandidate{amount: d, currency: detectCurrency(raw), raw: raw}
		if cand.currency != "" {
			cand.score += 10
		}
		if strings.ContainsAny(raw, ".,") {
			cand.score += 3
		}
		if len(raw) >= 4 {
			cand.score++
		}
		cands = append(cands, cand)
	}

	if len(cands) == 0 {
		return nil, []string{s.Name() + ": no price-like strings"}
	}
	return bestPrice(cands), nil
}
