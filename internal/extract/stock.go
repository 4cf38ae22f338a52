package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/parse"
)

// statusFromString maps free-text availability copy to a status.
// Substring order matters: "out of stock" must be checked before
// "in stock".
func statusFromString(s string) (models.StockStatus, bool) {
	t := strings.ToLower(s)
	switch {
	case strings.Contains(t, "out of stock"), strings.Contains(t, "sold out"),
		strings.Contains(t, "outofstock"), strings.Contains(t, "unavailable"):
		return models.StockOutOfStock, true
	case strings.Contains(t, "low stock"), strings.Contains(t, "limited stock"),
		strings.Contains(t, "only ") && strings.Contains(t, " left"):
		return models.StockLowStock, true
	case strings.Contains(t, "backorder"), strings.Contains(t, "back-order"),
		strings.Contains(t, "back order"):
		return models.StockBackorder, true
	case strings.Contains(t, "preorder"), strings.Contains(t, "pre-order"),
		strings.Contains(t, "presale"), strings.Contains(t, "pre-sale"):
		return models.StockPreorder, true
	case strings.Contains(t, "in stock"), strings.Contains(t, "instock"),
		strings.Contains(t, "available"):
		return models.StockInStock, true
	}
	return models.StockUnknown, false
}

// statusFromAvailability maps schema.org availability values, booleans
// and quantities.
func statusFromAvailability(v any) (models.StockStatus, bool) {
	switch val := v.(type) {
	case bool:
		if val {
			return models.StockInStock, true
		}
		return models.StockOutOfStock, true
	case float64:
		switch {
		case val <= 0:
			return models.StockOutOfStock, true
		case val < 5:
			return models.StockLowStock, true
		default:
			return models.StockInStock, true
		}
	case string:
		s := strings.ToLower(val)
		switch {
		case strings.Contains(s, "instock"):
			return models.StockInStock, true
		case strings.Contains(s, "outofstock"):
			return models.StockOutOfStock, true
		case strings.Contains(s, "backorder"):
			return models.StockBackorder, true
		case strings.Contains(s, "preorder"), strings.Contains(s, "presale"):
			return models.StockPreorder, true
		}
		return statusFromString(val)
	}
	return models.StockUnknown, false
}

var (
	reNotifyPhrase = regexp.MustCompile(`(?i)\b(?:notify me|get notified|email me when|email when available|back.?in.?stock|waitlist|wait list|remind me|restock alert)\b`)
	reOOSCopy      = regexp.MustCompile(`(?i)\b(?:currently|temporarily)\s+(?:out of stock|unavailable|sold out)|we'?ll (?:email|notify) you when|back in stock soon\b`)
	rePurchaseCTA  = regexp.MustCompile(`(?i)\b(?:add to (?:cart|bag|basket)|buy now|buy it now|purchase|checkout|shop now|order now)\b`)
	reNotifyAttr   = regexp.MustCompile(`(?i)notify|waitlist|back.?in.?stock|restock`)
	reInStockCTA   = rePurchaseCTA
)

const (
	notifyButtonWeight = 30
	notifyFormWeight   = 28
	notifyEmailWeight  = 25
	notifyCopyWeight   = 20

	notifyBaseThreshold = 20
	notifyCTAThreshold  = 40
	notifyCTAPenalty    = 20
)

// notifyMeStockStrategy recognizes pages that replaced the purchase
// control with a restock-notification signup. Weighted evidence must
// clear a threshold that rises when an active purchase CTA is still on
// the page.
type notifyMeStockStrategy struct{}

func (s *notifyMeStockStrategy) Name() string { return "notify-me-stock-strategy" }

func (s *notifyMeStockStrategy) Extract(c *Context) (*StockShell, []string) {
	score := 0
	var evidence string

	record := func(weight int, raw string) {
		score += weight
		if evidence == "" {
			evidence = raw
		}
	}

	for _, node := range parse.SelectAll(c.Doc, "button, a, input[type=submit], input[type=button]") {
		text := elementText(node)
		if reNotifyPhrase.MatchString(text) {
			record(notifyButtonWeight, text)
		}
	}

	for _, node := range parse.SelectAll(c.Doc, "form") {
		action, _ := parse.Attr(node, "action")
		class, _ := parse.Attr(node, "class")
		id, _ := parse.Attr(node, "id")
		if reNotifyAttr.MatchString(action + " " + class + " " + id) {
			record(notifyFormWeight, "form "+strings.TrimSpace(action+" "+class))
		}
	}

	for _, node := range parse.SelectAll(c.Doc, "input[type=email]") {
		context := parse.CollapseWhitespace(node.Parent().Text())
		placeholder, _ := parse.Attr(node, "placeholder")
		if reNotifyPhrase.MatchString(context) || reNotifyPhrase.MatchString(placeholder) {
			record(notifyEmailWeight, context)
		}
	}

	body := parse.VisibleBodyText(c.Doc)
	if m := reOOSCopy.FindString(body); m != "" {
		record(notifyCopyWeight, m)
	}

	if score == 0 {
		return nil, nil
	}

	threshold := notifyBaseThreshold
	if hasActivePurchaseCTA(c.Doc) {
		score -= notifyCTAPenalty
		threshold = notifyCTAThreshold
	}

	if score < threshold {
		return nil, []string{s.Name() + ": evidence below threshold"}
	}
	return &StockShell{Status: models.StockOutOfStock, Raw: evidence}, nil
}

func elementText(node *goquery.Selection) string {
	text := parse.CollapseWhitespace(node.Text())
	if text == "" {
		if v, ok := parse.Attr(node, "value"); ok {
			text = v
		}
	}
	if text == "" {
		if v, ok := parse.Attr(node, "aria-label"); ok {
			text = v
		}
	}
	return text
}

func hasActivePurchaseCTA(doc *goquery.Document) bool {
	for _, node := range parse.SelectAll(doc, "button, a, input[type=submit], input[type=button]") {
		if !rePurchaseCTA.MatchString(elementText(node)) {
			continue
		}
		if !elementDisabled(node) {
			return true
		}
	}
	return false
}

func elementDisabled(node *goquery.Selection) bool {
	if _, ok := parse.Attr(node, "disabled"); ok {
		return true
	}
	if v, ok := parse.Attr(node, "aria-disabled"); ok && strings.EqualFold(v, "true") {
		return true
	}
	if v, ok := parse.Attr(node, "data-disabled"); ok && !strings.EqualFold(v, "false") {
		return true
	}
	if class, ok := parse.Attr(node, "class"); ok && strings.Contains(strings.ToLower(class), "disabled") {
		return true
	}
	return false
}

// jsonStockStrategy reads availability from the harvested JSON.
type jsonStockStrategy struct{}

func (s *jsonStockStrategy) Name() string { return "json-stock-strategy" }

func (s *jsonStockStrategy) Extract(c *Context) (*StockShell, []string) {
	var found *StockShell

	for _, blob := range c.Blobs {
		walkJSON(blob, 0, func(m map[string]any) bool {
			if v, ok := m["availability"]; ok {
				if status, ok := statusFromAvailability(v); ok {
					found = &StockShell{Status: status, Raw: rawOf(v)}
					return false
				}
			}
			for _, key := range []string{"available", "in_stock", "inStock", "is_available", "isAvailable"} {
				if v, ok := m[key]; ok {
					if status, ok := statusFromAvailability(v); ok {
						found = &StockShell{Status: status, Raw: key + "=" + rawOf(v)}
						return false
					}
				}
			}
			for _, key := range []string{"inventory_quantity", "quantity", "stock", "stock_level"} {
				if n, ok := asNumber(m[key]); ok {
					if status, ok := statusFromAvailability(n); ok {
						found = &StockShell{Status: status, Raw: key + "=" + rawOf(m[key])}
						return false
					}
				}
			}
			return true
		})
		if found != nil {
			return found, nil
		}
	}
	return nil, []string{s.Name() + ": no availability fields in json"}
}

func rawOf(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return ""
}

var stockDataAttrs = []string{"data-stock", "data-availability", "data-inventory"}

var stockishClass = regexp.MustCompile(`(?i)stock|availab|inventory`)

// domStockStrategy pattern-matches element text and data attributes.
type domStockStrategy struct{}

func (s *domStockStrategy) Name() string { return "dom-stock-strategy" }

func (s *domStockStrategy) Extract(c *Context) (*StockShell, []string) {
	type cand struct {
		status models.StockStatus
		raw    string
		score  int
	}
	var cands []cand

	for _, attr := range stockDataAttrs {
		for _, node := range parse.SelectAll(c.Doc, "["+attr+"]") {
			if v, ok := parse.Attr(node, attr); ok {
				if status, matched := statusFromAvailability(v); matched {
					cands = append(cands, cand{status: status, raw: v, score: 10})
				}
			}
		}
	}

	for _, node := range parse.SelectAll(c.Doc, "span, div, p, li, strong, em, b") {
		text := parse.CollapseWhitespace(node.Text())
		if text == "" || len(text) > 120 {
			continue
		}
		status, matched := statusFromString(text)
		if !matched {
			continue
		}
		score := 1
		class, _ := parse.Attr(node, "class")
		id, _ := parse.Attr(node, "id")
		if stockishClass.MatchString(class + " " + id) {
			score += 8
		}
		cands = append(cands, cand{status: status, raw: text, score: score})
	}

	if len(cands) == 0 {
		return nil, []string{s.Name() + ": no stock-like dom nodes"}
	}
	best := cands[0]
	for _, x := range cands[1:] {
		if x.score > best.score {
			best = x
		}
	}
	return &StockShell{Status: best.status, Raw: best.raw}, nil
}

const disabledCartScore = 12

// buttonStockStrategy votes in_stock vs out_of_stock from purchase
// buttons and their enabled state.
type buttonStockStrategy struct{}

func (s *buttonStockStrategy) Name() string { return "button-stock-strategy" }

func (s *buttonStockStrategy) Extract(c *Context) (*StockShell, []string) {
	inScore, outScore := 0, 0
	var inRaw, outRaw string

	for _, node := range parse.SelectAll(c.Doc, "button, a[role=button], a[class*=btn], input[type=submit], input[type=button]") {
		text := elementText(node)
		if text == "" {
			continue
		}
		disabled := elementDisabled(node)

		if reInStockCTA.MatchString(text) {
			score := 10
			if disabled {
				// A dead Add to Cart is the strongest out-of-stock vote
				// a button can cast.
				outScore += disabledCartScore
				if outRaw == "" {
					outRaw = text
				}
				continue
			}
			score += 5
			inScore += score
			if inRaw == "" {
				inRaw = text
			}
			continue
		}

		if status, matched := statusFromString(text); matched && status != models.StockInStock {
			score := 8
			if disabled {
				score += 5
			}
			outScore += score
			if outRaw == "" {
				outRaw = text
			}
		}
	}

	switch {
	case inScore == 0 && outScore == 0:
		return nil, []string{s.Name() + ": no purchase buttons found"}
	case outScore > inScore:
		return &StockShell{Status: models.StockOutOfStock, Raw: outRaw}, nil
	default:
		return &StockShell{Status: models.StockInStock, Raw: inRaw}, nil
	}
}

// heuristicStockStrategy regex-scans the raw document as a last resort.
type heuristicStockStrategy struct{}

func (s *heuristicStockStrategy) Name() string { return "heuristic-stock-strategy" }

func (s *heuristicStockStrategy) Extract(c *Context) (*StockShell, []string) {
	for _, phrase := range parse.ExtractStockLikeStrings(c.HTML) {
		if status, ok := statusFromString(phrase); ok {
			return &StockShell{Status: status, Raw: phrase}, nil
		}
	}
	return nil, []string{s.Name() + ": no stock-like strings"}
}
