package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/parse"
)

// extractVariants gathers variant shells from embedded JSON first, then
// falls back to crossing DOM option groups. Capped at
// models.MaxVariants.
func extractVariants(c *Context) ([]VariantShell, []string) {
	var notes []string

	if shells := variantsFromShopify(c.Blobs); len(shells) > 0 {
		return capVariants(shells, &notes), notes
	}
	if shells := variantsFromLD(c.Blobs); len(shells) > 0 {
		return capVariants(shells, &notes), notes
	}

	shells := variantsFromDOM(c)
	if len(shells) == 0 {
		notes = append(notes, "variants: no option data found")
		return nil, notes
	}
	return capVariants(shells, &notes), notes
}

func capVariants(shells []VariantShell, notes *[]string) []VariantShell {
	if len(shells) > models.MaxVariants {
		*notes = append(*notes, fmt.Sprintf("variants: truncated %d to %d", len(shells), models.MaxVariants))
		shells = shells[:models.MaxVariants]
	}
	return shells
}

// variantsFromShopify reads Shopify product.variants, where option1..3
// hold the attribute values and option names come from product.options.
func variantsFromShopify(blobs []any) []VariantShell {
	product := findShopifyProduct(blobs)
	if product == nil {
		return nil
	}
	rawVariants, ok := asSlice(product["variants"])
	if !ok {
		return nil
	}

	optionNames := shopifyOptionNames(product)
	var out []VariantShell
	for _, rv := range rawVariants {
		v, ok := asMap(rv)
		if !ok {
			continue
		}
		shell := VariantShell{SKU: str(v, "sku")}

		for i, key := range []string{"option1", "option2", "option3"} {
			val := str(v, key)
			if val == "" {
				continue
			}
			// Conventional positions when the payload omits options.
			name := shopifyDefaultOptionNames[i]
			if i < len(optionNames) && optionNames[i] != "" {
				name = optionNames[i]
			}
			shell.Attributes = append(shell.Attributes, models.Attribute{Name: name, Value: val})
		}
		if len(shell.Attributes) == 0 {
			if title := str(v, "title"); title != "" && title != "Default Title" {
				shell.Attributes = models.Attributes{{Name: "variant", Value: title}}
			}
		}

		if n, ok := asNumber(v["price"]); ok && n > 0 {
			d := decimal.NewFromFloat(n)
			shell.Price = &d
			shell.Currency = currencyNear(v)
		}
		if avail, ok := v["available"].(bool); ok {
			shell.Available = &avail
			if avail {
				shell.StockStatus = models.StockInStock
			} else {
				shell.StockStatus = models.StockOutOfStock
			}
		} else if n, ok := asNumber(v["inventory_quantity"]); ok {
			if status, matched := statusFromAvailability(n); matched {
				shell.StockStatus = status
			}
		}

		out = append(out, shell)
	}
	return out
}

var shopifyDefaultOptionNames = [3]string{"size", "color", "style"}

func shopifyOptionNames(product map[string]any) []string {
	opts, ok := asSlice(product["options"])
	if !ok {
		return nil
	}
	var names []string
	for _, o := range opts {
		switch opt := o.(type) {
		case string:
			names = append(names, opt)
		case map[string]any:
			names = append(names, str(opt, "name"))
		}
	}
	return names
}

// variantsFromLD reads JSON-LD Product offers or hasVariant entries.
func variantsFromLD(blobs []any) []VariantShell {
	product := findLDProduct(blobs)
	if product == nil {
		return nil
	}

	var out []VariantShell
	appendOffer := func(offer map[string]any) {
		shell := VariantShell{SKU: str(offer, "sku")}
		if name := str(offer, "name"); name != "" {
			shell.Attributes = models.Attributes{{Name: "variant", Value: name}}
		}
		if cand, ok := offerCandidate(offer); ok {
			shell.Price = &cand.amount
			shell.Currency = cand.currency
		}
		if v, ok := offer["availability"]; ok {
			if status, matched := statusFromAvailability(v); matched {
				shell.StockStatus = status
				avail := status == models.StockInStock || status == models.StockLowStock
				shell.Available = &avail
			}
		}
		if shell.SKU == "" && len(shell.Attributes) == 0 && shell.Price == nil {
			return
		}
		out = append(out, shell)
	}

	if variants, ok := asSlice(product["hasVariant"]); ok {
		for _, rv := range variants {
			if m, ok := asMap(rv); ok {
				appendOffer(m)
			}
		}
	}
	if len(out) > 0 {
		return out
	}

	offers := offersList(product["offers"])
	// A single offer is the product price, not a variant set.
	if len(offers) < 2 {
		return nil
	}
	for _, offer := range offers {
		appendOffer(offer)
	}
	return out
}

var optionGroupSelectors = []string{
	"select[name*=size]", "select[name*=color]", "select[name*=colour]",
	"select[name*=option]", "select[name*=variant]",
	"select[id*=size]", "select[id*=color]", "select[id*=option]",
	"select[class*=variant]", "select[data-option]",
}

type optionGroup struct {
	name   string
	values []string
}

// variantsFromDOM crosses select/radio option groups into shells. No
// per-variant price or availability is knowable from markup alone.
func variantsFromDOM(c *Context) []VariantShell {
	var groups []optionGroup
	seen := make(map[string]bool)

	addGroup := func(name string, values []string) {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" || len(values) == 0 || seen[key] {
			return
		}
		seen[key] = true
		groups = append(groups, optionGroup{name: name, values: values})
	}

	for _, sel := range optionGroupSelectors {
		for _, node := range parse.SelectAll(c.Doc, sel) {
			name, _ := parse.Attr(node, "name")
			if name == "" {
				name, _ = parse.Attr(node, "id")
			}
			var values []string
			valueSeen := make(map[string]bool)
			node.Find("option").Each(func(_ int, opt *goquery.Selection) {
				v := parse.CollapseWhitespace(opt.Text())
				if v == "" {
					v, _ = opt.Attr("value")
				}
				v = strings.TrimSpace(v)
				if v == "" || isOptionPlaceholder(v) || valueSeen[strings.ToLower(v)] {
					return
				}
				valueSeen[strings.ToLower(v)] = true
				values = append(values, v)
			})
			addGroup(cleanOptionName(name), values)
		}
	}

	// Radio groups share a name attribute; each label is one value.
	radioValues := make(map[string][]string)
	radioSeen := make(map[string]map[string]bool)
	for _, node := range parse.SelectAll(c.Doc, "input[type=radio]") {
		name, _ := parse.Attr(node, "name")
		name = cleanOptionName(name)
		if name == "" || !looksLikeOptionName(name) {
			continue
		}
		value, _ := parse.Attr(node, "value")
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if radioSeen[name] == nil {
			radioSeen[name] = make(map[string]bool)
		}
		if radioSeen[name][strings.ToLower(value)] {
			continue
		}
		radioSeen[name][strings.ToLower(value)] = true
		radioValues[name] = append(radioValues[name], value)
	}
	for name, values := range radioValues {
		addGroup(name, values)
	}

	return crossGroups(groups)
}

var rePlaceholderOption = regexp.MustCompile(`(?i)^(?:select|choose|pick)\b|^-+$|^\.\.\.$`)

func isOptionPlaceholder(v string) bool {
	return rePlaceholderOption.MatchString(v)
}

var reOptionNameNoise = regexp.MustCompile(`(?i)^(?:attributes?\[|options?\[|properties\[)|\]$`)

func cleanOptionName(name string) string {
	return strings.TrimSpace(reOptionNameNoise.ReplaceAllString(name, ""))
}

var reOptionName = regexp.MustCompile(`(?i)size|color|colour|option|variant|style|material|finish`)

func looksLikeOptionName(name string) bool {
	return reOptionName.MatchString(name)
}

// crossGroups takes the cartesian product of the option groups. The
// product is bounded so pathological pages cannot explode it.
func crossGroups(groups []optionGroup) []VariantShell {
	if len(groups) == 0 {
		return nil
	}

	combos := []models.Attributes{nil}
	for _, g := range groups {
		var next []models.Attributes
		for _, combo := range combos {
			for _, v := range g.values {
				attrs := append(models.Attributes{}, combo...)
				attrs = append(attrs, models.Attribute{Name: g.name, Value: v})
				next = append(next, attrs)
				if len(next) > models.MaxVariants {
					break
				}
			}
			if len(next) > models.MaxVariants {
				break
			}
		}
		combos = next
	}

	out := make([]VariantShell, 0, len(combos))
	for _, attrs := range combos {
		out = append(out, VariantShell{Attributes: attrs})
	}
	return out
}
