package extract

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/fetch"
	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/parse"
)

func contextFor(t *testing.T, html string) *Context {
	t.Helper()
	return &Context{
		URL:   "https://example.com/p",
		Doc:   parse.LoadDOM(html, parse.DOMOptions{StripScriptsAndStyles: true}),
		HTML:  html,
		Blobs: parse.ExtractEmbeddedJSON(html),
	}
}

func TestExtractTitleWaterfall(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			"json-ld product name wins",
			`<html><head><meta property="og:title" content="OG Name"></head><body>
			 <script type="application/ld+json">{"@type":"Product","name":"LD Name"}</script>
			 <h1>H1 Name</h1></body></html>`,
			"LD Name",
		},
		{
			"shopify title when no json-ld",
			`<html><body><script type="application/json">{"product":{"title":"Shopify Name","variants":[]}}</script></body></html>`,
			"Shopify Name",
		},
		{
			"og title beats selectors",
			`<html><head><meta property="og:title" content="OG Name"></head><body><h1>H1 Name</h1></body></html>`,
			"OG Name",
		},
		{
			"product selector beats h1",
			`<html><body><div class="product-title">Selector Name</div><h1>H1 Name</h1></body></html>`,
			"Selector Name",
		},
		{
			"h1 fallback",
			`<html><body><h1>H1 Name</h1></body></html>`,
			"H1 Name",
		},
		{
			"document title split on separator",
			`<html><head><title>Widget Pro | ACME Store</title></head><body><p>x</p></body></html>`,
			"Widget Pro",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractTitle(contextFor(t, tt.html)); got != tt.want {
				t.Errorf("extractTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractDescription(t *testing.T) {
	html := `<html><head>
	<meta property="og:description" content="OG desc">
	<meta name="description" content="Meta desc">
	</head><body></body></html>`
	if got := extractDescription(contextFor(t, html)); got != "Meta desc" {
		t.Errorf("description = %q, want meta name=description first", got)
	}
}

func TestExtractImages(t *testing.T) {
	html := `<html><head>
	<meta property="og:image" content="//cdn.example.com/og.jpg">
	</head><body>
	<script type="application/ld+json">{"@type":"Product","image":["https://cdn.example.com/a.jpg",{"url":"https://cdn.example.com/b.jpg"}]}</script>
	<img src="/rel.jpg" data-src="https://cdn.example.com/lazy.jpg" srcset="https://cdn.example.com/s1.jpg 1x, https://cdn.example.com/s2.jpg 2x">
	<img src="javascript:void(0)">
	</body></html>`

	images := extractImages(contextFor(t, html))

	if len(images) == 0 || images[0] != "https://cdn.example.com/og.jpg" {
		t.Fatalf("images[0] = %v, want protocol-relative og:image resolved first", images)
	}
	want := map[string]bool{
		"https://cdn.example.com/a.jpg":    true,
		"https://cdn.example.com/b.jpg":    true,
		"/rel.jpg":                         true,
		"https://cdn.example.com/lazy.jpg": true,
		"https://cdn.example.com/s1.jpg":   true,
	}
	got := make(map[string]bool, len(images))
	for _, u := range images {
		got[u] = true
		if strings.HasPrefix(u, "javascript") {
			t.Errorf("non-http url kept: %q", u)
		}
	}
	for u := range want {
		if !got[u] {
			t.Errorf("missing image %q in %v", u, images)
		}
	}
}

func TestExtractImagesCap(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 30; i++ {
		b.WriteString(`<img src="/img` + strings.Repeat("x", i+1) + `.jpg">`)
	}
	b.WriteString("</body></html>")

	images := extractImages(contextFor(t, b.String()))
	if len(images) != MaxImages {
		t.Errorf("len(images) = %d, want %d", len(images), MaxImages)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"$1,299.00", "1299", true},
		{"€45,99", "45.99", true},
		{"£9.99", "9.99", true},
		{"1,299", "1299", true},
		{"12,99", "12.99", true},
		{"USD 129.99", "129.99", true},
		{"free", "", false},
		{"-5.00", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, ok := parseAmount(tt.in)
			if ok != tt.ok {
				t.Fatalf("parseAmount(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok {
				want, _ := decimal.NewFromString(tt.want)
				if !d.Equal(want) {
					t.Errorf("parseAmount(%q) = %s, want %s", tt.in, d, tt.want)
				}
			}
		})
	}
}

func TestDetectCurrency(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"A$129.00", "AUD"},
		{"C$59", "CAD"},
		{"$19.99", "USD"},
		{"€45", "EUR"},
		{"price: GBP 12", "GBP"},
		{"₹999", "INR"},
		{"12.50", ""},
	}
	for _, tt := range tests {
		if got := detectCurrency(tt.in); got != tt.want {
			t.Errorf("detectCurrency(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJSONPriceStrategyPrefersOffers(t *testing.T) {
	html := `<html><body><script type="application/ld+json">
	{"@type":"Product","name":"X","sku_id":12345,
	 "offers":{"@type":"Offer","price":"49.99","priceCurrency":"USD"}}
	</script></body></html>`

	s := &jsonPriceStrategy{}
	res, _ := s.Extract(contextFor(t, html))
	if res == nil {
		t.Fatal("expected a price")
	}
	if !res.Amount.Equal(decimal.NewFromFloat(49.99)) {
		t.Errorf("Amount = %s, want 49.99", res.Amount)
	}
	if res.Currency != "USD" {
		t.Errorf("Currency = %q, want USD", res.Currency)
	}
}

func TestDOMPriceStrategy(t *testing.T) {
	html := `<html><body>
	<div class="product-info"><span class="current-price">$24.50</span></div>
	<span class="old-price">$99.00</span>
	</body></html>`

	// The raw document carries no JSON so the cascade lands on DOM.
	e := New(nil)
	res, _ := e.runPriceCascade(contextFor(t, html))
	if res == nil {
		t.Fatal("expected a price")
	}
	if res.Strategy != "dom-price-strategy" {
		t.Errorf("Strategy = %q, want dom-price-strategy", res.Strategy)
	}
	if res.Currency != "USD" {
		t.Errorf("Currency = %q, want USD", res.Currency)
	}
}

func TestHeuristicPriceStrategy(t *testing.T) {
	html := `<html><body><p>Grab it for €79,95 while it lasts</p></body></html>`
	s := &heuristicPriceStrategy{}
	res, _ := s.Extract(contextFor(t, html))
	if res == nil {
		t.Fatal("expected a price")
	}
	if !res.Amount.Equal(decimal.NewFromFloat(79.95)) {
		t.Errorf("Amount = %s, want 79.95", res.Amount)
	}
	if res.Currency != "EUR" {
		t.Errorf("Currency = %q, want EUR", res.Currency)
	}
}

func TestNotifyMeStrategyWithoutCTA(t *testing.T) {
	html := `<html><body>
	<h1>Silk Scarf</h1>
	<p>This item is currently out of stock.</p>
	<button class="notify-btn">Notify Me When Available</button>
	</body></html>`

	s := &notifyMeStockStrategy{}
	res, _ := s.Extract(contextFor(t, html))
	if res == nil {
		t.Fatal("expected out_of_stock decision")
	}
	if res.Status != models.StockOutOfStock {
		t.Errorf("Status = %s, want out_of_stock", res.Status)
	}
	if res.Raw == "" {
		t.Error("Raw should carry the matching element text")
	}
}

func TestNotifyMeStrategyDefersBelowThreshold(t *testing.T) {
	// Copy only (20) plus an active CTA: score 0 < threshold 40.
	html := `<html><body>
	<p>Some colours are currently out of stock.</p>
	<button>Add to Cart</button>
	</body></html>`

	s := &notifyMeStockStrategy{}
	res, notes := s.Extract(contextFor(t, html))
	if res != nil {
		t.Fatalf("expected deferral, got %+v", res)
	}
	if len(notes) == 0 {
		t.Error("expected a below-threshold note")
	}
}

func TestNotifyMeStrategyOverridesActiveCTA(t *testing.T) {
	html := `<html><body>
	<button>Add to Cart</button>
	<p>This item is temporarily out of stock. We'll email you when it returns.</p>
	<form action="/back-in-stock" class="waitlist-form">
	  <input type="email" placeholder="Email me when available">
	  <button type="submit">Notify Me</button>
	</form>
	</body></html>`

	s := &notifyMeStockStrategy{}
	res, _ := s.Extract(contextFor(t, html))
	if res == nil {
		t.Fatal("expected out_of_stock despite active CTA")
	}
	if res.Status != models.StockOutOfStock {
		t.Errorf("Status = %s, want out_of_stock", res.Status)
	}
}

func TestJSONStockStrategy(t *testing.T) {
	tests := []struct {
		name string
		html string
		want models.StockStatus
	}{
		{
			"schema.org in stock",
			`<html><body><script type="application/ld+json">{"@type":"Product","offers":{"availability":"https://schema.org/InStock"}}</script></body></html>`,
			models.StockInStock,
		},
		{
			"schema.org backorder",
			`<html><body><script type="application/ld+json">{"@type":"Product","offers":{"availability":"https://schema.org/BackOrder"}}</script></body></html>`,
			models.StockBackorder,
		},
		{
			"boolean available",
			`<html><body><script type="application/json">{"product":{"available":false}}</script></body></html>`,
			models.StockOutOfStock,
		},
		{
			"low quantity",
			`<html><body><script type="application/json">{"inventory_quantity":3}</script></body></html>`,
			models.StockLowStock,
		},
	}
	s := &jsonStockStrategy{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _ := s.Extract(contextFor(t, tt.html))
			if res == nil {
				t.Fatal("expected a status")
			}
			if res.Status != tt.want {
				t.Errorf("Status = %s, want %s", res.Status, tt.want)
			}
		})
	}
}

func TestDOMStockStrategyPrefersStockishNodes(t *testing.T) {
	html := `<html><body>
	<p>Delivery available nationwide</p>
	<span class="stock-status">Out of stock</span>
	</body></html>`

	s := &domStockStrategy{}
	res, _ := s.Extract(contextFor(t, html))
	if res == nil {
		t.Fatal("expected a status")
	}
	if res.Status != models.StockOutOfStock {
		t.Errorf("Status = %s, want out_of_stock from the stock-classed node", res.Status)
	}
}

func TestButtonStockStrategy(t *testing.T) {
	tests := []struct {
		name string
		html string
		want models.StockStatus
	}{
		{
			"enabled add to cart",
			`<html><body><button>Add to Cart</button></body></html>`,
			models.StockInStock,
		},
		{
			"disabled add to cart",
			`<html><body><button disabled>Add to Cart</button></body></html>`,
			models.StockOutOfStock,
		},
		{
			"sold out button",
			`<html><body><button disabled>Sold Out</button></body></html>`,
			models.StockOutOfStock,
		},
	}
	s := &buttonStockStrategy{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _ := s.Extract(contextFor(t, tt.html))
			if res == nil {
				t.Fatal("expected a status")
			}
			if res.Status != tt.want {
				t.Errorf("Status = %s, want %s", res.Status, tt.want)
			}
		})
	}
}

func TestHeuristicStockStrategy(t *testing.T) {
	html := `<html><body><p>Hurry, only 2 left!</p></body></html>`
	s := &heuristicStockStrategy{}
	res, _ := s.Extract(contextFor(t, html))
	if res == nil {
		t.Fatal("expected a status")
	}
	if res.Status != models.StockLowStock {
		t.Errorf("Status = %s, want low_stock", res.Status)
	}
}

func TestStockCascadeNotifyMePrecedence(t *testing.T) {
	// JSON says in stock but the page shows a notify-me signup; the
	// cascade must keep the notify-me verdict.
	html := `<html><body>
	<script type="application/json">{"product":{"available":true}}</script>
	<p>This item is currently out of stock.</p>
	<form action="/notify" class="notify-form">
	  <input type="email" placeholder="Email me when available">
	  <button>Notify Me</button>
	</form>
	</body></html>`

	e := New(nil)
	res, _ := e.runStockCascade(contextFor(t, html))
	if res == nil {
		t.Fatal("expected a status")
	}
	if res.Status != models.StockOutOfStock {
		t.Errorf("Status = %s, want out_of_stock", res.Status)
	}
	if res.Strategy != "notify-me-stock-strategy" {
		t.Errorf("Strategy = %q, want notify-me-stock-strategy", res.Strategy)
	}
}

func TestVariantsFromShopify(t *testing.T) {
	html := `<html><body><script type="application/json" id="product-json">
	{"product":{
	  "title":"Test Tee",
	  "options":[{"name":"Size"},{"name":"Color"}],
	  "variants":[
	    {"sku":"TT-S-RED","option1":"S","option2":"Red","price":"29.99","available":true},
	    {"sku":"TT-M-RED","option1":"M","option2":"Red","price":"29.99","available":false,"inventory_quantity":0}
	  ]}}
	</script></body></html>`

	variants, _ := extractVariants(contextFor(t, html))
	if len(variants) != 2 {
		t.Fatalf("len(variants) = %d, want 2", len(variants))
	}

	first := variants[0]
	if first.SKU != "TT-S-RED" {
		t.Errorf("SKU = %q", first.SKU)
	}
	if len(first.Attributes) != 2 || first.Attributes[0].Name != "Size" || first.Attributes[0].Value != "S" {
		t.Errorf("Attributes = %+v", first.Attributes)
	}
	if first.Price == nil || !first.Price.Equal(decimal.NewFromFloat(29.99)) {
		t.Errorf("Price = %v, want 29.99", first.Price)
	}
	if first.StockStatus != models.StockInStock {
		t.Errorf("StockStatus = %s, want in_stock", first.StockStatus)
	}
	if variants[1].StockStatus != models.StockOutOfStock {
		t.Errorf("second variant StockStatus = %s, want out_of_stock", variants[1].StockStatus)
	}
}

func TestVariantsFromDOMCrossProduct(t *testing.T) {
	html := `<html><body>
	<select name="size">
	  <option>Select size</option>
	  <option>S</option><option>M</option><option>L</option>
	</select>
	<select name="color">
	  <option>Red</option><option>Blue</option>
	</select>
	</body></html>`

	variants, _ := extractVariants(contextFor(t, html))
	if len(variants) != 6 {
		t.Fatalf("len(variants) = %d, want 6 (3 sizes x 2 colors)", len(variants))
	}
	for _, v := range variants {
		if len(v.Attributes) != 2 {
			t.Errorf("variant attributes = %+v, want size+color", v.Attributes)
		}
		if v.Price != nil {
			t.Error("DOM variants must not carry prices")
		}
	}
}

func TestVariantsCap(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<html><body><script type="application/json">{"product":{"title":"Big","variants":[`)
	for i := 0; i < 150; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`{"option1":"v` + strings.Repeat("x", i%10+1) + `","sku":"S` + strings.Repeat("k", i%7+1) + `"}`)
	}
	b.WriteString(`]}}</script></body></html>`)

	variants, notes := extractVariants(contextFor(t, b.String()))
	if len(variants) != models.MaxVariants {
		t.Errorf("len(variants) = %d, want %d", len(variants), models.MaxVariants)
	}
	found := false
	for _, n := range notes {
		if strings.Contains(n, "truncated") {
			found = true
		}
	}
	if !found {
		t.Error("expected a truncation note")
	}
}

func TestDetectDynamicContent(t *testing.T) {
	spa := `<html><body>
	<div id="root"></div><div id="app"></div><div id="mount"></div>
	<div id="m1"></div><div id="m2"></div><div id="m3"></div>
	<script src="/app.js"></script>
	<script>window.__NEXT_DATA__ = {"props":{}}</script>
	</body></html>`
	dynamic, indicators := detectDynamicContent(contextFor(t, spa))
	if !dynamic {
		t.Errorf("expected dynamic, indicators = %v", indicators)
	}

	static := `<html><body><main>` + strings.Repeat("Plain server rendered product copy. ", 30) +
		`<p>More text</p><p>More text</p></main></body></html>`
	dynamic, _ = detectDynamicContent(contextFor(t, static))
	if dynamic {
		t.Error("static page flagged dynamic")
	}
}

func TestExtractEndToEndShopify(t *testing.T) {
	html := `<html><head></head><body><script type="application/json" id="product-json">
	{"product":{
	  "title":"Test Tee",
	  "options":[{"name":"Size"}],
	  "variants":[{"sku":"TT-M","option1":"M","price":"29.99","available":true}],
	  "images":["https://cdn.example.com/tee.jpg"]
	}}</script></body></html>`

	res := &fetch.Result{
		Success:     true,
		Mode:        fetch.ModeHTTP,
		OriginalURL: "https://shop.example.com/products/test-tee",
		FinalURL:    "https://shop.example.com/products/test-tee",
		RawHTML:     html,
		FetchedAt:   time.Now().UTC(),
	}

	snap := New(nil).Extract(res)

	if snap.Title != "Test Tee" {
		t.Errorf("Title = %q, want Test Tee", snap.Title)
	}
	if len(snap.Variants) != 1 || snap.Variants[0].SKU != "TT-M" {
		t.Fatalf("Variants = %+v", snap.Variants)
	}
	if snap.Pricing == nil || !snap.Pricing.Amount.Equal(decimal.NewFromFloat(29.99)) {
		t.Errorf("Pricing = %+v, want 29.99", snap.Pricing)
	}
	if snap.Pricing.Strategy != "json-price-strategy" {
		t.Errorf("price Strategy = %q", snap.Pricing.Strategy)
	}
	if snap.Stock == nil || snap.Stock.Status != models.StockInStock {
		t.Errorf("Stock = %+v, want in_stock", snap.Stock)
	}
	if len(snap.Images) != 1 || snap.Images[0] != "https://cdn.example.com/tee.jpg" {
		t.Errorf("Images = %v", snap.Images)
	}
	if snap.Metadata.JSONBlobCount == 0 {
		t.Error("JSONBlobCount should be positive")
	}
}

func TestCascadeSurvivesPanickingStrategy(t *testing.T) {
	e := New(nil)
	e.stockCascade = append([]StockStrategy{panicStockStrategy{}}, e.stockCascade...)

	html := `<html><body><span class="stock">In stock</span></body></html>`
	res, notes := e.runStockCascade(contextFor(t, html))
	if res == nil {
		t.Fatal("cascade should continue past a panicking strategy")
	}
	if res.Status != models.StockInStock {
		t.Errorf("Status = %s, want in_stock", res.Status)
	}
	found := false
	for _, n := range notes {
		if strings.Contains(n, "panic") {
			found = true
		}
	}
	if !found {
		t.Errorf("notes = %v, want a panic note", notes)
	}
}

type panicStockStrategy struct{}

func (panicStockStrategy) Name() string { return "panicking" }
func (panicStockStrategy) Extract(*Context) (*StockShell, []string) {
	panic("boom")
}
