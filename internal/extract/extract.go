// Package extract turns a fetched page into a ProductSnapshot. Content
// fields (title, description, images) are simple waterfalls; price,
// stock and variants run through ordered strategy cascades where the
// first strategy to produce a result wins and every strategy's
// diagnostics are kept.
package extract

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/fetch"
	"github.com/shelfwatch/shelfwatch/internal/logging"
	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/parse"
)

// MaxImages caps the image list on a snapshot.
const MaxImages = 10

// PriceShell is a price observation before ingestion.
type PriceShell struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
	Raw      string          `json:"raw,omitempty"`
	Strategy string          `json:"strategy"`
}

// StockShell is a stock observation before ingestion.
type StockShell struct {
	Status   models.StockStatus `json:"status"`
	Raw      string             `json:"raw,omitempty"`
	Strategy string             `json:"strategy"`
}

// VariantShell is one variant candidate. Price and availability are
// filled only when the source data carried them per-variant; ingestion
// reconciles the rest.
type VariantShell struct {
	SKU         string             `json:"sku,omitempty"`
	Attributes  models.Attributes  `json:"attributes"`
	Price       *decimal.Decimal   `json:"price,omitempty"`
	Currency    string             `json:"currency,omitempty"`
	StockStatus models.StockStatus `json:"stock_status,omitempty"`
	Available   *bool              `json:"available,omitempty"`
}

// SnapshotMetadata carries page-level diagnostics.
type SnapshotMetadata struct {
	IsLikelyDynamic   bool     `json:"is_likely_dynamic"`
	DynamicIndicators []string `json:"dynamic_indicators,omitempty"`
	JSONBlobCount     int      `json:"json_blob_count"`
	FetchMode         string   `json:"fetch_mode,omitempty"`
}

// ProductSnapshot is the full extraction result for one page.
type ProductSnapshot struct {
	URL         string           `json:"url"`
	FinalURL    string           `json:"final_url,omitempty"`
	FetchedAt   time.Time        `json:"fetched_at"`
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description,omitempty"`
	Images      []string         `json:"images,omitempty"`
	Variants    []VariantShell   `json:"variants,omitempty"`
	Pricing     *PriceShell      `json:"pricing,omitempty"`
	Stock       *StockShell      `json:"stock,omitempty"`
	Notes       []string         `json:"notes,omitempty"`
	Metadata    SnapshotMetadata `json:"metadata"`
}

// Context is the shared input every strategy sees: the DOM (scripts and
// styles stripped), the raw document for regex passes, and the JSON
// blobs harvested once up front.
type Context struct {
	URL   string
	Doc   *goquery.Document
	HTML  string
	Blobs []any
}

// PriceStrategy produces a price observation or nil to defer.
type PriceStrategy interface {
	Name() string
	Extract(c *Context) (*PriceShell, []string)
}

// StockStrategy produces a stock observation or nil to defer.
type StockStrategy interface {
	Name() string
	Extract(c *Context) (*StockShell, []string)
}

// Extractor runs the full pipeline. Safe for concurrent use.
type Extractor struct {
	priceCascade []PriceStrategy
	stockCascade []StockStrategy
	logger       *slog.Logger
}

// New creates an Extractor with the default cascades.
func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		priceCascade: []PriceStrategy{
			&jsonPriceStrategy{},
			&domPriceStrategy{},
			&heuristicPriceStrategy{},
		},
		stockCascade: []StockStrategy{
			&notifyMeStockStrategy{},
			&jsonStockStrategy{},
			&domStockStrategy{},
			&buttonStockStrategy{},
			&heuristicStockStrategy{},
		},
		logger: logging.Component(logger, "extractor"),
	}
}

// Extract produces a snapshot from a fetch result. The raw HTTP body is
// preferred over the rendered capture when both are present.
func (e *Extractor) Extract(res *fetch.Result) *ProductSnapshot {
	html := res.HTML()
	if len(html) > parse.MaxHTMLBytes {
		html = html[:parse.MaxHTMLBytes]
	}

	// JSON must be harvested before scripts are stripped from the DOM.
	blobs := parse.ExtractEmbeddedJSON(html)
	doc := parse.LoadDOM(html, parse.DOMOptions{StripScriptsAndStyles: true})

	c := &Context{
		URL:   res.OriginalURL,
		Doc:   doc,
		HTML:  html,
		Blobs: blobs,
	}

	snap := &ProductSnapshot{
		URL:       res.OriginalURL,
		FinalURL:  res.FinalURL,
		FetchedAt: res.FetchedAt,
	}

	snap.Title = extractTitle(c)
	snap.Description = extractDescription(c)
	snap.Images = extractImages(c)

	var notes []string
	snap.Pricing, notes = e.runPriceCascade(c)
	snap.Notes = append(snap.Notes, notes...)

	snap.Stock, notes = e.runStockCascade(c)
	snap.Notes = append(snap.Notes, notes...)

	snap.Variants, notes = extractVariants(c)
	snap.Notes = append(snap.Notes, notes...)

	dynamic, indicators := detectDynamicContent(c)
	snap.Metadata = SnapshotMetadata{
		IsLikelyDynamic:   dynamic,
		DynamicIndicators: indicators,
		JSONBlobCount:     len(blobs),
		FetchMode:         string(res.Mode),
	}

	e.logger.Debug("snapshot extracted",
		"url", res.OriginalURL,
		"title", snap.Title != "",
		"price", snap.Pricing != nil,
		"stock", snap.Stock != nil,
		"variants", len(snap.Variants),
		"json_blobs", len(blobs))

	return snap
}

// runPriceCascade returns the first non-nil result. Strategy panics are
// caught and turned into notes so one bad page cannot take down a
// worker.
func (e *Extractor) runPriceCascade(c *Context) (result *PriceShell, notes []string) {
	for _, s := range e.priceCascade {
		res, n := e.safePrice(s, c)
		notes = append(notes, n...)
		if res != nil {
			res.Strategy = s.Name()
			return res, notes
		}
	}
	return nil, notes
}

func (e *Extractor) safePrice(s PriceStrategy, c *Context) (res *PriceShell, notes []string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("price strategy panicked", "strategy", s.Name(), "panic", r)
			notes = append(notes, fmt.Sprintf("%s: panic: %v", s.Name(), r))
			res = nil
		}
	}()
	res, notes = s.Extract(c)
	return res, notes
}

func (e *Extractor) runStockCascade(c *Context) (result *StockShell, notes []string) {
	for _, s := range e.stockCascade {
		res, n := e.safeStock(s, c)
		notes = append(notes, n...)
		if res != nil {
			res.Strategy = s.Name()
			return res, notes
		}
	}
	return nil, notes
}

func (e *Extractor) safeStock(s StockStrategy, c *Context) (res *StockShell, notes []string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("stock strategy panicked", "strategy", s.Name(), "panic", r)
			notes = append(notes, fmt.Sprintf("%s: panic: %v", s.Name(), r))
			res = nil
		}
	}()
	res, notes = s.Extract(c)
	return res, notes
}
