package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/logging"
	"github.com/shelfwatch/shelfwatch/internal/parse"
)

const (
	httpTimeout    = 10 * time.Second
	renderTimeout  = 15 * time.Second
	overallTimeout = 20 * time.Second
	maxRedirects   = 10

	// gcHeapThreshold triggers a GC hint after large-page fetches.
	gcHeapThreshold = 500 << 20

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

var (
	// ErrTooLarge marks a response body over the 10 MB cap.
	ErrTooLarge = errors.New("response body exceeds size limit")
	// ErrIncomplete marks structurally incomplete HTML.
	ErrIncomplete = errors.New("response HTML is structurally incomplete")

	reTagStrip    = regexp.MustCompile(`(?s)<[^>]*>`)
	reBodyContent = regexp.MustCompile(`(?is)<body[^>]*>(.*?)</body>`)
	reLDScript    = regexp.MustCompile(`(?i)<script[^>]*application/ld\+json[^>]*>`)
	reLDType      = regexp.MustCompile(`"@type"\s*:\s*"?Product`)
)

// ldProductWindow bounds how far into a JSON-LD block the type marker
// is searched for.
const ldProductWindow = 20000

// hasLDProduct reports whether the page carries a JSON-LD block typed
// Product near the top of its payload.
func hasLDProduct(html string) bool {
	for _, loc := range reLDScript.FindAllStringIndex(html, -1) {
		window := html[loc[1]:]
		if len(window) > ldProductWindow {
			window = window[:ldProductWindow]
		}
		if reLDType.MatchString(window) {
			return true
		}
	}
	return false
}

// Renderer is the headless browser path. Implementations must close every
// browser resource on all exit paths, including cancellation.
type Renderer interface {
	Render(ctx context.Context, url string) (*RenderedPage, error)
}

// RenderedPage is the capture produced by a Renderer.
type RenderedPage struct {
	HTML          string
	FinalURL      string
	ConsoleErrors []string
}

// Fetcher retrieves product pages. Safe for concurrent use; every fetch
// gets its own redirect-tracking client and, on the rendered path, its
// own browser.
type Fetcher struct {
	transport     http.RoundTripper
	renderer      Renderer
	disableRender bool
	logger        *slog.Logger
}

// Options configures a Fetcher.
type Options struct {
	Renderer      Renderer
	DisableRender bool
	Transport     http.RoundTripper
	Logger        *slog.Logger
}

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Fetcher{
		transport:     opts.Transport,
		renderer:      opts.Renderer,
		disableRender: opts.DisableRender,
		logger:        logging.Component(opts.Logger, "fetcher"),
	}
}

// Fetch retrieves one URL. HTTP first; Shopify JSON endpoints when the
// host looks like a Shopify storefront; rendered fallback otherwise. The
// whole operation runs under a 20s deadline.
func (f *Fetcher) Fetch(ctx context.Context, url string) *Result {
	ctx, cancel := context.WithTimeout(ctx, overallTimeout)
	defer cancel()

	logHeap(f.logger, "before", url)
	defer func() {
		logHeap(f.logger, "after", url)
		hintGC()
	}()

	var errs []string

	httpRes, httpErr := f.fetchHTTP(ctx, url)
	if httpErr != nil {
		errs = append(errs, fmt.Sprintf("http: %v", httpErr))
	}

	// Shopify storefronts expose the product as JSON; prefer that over
	// both the raw page and rendering.
	if isShopify(url, htmlOf(httpRes)) {
		if shopRes := f.fetchShopifyJSON(ctx, url); shopRes != nil {
			f.logger.Debug("shopify product json used", "url", url)
			return shopRes
		}
	}

	if httpErr == nil && httpRes != nil {
		// A JSON-LD Product block means rendering would add no value.
		if hasLDProduct(httpRes.RawHTML) {
			f.logger.Debug("json-ld product found, skipping render", "url", url)
			return httpRes
		}
		if f.disableRender || f.renderer == nil {
			return httpRes
		}
		// Page is valid but may be client-rendered; try the browser and
		// fall back to the HTTP result if it fails. The raw body is kept
		// alongside the capture so extraction can still prefer it.
		if rendered := f.fetchRendered(ctx, url, &errs); rendered != nil {
			rendered.StatusCode = httpRes.StatusCode
			rendered.RawHTML = httpRes.RawHTML
			return rendered
		}
		return httpRes
	}

	if !f.disableRender && f.renderer != nil {
		if rendered := f.fetchRendered(ctx, url, &errs); rendered != nil {
			return rendered
		}
	} else {
		errs = append(errs, "rendered fetch disabled")
	}

	if ctx.Err() != nil {
		errs = append(errs, fmt.Sprintf("fetch deadline: %v (timeout)", ctx.Err()))
	}
	return failedResult(url, errs...)
}

// fetchHTTP runs the plain GET path with one retry on network timeout.
func (f *Fetcher) fetchHTTP(ctx context.Context, url string) (*Result, error) {
	res, err := f.doHTTP(ctx, url)
	if err != nil && isNetTimeout(err) && ctx.Err() == nil {
		f.logger.Debug("retrying after network timeout", "url", url)
		res, err = f.doHTTP(ctx, url)
	}
	return res, err
}

func (f *Fetcher) doHTTP(ctx context.Context, url string) (*Result, error) {
	var redirects []string
	client := &http.Client{
		Transport: f.transport,
		Timeout:   httpTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			redirects = append(redirects, req.URL.String())
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	setBrowserHeaders(req)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := readCapped(resp.Body)
	if err != nil {
		return nil, err
	}
	if err := validateHTML(body); err != nil {
		return nil, err
	}

	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	meta := map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if len(redirects) > 0 {
		meta["redirect_chain"] = redirects
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		meta["content_type"] = ct
	}
	if sv := resp.Header.Get("Server"); sv != "" {
		meta["server"] = sv
	}

	return &Result{
		Success:     true,
		Mode:        ModeHTTP,
		OriginalURL: url,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		RawHTML:     body,
		FetchedAt:   time.Now().UTC(),
		Metadata:    meta,
	}, nil
}

func (f *Fetcher) fetchRendered(ctx context.Context, url string, errs *[]string) *Result {
	renderCtx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()

	start := time.Now()
	page, err := f.renderer.Render(renderCtx, url)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("rendered: %v", err))
		return nil
	}
	if len(page.HTML) > parse.MaxHTMLBytes {
		*errs = append(*errs, fmt.Sprintf("rendered: %v", ErrTooLarge))
		return nil
	}

	meta := map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if len(page.ConsoleErrors) > 0 {
		meta["console_errors"] = page.ConsoleErrors
	}

	finalURL := page.FinalURL
	if finalURL == "" {
		finalURL = url
	}

	return &Result{
		Success:      true,
		Mode:         ModeRendered,
		OriginalURL:  url,
		FinalURL:     finalURL,
		RenderedHTML: page.HTML,
		FetchedAt:    time.Now().UTC(),
		Metadata:     meta,
	}
}

func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

// readCapped reads at most MaxHTMLBytes, rejecting larger bodies.
func readCapped(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, parse.MaxHTMLBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > parse.MaxHTMLBytes {
		return "", ErrTooLarge
	}
	return string(data), nil
}

// validateHTML rejects structurally incomplete pages: no <html>, no
// <body>, or a body whose text (scripts and styles removed) is shorter
// than MinBodyChars.
func validateHTML(html string) error {
	lower := strings.ToLower(html)
	if !strings.Contains(lower, "<html") || !strings.Contains(lower, "<body") {
		return ErrIncomplete
	}

	m := reBodyContent.FindStringSubmatch(html)
	if m == nil {
		return ErrIncomplete
	}
	body := parse.CollapseWhitespace(reTagStrip.ReplaceAllString(stripScriptStyle(m[1]), " "))
	if len(body) < parse.MinBodyChars {
		return ErrIncomplete
	}
	return nil
}

var (
	reScript = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	reStyle  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
)

func stripScriptStyle(s string) string {
	s = reScript.ReplaceAllString(s, "")
	return reStyle.ReplaceAllString(s, "")
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func htmlOf(r *Result) string {
	if r == nil {
		return ""
	}
	return r.HTML()
}

func logHeap(logger *slog.Logger, phase, url string) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	logger.Debug("heap usage", "phase", phase, "url", url, "heap_alloc_mb", ms.HeapAlloc>>20)
}

func hintGC() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.HeapAlloc > gcHeapThreshold {
		runtime.GC()
	}
}
