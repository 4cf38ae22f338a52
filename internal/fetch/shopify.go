package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

var shopifyMarkers = []string{
	"myshopify.com",
	"cdn.shopify.com",
	"Shopify.theme",
	"shopify-section",
	"shopify-features",
}

// isShopify reports whether the URL or page looks like a Shopify
// storefront.
func isShopify(url, html string) bool {
	if strings.Contains(url, "myshopify.com") {
		return true
	}
	for _, marker := range shopifyMarkers {
		if strings.Contains(html, marker) {
			return true
		}
	}
	return false
}

// fetchShopifyJSON tries the Shopify product-JSON endpoints. On success
// the JSON is wrapped in a synthetic script document so the extractor's
// embedded-JSON path picks it up like any other page.
func (f *Fetcher) fetchShopifyJSON(ctx context.Context, url string) *Result {
	for _, endpoint := range shopifyEndpoints(url) {
		body, finalURL, status, err := f.getJSON(ctx, endpoint)
		if err != nil {
			f.logger.Debug("shopify endpoint failed", "endpoint", endpoint, "error", err)
			continue
		}
		return &Result{
			Success:     true,
			Mode:        ModeHTTP,
			OriginalURL: url,
			FinalURL:    finalURL,
			StatusCode:  status,
			RawHTML:     wrapProductJSON(body),
			FetchedAt:   time.Now().UTC(),
			Metadata:    map[string]any{"shopify_endpoint": endpoint},
		}
	}
	return nil
}

func shopifyEndpoints(url string) []string {
	base := url
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return []string{url + sep + "view=json", base + ".json"}
}

func (f *Fetcher) getJSON(ctx context.Context, url string) (string, string, int, error) {
	client := &http.Client{Transport: f.transport, Timeout: httpTimeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", 0, err
	}
	setBrowserHeaders(req)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", 0, errStatus(resp.StatusCode)
	}

	body, err := readCapped(resp.Body)
	if err != nil {
		return "", "", 0, err
	}

	// Endpoint must actually serve JSON; some themes 200 an HTML page.
	trimmed := strings.TrimSpace(body)
	if !json.Valid([]byte(trimmed)) || (!strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[")) {
		return "", "", 0, errNotJSON
	}

	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return trimmed, finalURL, resp.StatusCode, nil
}

func wrapProductJSON(jsonBody string) string {
	var b strings.Builder
	b.WriteString(`<html><head></head><body><script type="application/json" id="product-json">`)
	b.WriteString(jsonBody)
	b.WriteString(`</script></body></html>`)
	return b.String()
}
