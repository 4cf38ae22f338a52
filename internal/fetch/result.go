// Package fetch retrieves product pages: an HTTP-first path with
// browser-like headers, Shopify product-JSON shortcuts, and a headless
// rendered fallback. The fetcher never returns an error to its caller;
// every failure mode collapses into a Result with Success=false and a
// diagnostic Error string.
package fetch

import "time"

// Mode identifies which path produced the result.
type Mode string

const (
	ModeHTTP     Mode = "http"
	ModeRendered Mode = "rendered"
	ModeFailed   Mode = "failed"
)

// Result carries everything downstream extraction needs about one fetch.
type Result struct {
	Success      bool           `json:"success"`
	Mode         Mode           `json:"mode_used"`
	OriginalURL  string         `json:"original_url"`
	FinalURL     string         `json:"final_url,omitempty"`
	StatusCode   int            `json:"status_code,omitempty"`
	RawHTML      string         `json:"-"`
	RenderedHTML string         `json:"-"`
	FetchedAt    time.Time      `json:"fetched_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// HTML returns the best available document: the raw HTTP body when
// present, otherwise the rendered capture.
func (r *Result) HTML() string {
	if r.RawHTML != "" {
		return r.RawHTML
	}
	return r.RenderedHTML
}

func failedResult(url string, errs ...string) *Result {
	msg := ""
	for i, e := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += e
	}
	return &Result{
		Success:     false,
		Mode:        ModeFailed,
		OriginalURL: url,
		FetchedAt:   time.Now().UTC(),
		Error:       msg,
	}
}
