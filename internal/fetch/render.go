package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/shelfwatch/shelfwatch/internal/logging"
)

var (
	errStatus  = func(code int) error { return fmt.Errorf("status %d", code) }
	errNotJSON = errors.New("endpoint did not return JSON")
)

// RodRenderer renders pages with a headless Chromium via rod. A fresh
// browser is launched for every call and torn down on every exit path,
// including cancellation; instances are never reused across fetches so
// no cookies or state leak between products.
type RodRenderer struct {
	chromePath string
	logger     *slog.Logger
}

// NewRodRenderer creates a renderer. chromePath may be empty, in which
// case rod resolves (and if needed downloads) its own Chromium.
func NewRodRenderer(chromePath string, logger *slog.Logger) *RodRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RodRenderer{
		chromePath: chromePath,
		logger:     logging.Component(logger, "renderer"),
	}
}

// Render navigates to url, waits for DOM content loaded and captures the
// document. The context deadline bounds the whole operation.
func (r *RodRenderer) Render(ctx context.Context, url string) (*RenderedPage, error) {
	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-extensions").
		Set("disable-background-networking").
		Set("window-size", "1920,1080").
		Set("lang", "en-US,en")
	if r.chromePath != "" {
		l = l.Bin(r.chromePath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			r.logger.Warn("error closing browser", "error", err)
		}
		l.Cleanup()
	}()

	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil && ctx.Err() == nil {
			r.logger.Warn("error closing page", "error", err)
		}
	}()

	page = page.Context(ctx)
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent}); err != nil {
		return nil, fmt.Errorf("set user agent: %w", err)
	}

	var consoleErrs []string
	var mu sync.Mutex
	go page.EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		if e.Type != proto.RuntimeConsoleAPICalledTypeError {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if len(consoleErrs) < 20 {
			consoleErrs = append(consoleErrs, consoleArgsText(e))
		}
	})()

	waitDOM := page.WaitEvent(&proto.PageDomContentEventFired{})
	if err := page.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	waitDOM()

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("capture html: %w", err)
	}

	info, err := page.Info()
	finalURL := url
	if err == nil && info != nil && info.URL != "" {
		finalURL = info.URL
	}

	mu.Lock()
	errsCopy := append([]string(nil), consoleErrs...)
	mu.Unlock()

	return &RenderedPage{
		HTML:          html,
		FinalURL:      finalURL,
		ConsoleErrors: errsCopy,
	}, nil
}

func consoleArgsText(e *proto.RuntimeConsoleAPICalled) string {
	var out string
	for i, arg := range e.Args {
		if i > 0 {
			out += " "
		}
		if arg.Value.Val() != nil {
			out += fmt.Sprint(arg.Value.Val())
		} else if arg.Description != "" {
			out += arg.Description
		}
	}
	return out
}
