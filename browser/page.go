package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/formpilot/dom"
)

//go:embed runtime.js
var runtimeJS string

// Page is one Chrome tab with the formpilot runtime installed.
type Page struct {
	rod        *rod.Page
	logger     *slog.Logger
	navTimeout time.Duration
}

var (
	_ dom.Document = (*Page)(nil)
	_ dom.Target   = (*Page)(nil)
)

// Rod returns the underlying Rod page.
func (p *Page) Rod() *rod.Page { return p.rod }

// installRuntime makes window.__formpilot available now and after every
// navigation.
func (p *Page) installRuntime() error {
	if _, err := p.rod.EvalOnNewDocument("(" + runtimeJS + ")()"); err != nil {
		return fmt.Errorf("browser: install runtime: %w", err)
	}
	if _, err := p.rod.Eval(runtimeJS); err != nil {
		return fmt.Errorf("browser: install runtime: %w", err)
	}
	return nil
}

// Navigate loads pageURL and waits for the load event. A load timeout is
// logged, not returned: forms are usually usable before every resource
// arrives.
func (p *Page) Navigate(ctx context.Context, pageURL string) error {
	navCtx, cancel := context.WithTimeout(ctx, p.navTimeout)
	defer cancel()

	if err := p.rod.Context(navCtx).Navigate(pageURL); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := p.rod.Context(navCtx).WaitLoad(); err != nil {
		p.logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	return nil
}

// URL returns the current page URL.
func (p *Page) URL() string {
	info, err := p.rod.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Host implements dom.Document.
func (p *Page) Host() string {
	u, err := url.Parse(p.URL())
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// HTML returns the serialised DOM.
func (p *Page) HTML(ctx context.Context) (string, error) {
	res, err := p.rod.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

// Close closes the tab.
func (p *Page) Close() error {
	if p.rod != nil {
		return p.rod.Close()
	}
	return nil
}

// call runs window.__formpilot[fn](args...) and returns the result as a
// string (empty for undefined).
func (p *Page) call(ctx context.Context, fn string, args ...any) (string, error) {
	js := fmt.Sprintf(`(...args) => { const r = window.__formpilot.%s(...args); return r === undefined ? '' : r; }`, fn)
	res, err := p.rod.Context(ctx).Eval(js, args...)
	if err != nil {
		return "", fmt.Errorf("browser: %s: %w", fn, err)
	}
	return res.Value.Str(), nil
}

// callJSON is call with a JSON-encoded result decoded into v.
func (p *Page) callJSON(ctx context.Context, v any, fn string, args ...any) error {
	raw, err := p.call(ctx, fn, args...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("browser: %s: decode: %w", fn, err)
	}
	return nil
}
