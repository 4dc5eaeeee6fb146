package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/hazyhaar/formpilot/browser"
	"github.com/hazyhaar/formpilot/dom/htmldoc"
	"github.com/hazyhaar/formpilot/macro"
)

// ErrOffline is returned when recording is attempted on an offline page.
var ErrOffline = errors.New("agent: recording needs a live browser page")

// BrowserPages opens pages in the managed Chrome.
func BrowserPages(m *browser.Manager) Pages {
	return PagesFunc(func(ctx context.Context, pageURL string) (Page, error) {
		return m.Open(ctx, pageURL)
	})
}

// OfflinePage is a parsed HTML document served as a Page. It can be filled
// and replayed into but not recorded on.
type OfflinePage struct {
	*htmldoc.Document
	url string
}

// NewOfflinePage wraps doc loaded from pageURL.
func NewOfflinePage(doc *htmldoc.Document, pageURL string) *OfflinePage {
	return &OfflinePage{Document: doc, url: pageURL}
}

func (p *OfflinePage) URL() string  { return p.url }
func (p *OfflinePage) Close() error { return nil }

func (p *OfflinePage) Recorder() macro.Hook {
	return macro.HookFunc(func(context.Context, macro.RecordOptions, func(macro.Event)) (func(context.Context) error, error) {
		return nil, ErrOffline
	})
}

// FilePages opens local .html files (plain paths or file:// URLs) as
// offline pages. Network steps replayed into them go through client.
func FilePages(client *http.Client, logger *slog.Logger) Pages {
	return PagesFunc(func(_ context.Context, pageURL string) (Page, error) {
		path := pageURL
		if u, err := url.Parse(pageURL); err == nil && u.Scheme == "file" {
			path = u.Path
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(abs)
		if err != nil {
			return nil, fmt.Errorf("agent: open page file: %w", err)
		}
		defer f.Close()

		fileURL := (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
		doc, err := htmldoc.Parse(f, fileURL, htmldoc.WithHTTPClient(client), htmldoc.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return NewOfflinePage(doc, fileURL), nil
	})
}
