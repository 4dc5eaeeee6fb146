package htmldoc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/formpilot/dom"
)

// SetLayout assigns a bounding box to the first element matching selector.
// Elements without a box are invisible to ElementAt.
func (d *Document) SetLayout(selector string, r dom.Rect) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := querySelector(d.root, selector)
	if err != nil {
		return err
	}
	if n == nil {
		return fmt.Errorf("htmldoc: no element matches %q", selector)
	}
	d.layout[n] = r
	return nil
}

// Query implements dom.Target.
func (d *Document) Query(_ context.Context, selector string) (dom.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := querySelector(d.root, selector)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: query %q: %w", selector, err)
	}
	if n == nil {
		return nil, nil
	}
	return &element{doc: d, n: n}, nil
}

// ElementAt implements dom.Target. The topmost hit is the last element in
// document order whose box contains p.
func (d *Document) ElementAt(_ context.Context, p dom.Point) (dom.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var hit *html.Node
	walk(d.root, func(n *html.Node) bool {
		r, ok := d.layout[n]
		if ok && !r.Empty() && p.X >= r.X && p.X <= r.X+r.Width && p.Y >= r.Y && p.Y <= r.Y+r.Height {
			hit = n
		}
		return true
	})
	if hit == nil {
		return nil, nil
	}
	return &element{doc: d, n: hit}, nil
}

// Fetch implements dom.Target. Relative URLs resolve against the page URL.
func (d *Document) Fetch(ctx context.Context, req dom.Request) error {
	u, err := d.pageURL.Parse(req.URL)
	if err != nil {
		return fmt.Errorf("htmldoc: fetch url: %w", err)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	hr, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("htmldoc: fetch: %w", err)
	}
	for k, v := range req.Headers {
		hr.Header.Set(k, v)
	}
	resp, err := d.client.Do(hr)
	if err != nil {
		return fmt.Errorf("htmldoc: fetch %s %s: %w", method, u, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	d.logger.Debug("htmldoc: fetch", "method", method, "url", u.String(), "status", resp.StatusCode)
	d.record(Event{Type: req.Kind, Value: method + " " + u.String()})
	return nil
}

func (d *Document) record(e Event) {
	d.mu.Lock()
	d.events = append(d.events, e)
	d.mu.Unlock()
}

type element struct {
	doc *Document
	n   *html.Node
}

func (e *element) ref() string { return e.doc.refOf[e.n] }

func (e *element) Rect(context.Context) (dom.Rect, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.doc.layout[e.n], nil
}

// Mouse logs the event. A click toggles checkboxes and checks radios the way
// a browser's activation behaviour does.
func (e *element) Mouse(_ context.Context, typ string, at dom.Point, _ int, _ dom.Modifiers) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if typ == "click" && e.n.Data == "input" {
		switch strings.ToLower(attr(e.n, "type")) {
		case "checkbox":
			e.doc.setChecked(e.n, !hasAttr(e.n, "checked"))
		case "radio":
			e.doc.setChecked(e.n, true)
		}
	}
	e.doc.events = append(e.doc.events, Event{Ref: e.ref(), Type: typ, X: at.X, Y: at.Y})
	return nil
}

func (e *element) Input(_ context.Context, value string, checked *bool) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if checked != nil {
		e.doc.setChecked(e.n, *checked)
	} else if err := setValue(e.n, value); err != nil {
		return err
	}
	e.doc.events = append(e.doc.events, Event{Ref: e.ref(), Type: "input", Value: value})
	return nil
}

func (e *element) Key(_ context.Context, typ, key, _ string, _ dom.Modifiers) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.doc.events = append(e.doc.events, Event{Ref: e.ref(), Type: typ, Value: key})
	return nil
}

func (e *element) Focus(context.Context) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.doc.focused = e.n
	e.doc.events = append(e.doc.events, Event{Ref: e.ref(), Type: "focus"})
	return nil
}

func (e *element) Blur(context.Context) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.doc.focused == e.n {
		e.doc.focused = nil
	}
	e.doc.events = append(e.doc.events, Event{Ref: e.ref(), Type: "blur"})
	return nil
}

func (e *element) Submit(context.Context) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	form := formOf(e.n)
	if form == nil {
		return fmt.Errorf("htmldoc: submit: %s is not in a form", e.n.Data)
	}
	e.doc.events = append(e.doc.events, Event{Ref: e.doc.refOf[form], Type: "submit"})
	return nil
}
