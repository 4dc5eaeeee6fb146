package browser

import (
	"context"

	"github.com/hazyhaar/formpilot/dom"
)

// Query implements dom.Target.
func (p *Page) Query(ctx context.Context, selector string) (dom.Element, error) {
	ref, err := p.call(ctx, "query", selector)
	if err != nil {
		return nil, err
	}
	if ref == "" {
		return nil, nil
	}
	return &element{page: p, ref: ref}, nil
}

// ElementAt implements dom.Target with document.elementFromPoint.
func (p *Page) ElementAt(ctx context.Context, pt dom.Point) (dom.Element, error) {
	ref, err := p.call(ctx, "at", pt.X, pt.Y)
	if err != nil {
		return nil, err
	}
	if ref == "" {
		return nil, nil
	}
	return &element{page: p, ref: ref}, nil
}

// Fetch implements dom.Target by reissuing the call from inside the page,
// so cookies and origin match the recording. It returns once the response
// has arrived.
func (p *Page) Fetch(ctx context.Context, req dom.Request) error {
	headers := req.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	_, err := p.call(ctx, "reissue", req.Kind, req.Method, req.URL, headers, req.Body)
	return err
}

type element struct {
	page *Page
	ref  string
}

func (e *element) Rect(ctx context.Context) (dom.Rect, error) {
	var r dom.Rect
	err := e.page.callJSON(ctx, &r, "rect", e.ref)
	return r, err
}

func (e *element) Mouse(ctx context.Context, typ string, at dom.Point, button int, mods dom.Modifiers) error {
	_, err := e.page.call(ctx, "mouse", e.ref, typ, at.X, at.Y, button, mods)
	return err
}

func (e *element) Input(ctx context.Context, value string, checked *bool) error {
	var c bool
	if checked != nil {
		c = *checked
	}
	_, err := e.page.call(ctx, "input", e.ref, value, checked != nil, c)
	return err
}

func (e *element) Key(ctx context.Context, typ, key, code string, mods dom.Modifiers) error {
	_, err := e.page.call(ctx, "key", e.ref, typ, key, code, mods)
	return err
}

func (e *element) Focus(ctx context.Context) error {
	_, err := e.page.call(ctx, "focus", e.ref)
	return err
}

func (e *element) Blur(ctx context.Context) error {
	_, err := e.page.call(ctx, "blur", e.ref)
	return err
}

func (e *element) Submit(ctx context.Context) error {
	_, err := e.page.call(ctx, "submit", e.ref)
	return err
}
