package browser

import (
	"context"
	"time"

	"github.com/hazyhaar/formpilot/dom"
)

// Fields implements dom.Document. Label markup collected in the page is
// reduced to text with dom.CleanLabel.
func (p *Page) Fields(ctx context.Context) ([]dom.Field, error) {
	var raw []dom.Field
	if err := p.callJSON(ctx, &raw, "fields"); err != nil {
		return nil, err
	}
	host := p.Host()
	for i := range raw {
		raw[i].Host = host
		raw[i].Label = dom.CleanLabel(raw[i].Label)
	}
	return raw, nil
}

// SetValue implements dom.Document.
func (p *Page) SetValue(ctx context.Context, f dom.Field, value string) error {
	_, err := p.call(ctx, "setValue", f.Ref, value)
	return err
}

// SetChecked implements dom.Document.
func (p *Page) SetChecked(ctx context.Context, f dom.Field, checked bool) error {
	_, err := p.call(ctx, "setChecked", f.Ref, checked)
	return err
}

// Dispatch implements dom.Document.
func (p *Page) Dispatch(ctx context.Context, f dom.Field, events ...string) error {
	_, err := p.call(ctx, "dispatch", f.Ref, events)
	return err
}

// Highlight implements dom.Document. The outline is removed by a page
// timer, so the call returns immediately.
func (p *Page) Highlight(ctx context.Context, f dom.Field, d time.Duration) error {
	_, err := p.call(ctx, "highlight", f.Ref, d.Milliseconds())
	return err
}
