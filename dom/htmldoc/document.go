// CLAUDE:SUMMARY Offline dom.Document and dom.Target over a parsed HTML tree: label resolution, value application, synthetic event log, replay targets.
// Package htmldoc implements dom.Document and dom.Target on top of a parsed
// HTML tree (golang.org/x/net/html).
//
// It has no layout engine and runs no scripts: mutations are applied to the
// node tree and every synthetic event is appended to an event log, which is
// what makes the filler and the replay engine testable without Chrome.
// Element boxes for coordinate fallback are supplied with SetLayout.
package htmldoc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/formpilot/dom"
)

// HighlightAttr marks a field outlined by Highlight.
const HighlightAttr = "data-formpilot-highlight"

// Event is one entry of the synthetic event log.
type Event struct {
	Ref   string  `json:"ref"`
	Type  string  `json:"type"`
	Value string  `json:"value,omitempty"`
	X     float64 `json:"x,omitempty"`
	Y     float64 `json:"y,omitempty"`
}

// Document is a parsed HTML page.
type Document struct {
	mu      sync.Mutex
	root    *html.Node
	pageURL *url.URL
	refs    map[string]*html.Node
	refOf   map[*html.Node]string
	pos     map[*html.Node]int
	layout  map[*html.Node]dom.Rect
	focused *html.Node
	events  []Event
	client  *http.Client
	logger  *slog.Logger

	// highlightGen counts Highlight calls per node so an older timer does
	// not clear a newer highlight.
	highlightGen map[*html.Node]int
}

// Option configures a Document.
type Option func(*Document)

// WithHTTPClient sets the client used to reissue network calls. Nil keeps
// the default.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Document) {
		if c != nil {
			d.client = c
		}
	}
}

// WithLogger sets the logger. Nil keeps the default.
func WithLogger(l *slog.Logger) Option {
	return func(d *Document) {
		if l != nil {
			d.logger = l
		}
	}
}

// Parse reads an HTML document. pageURL supplies the host (site context)
// and the base for relative network URLs; it may be empty.
func Parse(r io.Reader, pageURL string, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse: %w", err)
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: page url: %w", err)
	}

	d := &Document{
		root:    root,
		pageURL: u,
		refs:    make(map[string]*html.Node),
		refOf:   make(map[*html.Node]string),
		pos:     make(map[*html.Node]int),
		layout:  make(map[*html.Node]dom.Rect),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),

		highlightGen: make(map[*html.Node]int),
	}
	for _, o := range opts {
		o(d)
	}

	i := 0
	walk(root, func(n *html.Node) bool {
		ref := "n" + strconv.Itoa(i)
		d.refs[ref] = n
		d.refOf[n] = ref
		d.pos[n] = i
		i++
		return true
	})
	return d, nil
}

// ParseString is Parse over a string.
func ParseString(s, pageURL string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(s), pageURL, opts...)
}

// Host implements dom.Document.
func (d *Document) Host() string { return d.pageURL.Hostname() }

// Fields implements dom.Document.
func (d *Document) Fields(ctx context.Context) ([]dom.Field, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var fields []dom.Field
	walk(d.root, func(n *html.Node) bool {
		switch n.Data {
		case "input", "select", "textarea":
			fields = append(fields, d.snapshot(n))
		}
		return true
	})
	return fields, ctx.Err()
}

func (d *Document) snapshot(n *html.Node) dom.Field {
	f := dom.Field{
		Ref:   d.refOf[n],
		Host:  d.Host(),
		Tag:   n.Data,
		Name:  attr(n, "name"),
		ID:    attr(n, "id"),
		Label: d.labelFor(n),
	}
	if n.Data == "input" {
		f.Type = strings.ToLower(attr(n, "type"))
		if f.Type == "" {
			f.Type = "text"
		}
		f.Checked = hasAttr(n, "checked")
	}
	f.Value = currentValue(n)
	return f
}

func currentValue(n *html.Node) string {
	switch n.Data {
	case "textarea":
		return textOf(n)
	case "select":
		var first string
		found := false
		selected := ""
		walk(n, func(o *html.Node) bool {
			if o.Data != "option" {
				return true
			}
			v := optionValue(o)
			if !found {
				first, found = v, true
			}
			if hasAttr(o, "selected") {
				selected = v
				return false
			}
			return true
		})
		if selected != "" {
			return selected
		}
		return first
	default:
		typ := strings.ToLower(attr(n, "type"))
		if (typ == "checkbox" || typ == "radio") && !hasAttr(n, "value") {
			return "on"
		}
		return attr(n, "value")
	}
}

func optionValue(o *html.Node) string {
	if hasAttr(o, "value") {
		return attr(o, "value")
	}
	return strings.Join(strings.Fields(textOf(o)), " ")
}

// labelFor resolves the label of a control: an explicit for/id link first,
// then the nearest ancestor, up to and including the form, that is or
// contains a <label> belonging to this control. A label belongs to another
// control when it names it in for=, wraps it, or another control sits
// between the two in document order. <body> is never searched.
func (d *Document) labelFor(n *html.Node) string {
	id := attr(n, "id")
	if id != "" {
		var lbl *html.Node
		walk(d.root, func(c *html.Node) bool {
			if c.Data == "label" && attr(c, "for") == id {
				lbl = c
				return false
			}
			return true
		})
		if lbl != nil {
			return labelText(lbl)
		}
	}

	for p := n.Parent; p != nil && p.Type == html.ElementNode; p = p.Parent {
		if p.Data == "label" {
			return labelText(p)
		}
		if p.Data == "body" || p.Data == "html" {
			break
		}
		var lbl *html.Node
		walk(p, func(c *html.Node) bool {
			if c.Data != "label" {
				return true
			}
			if f := attr(c, "for"); f != "" && f != id {
				return true
			}
			if wrapsOtherControl(c, n) || d.controlBetween(c, n) {
				return true
			}
			lbl = c
			return false
		})
		if lbl != nil {
			return labelText(lbl)
		}
		if p.Data == "form" {
			break
		}
	}
	return ""
}

// controlBetween reports whether a control other than self lies between
// label and self in document order.
func (d *Document) controlBetween(label, self *html.Node) bool {
	lo, hi := d.pos[label], d.pos[self]
	if lo > hi {
		lo, hi = hi, lo
	}
	for c, i := range d.pos {
		if i <= lo || i >= hi || c == self {
			continue
		}
		switch c.Data {
		case "input", "select", "textarea":
			if strings.EqualFold(attr(c, "type"), "hidden") {
				continue
			}
			if !isDescendant(c, label) {
				return true
			}
		}
	}
	return false
}

func isDescendant(n, ancestor *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

func wrapsOtherControl(label, self *html.Node) bool {
	return !walk(label, func(c *html.Node) bool {
		switch c.Data {
		case "input", "select", "textarea":
			return c == self
		}
		return true
	})
}

// labelText collects the visible text of a label, leaving out the contents
// of nested controls.
func labelText(n *html.Node) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(c *html.Node) {
		switch {
		case c.Type == html.TextNode:
			b.WriteString(c.Data)
			b.WriteByte(' ')
		case c.Type == html.ElementNode:
			switch c.Data {
			case "select", "textarea", "option", "script", "style":
				return
			}
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			rec(k)
		}
	}
	rec(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			rec(k)
		}
	}
	rec(n)
	return b.String()
}

func (d *Document) node(ref string) (*html.Node, error) {
	n, ok := d.refs[ref]
	if !ok {
		return nil, fmt.Errorf("htmldoc: unknown ref %q", ref)
	}
	return n, nil
}

// SetValue implements dom.Document.
func (d *Document) SetValue(_ context.Context, f dom.Field, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(f.Ref)
	if err != nil {
		return err
	}
	return setValue(n, value)
}

func setValue(n *html.Node, value string) error {
	switch n.Data {
	case "textarea":
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			n.RemoveChild(c)
			c = next
		}
		n.AppendChild(&html.Node{Type: html.TextNode, Data: value})
	case "select":
		var match *html.Node
		walk(n, func(o *html.Node) bool {
			if o.Data == "option" && match == nil && optionValue(o) == value {
				match = o
			}
			return true
		})
		if match == nil {
			return fmt.Errorf("htmldoc: select has no option %q", value)
		}
		walk(n, func(o *html.Node) bool {
			if o.Data == "option" {
				removeAttr(o, "selected")
			}
			return true
		})
		setAttr(match, "selected", "")
	default:
		setAttr(n, "value", value)
	}
	return nil
}

// SetChecked implements dom.Document. Checking a radio unchecks the rest of
// its group.
func (d *Document) SetChecked(_ context.Context, f dom.Field, checked bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(f.Ref)
	if err != nil {
		return err
	}
	d.setChecked(n, checked)
	return nil
}

func (d *Document) setChecked(n *html.Node, checked bool) {
	if !checked {
		removeAttr(n, "checked")
		return
	}
	if strings.EqualFold(attr(n, "type"), "radio") && attr(n, "name") != "" {
		scope := formOf(n)
		if scope == nil {
			scope = d.root
		}
		name := attr(n, "name")
		walk(scope, func(o *html.Node) bool {
			if o != n && o.Data == "input" && strings.EqualFold(attr(o, "type"), "radio") && attr(o, "name") == name {
				removeAttr(o, "checked")
			}
			return true
		})
	}
	setAttr(n, "checked", "")
}

func formOf(n *html.Node) *html.Node {
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "form" {
			return p
		}
	}
	return nil
}

// Dispatch implements dom.Document by logging the events.
func (d *Document) Dispatch(_ context.Context, f dom.Field, events ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.node(f.Ref); err != nil {
		return err
	}
	for _, typ := range events {
		d.events = append(d.events, Event{Ref: f.Ref, Type: typ})
	}
	return nil
}

// Highlight implements dom.Document: the field carries HighlightAttr until
// dur elapses.
func (d *Document) Highlight(_ context.Context, f dom.Field, dur time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(f.Ref)
	if err != nil {
		return err
	}
	setAttr(n, HighlightAttr, "1")
	d.highlightGen[n]++
	gen := d.highlightGen[n]
	time.AfterFunc(dur, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.highlightGen[n] != gen {
			return
		}
		delete(d.highlightGen, n)
		removeAttr(n, HighlightAttr)
	})
	return nil
}

// Events returns a copy of the synthetic event log.
func (d *Document) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Event, len(d.events))
	copy(out, d.events)
	return out
}

// Ref returns the ref of the first element matching selector.
func (d *Document) Ref(selector string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := querySelector(d.root, selector)
	if err != nil {
		return "", err
	}
	if n == nil {
		return "", fmt.Errorf("htmldoc: no element matches %q", selector)
	}
	return d.refOf[n], nil
}

// Value returns the current value and checked state of the element
// matching selector.
func (d *Document) Value(selector string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := querySelector(d.root, selector)
	if err != nil {
		return "", false, err
	}
	if n == nil {
		return "", false, fmt.Errorf("htmldoc: no element matches %q", selector)
	}
	return currentValue(n), hasAttr(n, "checked"), nil
}

// Render writes the (mutated) document.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}
